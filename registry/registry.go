// Package registry implements the fragment registry: at most one fragment
// per semantic type, plus the readiness and completion views derived from
// the dependency graph.
//
// Re-registering a type replaces the previous fragment (latest wins).
// Fragments that depended on the replaced version are not invalidated; they
// can be listed with StaleDependents.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/semantic"
)

// ErrUnknownType is returned for fragments whose semantic type the graph
// does not declare.
var ErrUnknownType = errors.New("unknown semantic type")

// Registry stores the latest fragment per semantic type. It is safe for
// concurrent reads; writes are expected from a single orchestrating path.
type Registry struct {
	mu        sync.RWMutex
	graph     *semantic.Graph
	fragments map[core.Type]*core.Fragment
	seq       map[core.Type]int // registration sequence number per type
	next      int
}

// New creates an empty registry bound to graph.
func New(graph *semantic.Graph) *Registry {
	return &Registry{
		graph:     graph,
		fragments: make(map[core.Type]*core.Fragment),
		seq:       make(map[core.Type]int),
	}
}

// Graph returns the dependency graph the registry gates on.
func (r *Registry) Graph() *semantic.Graph { return r.graph }

// Register inserts or overwrites the fragment for its semantic type. Types
// not declared in the graph are rejected with ErrUnknownType.
func (r *Registry) Register(f *core.Fragment) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := r.CheckType(f.SemanticType); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.fragments[f.SemanticType] = f
	r.seq[f.SemanticType] = r.next
	return nil
}

// CheckType returns ErrUnknownType unless the graph declares t.
func (r *Registry) CheckType(t core.Type) error {
	if !r.graph.Has(t) {
		return fmt.Errorf("registry: %w %s", ErrUnknownType, t)
	}
	return nil
}

// Get returns the fragment registered for t.
func (r *Registry) Get(t core.Type) (*core.Fragment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fragments[t]
	return f, ok
}

// Has reports whether a fragment is registered for t.
func (r *Registry) Has(t core.Type) bool {
	_, ok := r.Get(t)
	return ok
}

// Len returns the number of registered fragments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fragments)
}

// IsSatisfied reports whether every dependency of t has a registered
// fragment, and which ones are missing.
func (r *Registry) IsSatisfied(t core.Type) (bool, []core.Type) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isSatisfiedLocked(t)
}

func (r *Registry) isSatisfiedLocked(t core.Type) (bool, []core.Type) {
	var missing []core.Type
	for _, d := range r.graph.DependenciesOf(t) {
		if _, ok := r.fragments[d]; !ok {
			missing = append(missing, d)
		}
	}
	return len(missing) == 0, missing
}

// ReadyTypes returns every declared type without a registered fragment
// whose dependencies are all registered, sorted.
func (r *Registry) ReadyTypes() []core.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ready []core.Type
	for _, t := range r.graph.AllTypes() {
		if _, ok := r.fragments[t]; ok {
			continue
		}
		if ok, _ := r.isSatisfiedLocked(t); ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// CompletionStatus returns a presence map over every declared type.
func (r *Registry) CompletionStatus() map[core.Type]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status := make(map[core.Type]bool, r.graph.Len())
	for _, t := range r.graph.AllTypes() {
		_, status[t] = r.fragments[t]
	}
	return status
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []core.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.orderedLocked()
}

func (r *Registry) orderedLocked() []core.Type {
	types := make([]core.Type, 0, len(r.fragments))
	for t := range r.fragments {
		types = append(types, t)
	}
	slices.SortFunc(types, func(a, b core.Type) int { return r.seq[a] - r.seq[b] })
	return types
}

// Fragments returns the registered fragments in registration order.
func (r *Registry) Fragments() []*core.Fragment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := r.orderedLocked()
	out := make([]*core.Fragment, len(types))
	for i, t := range types {
		out[i] = r.fragments[t]
	}
	return out
}

// ExposedVariables exports, for every executed fragment, each provided
// name found in its captured bindings. Later registrations win on name
// collisions.
func (r *Registry) ExposedVariables() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vars := map[string]any{}
	for _, t := range r.orderedLocked() {
		f := r.fragments[t]
		if f.CapturedBindings == nil {
			continue
		}
		for name, v := range f.ProvidedBindings() {
			vars[name] = v
		}
	}
	return vars
}

// StaleDependents lists registered types that depend (transitively) on t
// but were registered before t's current fragment.
func (r *Registry) StaleDependents(t core.Type) []core.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.seq[t]
	if !ok {
		return nil
	}
	var stale []core.Type
	for _, d := range r.graph.Dependents(t) {
		if s, ok := r.seq[d]; ok && s < cur {
			stale = append(stale, d)
		}
	}
	return stale
}
