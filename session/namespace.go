package session

import (
	"maps"
	"slices"
	"sync"
)

// Namespace is a concurrency-safe, merge-only variable map. Readers always
// receive copies so blocks executing in parallel cannot observe each
// other's partial writes.
type Namespace struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewNamespace constructs a namespace seeded with initial (may be nil).
func NewNamespace(initial map[string]any) *Namespace {
	n := &Namespace{vars: make(map[string]any, len(initial))}
	maps.Copy(n.vars, initial)
	return n
}

// Merge copies every binding into the namespace, overwriting existing
// names.
func (n *Namespace) Merge(bindings map[string]any) {
	if len(bindings) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	maps.Copy(n.vars, bindings)
}

// Set binds a single name.
func (n *Namespace) Set(name string, value any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.vars[name] = value
}

// Get returns the value bound to name.
func (n *Namespace) Get(name string) (any, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	v, ok := n.vars[name]
	return v, ok
}

// Snapshot returns a shallow copy of the namespace.
func (n *Namespace) Snapshot() map[string]any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return maps.Clone(n.vars)
}

// Keys returns the bound names, sorted.
func (n *Namespace) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Sorted(maps.Keys(n.vars))
}

// Len returns the number of bound names.
func (n *Namespace) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.vars)
}
