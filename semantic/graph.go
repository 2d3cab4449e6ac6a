package semantic

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/fragmesh/core"
)

// ErrUnknownDependency is returned when a type depends on an undeclared type.
var ErrUnknownDependency = errors.New("semantic: dependency on undeclared type")

// CycleError reports a dependency cycle found while building a Graph.
type CycleError struct {
	Path []core.Type
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, t := range e.Path {
		parts[i] = string(t)
	}
	return "semantic: dependency cycle " + strings.Join(parts, " -> ")
}

// Graph maps each semantic type to its direct prerequisites.
type Graph struct {
	deps  map[core.Type][]core.Type
	types []core.Type
	final core.Type
}

// NewGraph validates deps and returns an immutable Graph. final names the
// type that denotes the fully assembled artifact; it may be empty.
func NewGraph(deps map[core.Type][]core.Type, final core.Type) (*Graph, error) {
	g := &Graph{deps: make(map[core.Type][]core.Type, len(deps)), final: final}
	for t, ds := range deps {
		if t == "" {
			return nil, errors.New("semantic: empty type name")
		}
		cp := slices.Clone(ds)
		slices.Sort(cp)
		g.deps[t] = slices.Compact(cp)
		g.types = append(g.types, t)
	}
	slices.Sort(g.types)

	for _, t := range g.types {
		for _, d := range g.deps[t] {
			if _, ok := g.deps[d]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrUnknownDependency, t, d)
			}
		}
	}
	if final != "" {
		if _, ok := g.deps[final]; !ok {
			return nil, fmt.Errorf("semantic: final type %s is not declared", final)
		}
	}
	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}
	return g, nil
}

// MustGraph is like NewGraph but panics on invalid configuration.
func MustGraph(deps map[core.Type][]core.Type, final core.Type) *Graph {
	g, err := NewGraph(deps, final)
	if err != nil {
		panic(err)
	}
	return g
}

// findCycle runs a colored DFS in sorted order so the reported path is stable.
func (g *Graph) findCycle() []core.Type {
	const (
		white = iota
		grey
		black
	)
	color := make(map[core.Type]int, len(g.types))
	var stack []core.Type
	var visit func(t core.Type) []core.Type
	visit = func(t core.Type) []core.Type {
		color[t] = grey
		stack = append(stack, t)
		for _, d := range g.deps[t] {
			switch color[d] {
			case grey:
				start := slices.Index(stack, d)
				return append(slices.Clone(stack[start:]), d)
			case white:
				if c := visit(d); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[t] = black
		return nil
	}
	for _, t := range g.types {
		if color[t] == white {
			if c := visit(t); c != nil {
				return c
			}
		}
	}
	return nil
}

// DependenciesOf returns the direct prerequisites of t (sorted). Unknown
// types have no dependencies.
func (g *Graph) DependenciesOf(t core.Type) []core.Type {
	return slices.Clone(g.deps[t])
}

// AllTypes returns every declared type in lexicographic order.
func (g *Graph) AllTypes() []core.Type {
	return slices.Clone(g.types)
}

// Has reports whether t is declared.
func (g *Graph) Has(t core.Type) bool {
	_, ok := g.deps[t]
	return ok
}

// Final returns the designated final-artifact type.
func (g *Graph) Final() core.Type { return g.final }

// Len returns the number of declared types.
func (g *Graph) Len() int { return len(g.types) }

// DependsOn reports whether t requires d directly or transitively.
func (g *Graph) DependsOn(t, d core.Type) bool {
	seen := map[core.Type]bool{}
	queue := slices.Clone(g.deps[t])
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == d {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, g.deps[cur]...)
	}
	return false
}

// Dependents returns the declared types that depend on t directly or
// transitively, sorted.
func (g *Graph) Dependents(t core.Type) []core.Type {
	var out []core.Type
	for _, c := range g.types {
		if c != t && g.DependsOn(c, t) {
			out = append(out, c)
		}
	}
	return out
}

// TopologicalOrder orders types by the graph's dependencies. See TopoSort.
func (g *Graph) TopologicalOrder(types []core.Type) (order []core.Type, anomaly bool) {
	return TopoSort(types, func(t core.Type) []core.Type { return g.deps[t] })
}

// TopoSort orders types so every type follows its prerequisites as reported
// by depsOf, directly or transitively: a type is held back while anything
// it reaches through depsOf is still remaining, even when the types in
// between are absent from types. It repeatedly selects the batch of
// remaining types that are not held back; a batch is emitted in
// lexicographic order. If no such batch exists (cycle or data defect) the
// lexicographically smallest remaining type is forced out and anomaly is
// set, so the sort always terminates.
func TopoSort(types []core.Type, depsOf func(core.Type) []core.Type) (order []core.Type, anomaly bool) {
	remaining := make(map[core.Type]bool, len(types))
	for _, t := range types {
		remaining[t] = true
	}
	reach := make(map[core.Type]map[core.Type]bool, len(remaining))
	for t := range remaining {
		reach[t] = closure(t, depsOf)
	}
	for len(remaining) > 0 {
		var ready []core.Type
		for t := range remaining {
			if !blocked(t, reach[t], remaining, depsOf) {
				ready = append(ready, t)
			}
		}
		if len(ready) == 0 {
			anomaly = true
			for t := range remaining {
				if len(ready) == 0 || t < ready[0] {
					ready = []core.Type{t}
				}
			}
		}
		slices.Sort(ready)
		for _, t := range ready {
			order = append(order, t)
			delete(remaining, t)
		}
	}
	return order, anomaly
}

// blocked reports whether t must wait: another remaining type is among its
// transitive prerequisites, or t lists itself as a dependency.
func blocked(t core.Type, reach, remaining map[core.Type]bool, depsOf func(core.Type) []core.Type) bool {
	if slices.Contains(depsOf(t), t) {
		return true
	}
	for r := range reach {
		if r != t && remaining[r] {
			return true
		}
	}
	return false
}

// closure returns every type reachable from t through depsOf.
func closure(t core.Type, depsOf func(core.Type) []core.Type) map[core.Type]bool {
	seen := map[core.Type]bool{}
	queue := slices.Clone(depsOf(t))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		queue = append(queue, depsOf(cur)...)
	}
	return seen
}
