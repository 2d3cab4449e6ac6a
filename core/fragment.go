package core

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Type identifies a semantic role in the dependency graph (e.g. "spec",
// "hamiltonian", "complete_solution"). It is opaque to the engine.
type Type string

// ErrAlreadyCaptured is returned when captured bindings are written twice.
var ErrAlreadyCaptured = errors.New("fragment bindings already captured")

// Fragment is the unit of work product emitted by a tool.
//
// Invariants:
//   - PrimaryVariable is always contained in Provides
//   - CapturedBindings is nil until the engine executed the fragment and is
//     written exactly once
//   - a Fragment is read-only after registration apart from its bindings
type Fragment struct {
	// Code is the fragment source (optional import lines + statements).
	Code string `json:"code"`
	// SemanticType is the role this fragment fulfils.
	SemanticType Type `json:"semantic_type"`
	// PrimaryVariable is the name under which the main result is bound.
	PrimaryVariable string `json:"primary_variable"`
	// DeclaredDependencies snapshots the required types at creation time.
	DeclaredDependencies []Type `json:"declared_dependencies,omitempty"`
	// Provides lists the variable names the fragment is expected to bind.
	Provides []string `json:"provides"`
	// Metadata holds opaque annotations (provenance, parameters, ...).
	Metadata map[string]any `json:"metadata,omitempty"`
	// ToolSource identifies the producing tool.
	ToolSource string `json:"tool_source,omitempty"`
	// Executed reports whether the engine ran the fragment code successfully.
	Executed bool `json:"executed"`
	// CapturedBindings maps variable names to the values observed after execution.
	CapturedBindings map[string]any `json:"-"`
}

// NewFragment creates a fragment for semanticType whose main result is bound
// to primaryVariable. Use the With* helpers to attach the remaining fields.
func NewFragment(code string, semanticType Type, primaryVariable string) *Fragment {
	f := &Fragment{
		Code:            code,
		SemanticType:    semanticType,
		PrimaryVariable: primaryVariable,
		Metadata:        map[string]any{},
	}
	f.ensurePrimary()
	return f
}

// WithDependencies sets the declared dependency snapshot (chainable).
func (f *Fragment) WithDependencies(deps ...Type) *Fragment {
	f.DeclaredDependencies = slices.Clone(deps)
	return f
}

// WithProvides adds provided variable names, keeping PrimaryVariable (chainable).
func (f *Fragment) WithProvides(names ...string) *Fragment {
	for _, n := range names {
		if n != "" && !slices.Contains(f.Provides, n) {
			f.Provides = append(f.Provides, n)
		}
	}
	f.ensurePrimary()
	return f
}

// WithMetadata attaches a metadata key/value pair (chainable).
func (f *Fragment) WithMetadata(key string, value any) *Fragment {
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	f.Metadata[key] = value
	return f
}

// WithToolSource records the producing tool (chainable).
func (f *Fragment) WithToolSource(tool string) *Fragment {
	f.ToolSource = tool
	return f
}

func (f *Fragment) ensurePrimary() {
	if f.PrimaryVariable != "" && !slices.Contains(f.Provides, f.PrimaryVariable) {
		f.Provides = append([]string{f.PrimaryVariable}, f.Provides...)
	}
}

// Validate checks the structural invariants of the fragment. It also repairs
// a missing primary variable in Provides, mirroring NewFragment.
func (f *Fragment) Validate() error {
	if f == nil {
		return errors.New("fragment is nil")
	}
	if f.SemanticType == "" {
		return errors.New("fragment has no semantic type")
	}
	if f.PrimaryVariable == "" {
		return fmt.Errorf("fragment %s has no primary variable", f.SemanticType)
	}
	f.ensurePrimary()
	return nil
}

// Capture records the bindings observed after executing the fragment code.
// Only names in Provides are retained.
func (f *Fragment) Capture(bindings map[string]any) error {
	if f.CapturedBindings != nil {
		return ErrAlreadyCaptured
	}
	captured := make(map[string]any, len(f.Provides))
	for _, name := range f.Provides {
		if v, ok := bindings[name]; ok {
			captured[name] = v
		}
	}
	f.CapturedBindings = captured
	f.Executed = true
	return nil
}

// ProvidedBindings returns the captured values of every provided name that
// was actually bound. The result is a fresh map.
func (f *Fragment) ProvidedBindings() map[string]any {
	out := make(map[string]any, len(f.CapturedBindings))
	for _, name := range f.Provides {
		if v, ok := f.CapturedBindings[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Clone returns a copy safe for independent mutation. Captured values are
// shared (they are opaque to the engine).
func (f *Fragment) Clone() *Fragment {
	c := *f
	c.DeclaredDependencies = slices.Clone(f.DeclaredDependencies)
	c.Provides = slices.Clone(f.Provides)
	c.Metadata = maps.Clone(f.Metadata)
	c.CapturedBindings = maps.Clone(f.CapturedBindings)
	return &c
}

// String implements fmt.Stringer.
func (f *Fragment) String() string {
	return fmt.Sprintf("Fragment(%s from %s provides %v)", f.SemanticType, f.ToolSource, f.Provides)
}
