package testutil

import (
	"time"

	"github.com/hupe1980/fragmesh/core"
)

// FragmentBuilder provides a fluent helper for constructing fragments in tests.
// Example:
//
//	f := NewFragmentBuilder("hamiltonian").Code("hamiltonian := 1").DependsOn("spec").Build()
//
// The primary variable defaults to the type name.
type FragmentBuilder struct {
	f *core.Fragment
}

// NewFragmentBuilder creates a builder for a fragment of type t.
func NewFragmentBuilder(t core.Type) *FragmentBuilder {
	return &FragmentBuilder{f: core.NewFragment("", t, string(t))}
}

// Code sets the fragment source (chainable).
func (b *FragmentBuilder) Code(src string) *FragmentBuilder { b.f.Code = src; return b }

// Primary replaces the primary variable (chainable).
func (b *FragmentBuilder) Primary(name string) *FragmentBuilder {
	old := b.f.PrimaryVariable
	b.f.PrimaryVariable = name
	provides := b.f.Provides[:0]
	for _, p := range b.f.Provides {
		if p != old {
			provides = append(provides, p)
		}
	}
	b.f.Provides = provides
	b.f.WithProvides(name)
	return b
}

// Provides adds provided names (chainable).
func (b *FragmentBuilder) Provides(names ...string) *FragmentBuilder {
	b.f.WithProvides(names...)
	return b
}

// DependsOn sets the declared dependencies (chainable).
func (b *FragmentBuilder) DependsOn(deps ...core.Type) *FragmentBuilder {
	b.f.WithDependencies(deps...)
	return b
}

// Tool sets the producing tool (chainable).
func (b *FragmentBuilder) Tool(name string) *FragmentBuilder { b.f.WithToolSource(name); return b }

// Meta attaches a metadata entry (chainable).
func (b *FragmentBuilder) Meta(key string, value any) *FragmentBuilder {
	b.f.WithMetadata(key, value)
	return b
}

// Captured marks the fragment executed with the given bindings (chainable).
func (b *FragmentBuilder) Captured(bindings map[string]any) *FragmentBuilder {
	b.f.CapturedBindings = nil
	_ = b.f.Capture(bindings)
	return b
}

// Build returns the fragment.
func (b *FragmentBuilder) Build() *core.Fragment { return b.f }

// StepBuilder constructs workflow steps for tracker and export tests.
// Example:
//
//	st := NewStepBuilder("TFIM_Spec_Tool").Fragment(f).Raw(42).Build()
type StepBuilder struct {
	step core.Step
}

// NewStepBuilder creates a step for tool with a fixed timestamp.
func NewStepBuilder(tool string) *StepBuilder {
	return &StepBuilder{step: core.Step{
		ID:        core.NewID(),
		Index:     1,
		Tool:      tool,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
}

// Index sets the 1-based step index (chainable).
func (b *StepBuilder) Index(i int) *StepBuilder { b.step.Index = i; return b }

// SubGoal sets the sub-goal text (chainable).
func (b *StepBuilder) SubGoal(s string) *StepBuilder { b.step.SubGoal = s; return b }

// Source sets the executed command (chainable).
func (b *StepBuilder) Source(s string) *StepBuilder { b.step.Source = s; return b }

// Fragment appends a successful outcome carrying f (chainable).
func (b *StepBuilder) Fragment(f *core.Fragment) *StepBuilder {
	b.step.Outcomes = append(b.step.Outcomes, core.Outcome{Status: core.StatusOK, Value: f, Fragment: f})
	return b
}

// Raw appends a successful outcome carrying an unregistered value (chainable).
func (b *StepBuilder) Raw(v any) *StepBuilder {
	b.step.Outcomes = append(b.step.Outcomes, core.Outcome{Status: core.StatusOK, Value: v})
	return b
}

// Timeout appends a timeout outcome (chainable).
func (b *StepBuilder) Timeout(after time.Duration) *StepBuilder {
	t := core.Timeout{After: after}
	b.step.Outcomes = append(b.step.Outcomes, core.Outcome{Status: core.StatusTimeout, Value: t, Message: t.String()})
	return b
}

// Failed sets the step-level error (chainable).
func (b *StepBuilder) Failed(msg string) *StepBuilder { b.step.Error = msg; return b }

// Build returns the step.
func (b *StepBuilder) Build() core.Step { return b.step }
