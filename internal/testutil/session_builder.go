package testutil

import (
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/legacy"
	"github.com/hupe1980/fragmesh/registry"
	"github.com/hupe1980/fragmesh/semantic"
	"github.com/hupe1980/fragmesh/session"
	"github.com/hupe1980/fragmesh/tool"
)

// Session bundles the per-session state the engine works on.
type Session struct {
	Schema    *semantic.Schema
	Graph     *semantic.Graph
	Registry  *registry.Registry
	Namespace *session.Namespace
	Catalog   *tool.Catalog
	Adapter   *legacy.Adapter
}

// SessionBuilder helps construct wired sessions with fluent chaining for tests.
// Example:
//
//	s := NewSessionBuilder(SmallSchema()).Var("k", 1).Tools(spec, ham).Fragments(f).Build()
type SessionBuilder struct {
	schema    *semantic.Schema
	vars      map[string]any
	tools     []tool.Tool
	fragments []*core.Fragment
}

// NewSessionBuilder creates a builder over schema. A nil schema selects
// semantic.DefaultSchema.
func NewSessionBuilder(schema *semantic.Schema) *SessionBuilder {
	if schema == nil {
		schema = semantic.DefaultSchema()
	}
	return &SessionBuilder{schema: schema, vars: map[string]any{}}
}

// Var seeds a namespace variable (chainable).
func (b *SessionBuilder) Var(name string, val any) *SessionBuilder {
	b.vars[name] = val
	return b
}

// Tools registers ready-made tool instances in the catalog (chainable).
func (b *SessionBuilder) Tools(ts ...tool.Tool) *SessionBuilder {
	b.tools = append(b.tools, ts...)
	return b
}

// Fragments pre-registers fragments in order (chainable).
func (b *SessionBuilder) Fragments(fs ...*core.Fragment) *SessionBuilder {
	b.fragments = append(b.fragments, fs...)
	return b
}

// Build wires the session. It panics on invalid input since it is only
// used from tests.
func (b *SessionBuilder) Build() *Session {
	g, err := b.schema.Graph()
	if err != nil {
		panic(err)
	}
	s := &Session{
		Schema:    b.schema,
		Graph:     g,
		Registry:  registry.New(g),
		Namespace: session.NewNamespace(b.vars),
		Catalog:   tool.NewCatalog(),
		Adapter:   legacy.New(b.schema, g),
	}
	for _, t := range b.tools {
		if err := s.Catalog.RegisterTool(t); err != nil {
			panic(err)
		}
	}
	for _, f := range b.fragments {
		if err := s.Registry.Register(f); err != nil {
			panic(err)
		}
		if f.CapturedBindings != nil {
			s.Namespace.Merge(f.ProvidedBindings())
		}
	}
	return s
}

// SmallSchema is the three-type chain spec -> ham -> solution.
func SmallSchema() *semantic.Schema {
	return &semantic.Schema{
		Final: "solution",
		Types: map[core.Type][]core.Type{
			"spec":     {},
			"ham":      {"spec"},
			"solution": {"ham"},
		},
		Tools: map[string][]core.Type{
			"Spec_Tool":     {"spec"},
			"Ham_Tool":      {"ham"},
			"Solution_Tool": {"solution"},
		},
		Variables: map[core.Type]string{
			"spec": "spec_ir",
			"ham":  "hamiltonian",
		},
	}
}
