package tool

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/model"
)

// FactoryOptions is what a tool constructor may depend on.
type FactoryOptions struct {
	// Model is the oracle for tools declaring RequiresOracle.
	Model model.Model
	// OutputDir is the session cache directory.
	OutputDir string
	// Logger receives tool logs.
	Logger logging.Logger
}

// Factory constructs a fresh tool instance.
type Factory func(opts FactoryOptions) (Tool, error)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("tool: duplicate registration")

type entry struct {
	desc    Descriptor
	factory Factory
}

// Catalog is the explicit tool registry. Tools are registered with their
// descriptor; nothing is discovered by inspection.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]entry)}
}

// Register adds a tool under desc.Name.
func (c *Catalog) Register(desc Descriptor, factory Factory) error {
	if desc.Name == "" {
		return errors.New("tool: descriptor has no name")
	}
	if factory == nil {
		return fmt.Errorf("tool: %s has no factory", desc.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[desc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, desc.Name)
	}
	c.entries[desc.Name] = entry{desc: desc, factory: factory}
	c.order = append(c.order, desc.Name)
	return nil
}

// RegisterTool registers a stateless tool instance that is returned for
// every construction.
func (c *Catalog) RegisterTool(t Tool) error {
	return c.Register(t.Descriptor(), func(FactoryOptions) (Tool, error) { return t, nil })
}

// MustRegister is Register that panics on error.
func (c *Catalog) MustRegister(desc Descriptor, factory Factory) {
	if err := c.Register(desc, factory); err != nil {
		panic(err)
	}
}

// Names returns the registered tool names in registration order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Descriptor(name)
	return ok
}

// Descriptor returns the descriptor of name.
func (c *Catalog) Descriptor(name string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e.desc, ok
}

// Descriptors returns all descriptors in registration order.
func (c *Catalog) Descriptors() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Descriptor, len(c.order))
	for i, n := range c.order {
		out[i] = c.entries[n].desc
	}
	return out
}

// New constructs a fresh instance of name. Resolution failures are returned
// as *ToolError with code NOT_FOUND, ORACLE_REQUIRED or CONSTRUCTION_ERROR.
func (c *Catalog) New(name string, opts FactoryOptions) (Tool, error) {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, NewToolError(name, "tool is not registered", CodeNotFound)
	}
	if e.desc.Capability.RequiresOracle && opts.Model == nil {
		return nil, NewToolError(name, "tool requires a model but none is configured", CodeOracleRequired)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	t, err := e.factory(opts)
	if err != nil {
		return nil, &ToolError{Tool: name, Message: err.Error(), Code: CodeConstructionError, Details: err}
	}
	if t == nil {
		return nil, NewToolError(name, "factory returned no tool", CodeConstructionError)
	}
	return t, nil
}

// ByType returns the tools producing t.
func (c *Catalog) ByType(t core.Type) []string {
	var out []string
	for _, d := range c.Descriptors() {
		if d.Capability.SemanticType == t {
			out = append(out, d.Name)
		}
	}
	return out
}

// Semantic returns the names of tools emitting native fragments.
func (c *Catalog) Semantic() []string {
	var out []string
	for _, d := range c.Descriptors() {
		if d.Capability.IsSemantic() {
			out = append(out, d.Name)
		}
	}
	return out
}

// Legacy returns the names of tools without a semantic capability.
func (c *Catalog) Legacy() []string {
	var out []string
	for _, d := range c.Descriptors() {
		if !d.Capability.IsSemantic() {
			out = append(out, d.Name)
		}
	}
	return out
}

// Subset returns a catalog restricted to names (unknown names are
// reported). An empty names list keeps every tool.
func (c *Catalog) Subset(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := NewCatalog()
	var missing []string
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range names {
		e, ok := c.entries[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		if _, dup := out.entries[n]; dup {
			continue
		}
		out.entries[n] = e
		out.order = append(out.order, n)
	}
	if len(missing) > 0 {
		return nil, NewToolError(fmt.Sprint(missing), "unknown tool names", CodeNotFound)
	}
	return out, nil
}

// WorkflowReport is the result of ValidateWorkflow.
type WorkflowReport struct {
	Valid           bool                   `json:"valid"`
	Available       map[core.Type][]string `json:"available"`
	Missing         []core.Type            `json:"missing"`
	Recommendations []string               `json:"recommendations"`
}

// ValidateWorkflow checks that every required type has a producing tool.
// Legacy tools count when typeOf maps them (may be nil).
func (c *Catalog) ValidateWorkflow(required []core.Type, typeOf func(tool string) (core.Type, bool)) WorkflowReport {
	report := WorkflowReport{Valid: true, Available: map[core.Type][]string{}}
	for _, d := range c.Descriptors() {
		t := d.Capability.SemanticType
		if t == "" && typeOf != nil {
			t, _ = typeOf(d.Name)
		}
		if t != "" {
			report.Available[t] = append(report.Available[t], d.Name)
		}
	}
	for _, t := range required {
		if len(report.Available[t]) == 0 {
			report.Valid = false
			report.Missing = append(report.Missing, t)
			report.Recommendations = append(report.Recommendations, fmt.Sprintf("register a tool producing %q", t))
		}
	}
	return report
}
