package semantic

import (
	"fmt"
	"maps"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/fragmesh/core"
)

// Built-in semantic types of the default transverse-field Ising / VQE workflow.
const (
	Spec             core.Type = "spec"
	Hamiltonian      core.Type = "hamiltonian"
	Ansatz           core.Type = "ansatz"
	Optimizer        core.Type = "optimizer"
	Estimator        core.Type = "estimator"
	VQEExecution     core.Type = "vqe_execution"
	CompleteSolution core.Type = "complete_solution"
)

// DefaultVariable is the primary variable used when a type has no entry in
// the variable table.
const DefaultVariable = "result"

// Schema describes a fragment workflow. It is the YAML-serializable form of
// the dependency graph plus the static tables used by the legacy adapter.
//
// Example:
//
//	final: complete_solution
//	types:
//	  spec: []
//	  hamiltonian: [spec]
//	  complete_solution: [hamiltonian]
//	tools:
//	  TFIM_Hamiltonian_Tool: [hamiltonian]
//	variables:
//	  spec: spec_ir
type Schema struct {
	// Final is the type denoting the fully assembled artifact.
	Final core.Type `yaml:"final"`
	// Types maps each type to its direct prerequisites.
	Types map[core.Type][]core.Type `yaml:"types"`
	// Tools maps a tool name to the type(s) it produces; the first entry is
	// used when adapting legacy results.
	Tools map[string][]core.Type `yaml:"tools,omitempty"`
	// Variables maps a type to its canonical primary variable.
	Variables map[core.Type]string `yaml:"variables,omitempty"`
	// DefaultVariable overrides the fallback primary variable name.
	DefaultVariable string `yaml:"default_variable,omitempty"`
}

// DefaultSchema returns the built-in TFIM/VQE workflow schema.
func DefaultSchema() *Schema {
	return &Schema{
		Final: CompleteSolution,
		Types: map[core.Type][]core.Type{
			Spec:             {},
			Hamiltonian:      {Spec},
			Ansatz:           {Spec},
			Optimizer:        {Spec},
			Estimator:        {Spec},
			VQEExecution:     {Hamiltonian, Ansatz, Optimizer, Estimator},
			CompleteSolution: {VQEExecution},
		},
		Tools: map[string][]core.Type{
			"TFIM_Spec_Tool":        {Spec},
			"TFIM_Hamiltonian_Tool": {Hamiltonian},
			"TFIM_Ansatz_Tool":      {Ansatz},
			"TFIM_Optimizer_Tool":   {Optimizer, Estimator},
			"TFIM_Estimator_Tool":   {Estimator},
			"VQE_Tool":              {VQEExecution},
			"Code_Assembler_Tool":   {CompleteSolution},
		},
		Variables: map[core.Type]string{
			Spec:             "spec_ir",
			Hamiltonian:      "hamiltonian",
			Ansatz:           "ansatz",
			Optimizer:        "optimizer",
			Estimator:        "estimator",
			VQEExecution:     "vqe_result",
			CompleteSolution: "complete_code",
		},
	}
}

// ParseSchema decodes a YAML schema document.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("semantic: parse schema: %w", err)
	}
	if len(s.Types) == 0 {
		return nil, fmt.Errorf("semantic: schema declares no types")
	}
	return &s, nil
}

// LoadSchema reads and decodes a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("semantic: read %s: %w", path, err)
	}
	return ParseSchema(data)
}

// Marshal encodes the schema as YAML.
func (s *Schema) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Graph builds and validates the dependency graph of the schema. Tool
// mappings must reference declared types.
func (s *Schema) Graph() (*Graph, error) {
	g, err := NewGraph(s.Types, s.Final)
	if err != nil {
		return nil, err
	}
	for tool, types := range s.Tools {
		for _, t := range types {
			if !g.Has(t) {
				return nil, fmt.Errorf("%w: tool %s produces %s", ErrUnknownDependency, tool, t)
			}
		}
	}
	return g, nil
}

// ToolType returns the first type mapped to tool.
func (s *Schema) ToolType(tool string) (core.Type, bool) {
	types := s.Tools[tool]
	if len(types) == 0 {
		return "", false
	}
	return types[0], true
}

// VariableFor returns the canonical primary variable for t, falling back to
// the schema's default variable.
func (s *Schema) VariableFor(t core.Type) string {
	if v, ok := s.Variables[t]; ok && v != "" {
		return v
	}
	if s.DefaultVariable != "" {
		return s.DefaultVariable
	}
	return DefaultVariable
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		Final:           s.Final,
		Types:           make(map[core.Type][]core.Type, len(s.Types)),
		Tools:           make(map[string][]core.Type, len(s.Tools)),
		Variables:       maps.Clone(s.Variables),
		DefaultVariable: s.DefaultVariable,
	}
	for k, v := range s.Types {
		c.Types[k] = append([]core.Type{}, v...)
	}
	for k, v := range s.Tools {
		c.Tools[k] = append([]core.Type{}, v...)
	}
	return c
}
