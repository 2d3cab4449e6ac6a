// Package tool defines the tool plugin boundary: tools that emit fragments
// (or legacy records), the capability descriptor each tool declares at
// registration time, and the catalog the engine resolves tool names with.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeOracleRequired    = "ORACLE_REQUIRED"
	CodeConstructionError = "CONSTRUCTION_ERROR"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeExecutionError    = "EXECUTION_ERROR"
)

// Capability is the explicit semantic descriptor of a tool. A tool without
// a semantic type is a legacy tool whose results are routed through the
// legacy adapter.
type Capability struct {
	SemanticType   core.Type   `json:"semantic_type,omitempty" yaml:"semantic_type,omitempty"`
	Dependencies   []core.Type `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Provides       []string    `json:"provides,omitempty" yaml:"provides,omitempty"`
	RequiresOracle bool        `json:"requires_oracle,omitempty" yaml:"requires_oracle,omitempty"`
}

// IsSemantic reports whether the tool emits native fragments.
func (c Capability) IsSemantic() bool { return c.SemanticType != "" }

// Descriptor is the static metadata of a tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     string         `json:"version,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // input schema
	Output      string         `json:"output,omitempty"`     // output description
	Demos       []string       `json:"demo_commands,omitempty"`
	Capability  Capability     `json:"capability"`
}

// Tool is a domain plugin invoked from command blocks. Execute returns a
// *core.Fragment, a legacy record sequence or any other value.
//
// Tool instances are not assumed reentrant; the engine constructs a fresh
// instance per block through the Catalog.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool resolution or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes Details when it is an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
