package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/fragmesh/internal/util"
	"github.com/hupe1980/fragmesh/logging"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification
//   - Validates arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is
// safe for concurrent use.
type FunctionTool struct {
	desc   Descriptor
	fn     func(ctx context.Context, args map[string]any) (any, error)
	logger logging.Logger
}

// FunctionToolOptions configures a FunctionTool.
type FunctionToolOptions struct {
	Version    string
	Output     string
	Demos      []string
	Capability Capability
	Logger     logging.Logger
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	spec := NewFunctionTool(
//	  "TFIM_Spec_Tool",
//	  "Create a TFIM model specification",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "n_qubits": map[string]any{"type": "integer"},
//	    },
//	    "required": []string{"n_qubits"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return core.NewFragment("spec_ir := 4", "spec", "spec_ir"), nil
//	  },
//	  func(o *FunctionToolOptions) { o.Capability.SemanticType = "spec" },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{Version: "1.0.0", Logger: logging.NoOpLogger{}}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{
		desc: Descriptor{
			Name:        name,
			Description: description,
			Version:     opts.Version,
			Parameters:  parameters,
			Output:      opts.Output,
			Demos:       opts.Demos,
			Capability:  opts.Capability,
		},
		fn:     fn,
		logger: opts.Logger,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn, optFns...)
}

// Descriptor returns the tool metadata.
func (t *FunctionTool) Descriptor() Descriptor { return t.desc }

// Execute validates args against the declared schema then invokes the
// underlying function.
//
// Error Semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	validation failure              -> *ToolError{Code: "VALIDATION_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	start := time.Now()
	name := t.desc.Name
	if args == nil {
		args = map[string]any{}
	}

	t.logger.Debug("tool.call.start", "tool", name)

	if err := util.ValidateParameters(args, t.desc.Parameters); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", name, "error", err.Error())

		return nil, &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidationError,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) { // Already a ToolError -> just log and forward
			t.logger.Error("tool.call.error", "tool", name, "error", toolErr.Message)

			return nil, toolErr
		}

		t.logger.Error("tool.call.error", "tool", name, "error", err.Error())

		return nil, &ToolError{
			Tool:    name,
			Message: err.Error(),
			Code:    CodeExecutionError,
			Details: err,
		}
	}

	t.logger.Info("tool.call.success", "tool", name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}
