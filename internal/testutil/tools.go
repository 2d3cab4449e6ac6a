package testutil

import (
	"context"
	"time"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/tool"
)

// StubTool returns a function tool with an open parameter schema.
func StubTool(name string, fn func(ctx context.Context, args map[string]any) (any, error), optFns ...func(o *tool.FunctionToolOptions)) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "stub "+name, map[string]any{"type": "object"}, fn, optFns...)
}

// FragmentTool returns a semantic tool that emits a fresh copy of f on
// every call.
func FragmentTool(name string, f *core.Fragment) *tool.FunctionTool {
	return StubTool(name, func(context.Context, map[string]any) (any, error) {
		c := f.Clone()
		c.CapturedBindings = nil
		c.Executed = false
		return c, nil
	}, func(o *tool.FunctionToolOptions) {
		o.Capability = tool.Capability{
			SemanticType: f.SemanticType,
			Dependencies: f.DeclaredDependencies,
			Provides:     f.Provides,
		}
	})
}

// LegacyTool returns a tool without capability that emits a legacy record
// list carrying src under "Code".
func LegacyTool(name, src string) *tool.FunctionTool {
	return StubTool(name, func(context.Context, map[string]any) (any, error) {
		return []map[string]any{{"Code": src, "metadata": map[string]any{"source": name}}}, nil
	})
}

// SleepTool returns a tool that blocks for d, ignoring cancellation, then
// returns "done".
func SleepTool(name string, d time.Duration) *tool.FunctionTool {
	return StubTool(name, func(context.Context, map[string]any) (any, error) {
		time.Sleep(d)
		return "done", nil
	})
}

// EchoTool returns a tool that returns its arguments.
func EchoTool(name string) *tool.FunctionTool {
	return StubTool(name, func(_ context.Context, args map[string]any) (any, error) {
		return args, nil
	})
}
