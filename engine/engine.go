package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/fragmesh/code"
	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/legacy"
	"github.com/hupe1980/fragmesh/logging"
	"github.com/hupe1980/fragmesh/model"
	"github.com/hupe1980/fragmesh/registry"
	"github.com/hupe1980/fragmesh/session"
	"github.com/hupe1980/fragmesh/tool"
)

// Reserved binding names of the block context.
const (
	// ResultName is the variable a block assigns its result to.
	ResultName = "execution"
	// ToolBinding is the name of the active tool handle.
	ToolBinding = "tool"
	// FragmentsBinding holds every registered fragment in registration order.
	FragmentsBinding = "fragments"
)

// DefaultBlockTimeout is the per-block deadline used when none is configured.
const DefaultBlockTimeout = 120 * time.Second

// blockPattern matches one block: everything up to and including the line
// that assigns a tool call to the result name.
var blockPattern = regexp.MustCompile(`(?s).*?` + ResultName + `\s*:?=\s*` + ToolBinding + `\.Execute\([^\n]*\)\s*(?:\n|$)`)

// Block is one independently executed piece of a tool command.
type Block struct {
	// Source is the trimmed block text.
	Source string
	// Matched reports whether the block ends with a result-binding line.
	Matched bool
}

// SplitBlocks segments a command into blocks. Text after the last
// result-binding line is returned as an unmatched block so it can be
// reported instead of dropped.
func SplitBlocks(command string) []Block {
	var blocks []Block
	rest := command
	for {
		loc := blockPattern.FindStringIndex(rest)
		if loc == nil {
			break
		}
		if src := strings.TrimSpace(rest[loc[0]:loc[1]]); src != "" {
			blocks = append(blocks, Block{Source: src, Matched: true})
		}
		rest = rest[loc[1]:]
	}
	if src := strings.TrimSpace(rest); src != "" {
		blocks = append(blocks, Block{Source: src})
	}
	return blocks
}

// Options configures an Engine.
type Options struct {
	// BlockTimeout is the wall-clock deadline of a single block, including
	// the capture run of a fragment it produced.
	BlockTimeout time.Duration

	// Model is handed to tools that require the oracle.
	Model model.Model

	// OutputDir is the session cache directory handed to tools.
	OutputDir string

	// Callbacks holds optional lifecycle hooks.
	Callbacks *CallbackManager

	// Logger receives block and fragment events. A *logging.MeshLogger
	// additionally gets structured block records.
	Logger logging.Logger
}

// Engine executes tool commands block by block and folds their results
// into the session's registry and namespace.
//
// The engine is single-writer: registry and namespace are only mutated on
// the calling goroutine between blocks. Block workers see snapshots.
type Engine struct {
	registry  *registry.Registry
	namespace *session.Namespace
	catalog   *tool.Catalog
	unit      code.Unit
	adapter   *legacy.Adapter
	opts      Options
}

// New creates an engine over one session's registry and namespace.
func New(
	reg *registry.Registry,
	ns *session.Namespace,
	catalog *tool.Catalog,
	unit code.Unit,
	adapter *legacy.Adapter,
	optFns ...func(o *Options),
) *Engine {
	opts := Options{
		BlockTimeout: DefaultBlockTimeout,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = DefaultBlockTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		registry:  reg,
		namespace: ns,
		catalog:   catalog,
		unit:      unit,
		adapter:   adapter,
		opts:      opts,
	}
}

// Registry returns the session registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Namespace returns the session namespace.
func (e *Engine) Namespace() *session.Namespace { return e.namespace }

// BlockTimeout returns the configured per-block deadline.
func (e *Engine) BlockTimeout() time.Duration { return e.opts.BlockTimeout }

// ExecuteCommand runs every block of command against a fresh instance of
// toolName and returns one outcome per block.
//
// Only a failure to construct the tool is returned as an error; it is a
// *tool.ToolError. Timeouts, compile errors, panics and failed tool calls
// are reported per block.
func (e *Engine) ExecuteCommand(ctx context.Context, toolName, command string) ([]core.Outcome, error) {
	first, err := e.newTool(toolName)
	if err != nil {
		e.opts.Logger.Error("engine.tool.resolve_failed", "tool_name", toolName, "error", err)
		return nil, err
	}

	blocks := SplitBlocks(command)
	outcomes := make([]core.Outcome, 0, len(blocks))
	for idx, block := range blocks {
		t := first
		if idx > 0 {
			if t, err = e.newTool(toolName); err != nil {
				o := core.Outcome{Block: block.Source, Status: core.StatusError, Message: err.Error()}
				e.finish(ctx, toolName, idx, &o)
				outcomes = append(outcomes, o)
				continue
			}
		}
		o := e.executeBlock(ctx, t, toolName, idx, block)
		e.finish(ctx, toolName, idx, &o)
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (e *Engine) newTool(name string) (tool.Tool, error) {
	return e.catalog.New(name, tool.FactoryOptions{
		Model:     e.opts.Model,
		OutputDir: e.opts.OutputDir,
		Logger:    e.opts.Logger,
	})
}

// executeBlock never panics: anything escaping the worker or the
// classification is turned into an error outcome.
func (e *Engine) executeBlock(ctx context.Context, t tool.Tool, toolName string, idx int, block Block) (out core.Outcome) {
	start := time.Now()
	out = core.Outcome{Block: block.Source}
	defer func() {
		if r := recover(); r != nil {
			out.Status = core.StatusError
			out.Message = fmt.Sprintf("panic while executing block: %v", r)
			out.Fragment = nil
		}
		out.Duration = time.Since(start)
	}()

	if !block.Matched {
		out.Status = core.StatusNoResult
		out.Message = noResult(block.Source)
		return out
	}

	cbCtx := &CallbackContext{Tool: toolName, Index: idx, Block: block.Source}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeBlock, cbCtx); err != nil {
		out.Status = core.StatusError
		out.Message = fmt.Sprintf("block rejected: %v", err)
		return out
	}

	blockCtx, cancel := context.WithTimeout(ctx, e.opts.BlockTimeout)
	defer cancel()

	handle := NewToolHandle(blockCtx, t)
	bindings := e.buildContext(handle)
	resp, err := e.unit.Run(blockCtx, code.Request{
		Source:   block.Source,
		Bindings: bindings,
		Result:   ResultName,
	})
	switch {
	case errors.Is(err, code.ErrTimeout):
		timeout := core.Timeout{After: e.opts.BlockTimeout}
		out.Status = core.StatusTimeout
		out.Value = timeout
		out.Message = timeout.String()
		return out
	case err != nil:
		out.Status = core.StatusError
		out.Message = err.Error()
		return out
	}

	out.Stdout = resp.Stdout
	if herr := handle.Err(); herr != nil {
		out.Status = core.StatusError
		out.Message = herr.Error()
		return out
	}
	if !resp.Bound || isNil(resp.Value) {
		out.Status = core.StatusNoResult
		out.Message = noResult(block.Source)
		return out
	}

	out.Status = core.StatusOK
	out.Value = resp.Value
	e.classify(ctx, toolName, idx, bindings, &out)
	return out
}

// classify registers the block value when it is a fragment or a legacy
// shape. Anything else is kept as a raw value.
func (e *Engine) classify(ctx context.Context, toolName string, idx int, bindings map[string]any, out *core.Outcome) {
	var frag *core.Fragment
	switch v := out.Value.(type) {
	case *core.Fragment:
		frag = v
	case core.Fragment:
		frag = &v
	default:
		if f, ok := e.adapter.AdaptResult(out.Value, toolName); ok {
			frag = f
			e.opts.Logger.Debug("engine.fragment.adapted", "tool_name", toolName, "semantic_type", string(f.SemanticType))
		}
	}
	if frag == nil {
		return
	}
	if frag.ToolSource == "" {
		frag.ToolSource = toolName
	}

	cbCtx := &CallbackContext{Tool: toolName, Index: idx, Block: out.Block, Fragment: frag}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeRegister, cbCtx); err != nil {
		out.Message = fmt.Sprintf("fragment rejected: %v", err)
		return
	}
	if err := frag.Validate(); err != nil {
		out.Message = fmt.Sprintf("fragment rejected: %v", err)
		return
	}
	if err := e.registry.CheckType(frag.SemanticType); err != nil {
		out.Message = fmt.Sprintf("fragment rejected: %v", err)
		return
	}

	if ok, missing := e.registry.IsSatisfied(frag.SemanticType); !ok {
		e.opts.Logger.Warn("engine.fragment.unsatisfied",
			"semantic_type", string(frag.SemanticType), "missing", typeNames(missing))
	}

	if frag.CapturedBindings == nil {
		if err := e.capture(ctx, frag, bindings); err != nil {
			out.Message = fmt.Sprintf("fragment registered without captured bindings: %v", err)
			e.opts.Logger.Warn("engine.fragment.capture_failed",
				"semantic_type", string(frag.SemanticType), "tool_name", toolName, "error", err)
		}
	}

	if err := e.registry.Register(frag); err != nil {
		out.Message = fmt.Sprintf("fragment rejected: %v", err)
		return
	}
	out.Fragment = frag
	if frag.CapturedBindings != nil {
		e.namespace.Merge(frag.ProvidedBindings())
	}

	e.opts.Logger.Info("engine.fragment.registered",
		"semantic_type", string(frag.SemanticType),
		"tool_name", frag.ToolSource,
		"provides", strings.Join(frag.Provides, ", "),
		"executed", frag.Executed,
	)
	if stale := e.registry.StaleDependents(frag.SemanticType); len(stale) > 0 {
		e.opts.Logger.Warn("engine.fragment.stale_dependents",
			"semantic_type", string(frag.SemanticType), "dependents", typeNames(stale))
	}
}

// capture runs the fragment's own code against the block context and
// records the provided names it binds. The run gets a fresh BlockTimeout
// of its own.
func (e *Engine) capture(ctx context.Context, frag *core.Fragment, bindings map[string]any) error {
	if code.HasPackageClause(frag.Code) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.BlockTimeout)
	defer cancel()
	resp, err := e.unit.Run(ctx, code.Request{
		Source:   frag.Code,
		Bindings: bindings,
		Result:   frag.PrimaryVariable,
		Capture:  frag.Provides,
	})
	if err != nil {
		return err
	}
	return frag.Capture(resp.Captured)
}

// buildContext assembles the block bindings. Later tiers override earlier
// ones: tool handle, namespace snapshot, fragment aliases, registry
// variables, then the tool handle again.
func (e *Engine) buildContext(handle *ToolHandle) map[string]any {
	ctx := map[string]any{ToolBinding: handle}
	maps.Copy(ctx, e.namespace.Snapshot())

	registered := e.registry.Fragments()
	fragments := make([]*core.Fragment, len(registered))
	for i, f := range registered {
		c := f.Clone()
		fragments[i] = c
		ctx[string(f.SemanticType)+"_fragment"] = c
		ctx[string(f.SemanticType)] = c
	}
	ctx[FragmentsBinding] = fragments

	maps.Copy(ctx, e.registry.ExposedVariables())
	ctx[ToolBinding] = handle
	return ctx
}

func (e *Engine) finish(ctx context.Context, toolName string, idx int, out *core.Outcome) {
	cbCtx := &CallbackContext{Tool: toolName, Index: idx, Block: out.Block, Outcome: out, Fragment: out.Fragment}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterBlock, cbCtx); err != nil {
		e.opts.Logger.Warn("engine.callback.failed", "tool_name", toolName, "block", idx, "error", err)
	}

	var err error
	if out.Status == core.StatusError || out.Status == core.StatusTimeout {
		err = errors.New(out.Message)
	}
	if ml, ok := e.opts.Logger.(*logging.MeshLogger); ok {
		ml.LogBlock(toolName, idx, string(out.Status), out.Duration, err)
		return
	}
	args := []any{"tool_name", toolName, "block", idx, "duration", out.Duration}
	if err != nil {
		e.opts.Logger.Warn("engine.block."+string(out.Status), append(args, "error", err)...)
		return
	}
	e.opts.Logger.Info("engine.block."+string(out.Status), args...)
}

// ToolHandle is the object bound under ToolBinding. Interpreted code calls
// Execute; a failed call is recorded instead of panicking through the
// interpreter and turns the block into an error outcome.
type ToolHandle struct {
	ctx  context.Context
	tool tool.Tool

	mu    sync.Mutex
	calls int
	err   error
}

// NewToolHandle binds t to the block context ctx.
func NewToolHandle(ctx context.Context, t tool.Tool) *ToolHandle {
	return &ToolHandle{ctx: ctx, tool: t}
}

// Execute calls the tool with args. On failure it returns the error value.
func (h *ToolHandle) Execute(args map[string]any) any {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()

	v, err := h.tool.Execute(h.ctx, args)
	if err != nil {
		h.mu.Lock()
		if h.err == nil {
			h.err = err
		}
		h.mu.Unlock()
		return err
	}
	return v
}

// Name returns the tool name.
func (h *ToolHandle) Name() string { return h.tool.Descriptor().Name }

// Descriptor returns the tool descriptor.
func (h *ToolHandle) Descriptor() tool.Descriptor { return h.tool.Descriptor() }

// Calls returns how often Execute was invoked.
func (h *ToolHandle) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// Err returns the first tool error observed.
func (h *ToolHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func noResult(block string) string {
	return "No execution captured from block: " + block
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(*core.Fragment); ok {
		return f == nil
	}
	return false
}

func typeNames(types []core.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
