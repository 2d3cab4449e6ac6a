package engine

import (
	"context"

	"github.com/hupe1980/fragmesh/core"
	"github.com/hupe1980/fragmesh/logging"
)

// CallbackType defines the lifecycle points of block execution where
// callbacks run.
//
// Callbacks hook into the engine without modifying its logic. They run
// synchronously on the orchestrating goroutine, never inside a block worker,
// so they may read the registry and namespace safely.
//
// Available callback types:
//   - BeforeBlock/AfterBlock: around the execution of one command block
//   - BeforeRegister: before a classified fragment enters the registry
type CallbackType string

const (
	// CallbackBeforeBlock is triggered before a block is executed. An error
	// skips the block and turns its outcome into an error outcome.
	CallbackBeforeBlock CallbackType = "before_block"

	// CallbackAfterBlock is triggered once a block outcome is final. Errors
	// are logged and otherwise ignored.
	CallbackAfterBlock CallbackType = "after_block"

	// CallbackBeforeRegister is triggered before a fragment is registered.
	// An error keeps the raw value and leaves registry and namespace
	// untouched.
	CallbackBeforeRegister CallbackType = "before_register"
)

// CallbackContext carries the state a callback may inspect.
type CallbackContext struct {
	// Tool is the name of the tool whose command is running.
	Tool string

	// Index is the zero-based position of the block in the command.
	Index int

	// Block is the block source text.
	Block string

	// Outcome is set for CallbackAfterBlock.
	Outcome *core.Outcome

	// Fragment is set for CallbackBeforeRegister.
	Fragment *core.Fragment

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for block lifecycle hooks.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackAfterBlock,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("%s block %d: %s", cc.Tool, cc.Index, cc.Outcome.Status)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type and runs them in registration
// order. The first error stops the chain.
//
// The manager is not safe for concurrent registration; register everything
// before the engine runs.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs all callbacks registered for callbackType. A nil
// manager runs nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	callbacks, exists := cm.callbacks[callbackType]
	if !exists {
		return nil
	}

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one debug line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"tool_name", callbackCtx.Tool, "block", callbackCtx.Index}
	if callbackCtx.Outcome != nil {
		args = append(args, "status", string(callbackCtx.Outcome.Status))
	}
	if callbackCtx.Fragment != nil {
		args = append(args, "semantic_type", string(callbackCtx.Fragment.SemanticType))
	}
	c.logger.Debug("engine.callback."+string(c.callbackType), args...)
	return nil
}

// FragmentValidationCallback rejects fragments before registration.
//
// Example:
//
//	v := NewFragmentValidationCallback(func(f *core.Fragment) error {
//	    if strings.TrimSpace(f.Code) == "" {
//	        return errors.New("empty fragment")
//	    }
//	    return nil
//	})
type FragmentValidationCallback struct {
	validator func(f *core.Fragment) error
}

// NewFragmentValidationCallback creates a validation callback.
func NewFragmentValidationCallback(validator func(f *core.Fragment) error) *FragmentValidationCallback {
	return &FragmentValidationCallback{
		validator: validator,
	}
}

// Type returns CallbackBeforeRegister.
func (c *FragmentValidationCallback) Type() CallbackType {
	return CallbackBeforeRegister
}

// Execute runs the validator on the pending fragment.
func (c *FragmentValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator != nil && callbackCtx.Fragment != nil {
		return c.validator(callbackCtx.Fragment)
	}
	return nil
}
