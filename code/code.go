package code

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when the context deadline elapsed before the unit
// produced a result. The worker is abandoned and its effects are dropped.
var ErrTimeout = errors.New("code: execution deadline exceeded")

// Request describes one execution.
type Request struct {
	// Source is the Go source to run: optional import lines followed by
	// statements, or a complete program with a package clause.
	Source string
	// Bindings are the names visible to the statements.
	Bindings map[string]any
	// Result is the name whose value is reported as Response.Value.
	Result string
	// Capture lists additional names whose final values are reported.
	Capture []string
}

// Response is the observable effect of a successful execution.
type Response struct {
	// Value is the value bound to Request.Result.
	Value any
	// Bound reports whether the source declared or assigned Request.Result.
	Bound bool
	// Captured holds the final value of every requested capture name the
	// source declared or assigned.
	Captured map[string]any
	// Stdout holds everything the source printed.
	Stdout string
}

// Unit runs source text against a binding table.
type Unit interface {
	Run(ctx context.Context, req Request) (*Response, error)
}

// CompileError reports source the backend could not parse or type-check.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string { return fmt.Sprintf("compile error: %v", e.Err) }

func (e *CompileError) Unwrap() error { return e.Err }

// PanicError reports a runtime failure raised while the source executed.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("runtime error: %v", e.Value) }

// Unwrap exposes Value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
