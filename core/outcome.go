package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status classifies the outcome of a single executed block.
type Status string

const (
	// StatusOK means the block bound a value before its deadline.
	StatusOK Status = "ok"
	// StatusTimeout means the block was abandoned at its deadline.
	StatusTimeout Status = "timeout"
	// StatusError means the block failed (compile error, panic, tool error).
	StatusError Status = "error"
	// StatusNoResult means the block ran (or could not be segmented) but
	// bound nothing under the reserved output name.
	StatusNoResult Status = "no_result"
)

// Timeout is the sentinel value recorded for a block abandoned at its deadline.
type Timeout struct {
	After time.Duration `json:"after"`
}

// String implements fmt.Stringer.
func (t Timeout) String() string {
	return fmt.Sprintf("Execution timed out after %s", t.After)
}

// Outcome is the result of one block of a tool command.
type Outcome struct {
	// Block is the source text that was executed.
	Block string `json:"block"`
	// Status classifies the outcome.
	Status Status `json:"status"`
	// Value is the raw value bound to the output name, or the Timeout sentinel.
	Value any `json:"value,omitempty"`
	// Fragment is set when the value was classified and registered as a fragment.
	Fragment *Fragment `json:"fragment,omitempty"`
	// Message carries the error / no-result description.
	Message string `json:"message,omitempty"`
	// Stdout holds anything the block printed.
	Stdout string `json:"stdout,omitempty"`
	// Duration is the wall-clock time spent on the block.
	Duration time.Duration `json:"duration"`
}

// Result returns what the step log shows for this outcome: the value for a
// successful block, the sentinel for a timeout, otherwise the message.
func (o Outcome) Result() any {
	switch o.Status {
	case StatusOK, StatusTimeout:
		return o.Value
	default:
		return o.Message
	}
}

// Step is the immutable audit record of one executed tool command.
type Step struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Tool      string    `json:"tool"`
	SubGoal   string    `json:"sub_goal"`
	Source    string    `json:"source"`
	Outcomes  []Outcome `json:"outcomes"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fragments returns the fragments registered by this step in block order.
func (s Step) Fragments() []*Fragment {
	var out []*Fragment
	for _, o := range s.Outcomes {
		if o.Fragment != nil {
			out = append(out, o.Fragment)
		}
	}
	return out
}

// NewID generates a new unique identifier for sessions and steps.
func NewID() string { return uuid.NewString() }
