package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCallLimit is returned by CallLimiter.Acquire once the budget is spent.
var ErrCallLimit = errors.New("oracle call limit exceeded")

// CallLimiter counts oracle calls of one session against a budget.
// A budget of zero is unlimited.
type CallLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewCallLimiter creates a limiter allowing max calls.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Acquire takes one call from the budget.
func (l *CallLimiter) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.count >= l.max {
		return fmt.Errorf("%w: %d", ErrCallLimit, l.max)
	}
	l.count++
	return nil
}

// Count returns the number of granted calls.
func (l *CallLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1
	}
	return l.max - l.count
}
