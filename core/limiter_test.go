package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallLimiter(t *testing.T) {
	l := NewCallLimiter(2)
	require.NoError(t, l.Acquire())
	require.NoError(t, l.Acquire())
	assert.Equal(t, 0, l.Remaining())

	err := l.Acquire()
	assert.ErrorIs(t, err, ErrCallLimit)
	assert.Equal(t, 2, l.Count())
}

func TestCallLimiter_Unlimited(t *testing.T) {
	l := NewCallLimiter(0)
	for range 50 {
		require.NoError(t, l.Acquire())
	}
	assert.Equal(t, -1, l.Remaining())
	assert.Equal(t, 50, l.Count())
}

func TestCallLimiter_Concurrent(t *testing.T) {
	l := NewCallLimiter(10)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Acquire() == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, granted)
}
