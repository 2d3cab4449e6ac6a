package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespace_MergeOverwrites(t *testing.T) {
	n := NewNamespace(map[string]any{"a": 1})
	n.Merge(map[string]any{"a": 2, "b": "x"})

	v, ok := n.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, []string{"a", "b"}, n.Keys())
	assert.Equal(t, 2, n.Len())
}

func TestNamespace_SnapshotIsCopy(t *testing.T) {
	n := NewNamespace(nil)
	n.Set("k", 1)
	snap := n.Snapshot()
	snap["k"] = 99
	snap["other"] = true

	v, _ := n.Get("k")
	assert.Equal(t, 1, v)
	_, ok := n.Get("other")
	assert.False(t, ok)
}

func TestNamespace_SeedIsCopied(t *testing.T) {
	seed := map[string]any{"a": 1}
	n := NewNamespace(seed)
	seed["a"] = 2
	v, _ := n.Get("a")
	assert.Equal(t, 1, v)
}

func TestNamespace_ConcurrentMerge(t *testing.T) {
	n := NewNamespace(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n.Merge(map[string]any{fmt.Sprintf("v%d", i): i})
			_ = n.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, n.Len())
}
