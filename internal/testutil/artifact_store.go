package testutil

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fragmesh/core"
)

// RunArtifactStoreTests exercises the core.ArtifactStore contract shared by
// every backend. notFound is the backend's not-found sentinel.
func RunArtifactStoreTests(t *testing.T, newStore func(t *testing.T) core.ArtifactStore, notFound error) {
	t.Run("save get isolation", func(t *testing.T) {
		s := newStore(t)
		data := []byte("hello")
		require.NoError(t, s.Save("s1", "a1", data))
		data[0] = 'H'

		out, err := s.Get("s1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(out))

		out[0] = 'x'
		again, err := s.Get("s1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(again))
	})

	t.Run("overwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save("s1", "a1", []byte("one")))
		require.NoError(t, s.Save("s1", "a1", []byte("two")))
		out, err := s.Get("s1", "a1")
		require.NoError(t, err)
		assert.Equal(t, "two", string(out))
	})

	t.Run("list and delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save("s1", "b.go", []byte("1")))
		require.NoError(t, s.Save("s1", "a.go", []byte("2")))
		require.NoError(t, s.Save("s2", "c.go", []byte("3")))

		ids, err := s.List("s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.go", "b.go"}, ids)

		require.NoError(t, s.Delete("s1", "a.go"))
		_, err = s.Get("s1", "a.go")
		assert.True(t, errors.Is(err, notFound), "got %v", err)
		assert.True(t, errors.Is(s.Delete("s1", "a.go"), notFound))

		ids, err = s.List("s1")
		require.NoError(t, err)
		assert.Equal(t, []string{"b.go"}, ids)

		ids, err = s.List("unknown")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("invalid ids", func(t *testing.T) {
		s := newStore(t)
		assert.Error(t, s.Save("s1", "../escape", []byte("x")))
		assert.Error(t, s.Save("", "a", []byte("x")))
	})

	t.Run("concurrency", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Save("s1", fmt.Sprintf("a%d", i%10), []byte("data")); err != nil {
					t.Errorf("save: %v", err)
				}
				_, _ = s.List("s1")
			}()
		}
		wg.Wait()
		ids, err := s.List("s1")
		require.NoError(t, err)
		assert.Len(t, ids, 10)
	})
}
