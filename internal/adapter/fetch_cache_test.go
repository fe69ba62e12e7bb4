package adapter

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCache(t *testing.T) {
	t.Run("memoizes bodies", func(t *testing.T) {
		cache := NewFetchCache()
		var calls int32
		fetch := func() ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			return []byte("body"), nil
		}

		for i := 0; i < 3; i++ {
			body, err := cache.Do("k", fetch)
			require.NoError(t, err)
			assert.Equal(t, "body", string(body))
		}
		assert.EqualValues(t, 1, calls)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		cache := NewFetchCache()
		boom := errors.New("boom")

		_, err := cache.Do("k", func() ([]byte, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, cache.Len())

		body, err := cache.Do("k", func() ([]byte, error) { return []byte("ok"), nil })
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
	})

	t.Run("concurrent callers share one fetch", func(t *testing.T) {
		cache := NewFetchCache()
		var calls int32
		release := make(chan struct{})
		fetch := func() ([]byte, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return []byte("shared"), nil
		}

		var wg sync.WaitGroup
		started := make(chan struct{}, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				started <- struct{}{}
				body, err := cache.Do("k", fetch)
				assert.NoError(t, err)
				assert.Equal(t, "shared", string(body))
			}()
		}
		for i := 0; i < 8; i++ {
			<-started
		}
		close(release)
		wg.Wait()

		assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
		assert.Equal(t, 1, cache.Len())
	})
}
