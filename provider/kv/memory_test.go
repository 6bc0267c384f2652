package kv

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestMemoryKV(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newMemoryKV(clock.Now)

	t.Run("set and get", func(t *testing.T) {
		require.NoError(t, store.Set("a", []byte("1")))
		v, err := store.Get("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
	})

	t.Run("missing key", func(t *testing.T) {
		v, err := store.Get("missing")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("no expiry without ttl", func(t *testing.T) {
		clock.Advance(365 * 24 * time.Hour)
		v, err := store.Get("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), v)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		require.NoError(t, store.SetTTL("b", []byte("2"), time.Minute))
		v, _ := store.Get("b")
		assert.Equal(t, []byte("2"), v)

		clock.Advance(time.Minute)
		v, err := store.Get("b")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		require.NoError(t, store.SetTTL("c", []byte("3"), 0))
		clock.Advance(time.Hour)
		v, _ := store.Get("c")
		assert.Equal(t, []byte("3"), v)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete("c"))
		v, _ := store.Get("c")
		assert.Nil(t, v)
		// deleting a missing key is not an error
		assert.NoError(t, store.Delete("c"))
	})

	t.Run("stored values are copies", func(t *testing.T) {
		buf := []byte("xyz")
		require.NoError(t, store.Set("copy", buf))
		buf[0] = 'Q'
		v, _ := store.Get("copy")
		assert.Equal(t, []byte("xyz"), v)
	})
}

func TestMemoryKVKeys(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newMemoryKV(clock.Now)

	require.NoError(t, store.Set("user:2", nil))
	require.NoError(t, store.Set("user:1", nil))
	require.NoError(t, store.Set("group:1", nil))
	require.NoError(t, store.SetTTL("user:3", nil, time.Second))

	keys, err := store.Keys("user:")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2", "user:3"}, keys)

	clock.Advance(2 * time.Second)
	keys, err = store.Keys("user:")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	keys, err = store.Keys("none:")
	require.NoError(t, err)
	assert.Empty(t, keys)

	all, err := store.Keys("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryKVPrune(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := newMemoryKV(clock.Now)

	require.NoError(t, store.SetTTL("short", []byte("x"), time.Second))
	require.NoError(t, store.SetTTL("long", []byte("y"), time.Hour))
	require.NoError(t, store.Set("forever", []byte("z")))

	clock.Advance(time.Minute)
	require.NoError(t, store.Prune())

	assert.Len(t, store.data, 2)
	_, ok := store.data["short"]
	assert.False(t, ok)
}

func TestMemoryKVConcurrency(t *testing.T) {
	store := NewMemoryKV()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			for j := 0; j < 100; j++ {
				_ = store.SetTTL(key, []byte{byte(j)}, time.Millisecond)
				_, _ = store.Get(key)
				_, _ = store.Keys("")
				_ = store.Prune()
			}
		}(i)
	}
	wg.Wait()
}
