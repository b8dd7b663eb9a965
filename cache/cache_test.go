package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerpetual(t *testing.T) {
	c := NewPerpetual("ns")
	assert.Equal(t, "ns", c.ID())

	c.Put("k", 1)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, c.Size())

	c.Remove("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU(NewPerpetual("ns"), 2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3)
	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestFIFOEviction(t *testing.T) {
	c := NewFIFO(NewPerpetual("ns"), 2)
	c.Put("a", 1)
	c.Put("b", 2)

	// Touching does not change FIFO order.
	_, _ = c.Get("a")

	c.Put("c", 3)
	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
}

func TestEvictingRewriteExisting(t *testing.T) {
	c := NewLRU(NewPerpetual("ns"), 2)
	c.Put("a", 1)
	c.Put("a", 2)
	c.Put("b", 3)
	// No eviction yet: "a" was overwritten, not duplicated.
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestBlockingLoadProtocol(t *testing.T) {
	c := NewBlocking(NewPerpetual("ns"))

	// A miss leaves the key held; Put releases it.
	_, ok := c.Get("k")
	require.False(t, ok)
	c.Put("k", 1)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	// A second loader blocks until the first publishes.
	c.Clear()
	_, ok = c.Get("k")
	require.False(t, ok)
	done := make(chan any)
	go func() {
		v, _ := c.Get("k")
		done <- v
	}()
	c.Put("k", 2)
	assert.Equal(t, 2, <-done)

	// A failed load releases the key via Remove.
	_, ok = c.Get("gone")
	require.False(t, ok)
	c.Remove("gone")
	_, ok = c.Get("gone")
	assert.False(t, ok)
	c.Put("gone", 3)
}

func TestBlockingUnpairedCallsAreSafe(t *testing.T) {
	c := NewBlocking(NewPerpetual("ns"))

	// Put and Remove without a preceding miss pass straight through.
	c.Put("k", 1)
	c.Remove("k")
	c.Remove("never-seen")

	v, ok := c.Get("k")
	require.False(t, ok)
	assert.Nil(t, v)
	c.Put("k", 2)
	v, ok = c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestScheduledFlushConcurrentAccess(t *testing.T) {
	c, err := NewBuilder("ns").FlushInterval(time.Nanosecond).Build()
	require.NoError(t, err)

	// Every access is due for a flush, so the clear bookkeeping runs on
	// every goroutine at once.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%8)
				c.Put(key, i)
				c.Get(key)
			}
		}()
	}
	wg.Wait()
}

func TestBuilder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := NewBuilder("ns").Build()
		require.NoError(t, err)
		assert.Equal(t, "ns", c.ID())
	})

	t.Run("fifo with size", func(t *testing.T) {
		c, err := NewBuilder("ns").Eviction("FIFO").Size(8).Build()
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			c.Put(fmt.Sprintf("k%d", i), i)
		}
		_, ok := c.Get("k0")
		assert.False(t, ok)
		_, ok = c.Get("k19")
		assert.True(t, ok)
	})

	t.Run("unknown aliases", func(t *testing.T) {
		_, err := NewBuilder("ns").Implementation("REDIS").Build()
		assert.ErrorContains(t, err, "unknown implementation")

		_, err = NewBuilder("ns").Eviction("RANDOM").Build()
		assert.ErrorContains(t, err, "unknown eviction")
	})
}
