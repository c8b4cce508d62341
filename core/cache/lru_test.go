package cache_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clinicflow/clinicflow/core/cache"
)

func TestLRUCache(t *testing.T) {
	t.Parallel()

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()

		var evicted []string
		c := cache.NewLRUCache[string, int](2)
		c.SetEvictCallback(func(k string, _ int) { evicted = append(evicted, k) })

		c.Put("a", 1)
		c.Put("b", 2)
		_, _ = c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, evicted)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("put overwrites in place", func(t *testing.T) {
		t.Parallel()

		c := cache.NewLRUCache[string, int](2)
		c.Put("a", 1)
		c.Put("a", 5)

		v, ok := c.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 5, v)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("remove and clear", func(t *testing.T) {
		t.Parallel()

		c := cache.NewLRUCache[int, string](0)
		c.Put(1, "one")

		v, ok := c.Remove(1)
		assert.True(t, ok)
		assert.Equal(t, "one", v)
		_, ok = c.Remove(1)
		assert.False(t, ok)

		c.Put(2, "two")
		c.Clear()
		assert.Equal(t, 0, c.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		t.Parallel()

		c := cache.NewLRUCache[int, int](64)
		var wg sync.WaitGroup
		for g := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 200 {
					c.Put(g*1000+i, i)
					c.Get(i)
				}
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, c.Len(), 64)
	})
}
