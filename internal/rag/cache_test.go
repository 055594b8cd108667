package rag

import (
	"fmt"
	"sync"
	"testing"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(4)

	c.Put("a", 1)
	c.Put("b", 2)

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got.(int) != 1 {
		t.Errorf("Get(a) = %v, want 1", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)

	c.Put("a", 1)
	c.Put("b", 2)

	// Touch a so b becomes the eviction candidate
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for key a")
	}

	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to survive eviction")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCachePutExistingUpdatesValueAndRecency(t *testing.T) {
	c := NewCache(2)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10) // refresh a

	c.Put("c", 3) // should evict b, not a

	got, ok := c.Get("a")
	if !ok {
		t.Fatal("expected hit for key a")
	}
	if got.(int) != 10 {
		t.Errorf("Get(a) = %v, want updated value 10", got)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(4)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after Clear")
	}

	// Cache stays usable after Clear
	c.Put("c", 3)
	if _, ok := c.Get("c"); !ok {
		t.Error("expected hit after post-Clear Put")
	}
}

func TestCacheDefaultCapacity(t *testing.T) {
	c := NewCache(0)

	for i := 0; i < DefaultCacheCapacity+10; i++ {
		c.Put(fmt.Sprintf("key-%d", i), i)
	}

	if c.Len() != DefaultCacheCapacity {
		t.Errorf("Len() = %d, want %d", c.Len(), DefaultCacheCapacity)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(32)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d", i%40)
				c.Put(key, g*1000+i)
				c.Get(key)
				if i%25 == 0 {
					c.Len()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 32 {
		t.Errorf("Len() = %d exceeds capacity 32", c.Len())
	}
}
