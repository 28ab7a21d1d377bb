package cache

import (
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache[T any](size int, ttl time.Duration, clk *clock, opts ...Option[T]) *LRUCache[T] {
	c := NewLRUCache[T](size, ttl, opts...)
	c.now = clk.Now
	return c
}

func TestLRUCache_GetSet(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache[int](2, time.Minute, clk)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	c.Set("a", 2)
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("overwrite: got %d, want 2", v)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCache_CapacityEvictsLeastRecentlyUsed(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var evictedKeys []string
	var reasons []EvictReason
	c := newTestCache[int](2, time.Minute, clk, WithOnEvict(func(key string, _ int, reason EvictReason) {
		evictedKeys = append(evictedKeys, key)
		reasons = append(reasons, reason)
	}))

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if len(evictedKeys) != 1 || evictedKeys[0] != "b" || reasons[0] != EvictCapacity {
		t.Errorf("evictions = %v %v, want [b] [capacity]", evictedKeys, reasons)
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var reason EvictReason = -1
	c := newTestCache[string](10, time.Minute, clk, WithOnEvict(func(_ string, _ string, r EvictReason) {
		reason = r
	}))

	c.Set("k", "v")
	clk.Advance(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry should miss")
	}
	if reason != EvictExpired {
		t.Errorf("reason = %v, want expired", reason)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_SlidingTTL(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache[int](10, time.Minute, clk, WithSlidingTTL[int]())

	c.Set("k", 1)
	for i := 0; i < 5; i++ {
		clk.Advance(40 * time.Second)
		if _, ok := c.Get("k"); !ok {
			t.Fatalf("sliding entry expired after %d touches", i)
		}
	}
}

func TestLRUCache_CleanExpired(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	count := 0
	c := newTestCache[int](10, time.Minute, clk, WithOnEvict(func(string, int, EvictReason) { count++ }))

	c.Set("a", 1)
	c.Set("b", 2)
	clk.Advance(30 * time.Second)
	c.Set("c", 3)
	clk.Advance(45 * time.Second)

	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired() = %d, want 2", n)
	}
	if count != 2 {
		t.Errorf("callbacks = %d, want 2", count)
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should survive cleanup")
	}
}

func TestLRUCache_DeleteNotifies(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var got string
	c := newTestCache[int](10, time.Minute, clk, WithOnEvict(func(key string, _ int, r EvictReason) {
		if r == EvictDeleted {
			got = key
		}
	}))

	c.Set("x", 1)
	c.Delete("x")
	c.Delete("x")

	if got != "x" {
		t.Errorf("deleted callback key = %q, want x", got)
	}
}

func TestLRUCache_RangeAllowsReentry(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache[int](10, time.Minute, clk)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	sum := 0
	c.Range(func(key string, v int) bool {
		sum += v
		c.Get(key) // must not deadlock
		return true
	})
	if sum != 6 {
		t.Errorf("sum = %d, want 6", sum)
	}

	visited := 0
	c.Range(func(string, int) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("Range should stop early, visited %d", visited)
	}
}

func TestManager_CleanNow(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := newTestCache[int](10, time.Second, clk)
	c.Set("a", 1)
	clk.Advance(time.Minute)

	m := NewManager(nil)
	m.Register(c)
	if n := m.CleanNow(); n != 1 {
		t.Errorf("CleanNow() = %d, want 1", n)
	}
	m.Stop()
	m.Stop()
}
