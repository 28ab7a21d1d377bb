package explorer

import (
	"sync"

	"leadboard/internal/core"
)

// Cache maps leaf keys to lead-metric buckets. A missing entry means the
// leaf was never fetched; an empty bucket means it was fetched and is empty.
//
// Buckets are never modified in place. Every write installs a new slice, so a
// bucket returned by Lookup stays valid and unchanged for its holder.
type Cache struct {
	mu      sync.RWMutex
	buckets map[Key][]core.LeadMetric
}

func NewCache() *Cache {
	return &Cache{buckets: make(map[Key][]core.LeadMetric)}
}

// Lookup returns the bucket for k. Repeated lookups with no write in
// between return the same slice.
func (c *Cache) Lookup(k Key) ([]core.LeadMetric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items, ok := c.buckets[k]
	return items, ok
}

func (c *Cache) Has(k Key) bool {
	_, ok := c.Lookup(k)
	return ok
}

// Len returns the number of cached buckets.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.buckets)
}

// Store installs a fetched bucket. If the bucket was created locally while the
// fetch was in flight, records the server did not return are kept at the end.
func (c *Cache) Store(k Key, items []core.LeadMetric) error {
	if !k.IsLeaf() {
		return ErrInvalidKey
	}
	next := make([]core.LeadMetric, len(items))
	copy(next, items)

	c.mu.Lock()
	defer c.mu.Unlock()

	if local, ok := c.buckets[k]; ok {
		seen := make(map[int64]struct{}, len(next))
		for _, m := range next {
			seen[m.ID] = struct{}{}
		}
		for _, m := range local {
			if _, dup := seen[m.ID]; !dup {
				next = append(next, m)
			}
		}
	}
	c.buckets[k] = next
	return nil
}

// update replaces the bucket for k with the result of fn, which receives the
// current bucket and must not modify it.
func (c *Cache) update(k Key, fn func(old []core.LeadMetric, ok bool) ([]core.LeadMetric, error)) error {
	if !k.IsLeaf() {
		return ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.buckets[k]
	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	c.buckets[k] = next
	return nil
}

// Drop removes every bucket whose key matches fn and returns the count.
func (c *Cache) Drop(fn func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k := range c.buckets {
		if fn(k) {
			delete(c.buckets, k)
			n++
		}
	}
	return n
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.buckets)
}
