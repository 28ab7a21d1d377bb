package explorer

import "sync"

// Disclosure tracks which tree nodes are expanded. Each level has its own
// set and toggling one node never touches another. It holds no data.
type Disclosure struct {
	mu      sync.Mutex
	weeks   map[Key]struct{}
	sources map[Key]struct{}
	leaves  map[Key]struct{}
}

func NewDisclosure() *Disclosure {
	return &Disclosure{
		weeks:   make(map[Key]struct{}),
		sources: make(map[Key]struct{}),
		leaves:  make(map[Key]struct{}),
	}
}

func (d *Disclosure) set(k Key) map[Key]struct{} {
	switch k.Level() {
	case LevelWeek:
		return d.weeks
	case LevelSource:
		return d.sources
	case LevelLeaf:
		return d.leaves
	default:
		return nil
	}
}

// Toggle flips the node and returns its new state.
func (d *Disclosure) Toggle(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.set(k)
	if s == nil {
		return false
	}
	if _, open := s[k]; open {
		delete(s, k)
		return false
	}
	s[k] = struct{}{}
	return true
}

func (d *Disclosure) IsOpen(k Key) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.set(k)
	if s == nil {
		return false
	}
	_, open := s[k]
	return open
}

// Forget closes every node matching fn and returns how many were closed.
func (d *Disclosure) Forget(fn func(Key) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, s := range []map[Key]struct{}{d.weeks, d.sources, d.leaves} {
		for k := range s {
			if fn(k) {
				delete(s, k)
				n++
			}
		}
	}
	return n
}

// Count returns the number of open nodes at a level.
func (d *Disclosure) Count(level Level) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.set(Key{level: level}))
}

// Reset collapses everything.
func (d *Disclosure) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.weeks)
	clear(d.sources)
	clear(d.leaves)
}
