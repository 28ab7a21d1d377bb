package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadboard/internal/cache"
	"leadboard/internal/core"
	"leadboard/internal/log"
)

// Sessions keeps one Explorer per browser session. Idle sessions expire and
// the least recently used ones are evicted past the size limit; either way
// the explorer is torn down.
type Sessions struct {
	mu          sync.Mutex
	store       *cache.LRUCache[*Explorer]
	newExplorer func() *Explorer
	metrics     *Metrics
	logger      *log.Logger
}

func NewSessions(newExplorer func() *Explorer, maxSessions int, ttl time.Duration, metrics *Metrics, logger *log.Logger) *Sessions {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &Sessions{
		newExplorer: newExplorer,
		metrics:     metrics,
		logger:      logger.WithComponent(log.ComponentExplorer),
	}
	s.store = cache.NewLRUCache[*Explorer](maxSessions, ttl,
		cache.WithSlidingTTL[*Explorer](),
		cache.WithOnEvict(s.evicted),
	)
	return s
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

func (s *Sessions) evicted(id string, ex *Explorer, reason cache.EvictReason) {
	ex.Reset()
	s.metrics.sessions.Set(float64(s.store.Size()))
	s.logger.Debug("Explorer session closed", log.FieldSessionID, id, "reason", reason.String())
}

// Get returns the explorer of a live session.
func (s *Sessions) Get(id string) (*Explorer, bool) {
	return s.store.Get(id)
}

// GetOrCreate returns the session's explorer, creating an unloaded one when
// the session is unknown or expired. created reports the latter.
func (s *Sessions) GetOrCreate(id string) (ex *Explorer, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ex, ok := s.store.Get(id); ok {
		return ex, false
	}
	ex = s.newExplorer()
	s.store.Set(id, ex)
	s.metrics.sessions.Set(float64(s.store.Size()))
	return ex, true
}

// Remove tears a session down.
func (s *Sessions) Remove(id string) {
	s.store.Delete(id)
}

// InvalidateEntity drops a deleted week, source or category from every live
// explorer.
func (s *Sessions) InvalidateEntity(ctx context.Context, kind core.EntityKind, id int64) {
	sessions, buckets := 0, 0
	s.store.Range(func(_ string, ex *Explorer) bool {
		buckets += ex.Invalidate(kind, id)
		sessions++
		return true
	})
	s.logger.DebugContext(ctx, "Entity invalidated in explorer sessions",
		log.FieldOperation, log.OpInvalidate, "kind", string(kind), "id", id,
		"sessions", sessions, log.FieldCount, buckets)
}

// CleanExpired removes idle sessions. It satisfies cache.Cleaner.
func (s *Sessions) CleanExpired() int {
	return s.store.CleanExpired()
}

func (s *Sessions) Len() int {
	return s.store.Size()
}

// Close tears down every session.
func (s *Sessions) Close() {
	s.store.CleanExpired()
	var ids []string
	s.store.Range(func(id string, _ *Explorer) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		s.store.Delete(id)
	}
}
