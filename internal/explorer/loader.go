package explorer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"leadboard/internal/log"
)

// Loader fetches leaf buckets on first expansion. At most one fetch per key
// is in flight at a time; callers arriving meanwhile wait for its result.
type Loader struct {
	cache   *Cache
	source  DataSource
	timeout time.Duration
	metrics *Metrics
	logger  *log.Logger

	group singleflight.Group

	mu       sync.Mutex
	gen      uint64
	seq      uint64
	inflight map[Key]*flight
}

// flight is one fetch of one key. It is registered under l.mu in the same
// critical section as the cache miss, so Reset and Cancel always see it.
type flight struct {
	key    string
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	stale  bool
	done   bool
	err    error
}

func NewLoader(cache *Cache, source DataSource, timeout time.Duration, metrics *Metrics, logger *log.Logger) *Loader {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Loader{
		cache:    cache,
		source:   source,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
		inflight: make(map[Key]*flight),
	}
}

// EnsureLoaded makes sure the bucket for k is cached. A cached bucket, even an
// empty one, costs no fetch. A failed fetch leaves no entry so a later call
// can retry; nothing is retried automatically.
//
// The fetch is detached from ctx so one caller giving up does not fail the
// others waiting on it. It is bounded by the loader timeout instead.
func (l *Loader) EnsureLoaded(ctx context.Context, k Key) error {
	if !k.IsLeaf() {
		return ErrInvalidKey
	}
	f, hit := l.join(ctx, k)
	if hit {
		l.metrics.cacheLookups.WithLabelValues("hit").Inc()
		return nil
	}
	l.metrics.cacheLookups.WithLabelValues("miss").Inc()

	ch := l.group.DoChan(f.key, func() (any, error) {
		return nil, l.fetch(k, f)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// join reports a cache hit, or returns the flight for k, registering a new
// one stamped with the current generation when none is in flight.
func (l *Loader) join(ctx context.Context, k Key) (*flight, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cache.Has(k) {
		return nil, true
	}
	if f, ok := l.inflight[k]; ok {
		return f, false
	}

	l.seq++
	f := &flight{key: fmt.Sprintf("%s#%d", k, l.seq), gen: l.gen}
	if l.timeout > 0 {
		f.ctx, f.cancel = context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	} else {
		f.ctx, f.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	l.inflight[k] = f
	return f, false
}

func (l *Loader) fetch(k Key, f *flight) error {
	l.mu.Lock()
	switch {
	case f.done:
		// a late joiner re-entered a flight that already completed
		l.mu.Unlock()
		return f.err
	case f.stale || f.gen != l.gen:
		l.mu.Unlock()
		l.metrics.leafFetches.WithLabelValues("stale").Inc()
		return ErrStale
	}
	l.mu.Unlock()
	defer f.cancel()

	start := time.Now()
	items, err := l.source.ListLeadMetrics(f.ctx, k.Week(), k.Source(), k.Category())
	l.metrics.leafFetchDuration.Observe(time.Since(start).Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[k] == f {
		delete(l.inflight, k)
	}
	f.done = true
	switch {
	case f.stale || f.gen != l.gen:
		l.metrics.leafFetches.WithLabelValues("stale").Inc()
		l.logger.Debug("Discarding stale leaf fetch", log.FieldKey, k.String())
		f.err = ErrStale
	case err != nil:
		l.metrics.leafFetches.WithLabelValues("error").Inc()
		f.err = err
	default:
		if f.err = l.cache.Store(k, items); f.err == nil {
			l.metrics.leafFetches.WithLabelValues("ok").Inc()
			l.logger.Debug("Leaf bucket loaded", log.FieldKey, k.String(), log.FieldCount, len(items))
		}
	}
	return f.err
}

// Loading reports whether a fetch for k is in flight.
func (l *Loader) Loading(k Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.inflight[k]
	return ok
}

// Cancel aborts in-flight fetches whose key matches fn. Their results are
// discarded and their waiters receive ErrStale.
func (l *Loader) Cancel(fn func(Key) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, f := range l.inflight {
		if fn(k) {
			l.abort(k, f)
			n++
		}
	}
	return n
}

// Reset starts a new generation and aborts every in-flight fetch.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen++
	for k, f := range l.inflight {
		l.abort(k, f)
	}
}

// abort must be called with l.mu held.
func (l *Loader) abort(k Key, f *flight) {
	f.stale = true
	f.cancel()
	delete(l.inflight, k)
	l.group.Forget(f.key)
}
