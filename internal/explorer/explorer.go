// Package explorer implements the week → source → category lead explorer:
// month bucketing of weeks, expand/collapse state, a lazily filled cache of
// leaf buckets and the patching of that cache after create and edit.
//
// An Explorer is the state of one view. It owns no transport; all remote
// calls go through a DataSource.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"leadboard/internal/core"
	"leadboard/internal/log"
)

// Options configures an Explorer.
type Options struct {
	// FetchTimeout bounds every remote call. Zero means no timeout.
	FetchTimeout time.Duration
	Metrics      *Metrics
	Logger       *log.Logger
}

// Explorer is the state store of one explorer view.
type Explorer struct {
	source  DataSource
	timeout time.Duration
	metrics *Metrics
	logger  *log.Logger

	disclosure *Disclosure
	cache      *Cache
	loader     *Loader
	reconciler *Reconciler

	mu         sync.RWMutex
	loaded     bool
	loadGen    uint64
	weeks      []core.Week
	sources    []core.Source
	categories []core.Category
	months     []MonthBucket
}

func New(source DataSource, opts Options) *Explorer {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	logger := opts.Logger.WithComponent(log.ComponentExplorer)
	cache := NewCache()
	return &Explorer{
		source:     source,
		timeout:    opts.FetchTimeout,
		metrics:    opts.Metrics,
		logger:     logger,
		disclosure: NewDisclosure(),
		cache:      cache,
		loader:     NewLoader(cache, source, opts.FetchTimeout, opts.Metrics, logger),
		reconciler: NewReconciler(cache),
	}
}

func (e *Explorer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout > 0 {
		return context.WithTimeout(ctx, e.timeout)
	}
	return context.WithCancel(ctx)
}

// Load fetches weeks, sources and categories concurrently. All three must
// succeed; the first failure cancels the others and is returned wrapped in
// ErrInitialLoad, leaving the previous state in place.
func (e *Explorer) Load(ctx context.Context) error {
	e.mu.RLock()
	gen := e.loadGen
	e.mu.RUnlock()

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	var (
		weeks      []core.Week
		sources    []core.Source
		categories []core.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		weeks, err = e.source.ListWeeks(gctx)
		if err != nil {
			return fmt.Errorf("weeks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		sources, err = e.source.ListSources(gctx)
		if err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = e.source.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		e.logger.WarnContext(ctx, "Initial load failed", log.FieldOperation, log.OpLoad, log.FieldError, err)
		return fmt.Errorf("%w: %w", ErrInitialLoad, err)
	}

	months := GroupByMonth(weeks)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadGen != gen {
		return ErrStale
	}
	e.weeks, e.sources, e.categories, e.months = weeks, sources, categories, months
	e.loaded = true

	e.logger.DebugContext(ctx, "Explorer loaded",
		"weeks", len(weeks), "sources", len(sources), "categories", len(categories), "months", len(months))
	return nil
}

// Loaded reports whether an initial load has succeeded.
func (e *Explorer) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

// Months returns the month buckets in chronological order.
func (e *Explorer) Months() []MonthBucket {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.months
}

func (e *Explorer) Sources() []core.Source {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sources
}

func (e *Explorer) Categories() []core.Category {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.categories
}

// Week returns a loaded week by id.
func (e *Explorer) Week(id int64) (core.Week, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, w := range e.weeks {
		if w.ID == id {
			return w, true
		}
	}
	return core.Week{}, false
}

func (e *Explorer) Source(id int64) (core.Source, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.sources {
		if s.ID == id {
			return s, true
		}
	}
	return core.Source{}, false
}

func (e *Explorer) Category(id int64) (core.Category, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.categories {
		if c.ID == id {
			return c, true
		}
	}
	return core.Category{}, false
}

func (e *Explorer) ToggleWeek(weekID int64) bool {
	return e.disclosure.Toggle(WeekKey(weekID))
}

func (e *Explorer) ToggleSource(weekID, sourceID int64) bool {
	return e.disclosure.Toggle(SourceKey(weekID, sourceID))
}

// ToggleCategory expands or collapses a leaf. Expanding loads its bucket on
// first use. A failed load keeps the leaf expanded with no data and returns
// ErrLeafLoad; collapsing never touches the cache.
func (e *Explorer) ToggleCategory(ctx context.Context, weekID, sourceID, categoryID int64) (bool, error) {
	k := LeafKey(weekID, sourceID, categoryID)
	open := e.disclosure.Toggle(k)
	if !open {
		return false, nil
	}

	err := e.loader.EnsureLoaded(ctx, k)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrStale):
		// the leaf or the whole view was dropped while loading
		return e.disclosure.IsOpen(k), nil
	default:
		e.logger.WarnContext(ctx, "Leaf load failed",
			log.FieldKey, k.String(), log.FieldOperation, log.OpLoad, log.FieldError, err)
		return true, fmt.Errorf("%w: %s: %w", ErrLeafLoad, k, err)
	}
}

// EnsureLoaded loads a leaf bucket without changing its disclosure state.
func (e *Explorer) EnsureLoaded(ctx context.Context, weekID, sourceID, categoryID int64) error {
	k := LeafKey(weekID, sourceID, categoryID)
	if err := e.loader.EnsureLoaded(ctx, k); err != nil {
		if errors.Is(err, ErrStale) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrLeafLoad, k, err)
	}
	return nil
}

func (e *Explorer) IsOpen(k Key) bool {
	return e.disclosure.IsOpen(k)
}

func (e *Explorer) Loading(k Key) bool {
	return e.loader.Loading(k)
}

// Bucket returns the cached records of a leaf and whether it was fetched.
func (e *Explorer) Bucket(weekID, sourceID, categoryID int64) ([]core.LeadMetric, bool) {
	return e.cache.Lookup(LeafKey(weekID, sourceID, categoryID))
}

// Create writes a new record remotely and, once acknowledged, appends it to
// its cached bucket. On failure the cache is left untouched.
func (e *Explorer) Create(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	rctx, cancel := e.withTimeout(ctx)
	defer cancel()

	created, err := e.source.CreateLeadMetric(rctx, in)
	if err != nil {
		e.metrics.mutations.WithLabelValues("create", "error").Inc()
		return core.LeadMetric{}, fmt.Errorf("%w: create: %w", ErrMutation, err)
	}
	e.metrics.mutations.WithLabelValues("create", "ok").Inc()

	if err := e.reconciler.ApplyCreate(created); err != nil {
		e.reconcileFailed(ctx, KeyOf(created), created, err)
	}
	return created, nil
}

// Edit updates amount and leads count of an existing record. The record keeps
// the triple of original; the reconciler replaces it in place in that bucket.
func (e *Explorer) Edit(ctx context.Context, original core.LeadMetric, amount, leadsCount int64) (core.LeadMetric, error) {
	in := original.Input()
	in.Amount = amount
	in.LeadsCount = leadsCount

	rctx, cancel := e.withTimeout(ctx)
	defer cancel()

	updated, err := e.source.UpdateLeadMetric(rctx, original.ID, in)
	if err != nil {
		e.metrics.mutations.WithLabelValues("edit", "error").Inc()
		return core.LeadMetric{}, fmt.Errorf("%w: edit %d: %w", ErrMutation, original.ID, err)
	}
	e.metrics.mutations.WithLabelValues("edit", "ok").Inc()

	k := KeyOf(original)
	if err := e.reconciler.ApplyEdit(k, updated); err != nil {
		e.reconcileFailed(ctx, k, updated, err)
	}
	return updated, nil
}

// reconcileFailed records an invariant violation. It is not a user error:
// the write itself succeeded.
func (e *Explorer) reconcileFailed(ctx context.Context, k Key, m core.LeadMetric, err error) {
	e.metrics.reconcileErrors.Inc()
	fields := log.NewFields().
		WithTriple(k.Week(), k.Source(), k.Category()).
		WithMetric(m.ID, m.Amount, m.LeadsCount).
		WithOperation(log.OpReconcile).
		WithError(err)
	e.logger.ErrorContext(ctx, "Cache reconciliation inconsistency", fields.ToSlice()...)
}

// Invalidate removes an entity deleted elsewhere: it leaves the loaded
// lists, and every cached bucket, open node and in-flight fetch under it is
// dropped. A Load in flight returns ErrStale. It returns the number of
// cached buckets removed.
func (e *Explorer) Invalidate(kind core.EntityKind, id int64) int {
	match := func(k Key) bool { return k.References(kind, id) }

	e.loader.Cancel(match)
	dropped := e.cache.Drop(match)
	e.disclosure.Forget(match)

	e.mu.Lock()
	// a Load already in flight read the lists before the deletion
	e.loadGen++
	switch kind {
	case core.EntityWeek:
		e.weeks = withoutID(e.weeks, id, func(w core.Week) int64 { return w.ID })
		e.months = GroupByMonth(e.weeks)
	case core.EntitySource:
		e.sources = withoutID(e.sources, id, func(s core.Source) int64 { return s.ID })
	case core.EntityCategory:
		e.categories = withoutID(e.categories, id, func(c core.Category) int64 { return c.ID })
	}
	e.mu.Unlock()

	if dropped > 0 {
		e.metrics.invalidations.Add(float64(dropped))
	}
	e.logger.Debug("Entity invalidated",
		log.FieldOperation, log.OpInvalidate, "kind", string(kind), "id", id, log.FieldCount, dropped)
	return dropped
}

func (e *Explorer) InvalidateWeek(id int64) int { return e.Invalidate(core.EntityWeek, id) }
func (e *Explorer) InvalidateSource(id int64) int { return e.Invalidate(core.EntitySource, id) }
func (e *Explorer) InvalidateCategory(id int64) int { return e.Invalidate(core.EntityCategory, id) }

// Reset tears the view down. In-flight results that arrive later are
// discarded and the explorer must be loaded again before use.
func (e *Explorer) Reset() {
	e.loader.Reset()
	e.cache.Reset()
	e.disclosure.Reset()

	e.mu.Lock()
	e.loadGen++
	e.loaded = false
	e.weeks, e.sources, e.categories, e.months = nil, nil, nil, nil
	e.mu.Unlock()
}

// withoutID returns a new slice without the element carrying id.
func withoutID[T any](items []T, id int64, idOf func(T) int64) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if idOf(it) != id {
			out = append(out, it)
		}
	}
	return out
}
