package explorer

import (
	"context"
	"errors"
	"sync"

	"leadboard/internal/core"
)

var errBoom = errors.New("boom")

// fakeSource is an in-memory DataSource that counts leaf fetches and can
// hold them open until gate is closed.
type fakeSource struct {
	mu sync.Mutex

	weeks      []core.Week
	sources    []core.Source
	categories []core.Category
	records    []core.LeadMetric
	nextID     int64

	weeksErr      error
	sourcesErr    error
	categoriesErr error
	listErr       error
	createErr     error
	updateErr     error

	// updateTriple, when set, is echoed back by UpdateLeadMetric instead of
	// the submitted triple.
	updateTriple *Key

	listCalls map[Key]int
	gate      chan struct{}
	started   chan Key

	// weeksGate holds ListWeeks open; weeksStarted is signalled on entry.
	weeksGate    chan struct{}
	weeksStarted chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		nextID:    100,
		listCalls: make(map[Key]int),
		started:   make(chan Key, 16),

		weeksStarted: make(chan struct{}, 1),
	}
}

func (f *fakeSource) ListWeeks(ctx context.Context) ([]core.Week, error) {
	f.mu.Lock()
	gate := f.weeksGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case f.weeksStarted <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.weeksErr != nil {
		return nil, f.weeksErr
	}
	return append([]core.Week(nil), f.weeks...), nil
}

func (f *fakeSource) ListSources(ctx context.Context) ([]core.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sourcesErr != nil {
		return nil, f.sourcesErr
	}
	return append([]core.Source(nil), f.sources...), nil
}

func (f *fakeSource) ListCategories(ctx context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.categoriesErr != nil {
		return nil, f.categoriesErr
	}
	return append([]core.Category(nil), f.categories...), nil
}

func (f *fakeSource) ListLeadMetrics(ctx context.Context, weekID, sourceID, categoryID int64) ([]core.LeadMetric, error) {
	k := LeafKey(weekID, sourceID, categoryID)

	f.mu.Lock()
	f.listCalls[k]++
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.started <- k:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []core.LeadMetric
	for _, m := range f.records {
		if KeyOf(m) == k {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeSource) CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return core.LeadMetric{}, f.createErr
	}
	f.nextID++
	m := core.LeadMetric{
		ID:         f.nextID,
		WeekID:     in.WeekID,
		SourceID:   in.SourceID,
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		LeadsCount: in.LeadsCount,
	}
	f.records = append(f.records, m)
	return m, nil
}

func (f *fakeSource) UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return core.LeadMetric{}, f.updateErr
	}
	m := core.LeadMetric{
		ID:         id,
		WeekID:     in.WeekID,
		SourceID:   in.SourceID,
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		LeadsCount: in.LeadsCount,
	}
	if f.updateTriple != nil {
		m.WeekID, m.SourceID, m.CategoryID = f.updateTriple.Week(), f.updateTriple.Source(), f.updateTriple.Category()
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i] = m
		}
	}
	return m, nil
}

func (f *fakeSource) calls(k Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls[k]
}

func (f *fakeSource) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func week(id int64, start, end string) core.Week {
	s, err := core.ParseDate(start)
	if err != nil {
		panic(err)
	}
	e, err := core.ParseDate(end)
	if err != nil {
		panic(err)
	}
	return core.Week{ID: id, StartDate: s, EndDate: e}
}

func metric(id, w, s, c, amount, leads int64) core.LeadMetric {
	return core.LeadMetric{ID: id, WeekID: w, SourceID: s, CategoryID: c, Amount: amount, LeadsCount: leads}
}
