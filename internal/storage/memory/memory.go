// Package memory is a process-local store with the same behaviour as the
// SQLite repository. Nothing survives a restart.
package memory

import (
	"bufio"
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"leadboard/internal/core"
	"leadboard/internal/storage"
)

type metricRow struct {
	metric  core.LeadMetric
	version int64
	status  core.SyncStatus
}

type Store struct {
	mu         sync.Mutex
	nextID     int64
	weeks      map[int64]core.Week
	sources    map[int64]core.Source
	categories map[int64]core.Category
	metrics    map[int64]*metricRow
}

func New() *Store {
	return &Store{
		weeks:      make(map[int64]core.Week),
		sources:    make(map[int64]core.Source),
		categories: make(map[int64]core.Category),
		metrics:    make(map[int64]*metricRow),
	}
}

// NewFromFiles seeds sources and categories from seed_sources.txt and
// seed_categories.txt under base, one name per line. Missing files are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_sources.txt")) {
		_, _ = s.CreateSource(context.Background(), name)
	}
	for _, name := range readLines(filepath.Join(base, "seed_categories.txt")) {
		_, _ = s.CreateCategory(context.Background(), name)
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Weeks

func (s *Store) ListWeeks(context.Context) ([]core.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := values(s.weeks)
	slices.SortFunc(out, func(a, b core.Week) int {
		if c := a.StartDate.Compare(b.StartDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetWeek(_ context.Context, id int64) (core.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weeks[id]
	if !ok {
		return core.Week{}, fmt.Errorf("get week %d: %w", id, storage.ErrNotFound)
	}
	return w, nil
}

func (s *Store) CreateWeek(_ context.Context, in core.WeekInput) (core.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := core.Week{ID: s.id(), StartDate: in.StartDate, EndDate: in.EndDate}
	s.weeks[w.ID] = w
	return w, nil
}

func (s *Store) UpdateWeek(_ context.Context, id int64, in core.WeekInput) (core.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.weeks[id]; !ok {
		return core.Week{}, fmt.Errorf("update week %d: %w", id, storage.ErrNotFound)
	}
	w := core.Week{ID: id, StartDate: in.StartDate, EndDate: in.EndDate}
	s.weeks[id] = w
	return w, nil
}

func (s *Store) DeleteWeek(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.weeks[id]; !ok {
		return fmt.Errorf("delete week %d: %w", id, storage.ErrNotFound)
	}
	delete(s.weeks, id)
	s.cascade(func(m core.LeadMetric) bool { return m.WeekID == id })
	return nil
}

// Sources

func (s *Store) ListSources(context.Context) ([]core.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := values(s.sources)
	slices.SortFunc(out, func(a, b core.Source) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetSource(_ context.Context, id int64) (core.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return core.Source{}, fmt.Errorf("get source %d: %w", id, storage.ErrNotFound)
	}
	return src, nil
}

func (s *Store) CreateSource(_ context.Context, name string) (core.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if sourceNamed(s.sources, name, 0) {
		return core.Source{}, fmt.Errorf("create source %q: %w", name, storage.ErrConflict)
	}
	src := core.Source{ID: s.id(), Name: name}
	s.sources[src.ID] = src
	return src, nil
}

func (s *Store) UpdateSource(_ context.Context, id int64, name string) (core.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if _, ok := s.sources[id]; !ok {
		return core.Source{}, fmt.Errorf("update source %d: %w", id, storage.ErrNotFound)
	}
	if sourceNamed(s.sources, name, id) {
		return core.Source{}, fmt.Errorf("update source %d: %w", id, storage.ErrConflict)
	}
	src := core.Source{ID: id, Name: name}
	s.sources[id] = src
	return src, nil
}

func (s *Store) DeleteSource(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("delete source %d: %w", id, storage.ErrNotFound)
	}
	delete(s.sources, id)
	s.cascade(func(m core.LeadMetric) bool { return m.SourceID == id })
	return nil
}

// Categories

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := values(s.categories)
	slices.SortFunc(out, func(a, b core.Category) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if categoryNamed(s.categories, name, 0) {
		return core.Category{}, fmt.Errorf("create category %q: %w", name, storage.ErrConflict)
	}
	c := core.Category{ID: s.id(), Name: name}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, id int64, name string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if _, ok := s.categories[id]; !ok {
		return core.Category{}, fmt.Errorf("update category %d: %w", id, storage.ErrNotFound)
	}
	if categoryNamed(s.categories, name, id) {
		return core.Category{}, fmt.Errorf("update category %d: %w", id, storage.ErrConflict)
	}
	c := core.Category{ID: id, Name: name}
	s.categories[id] = c
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return fmt.Errorf("delete category %d: %w", id, storage.ErrNotFound)
	}
	delete(s.categories, id)
	s.cascade(func(m core.LeadMetric) bool { return m.CategoryID == id })
	return nil
}

// Lead metrics

func (s *Store) ListLeadMetrics(_ context.Context, f core.LeadMetricFilter) ([]core.LeadMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.LeadMetric, 0)
	for _, row := range s.metrics {
		if f.Matches(row.metric) {
			out = append(out, row.metric)
		}
	}
	slices.SortFunc(out, func(a, b core.LeadMetric) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) GetLeadMetric(_ context.Context, id int64) (core.LeadMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.metrics[id]
	if !ok {
		return core.LeadMetric{}, fmt.Errorf("get lead metric %d: %w", id, storage.ErrNotFound)
	}
	return row.metric, nil
}

func (s *Store) CreateLeadMetric(_ context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.referencesExist(in) {
		return core.LeadMetric{}, fmt.Errorf("create lead metric: %w", storage.ErrMissingReference)
	}
	m := metricFrom(s.id(), in)
	s.metrics[m.ID] = &metricRow{metric: m, version: 1, status: core.SyncPending}
	return m, nil
}

func (s *Store) UpdateLeadMetric(_ context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.metrics[id]
	if !ok {
		return core.LeadMetric{}, fmt.Errorf("update lead metric %d: %w", id, storage.ErrNotFound)
	}
	if !s.referencesExist(in) {
		return core.LeadMetric{}, fmt.Errorf("update lead metric %d: %w", id, storage.ErrMissingReference)
	}
	row.metric = metricFrom(id, in)
	row.version++
	row.status = core.SyncPending
	return row.metric, nil
}

func (s *Store) DeleteLeadMetric(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.metrics[id]; !ok {
		return fmt.Errorf("delete lead metric %d: %w", id, storage.ErrNotFound)
	}
	delete(s.metrics, id)
	return nil
}

// Dashboard

func (s *Store) LeadOverview(context.Context) (core.LeadOverview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCat := map[int64]*core.CategoryTotal{}
	bySrc := map[int64]*core.SourceTotal{}
	for _, row := range s.metrics {
		m := row.metric
		ct, ok := byCat[m.CategoryID]
		if !ok {
			ct = &core.CategoryTotal{CategoryID: m.CategoryID, CategoryName: s.categories[m.CategoryID].Name}
			byCat[m.CategoryID] = ct
		}
		ct.TotalAmount += m.Amount
		ct.TotalLeads += m.LeadsCount

		st, ok := bySrc[m.SourceID]
		if !ok {
			st = &core.SourceTotal{SourceID: m.SourceID, SourceName: s.sources[m.SourceID].Name}
			bySrc[m.SourceID] = st
		}
		st.TotalAmount += m.Amount
		st.TotalLeads += m.LeadsCount
	}

	overview := core.LeadOverview{
		ByCategory: make([]core.CategoryTotal, 0, len(byCat)),
		BySource:   make([]core.SourceTotal, 0, len(bySrc)),
	}
	for _, ct := range byCat {
		overview.ByCategory = append(overview.ByCategory, *ct)
	}
	for _, st := range bySrc {
		overview.BySource = append(overview.BySource, *st)
	}
	slices.SortFunc(overview.ByCategory, func(a, b core.CategoryTotal) int {
		return cmp.Or(strings.Compare(a.CategoryName, b.CategoryName), cmp.Compare(a.CategoryID, b.CategoryID))
	})
	slices.SortFunc(overview.BySource, func(a, b core.SourceTotal) int {
		return cmp.Or(strings.Compare(a.SourceName, b.SourceName), cmp.Compare(a.SourceID, b.SourceID))
	})
	return overview, nil
}

func (s *Store) CategoryStats(_ context.Context, categoryID int64, rng core.DateRange) ([]core.WeeklyStats, error) {
	return s.weekly(rng, func(m core.LeadMetric) bool { return m.CategoryID == categoryID }, nil, &categoryID), nil
}

func (s *Store) SourceStats(_ context.Context, sourceID int64, rng core.DateRange) ([]core.WeeklyStats, error) {
	return s.weekly(rng, func(m core.LeadMetric) bool { return m.SourceID == sourceID }, &sourceID, nil), nil
}

func (s *Store) weekly(rng core.DateRange, match func(core.LeadMetric) bool, sourceID, categoryID *int64) []core.WeeklyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byWeek := map[int64]*core.WeeklyStats{}
	for _, row := range s.metrics {
		m := row.metric
		w, ok := s.weeks[m.WeekID]
		if !ok || !match(m) || !rng.Contains(w) {
			continue
		}
		ws, ok := byWeek[w.ID]
		if !ok {
			ws = &core.WeeklyStats{
				WeekID:     w.ID,
				SourceID:   sourceID,
				CategoryID: categoryID,
				StartDate:  w.StartDate,
				EndDate:    w.EndDate,
			}
			byWeek[w.ID] = ws
		}
		ws.Amount += m.Amount
		ws.LeadsCount += m.LeadsCount
	}

	out := make([]core.WeeklyStats, 0, len(byWeek))
	for _, ws := range byWeek {
		out = append(out, *ws)
	}
	slices.SortFunc(out, func(a, b core.WeeklyStats) int {
		return cmp.Or(a.StartDate.Compare(b.StartDate.Time), cmp.Compare(a.WeekID, b.WeekID))
	})
	return out
}

func (s *Store) LeadMetricsByWeek(context.Context) ([]core.WeekMetricGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := make([]core.WeekMetric, 0, len(s.metrics))
	for _, row := range s.metrics {
		m := row.metric
		w := s.weeks[m.WeekID]
		metrics = append(metrics, core.WeekMetric{
			LeadMetricID: m.ID,
			Amount:       m.Amount,
			LeadsCount:   m.LeadsCount,
			Category:     core.Ref{ID: m.CategoryID, Name: s.categories[m.CategoryID].Name},
			Source:       core.Ref{ID: m.SourceID, Name: s.sources[m.SourceID].Name},
			Week:         core.WeekRef{ID: w.ID, StartDate: w.StartDate, EndDate: w.EndDate},
		})
	}
	slices.SortFunc(metrics, func(a, b core.WeekMetric) int {
		return cmp.Or(
			a.Week.StartDate.Compare(b.Week.StartDate.Time),
			a.Week.EndDate.Compare(b.Week.EndDate.Time),
			cmp.Compare(a.LeadMetricID, b.LeadMetricID),
		)
	})
	return core.GroupByWeekDates(metrics), nil
}

// Sync

func (s *Store) GetPendingSync(_ context.Context, limit int) ([]core.PendingSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.PendingSync, 0)
	for id, row := range s.metrics {
		if row.status == core.SyncPending {
			out = append(out, core.PendingSync{ID: id, Version: row.version})
		}
	}
	slices.SortFunc(out, func(a, b core.PendingSync) int { return cmp.Compare(a.ID, b.ID) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetSyncRecord(_ context.Context, id int64) (core.SyncRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.metrics[id]
	if !ok {
		return core.SyncRecord{}, fmt.Errorf("get sync record %d: %w", id, storage.ErrNotFound)
	}
	w := s.weeks[row.metric.WeekID]
	return core.SyncRecord{
		Metric:       row.metric,
		Version:      row.version,
		Status:       row.status,
		WeekStart:    w.StartDate,
		WeekEnd:      w.EndDate,
		SourceName:   s.sources[row.metric.SourceID].Name,
		CategoryName: s.categories[row.metric.CategoryID].Name,
	}, nil
}

func (s *Store) MarkSynced(_ context.Context, id, version int64) error {
	s.mark(id, version, core.SyncSynced)
	return nil
}

func (s *Store) MarkSyncError(_ context.Context, id, version int64) error {
	s.mark(id, version, core.SyncError)
	return nil
}

func (s *Store) mark(id, version int64, status core.SyncStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.metrics[id]; ok && row.version == version {
		row.status = status
	}
}

// cascade removes the metrics matching fn. Callers hold mu.
func (s *Store) cascade(fn func(core.LeadMetric) bool) {
	for id, row := range s.metrics {
		if fn(row.metric) {
			delete(s.metrics, id)
		}
	}
}

func (s *Store) referencesExist(in core.LeadMetricInput) bool {
	_, w := s.weeks[in.WeekID]
	_, src := s.sources[in.SourceID]
	_, c := s.categories[in.CategoryID]
	return w && src && c
}

func metricFrom(id int64, in core.LeadMetricInput) core.LeadMetric {
	return core.LeadMetric{
		ID:         id,
		WeekID:     in.WeekID,
		SourceID:   in.SourceID,
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		LeadsCount: in.LeadsCount,
	}
}

func sourceNamed(m map[int64]core.Source, name string, except int64) bool {
	for id, v := range m {
		if id != except && v.Name == name {
			return true
		}
	}
	return false
}

func categoryNamed(m map[int64]core.Category, name string, except int64) bool {
	for id, v := range m {
		if id != except && v.Name == name {
			return true
		}
	}
	return false
}

func values[K comparable, V any](m map[K]V) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
