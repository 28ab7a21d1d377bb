package explorer

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"leadboard/internal/core"
)

func seededSource() *fakeSource {
	src := newFakeSource()
	src.weeks = []core.Week{
		week(1, "2024-01-29", "2024-02-04"),
		week(2, "2024-01-22", "2024-01-28"),
		week(3, "2024-02-05", "2024-02-11"),
	}
	src.sources = []core.Source{{ID: 2, Name: "Google"}, {ID: 5, Name: "Meta"}}
	src.categories = []core.Category{{ID: 3, Name: "Search"}, {ID: 4, Name: "Display"}}
	src.records = []core.LeadMetric{
		metric(10, 1, 2, 3, 500, 1),
		metric(11, 1, 2, 3, 1000, 5),
		metric(12, 3, 5, 4, 200, 2),
	}
	return src
}

func loadedExplorer(t *testing.T, src *fakeSource) *Explorer {
	t.Helper()
	ex := New(src, Options{FetchTimeout: 5 * time.Second})
	if err := ex.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return ex
}

func TestExplorer_Load(t *testing.T) {
	ex := loadedExplorer(t, seededSource())

	if !ex.Loaded() {
		t.Fatal("Loaded() = false after successful load")
	}
	months := ex.Months()
	if len(months) != 2 {
		t.Fatalf("got %d months, want 2", len(months))
	}
	if months[0].Month != time.January || len(months[0].Weeks) != 1 || months[0].Weeks[0].ID != 2 {
		t.Errorf("January bucket = %+v", months[0])
	}
	if months[1].Month != time.February || len(months[1].Weeks) != 2 {
		t.Errorf("February bucket = %+v", months[1])
	}
	if len(ex.Sources()) != 2 || len(ex.Categories()) != 2 {
		t.Error("sources and categories should be loaded")
	}
	if s, ok := ex.Source(5); !ok || s.Name != "Meta" {
		t.Errorf("Source(5) = %+v, %v", s, ok)
	}
}

func TestExplorer_LoadFailsFast(t *testing.T) {
	tests := []struct {
		name  string
		setup func(src *fakeSource)
	}{
		{"weeks", func(src *fakeSource) { src.weeksErr = errBoom }},
		{"sources", func(src *fakeSource) { src.sourcesErr = errBoom }},
		{"categories", func(src *fakeSource) { src.categoriesErr = errBoom }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := seededSource()
			tt.setup(src)
			ex := New(src, Options{})

			err := ex.Load(context.Background())
			if !errors.Is(err, ErrInitialLoad) || !errors.Is(err, errBoom) {
				t.Fatalf("Load() error = %v, want ErrInitialLoad wrapping boom", err)
			}
			if ex.Loaded() {
				t.Error("partial load must not mark the explorer loaded")
			}
			if len(ex.Months()) != 0 || len(ex.Sources()) != 0 || len(ex.Categories()) != 0 {
				t.Error("no list should be published after a failed load")
			}
		})
	}
}

func TestExplorer_CollapseExpandKeepsCache(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	k := LeafKey(1, 2, 3)

	open, err := ex.ToggleCategory(ctx, 1, 2, 3)
	if err != nil || !open {
		t.Fatalf("expand = %v, %v", open, err)
	}
	items, ok := ex.Bucket(1, 2, 3)
	if !ok || len(items) != 2 {
		t.Fatalf("bucket = %+v, %v", items, ok)
	}

	if open, _ := ex.ToggleCategory(ctx, 1, 2, 3); open {
		t.Fatal("second toggle should collapse")
	}
	if _, ok := ex.Bucket(1, 2, 3); !ok {
		t.Error("collapse must not evict the bucket")
	}

	if open, _ := ex.ToggleCategory(ctx, 1, 2, 3); !open {
		t.Fatal("third toggle should expand")
	}
	if got := src.calls(k); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
}

func TestExplorer_ToggleWeekAndSource(t *testing.T) {
	ex := loadedExplorer(t, seededSource())

	if !ex.ToggleWeek(1) || !ex.IsOpen(WeekKey(1)) {
		t.Error("week 1 should open")
	}
	if !ex.ToggleSource(1, 2) || !ex.IsOpen(SourceKey(1, 2)) {
		t.Error("source 2 under week 1 should open")
	}
	if ex.IsOpen(SourceKey(3, 2)) {
		t.Error("source 2 under week 3 should stay closed")
	}
	if ex.ToggleWeek(1) {
		t.Error("week 1 should close")
	}
	if !ex.IsOpen(SourceKey(1, 2)) {
		t.Error("closing a week keeps its children's state")
	}
}

func TestExplorer_LeafLoadFailure(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	k := LeafKey(1, 2, 3)

	src.setListErr(errBoom)
	open, err := ex.ToggleCategory(ctx, 1, 2, 3)
	if !errors.Is(err, ErrLeafLoad) || !errors.Is(err, errBoom) {
		t.Fatalf("ToggleCategory() error = %v, want ErrLeafLoad wrapping boom", err)
	}
	if !open || !ex.IsOpen(k) {
		t.Error("leaf stays expanded after a failed load")
	}
	if ex.Loading(k) {
		t.Error("no stuck loading state after failure")
	}
	if _, ok := ex.Bucket(1, 2, 3); ok {
		t.Error("failed load must not create a bucket")
	}

	// user-initiated retry: collapse and expand again
	src.setListErr(nil)
	ex.ToggleCategory(ctx, 1, 2, 3)
	if _, err := ex.ToggleCategory(ctx, 1, 2, 3); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if items, ok := ex.Bucket(1, 2, 3); !ok || len(items) != 2 {
		t.Errorf("bucket after retry = %+v, %v", items, ok)
	}
}

func TestExplorer_CreateReconciles(t *testing.T) {
	src := newFakeSource()
	ex := New(src, Options{})
	ctx := context.Background()

	// bucket 1-2-3 fetched and empty
	if _, err := ex.ToggleCategory(ctx, 1, 2, 3); err != nil {
		t.Fatal(err)
	}

	in := core.LeadMetricInput{WeekID: 1, SourceID: 2, CategoryID: 3, Amount: 1000, LeadsCount: 5}
	created, err := ex.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	items, _ := ex.Bucket(1, 2, 3)
	if len(items) != 1 || items[0] != created {
		t.Errorf("bucket = %+v, want exactly %+v", items, created)
	}
	if created.Amount != 1000 || created.LeadsCount != 5 {
		t.Errorf("created = %+v", created)
	}
	if src.calls(LeafKey(1, 2, 3)) != 1 {
		t.Error("create must not trigger a refetch")
	}
}

func TestExplorer_CreateFailureLeavesCacheUntouched(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleCategory(ctx, 1, 2, 3)
	before, _ := ex.Bucket(1, 2, 3)

	src.createErr = errBoom
	_, err := ex.Create(ctx, core.LeadMetricInput{WeekID: 1, SourceID: 2, CategoryID: 3, Amount: 1})
	if !errors.Is(err, ErrMutation) || !errors.Is(err, errBoom) {
		t.Fatalf("Create() error = %v, want ErrMutation wrapping boom", err)
	}

	after, _ := ex.Bucket(1, 2, 3)
	if !reflect.DeepEqual(before, after) {
		t.Error("cache changed after a failed create")
	}
	if _, ok := ex.Bucket(9, 9, 9); ok {
		t.Error("no bucket should appear")
	}
}

func TestExplorer_EditReplacesInPlace(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleCategory(ctx, 1, 2, 3)

	items, _ := ex.Bucket(1, 2, 3)
	original := items[1]
	if original.ID != 11 || original.Amount != 1000 {
		t.Fatalf("unexpected fixture %+v", original)
	}

	updated, err := ex.Edit(ctx, original, 1500, 5)
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if updated.Amount != 1500 {
		t.Errorf("updated amount = %d", updated.Amount)
	}

	got, _ := ex.Bucket(1, 2, 3)
	want := []core.LeadMetric{metric(10, 1, 2, 3, 500, 1), metric(11, 1, 2, 3, 1500, 5)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("bucket = %+v, want %+v", got, want)
	}
}

func TestExplorer_EditFailureLeavesCacheUntouched(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleCategory(ctx, 1, 2, 3)
	before, _ := ex.Bucket(1, 2, 3)

	src.updateErr = errBoom
	if _, err := ex.Edit(ctx, before[0], 9999, 1); !errors.Is(err, ErrMutation) {
		t.Fatalf("Edit() error = %v, want ErrMutation", err)
	}
	after, _ := ex.Bucket(1, 2, 3)
	if !reflect.DeepEqual(before, after) {
		t.Error("cache changed after a failed edit")
	}
}

func TestExplorer_EditReconcileInconsistencyIsNotAUserError(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)

	// the bucket was never loaded, so the edited record cannot be found
	original := metric(11, 1, 2, 3, 1000, 5)
	updated, err := ex.Edit(context.Background(), original, 1500, 5)
	if err != nil {
		t.Fatalf("Edit() error = %v, want nil", err)
	}
	if updated.Amount != 1500 {
		t.Errorf("updated = %+v", updated)
	}
	if _, ok := ex.Bucket(1, 2, 3); ok {
		t.Error("edit must not create a bucket")
	}
}

func TestExplorer_EditKeepsOriginalTriple(t *testing.T) {
	src := seededSource()
	other := LeafKey(3, 5, 4)
	src.updateTriple = &other
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleCategory(ctx, 1, 2, 3)
	ex.ToggleCategory(ctx, 3, 5, 4)

	items, _ := ex.Bucket(1, 2, 3)
	if _, err := ex.Edit(ctx, items[0], 42, 1); err != nil {
		t.Fatal(err)
	}

	got, _ := ex.Bucket(1, 2, 3)
	if len(got) != 2 || got[0].ID != 10 || got[0].Amount != 42 {
		t.Errorf("bucket 1-2-3 = %+v", got)
	}
	if moved, _ := ex.Bucket(3, 5, 4); len(moved) != 1 {
		t.Errorf("bucket 3-5-4 = %+v, want unchanged", moved)
	}
}

func TestExplorer_Invalidate(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleWeek(1)
	ex.ToggleSource(1, 2)
	ex.ToggleCategory(ctx, 1, 2, 3)
	ex.ToggleCategory(ctx, 3, 5, 4)

	if n := ex.InvalidateWeek(1); n != 1 {
		t.Errorf("InvalidateWeek() dropped %d buckets, want 1", n)
	}
	if _, ok := ex.Bucket(1, 2, 3); ok {
		t.Error("bucket under deleted week should be gone")
	}
	if ex.IsOpen(WeekKey(1)) || ex.IsOpen(SourceKey(1, 2)) || ex.IsOpen(LeafKey(1, 2, 3)) {
		t.Error("disclosure under deleted week should be forgotten")
	}
	if _, ok := ex.Week(1); ok {
		t.Error("deleted week should leave the list")
	}
	for _, m := range ex.Months() {
		for _, w := range m.Weeks {
			if w.ID == 1 {
				t.Error("deleted week still in month buckets")
			}
		}
	}
	if _, ok := ex.Bucket(3, 5, 4); !ok {
		t.Error("unrelated bucket should survive")
	}

	ex.InvalidateSource(5)
	if _, ok := ex.Source(5); ok {
		t.Error("deleted source should leave the list")
	}
	if _, ok := ex.Bucket(3, 5, 4); ok {
		t.Error("bucket under deleted source should be gone")
	}

	ex.InvalidateCategory(3)
	if _, ok := ex.Category(3); ok {
		t.Error("deleted category should leave the list")
	}
}

func TestExplorer_InvalidateDiscardsInFlightFetch(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	src.mu.Lock()
	src.gate = make(chan struct{})
	src.mu.Unlock()
	k := LeafKey(1, 2, 3)

	done := make(chan error, 1)
	go func() {
		_, err := ex.ToggleCategory(context.Background(), 1, 2, 3)
		done <- err
	}()
	waitFor(t, func() bool { return ex.Loading(k) })

	ex.InvalidateCategory(3)
	close(src.gate)

	if err := <-done; err != nil {
		t.Errorf("ToggleCategory() error = %v, want nil for a dropped leaf", err)
	}
	if _, ok := ex.Bucket(1, 2, 3); ok {
		t.Error("result for an invalidated leaf must be discarded")
	}
}

func TestExplorer_InvalidateDuringLoadDiscardsLoad(t *testing.T) {
	src := seededSource()
	src.weeksGate = make(chan struct{})
	ex := New(src, Options{FetchTimeout: 5 * time.Second})

	done := make(chan error, 1)
	go func() { done <- ex.Load(context.Background()) }()
	<-src.weeksStarted

	ex.InvalidateWeek(1)
	close(src.weeksGate)

	if err := <-done; !errors.Is(err, ErrStale) {
		t.Fatalf("Load() error = %v, want ErrStale", err)
	}
	if ex.Loaded() {
		t.Error("a load overtaken by an invalidation must not install its lists")
	}

	src.mu.Lock()
	src.weeks = src.weeks[1:]
	src.mu.Unlock()
	if err := ex.Load(context.Background()); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	for _, m := range ex.Months() {
		for _, w := range m.Weeks {
			if w.ID == 1 {
				t.Error("deleted week reinstalled")
			}
		}
	}
}

func TestExplorer_ResetTearsDown(t *testing.T) {
	src := seededSource()
	ex := loadedExplorer(t, src)
	ctx := context.Background()
	ex.ToggleWeek(1)
	ex.ToggleCategory(ctx, 1, 2, 3)

	ex.Reset()

	if ex.Loaded() || len(ex.Months()) != 0 {
		t.Error("Reset should clear loaded lists")
	}
	if ex.IsOpen(WeekKey(1)) {
		t.Error("Reset should collapse everything")
	}
	if _, ok := ex.Bucket(1, 2, 3); ok {
		t.Error("Reset should drop cached buckets")
	}

	if err := ex.Load(ctx); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if !ex.Loaded() {
		t.Error("explorer should be usable again after reload")
	}
}
