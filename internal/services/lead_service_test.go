package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"leadboard/internal/core"
	"leadboard/internal/storage"
	"leadboard/internal/storage/memory"
)

type published struct{ id, version int64 }

type fakePublisher struct {
	mu     sync.Mutex
	calls  []published
	err    error
	closed bool
}

func (p *fakePublisher) PublishLeadMetricSync(_ context.Context, id, version int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{id, version})
	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type deletion struct {
	kind core.EntityKind
	id   int64
}

type fakeNotifier struct{ got []deletion }

func (n *fakeNotifier) InvalidateEntity(_ context.Context, kind core.EntityKind, id int64) {
	n.got = append(n.got, deletion{kind, id})
}

func newService(t *testing.T, pub SyncPublisher) (*LeadService, core.LeadMetricInput) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	w, _ := store.CreateWeek(ctx, core.WeekInput{StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 7)})
	s, _ := store.CreateSource(ctx, "Google")
	c, _ := store.CreateCategory(ctx, "Cars")
	return NewLeadService(store, pub, nil), core.LeadMetricInput{WeekID: w.ID, SourceID: s.ID, CategoryID: c.ID, Amount: 1000, LeadsCount: 5}
}

func TestLeadService_CreatePublishesVersionOne(t *testing.T) {
	pub := &fakePublisher{}
	svc, in := newService(t, pub)

	m, err := svc.CreateLeadMetric(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(pub.calls) != 1 || pub.calls[0] != (published{m.ID, 1}) {
		t.Errorf("published %+v, want one {%d 1}", pub.calls, m.ID)
	}
}

func TestLeadService_UpdatePublishesNewVersion(t *testing.T) {
	pub := &fakePublisher{}
	svc, in := newService(t, pub)
	ctx := context.Background()

	m, _ := svc.CreateLeadMetric(ctx, in)
	in.Amount = 1500
	updated, err := svc.UpdateLeadMetric(ctx, m.ID, in)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Amount != 1500 {
		t.Errorf("Amount = %d", updated.Amount)
	}
	if len(pub.calls) != 2 || pub.calls[1] != (published{m.ID, 2}) {
		t.Errorf("published %+v, want second call {%d 2}", pub.calls, m.ID)
	}
}

func TestLeadService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, in := newService(t, pub)

	m, err := svc.CreateLeadMetric(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateLeadMetric() error = %v, publish failures must not fail the write", err)
	}
	if m.ID == 0 {
		t.Error("metric was not stored")
	}
}

func TestLeadService_WithoutPublisher(t *testing.T) {
	svc, in := newService(t, nil)
	if _, err := svc.CreateLeadMetric(context.Background(), in); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestLeadService_Validation(t *testing.T) {
	svc, in := newService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() error
		field  string
		target error
	}{
		{"negative amount", func() error {
			bad := in
			bad.Amount = -1
			_, err := svc.CreateLeadMetric(ctx, bad)
			return err
		}, "amount", core.ErrInvalidAmount},
		{"negative leads", func() error {
			bad := in
			bad.LeadsCount = -1
			_, err := svc.UpdateLeadMetric(ctx, 1, bad)
			return err
		}, "leads_count", core.ErrInvalidLeads},
		{"missing source", func() error {
			bad := in
			bad.SourceID = 0
			_, err := svc.CreateLeadMetric(ctx, bad)
			return err
		}, "source_id", core.ErrInvalidReference},
		{"empty name", func() error {
			_, err := svc.CreateSource(ctx, "  ")
			return err
		}, "name", core.ErrEmptyName},
		{"inverted week", func() error {
			_, err := svc.CreateWeek(ctx, core.WeekInput{StartDate: core.NewDate(2024, 1, 7), EndDate: core.NewDate(2024, 1, 1)})
			return err
		}, "end_date", core.ErrInvalidRange},
		{"missing start date", func() error {
			_, err := svc.CreateWeek(ctx, core.WeekInput{EndDate: core.NewDate(2024, 1, 1)})
			return err
		}, "start_date", core.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field || !errors.Is(err, tt.target) {
				t.Errorf("got field %q err %v, want %q %v", ve.Field, err, tt.field, tt.target)
			}
		})
	}
}

func TestLeadService_DeleteNotifies(t *testing.T) {
	svc, in := newService(t, nil)
	ctx := context.Background()
	n := &fakeNotifier{}
	svc.OnDelete(n)

	if err := svc.DeleteCategory(ctx, in.CategoryID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteWeek(ctx, in.WeekID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSource(ctx, 999); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteSource(999) error = %v, want ErrNotFound", err)
	}

	want := []deletion{{core.EntityCategory, in.CategoryID}, {core.EntityWeek, in.WeekID}}
	if len(n.got) != len(want) {
		t.Fatalf("notifications = %+v, want %+v", n.got, want)
	}
	for i := range want {
		if n.got[i] != want[i] {
			t.Errorf("notification %d = %+v, want %+v", i, n.got[i], want[i])
		}
	}
}

func TestLeadService_Stats(t *testing.T) {
	svc, in := newService(t, nil)
	ctx := context.Background()

	if _, err := svc.CreateLeadMetric(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.Amount, in.LeadsCount = 500, 0
	if _, err := svc.CreateLeadMetric(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := svc.CategoryStats(ctx, in.CategoryID, core.DateRange{})
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalAmount != 1500 || got.TotalLeads != 5 || got.LeadCost == nil || *got.LeadCost != 300 {
		t.Errorf("CategoryStats() = %+v", got)
	}

	if _, err := svc.SourceStats(ctx, 999, core.DateRange{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SourceStats(999) error = %v, want ErrNotFound", err)
	}

	bad := core.DateRange{From: core.NewDate(2024, 2, 1), To: core.NewDate(2024, 1, 1)}
	var ve *ValidationError
	if _, err := svc.SourceStats(ctx, in.SourceID, bad); !errors.As(err, &ve) {
		t.Errorf("inverted range error = %v, want *ValidationError", err)
	}
}

func TestLeadService_CloseClosesPublisher(t *testing.T) {
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if !pub.closed {
		t.Error("publisher was not closed")
	}
}
