package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadboard/internal/amqp"
	"leadboard/internal/core"
	sheetsmem "leadboard/internal/sheets/memory"
	"leadboard/internal/storage/memory"
)

func setup(t *testing.T) (*memory.Store, *sheetsmem.Exporter, *SyncWorker, core.LeadMetric) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	w, _ := store.CreateWeek(ctx, core.WeekInput{StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 7)})
	s, _ := store.CreateSource(ctx, "Google")
	c, _ := store.CreateCategory(ctx, "Cars")
	m, err := store.CreateLeadMetric(ctx, core.LeadMetricInput{WeekID: w.ID, SourceID: s.ID, CategoryID: c.ID, Amount: 1000, LeadsCount: 4})
	if err != nil {
		t.Fatal(err)
	}
	exp := sheetsmem.New()
	return store, exp, NewSyncWorker(store, exp, 2, nil), m
}

func status(t *testing.T, store *memory.Store, id int64) core.SyncStatus {
	t.Helper()
	rec, err := store.GetSyncRecord(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return rec.Status
}

func TestHandleSyncMessage_Exports(t *testing.T) {
	store, exp, w, m := setup(t)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewLeadMetricSyncMessage(m.ID, 1)); err != nil {
		t.Fatal(err)
	}
	rows := exp.Rows()
	if len(rows) != 1 {
		t.Fatalf("exported %d rows, want 1", len(rows))
	}
	if rows[0][4] != "Google" || rows[0][5] != "Cars" {
		t.Errorf("row = %v", rows[0])
	}
	if got := status(t, store, m.ID); got != core.SyncSynced {
		t.Errorf("status = %q, want synced", got)
	}
}

func TestHandleSyncMessage_Skips(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*memory.Store, core.LeadMetric) *amqp.LeadMetricSyncMessage
	}{
		{"deleted metric", func(s *memory.Store, m core.LeadMetric) *amqp.LeadMetricSyncMessage {
			_ = s.DeleteLeadMetric(context.Background(), m.ID)
			return amqp.NewLeadMetricSyncMessage(m.ID, 1)
		}},
		{"stale version", func(s *memory.Store, m core.LeadMetric) *amqp.LeadMetricSyncMessage {
			in := core.LeadMetricInput{WeekID: m.WeekID, SourceID: m.SourceID, CategoryID: m.CategoryID, Amount: 2000, LeadsCount: 4}
			_, _ = s.UpdateLeadMetric(context.Background(), m.ID, in)
			return amqp.NewLeadMetricSyncMessage(m.ID, 1)
		}},
		{"already synced", func(s *memory.Store, m core.LeadMetric) *amqp.LeadMetricSyncMessage {
			_ = s.MarkSynced(context.Background(), m.ID, 1)
			return amqp.NewLeadMetricSyncMessage(m.ID, 1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, exp, w, m := setup(t)
			msg := tt.prepare(store, m)
			if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
				t.Fatalf("HandleSyncMessage() error = %v", err)
			}
			if n := len(exp.Rows()); n != 0 {
				t.Errorf("exported %d rows, want 0", n)
			}
		})
	}
}

func TestHandleSyncMessage_ExportFailure(t *testing.T) {
	store, exp, w, m := setup(t)
	exp.FailWith(errors.New("quota exceeded"))

	if err := w.HandleSyncMessage(context.Background(), amqp.NewLeadMetricSyncMessage(m.ID, 1)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	if got := status(t, store, m.ID); got != core.SyncError {
		t.Errorf("status = %q, want error", got)
	}

	// redelivery succeeds once the sheet is reachable again
	exp.FailWith(nil)
	if err := w.HandleSyncMessage(context.Background(), amqp.NewLeadMetricSyncMessage(m.ID, 1)); err != nil {
		t.Fatal(err)
	}
	if got := status(t, store, m.ID); got != core.SyncSynced {
		t.Errorf("status = %q, want synced", got)
	}
}

func TestProcessPending_Batches(t *testing.T) {
	store, exp, w, m := setup(t)
	ctx := context.Background()
	for i := int64(0); i < 2; i++ {
		in := core.LeadMetricInput{WeekID: m.WeekID, SourceID: m.SourceID, CategoryID: m.CategoryID, Amount: 10 * i}
		if _, err := store.CreateLeadMetric(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	synced, failed, err := w.ProcessPending(ctx)
	if err != nil || synced != 2 || failed != 0 {
		t.Fatalf("first batch = %d/%d/%v, want 2/0/nil", synced, failed, err)
	}
	synced, _, _ = w.ProcessPending(ctx)
	if synced != 1 {
		t.Errorf("second batch synced %d, want 1", synced)
	}
	if n := len(exp.Rows()); n != 3 {
		t.Errorf("exported %d rows, want 3", n)
	}
	pending, _ := store.GetPendingSync(ctx, 100)
	if len(pending) != 0 {
		t.Errorf("pending = %v, want none", pending)
	}
}

func TestStartupSyncCheck(t *testing.T) {
	store, exp, w, _ := setup(t)
	ctx := context.Background()

	exp.FailWith(errors.New("offline"))
	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("export failures must not fail the check: %v", err)
	}
	exp.FailWith(nil)

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatal(err)
	}
	pending, _ := store.GetPendingSync(ctx, 100)
	if len(pending) != 0 {
		t.Errorf("pending = %v", pending)
	}
}

func TestSweeper_Lifecycle(t *testing.T) {
	store, exp, w, _ := setup(t)
	s := NewSweeper(w, 10*time.Millisecond)
	ctx := context.Background()

	if s.IsRunning() {
		t.Error("sweeper should not be running initially")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(exp.Rows()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatal(err)
	}
	if s.IsRunning() {
		t.Error("sweeper still running after Stop")
	}
	if err := s.Stop(stopCtx); err != nil {
		t.Errorf("Stop on stopped sweeper = %v", err)
	}

	pending, _ := store.GetPendingSync(ctx, 10)
	if len(pending) != 0 || len(exp.Rows()) != 1 {
		t.Errorf("pending = %v rows = %d", pending, len(exp.Rows()))
	}
}
