package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"leadboard/internal/config"
	"leadboard/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	got, err := FromAppConfig(&config.Config{
		DataBackend:   "sqlite",
		SQLiteDBPath:  "x.db",
		AMQPURL:       "amqp://localhost",
		SyncBatchSize: 7,
		SyncInterval:  time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "x.db" || got.AMQPURL != "amqp://localhost" || got.SyncBatchSize != 7 || got.DataDirectory != "data" {
		t.Errorf("FromAppConfig() = %+v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sqlite with path", Config{Type: SQLiteBackend, SQLiteDBPath: "a.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
		{"unknown", Config{Type: "postgres"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetBackendTypeStrings(t *testing.T) {
	got := GetBackendTypeStrings()
	if len(got) != 2 || got[0] != "sqlite" || got[1] != "memory" {
		t.Errorf("GetBackendTypeStrings() = %v", got)
	}
}

func TestFactory_SQLite(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "sub", "leads.db"),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Cleanup()

	src, err := res.Service.CreateSource(ctx, "Google")
	if err != nil {
		t.Fatal(err)
	}
	got, err := res.Store.GetSource(ctx, src.ID)
	if err != nil || got.Name != "Google" {
		t.Errorf("GetSource() = %+v, %v", got, err)
	}
}

func TestFactory_MemorySweepsPending(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:          MemoryBackend,
		DataDirectory: t.TempDir(),
		SyncInterval:  10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	w, _ := res.Service.CreateWeek(ctx, core.WeekInput{StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 7)})
	s, _ := res.Service.CreateSource(ctx, "Google")
	c, _ := res.Service.CreateCategory(ctx, "Cars")
	m, err := res.Service.CreateLeadMetric(ctx, core.LeadMetricInput{WeekID: w.ID, SourceID: s.ID, CategoryID: c.ID, Amount: 100, LeadsCount: 1})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, _ := res.Store.GetSyncRecord(ctx, m.ID)
		if rec.Status == core.SyncSynced {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec, _ := res.Store.GetSyncRecord(ctx, m.ID); rec.Status != core.SyncSynced {
		t.Errorf("status = %q, want synced by the in-process sweep", rec.Status)
	}

	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}
}

func TestFactory_InvalidConfig(t *testing.T) {
	if _, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend}); err == nil {
		t.Error("expected validation error")
	}
}
