package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"leadboard/internal/core"
	"leadboard/internal/log"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Weeks

func (r *SQLiteRepository) ListWeeks(ctx context.Context) ([]core.Week, error) {
	rows, err := r.queries.ListWeeks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	weeks := make([]core.Week, 0, len(rows))
	for _, row := range rows {
		w, err := toWeek(row)
		if err != nil {
			return nil, err
		}
		weeks = append(weeks, w)
	}
	return weeks, nil
}

func (r *SQLiteRepository) GetWeek(ctx context.Context, id int64) (core.Week, error) {
	row, err := r.queries.GetWeek(ctx, id)
	if err != nil {
		return core.Week{}, fmt.Errorf("get week %d: %w", id, translate(err))
	}
	return toWeek(row)
}

func (r *SQLiteRepository) CreateWeek(ctx context.Context, in core.WeekInput) (core.Week, error) {
	row, err := r.queries.CreateWeek(ctx, CreateWeekParams{
		StartDate: in.StartDate.String(),
		EndDate:   in.EndDate.String(),
	})
	if err != nil {
		return core.Week{}, fmt.Errorf("create week: %w", translate(err))
	}

	r.logger.InfoContext(ctx, "Week saved",
		"id", row.ID,
		"start_date", row.StartDate,
		"end_date", row.EndDate)

	return toWeek(row)
}

func (r *SQLiteRepository) UpdateWeek(ctx context.Context, id int64, in core.WeekInput) (core.Week, error) {
	row, err := r.queries.UpdateWeek(ctx, UpdateWeekParams{
		StartDate: in.StartDate.String(),
		EndDate:   in.EndDate.String(),
		ID:        id,
	})
	if err != nil {
		return core.Week{}, fmt.Errorf("update week %d: %w", id, translate(err))
	}
	return toWeek(row)
}

func (r *SQLiteRepository) DeleteWeek(ctx context.Context, id int64) error {
	return r.deleted(ctx, "week", id)(r.queries.DeleteWeek(ctx, id))
}

// Sources

func (r *SQLiteRepository) ListSources(ctx context.Context) ([]core.Source, error) {
	rows, err := r.queries.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]core.Source, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.Source{ID: row.ID, Name: row.Name})
	}
	return out, nil
}

func (r *SQLiteRepository) GetSource(ctx context.Context, id int64) (core.Source, error) {
	row, err := r.queries.GetSource(ctx, id)
	if err != nil {
		return core.Source{}, fmt.Errorf("get source %d: %w", id, translate(err))
	}
	return core.Source{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) CreateSource(ctx context.Context, name string) (core.Source, error) {
	row, err := r.queries.CreateSource(ctx, strings.TrimSpace(name))
	if err != nil {
		return core.Source{}, fmt.Errorf("create source %q: %w", name, translate(err))
	}
	r.logger.InfoContext(ctx, "Source saved", "id", row.ID, "name", row.Name)
	return core.Source{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) UpdateSource(ctx context.Context, id int64, name string) (core.Source, error) {
	row, err := r.queries.UpdateSource(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return core.Source{}, fmt.Errorf("update source %d: %w", id, translate(err))
	}
	return core.Source{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) DeleteSource(ctx context.Context, id int64) error {
	return r.deleted(ctx, "source", id)(r.queries.DeleteSource(ctx, id))
}

// Categories

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		out = append(out, core.Category{ID: row.ID, Name: row.Name})
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, translate(err))
	}
	return core.Category{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	row, err := r.queries.CreateCategory(ctx, strings.TrimSpace(name))
	if err != nil {
		return core.Category{}, fmt.Errorf("create category %q: %w", name, translate(err))
	}
	r.logger.InfoContext(ctx, "Category saved", "id", row.ID, "name", row.Name)
	return core.Category{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error) {
	row, err := r.queries.UpdateCategory(ctx, id, strings.TrimSpace(name))
	if err != nil {
		return core.Category{}, fmt.Errorf("update category %d: %w", id, translate(err))
	}
	return core.Category{ID: row.ID, Name: row.Name}, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id int64) error {
	return r.deleted(ctx, "category", id)(r.queries.DeleteCategory(ctx, id))
}

// Lead metrics

func (r *SQLiteRepository) ListLeadMetrics(ctx context.Context, f core.LeadMetricFilter) ([]core.LeadMetric, error) {
	rows, err := r.queries.ListLeadMetrics(ctx, ListLeadMetricsParams{
		WeekID:     nullInt(f.WeekID),
		SourceID:   nullInt(f.SourceID),
		CategoryID: nullInt(f.CategoryID),
	})
	if err != nil {
		return nil, fmt.Errorf("list lead metrics: %w", err)
	}
	out := make([]core.LeadMetric, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCore())
	}
	return out, nil
}

func (r *SQLiteRepository) GetLeadMetric(ctx context.Context, id int64) (core.LeadMetric, error) {
	row, err := r.queries.GetLeadMetric(ctx, id)
	if err != nil {
		return core.LeadMetric{}, fmt.Errorf("get lead metric %d: %w", id, translate(err))
	}
	return row.toCore(), nil
}

func (r *SQLiteRepository) CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	row, err := r.queries.CreateLeadMetric(ctx, params(in))
	if err != nil {
		return core.LeadMetric{}, fmt.Errorf("create lead metric: %w", translate(err))
	}

	r.logger.InfoContext(ctx, "Lead metric saved",
		log.NewFields().
			WithMetric(row.ID, row.Amount, row.LeadsCount).
			WithTriple(row.WeekID, row.SourceID, row.CategoryID).
			ToSlice()...)

	return row.toCore(), nil
}

func (r *SQLiteRepository) UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error) {
	row, err := r.queries.UpdateLeadMetric(ctx, id, params(in))
	if err != nil {
		return core.LeadMetric{}, fmt.Errorf("update lead metric %d: %w", id, translate(err))
	}

	r.logger.InfoContext(ctx, "Lead metric updated",
		log.FieldMetricID, row.ID,
		"version", row.Version)

	return row.toCore(), nil
}

func (r *SQLiteRepository) DeleteLeadMetric(ctx context.Context, id int64) error {
	return r.deleted(ctx, "lead metric", id)(r.queries.DeleteLeadMetric(ctx, id))
}

// Dashboard

// LeadOverview reads both totals in one transaction so they agree.
func (r *SQLiteRepository) LeadOverview(ctx context.Context) (core.LeadOverview, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.LeadOverview{}, fmt.Errorf("begin overview: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	cats, err := q.CategoryTotals(ctx)
	if err != nil {
		return core.LeadOverview{}, fmt.Errorf("category totals: %w", err)
	}
	srcs, err := q.SourceTotals(ctx)
	if err != nil {
		return core.LeadOverview{}, fmt.Errorf("source totals: %w", err)
	}

	overview := core.LeadOverview{
		ByCategory: make([]core.CategoryTotal, 0, len(cats)),
		BySource:   make([]core.SourceTotal, 0, len(srcs)),
	}
	for _, c := range cats {
		overview.ByCategory = append(overview.ByCategory, core.CategoryTotal{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			TotalLeads:   c.TotalLeads,
			TotalAmount:  c.TotalAmount,
		})
	}
	for _, s := range srcs {
		overview.BySource = append(overview.BySource, core.SourceTotal{
			SourceID:    s.ID,
			SourceName:  s.Name,
			TotalLeads:  s.TotalLeads,
			TotalAmount: s.TotalAmount,
		})
	}
	return overview, nil
}

// CategoryStats returns per-week totals of one category inside the range.
func (r *SQLiteRepository) CategoryStats(ctx context.Context, categoryID int64, rng core.DateRange) ([]core.WeeklyStats, error) {
	rows, err := r.queries.WeeklyByCategory(ctx, weeklyParams(categoryID, rng))
	if err != nil {
		return nil, fmt.Errorf("category %d stats: %w", categoryID, err)
	}
	return toWeeklyStats(rows, nil, &categoryID)
}

// SourceStats returns per-week totals of one source inside the range.
func (r *SQLiteRepository) SourceStats(ctx context.Context, sourceID int64, rng core.DateRange) ([]core.WeeklyStats, error) {
	rows, err := r.queries.WeeklyBySource(ctx, weeklyParams(sourceID, rng))
	if err != nil {
		return nil, fmt.Errorf("source %d stats: %w", sourceID, err)
	}
	return toWeeklyStats(rows, &sourceID, nil)
}

// LeadMetricsByWeek returns every metric grouped by the dates of its week,
// oldest first.
func (r *SQLiteRepository) LeadMetricsByWeek(ctx context.Context) ([]core.WeekMetricGroup, error) {
	rows, err := r.queries.LeadMetricsByWeek(ctx)
	if err != nil {
		return nil, fmt.Errorf("lead metrics by week: %w", err)
	}
	metrics := make([]core.WeekMetric, 0, len(rows))
	for _, row := range rows {
		start, err := core.ParseDate(row.StartDate)
		if err != nil {
			return nil, fmt.Errorf("week %d: %w", row.WeekID, err)
		}
		end, err := core.ParseDate(row.EndDate)
		if err != nil {
			return nil, fmt.Errorf("week %d: %w", row.WeekID, err)
		}
		metrics = append(metrics, core.WeekMetric{
			LeadMetricID: row.ID,
			Amount:       row.Amount,
			LeadsCount:   row.LeadsCount,
			Category:     core.Ref{ID: row.CategoryID, Name: row.CategoryName},
			Source:       core.Ref{ID: row.SourceID, Name: row.SourceName},
			Week:         core.WeekRef{ID: row.WeekID, StartDate: start, EndDate: end},
		})
	}
	return core.GroupByWeekDates(metrics), nil
}

// Sync

// GetPendingSync returns metric versions waiting for export, oldest first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]core.PendingSync, error) {
	rows, err := r.queries.GetPendingSync(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync: %w", err)
	}
	out := make([]core.PendingSync, len(rows))
	for i, row := range rows {
		out[i] = core.PendingSync{ID: row.ID, Version: row.Version}
	}
	return out, nil
}

func (r *SQLiteRepository) GetSyncRecord(ctx context.Context, id int64) (core.SyncRecord, error) {
	row, err := r.queries.GetSyncRecord(ctx, id)
	if err != nil {
		return core.SyncRecord{}, fmt.Errorf("get sync record %d: %w", id, translate(err))
	}
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.SyncRecord{}, fmt.Errorf("sync record %d: %w", id, err)
	}
	end, err := core.ParseDate(row.EndDate)
	if err != nil {
		return core.SyncRecord{}, fmt.Errorf("sync record %d: %w", id, err)
	}
	return core.SyncRecord{
		Metric:       row.toCore(),
		Version:      row.Version,
		Status:       core.SyncStatus(row.SyncStatus),
		WeekStart:    start,
		WeekEnd:      end,
		SourceName:   row.SourceName,
		CategoryName: row.CategoryName,
	}, nil
}

// MarkSynced marks a metric version as exported. A newer version stays pending.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, version int64) error {
	n, err := r.queries.MarkSynced(ctx, id, version)
	if err != nil {
		return fmt.Errorf("mark lead metric synced: %w", err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "Lead metric changed since export, left pending",
			log.FieldMetricID, id, "version", version)
		return nil
	}

	r.logger.InfoContext(ctx, "Lead metric marked as synced", log.FieldMetricID, id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id, version int64) error {
	if _, err := r.queries.MarkSyncError(ctx, id, version); err != nil {
		return fmt.Errorf("mark lead metric sync error: %w", err)
	}

	r.logger.WarnContext(ctx, "Lead metric marked with sync error", log.FieldMetricID, id, "version", version)
	return nil
}

// deleted turns an :execrows result into ErrNotFound when nothing matched.
func (r *SQLiteRepository) deleted(ctx context.Context, what string, id int64) func(int64, error) error {
	return func(n int64, err error) error {
		if err != nil {
			return fmt.Errorf("delete %s %d: %w", what, id, translate(err))
		}
		if n == 0 {
			return fmt.Errorf("delete %s %d: %w", what, id, ErrNotFound)
		}
		r.logger.InfoContext(ctx, "Deleted "+what, "id", id)
		return nil
	}
}

func toWeek(row Week) (core.Week, error) {
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.Week{}, fmt.Errorf("week %d start: %w", row.ID, err)
	}
	end, err := core.ParseDate(row.EndDate)
	if err != nil {
		return core.Week{}, fmt.Errorf("week %d end: %w", row.ID, err)
	}
	return core.Week{ID: row.ID, StartDate: start, EndDate: end}, nil
}

func (m LeadMetric) toCore() core.LeadMetric {
	return core.LeadMetric{
		ID:         m.ID,
		WeekID:     m.WeekID,
		SourceID:   m.SourceID,
		CategoryID: m.CategoryID,
		Amount:     m.Amount,
		LeadsCount: m.LeadsCount,
	}
}

func params(in core.LeadMetricInput) LeadMetricParams {
	return LeadMetricParams{
		WeekID:     in.WeekID,
		SourceID:   in.SourceID,
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		LeadsCount: in.LeadsCount,
	}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func weeklyParams(id int64, rng core.DateRange) WeeklyParams {
	return WeeklyParams{ID: id, From: rng.From.String(), To: rng.To.String()}
}

func toWeeklyStats(rows []WeeklyRow, sourceID, categoryID *int64) ([]core.WeeklyStats, error) {
	out := make([]core.WeeklyStats, 0, len(rows))
	for _, row := range rows {
		w, err := toWeek(Week{ID: row.WeekID, StartDate: row.StartDate, EndDate: row.EndDate})
		if err != nil {
			return nil, err
		}
		out = append(out, core.WeeklyStats{
			WeekID:     row.WeekID,
			SourceID:   sourceID,
			CategoryID: categoryID,
			StartDate:  w.StartDate,
			EndDate:    w.EndDate,
			Amount:     row.Amount,
			LeadsCount: row.LeadsCount,
		})
	}
	return out, nil
}
