package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Week struct {
	ID        int64
	StartDate string
	EndDate   string
}

type NamedRow struct {
	ID   int64
	Name string
}

type LeadMetric struct {
	ID         int64
	WeekID     int64
	SourceID   int64
	CategoryID int64
	Amount     int64
	LeadsCount int64
	Version    int64
	SyncStatus string
}

const leadMetricColumns = `id, week_id, source_id, category_id, amount, leads_count, version, sync_status`

func scanLeadMetric(row interface{ Scan(...interface{}) error }) (LeadMetric, error) {
	var i LeadMetric
	err := row.Scan(
		&i.ID,
		&i.WeekID,
		&i.SourceID,
		&i.CategoryID,
		&i.Amount,
		&i.LeadsCount,
		&i.Version,
		&i.SyncStatus,
	)
	return i, err
}

// weeks

const createWeek = `-- name: CreateWeek :one
INSERT INTO weeks (start_date, end_date) VALUES (?, ?)
RETURNING id, start_date, end_date
`

type CreateWeekParams struct {
	StartDate string
	EndDate   string
}

func (q *Queries) CreateWeek(ctx context.Context, arg CreateWeekParams) (Week, error) {
	row := q.db.QueryRowContext(ctx, createWeek, arg.StartDate, arg.EndDate)
	var i Week
	err := row.Scan(&i.ID, &i.StartDate, &i.EndDate)
	return i, err
}

const getWeek = `-- name: GetWeek :one
SELECT id, start_date, end_date FROM weeks WHERE id = ?
`

func (q *Queries) GetWeek(ctx context.Context, id int64) (Week, error) {
	row := q.db.QueryRowContext(ctx, getWeek, id)
	var i Week
	err := row.Scan(&i.ID, &i.StartDate, &i.EndDate)
	return i, err
}

const listWeeks = `-- name: ListWeeks :many
SELECT id, start_date, end_date FROM weeks ORDER BY start_date, id
`

func (q *Queries) ListWeeks(ctx context.Context) ([]Week, error) {
	rows, err := q.db.QueryContext(ctx, listWeeks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Week
	for rows.Next() {
		var i Week
		if err := rows.Scan(&i.ID, &i.StartDate, &i.EndDate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateWeek = `-- name: UpdateWeek :one
UPDATE weeks SET start_date = ?, end_date = ? WHERE id = ?
RETURNING id, start_date, end_date
`

type UpdateWeekParams struct {
	StartDate string
	EndDate   string
	ID        int64
}

func (q *Queries) UpdateWeek(ctx context.Context, arg UpdateWeekParams) (Week, error) {
	row := q.db.QueryRowContext(ctx, updateWeek, arg.StartDate, arg.EndDate, arg.ID)
	var i Week
	err := row.Scan(&i.ID, &i.StartDate, &i.EndDate)
	return i, err
}

const deleteWeek = `-- name: DeleteWeek :execrows
DELETE FROM weeks WHERE id = ?
`

func (q *Queries) DeleteWeek(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteWeek, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// sources and categories share one shape; the table name is fixed per call site.

func (q *Queries) createNamed(ctx context.Context, table, name string) (NamedRow, error) {
	row := q.db.QueryRowContext(ctx, "INSERT INTO "+table+" (name) VALUES (?) RETURNING id, name", name)
	var i NamedRow
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

func (q *Queries) getNamed(ctx context.Context, table string, id int64) (NamedRow, error) {
	row := q.db.QueryRowContext(ctx, "SELECT id, name FROM "+table+" WHERE id = ?", id)
	var i NamedRow
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

func (q *Queries) listNamed(ctx context.Context, table string) ([]NamedRow, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name FROM "+table+" ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NamedRow
	for rows.Next() {
		var i NamedRow
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (q *Queries) updateNamed(ctx context.Context, table string, id int64, name string) (NamedRow, error) {
	row := q.db.QueryRowContext(ctx, "UPDATE "+table+" SET name = ? WHERE id = ? RETURNING id, name", name, id)
	var i NamedRow
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

func (q *Queries) deleteNamed(ctx context.Context, table string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) CreateSource(ctx context.Context, name string) (NamedRow, error) {
	return q.createNamed(ctx, "sources", name)
}

func (q *Queries) GetSource(ctx context.Context, id int64) (NamedRow, error) {
	return q.getNamed(ctx, "sources", id)
}

func (q *Queries) ListSources(ctx context.Context) ([]NamedRow, error) {
	return q.listNamed(ctx, "sources")
}

func (q *Queries) UpdateSource(ctx context.Context, id int64, name string) (NamedRow, error) {
	return q.updateNamed(ctx, "sources", id, name)
}

func (q *Queries) DeleteSource(ctx context.Context, id int64) (int64, error) {
	return q.deleteNamed(ctx, "sources", id)
}

func (q *Queries) CreateCategory(ctx context.Context, name string) (NamedRow, error) {
	return q.createNamed(ctx, "categories", name)
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (NamedRow, error) {
	return q.getNamed(ctx, "categories", id)
}

func (q *Queries) ListCategories(ctx context.Context) ([]NamedRow, error) {
	return q.listNamed(ctx, "categories")
}

func (q *Queries) UpdateCategory(ctx context.Context, id int64, name string) (NamedRow, error) {
	return q.updateNamed(ctx, "categories", id, name)
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	return q.deleteNamed(ctx, "categories", id)
}

// lead metrics

const createLeadMetric = `-- name: CreateLeadMetric :one
INSERT INTO lead_metrics (week_id, source_id, category_id, amount, leads_count)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + leadMetricColumns

type LeadMetricParams struct {
	WeekID     int64
	SourceID   int64
	CategoryID int64
	Amount     int64
	LeadsCount int64
}

func (q *Queries) CreateLeadMetric(ctx context.Context, arg LeadMetricParams) (LeadMetric, error) {
	row := q.db.QueryRowContext(ctx, createLeadMetric,
		arg.WeekID,
		arg.SourceID,
		arg.CategoryID,
		arg.Amount,
		arg.LeadsCount,
	)
	return scanLeadMetric(row)
}

const getLeadMetric = `-- name: GetLeadMetric :one
SELECT ` + leadMetricColumns + ` FROM lead_metrics WHERE id = ?
`

func (q *Queries) GetLeadMetric(ctx context.Context, id int64) (LeadMetric, error) {
	return scanLeadMetric(q.db.QueryRowContext(ctx, getLeadMetric, id))
}

const listLeadMetrics = `-- name: ListLeadMetrics :many
SELECT ` + leadMetricColumns + ` FROM lead_metrics
WHERE (? IS NULL OR week_id = ?)
  AND (? IS NULL OR source_id = ?)
  AND (? IS NULL OR category_id = ?)
ORDER BY id
`

type ListLeadMetricsParams struct {
	WeekID     sql.NullInt64
	SourceID   sql.NullInt64
	CategoryID sql.NullInt64
}

func (q *Queries) ListLeadMetrics(ctx context.Context, arg ListLeadMetricsParams) ([]LeadMetric, error) {
	rows, err := q.db.QueryContext(ctx, listLeadMetrics,
		arg.WeekID, arg.WeekID,
		arg.SourceID, arg.SourceID,
		arg.CategoryID, arg.CategoryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []LeadMetric
	for rows.Next() {
		i, err := scanLeadMetric(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateLeadMetric = `-- name: UpdateLeadMetric :one
UPDATE lead_metrics
SET week_id = ?, source_id = ?, category_id = ?, amount = ?, leads_count = ?,
    version = version + 1, sync_status = 'pending', updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + leadMetricColumns

func (q *Queries) UpdateLeadMetric(ctx context.Context, id int64, arg LeadMetricParams) (LeadMetric, error) {
	row := q.db.QueryRowContext(ctx, updateLeadMetric,
		arg.WeekID,
		arg.SourceID,
		arg.CategoryID,
		arg.Amount,
		arg.LeadsCount,
		id,
	)
	return scanLeadMetric(row)
}

const deleteLeadMetric = `-- name: DeleteLeadMetric :execrows
DELETE FROM lead_metrics WHERE id = ?
`

func (q *Queries) DeleteLeadMetric(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLeadMetric, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// dashboard

type TotalRow struct {
	ID          int64
	Name        string
	TotalLeads  int64
	TotalAmount int64
}

const categoryTotals = `-- name: CategoryTotals :many
SELECT c.id, c.name, COALESCE(SUM(m.leads_count), 0), COALESCE(SUM(m.amount), 0)
FROM lead_metrics m JOIN categories c ON c.id = m.category_id
GROUP BY c.id, c.name
ORDER BY c.name, c.id
`

const sourceTotals = `-- name: SourceTotals :many
SELECT s.id, s.name, COALESCE(SUM(m.leads_count), 0), COALESCE(SUM(m.amount), 0)
FROM lead_metrics m JOIN sources s ON s.id = m.source_id
GROUP BY s.id, s.name
ORDER BY s.name, s.id
`

func (q *Queries) CategoryTotals(ctx context.Context) ([]TotalRow, error) {
	return q.totals(ctx, categoryTotals)
}

func (q *Queries) SourceTotals(ctx context.Context) ([]TotalRow, error) {
	return q.totals(ctx, sourceTotals)
}

func (q *Queries) totals(ctx context.Context, query string) ([]TotalRow, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TotalRow
	for rows.Next() {
		var i TotalRow
		if err := rows.Scan(&i.ID, &i.Name, &i.TotalLeads, &i.TotalAmount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type WeeklyRow struct {
	WeekID     int64
	StartDate  string
	EndDate    string
	Amount     int64
	LeadsCount int64
}

// An empty From or To leaves that side of the range open.
type WeeklyParams struct {
	ID   int64
	From string
	To   string
}

const weeklyByCategory = `-- name: WeeklyByCategory :many
SELECT w.id, w.start_date, w.end_date, COALESCE(SUM(m.amount), 0), COALESCE(SUM(m.leads_count), 0)
FROM lead_metrics m JOIN weeks w ON w.id = m.week_id
WHERE m.category_id = ?
  AND (? = '' OR w.start_date >= ?)
  AND (? = '' OR w.end_date <= ?)
GROUP BY w.id, w.start_date, w.end_date
ORDER BY w.start_date, w.id
`

const weeklyBySource = `-- name: WeeklyBySource :many
SELECT w.id, w.start_date, w.end_date, COALESCE(SUM(m.amount), 0), COALESCE(SUM(m.leads_count), 0)
FROM lead_metrics m JOIN weeks w ON w.id = m.week_id
WHERE m.source_id = ?
  AND (? = '' OR w.start_date >= ?)
  AND (? = '' OR w.end_date <= ?)
GROUP BY w.id, w.start_date, w.end_date
ORDER BY w.start_date, w.id
`

func (q *Queries) WeeklyByCategory(ctx context.Context, arg WeeklyParams) ([]WeeklyRow, error) {
	return q.weekly(ctx, weeklyByCategory, arg)
}

func (q *Queries) WeeklyBySource(ctx context.Context, arg WeeklyParams) ([]WeeklyRow, error) {
	return q.weekly(ctx, weeklyBySource, arg)
}

func (q *Queries) weekly(ctx context.Context, query string, arg WeeklyParams) ([]WeeklyRow, error) {
	rows, err := q.db.QueryContext(ctx, query, arg.ID, arg.From, arg.From, arg.To, arg.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WeeklyRow
	for rows.Next() {
		var i WeeklyRow
		if err := rows.Scan(&i.WeekID, &i.StartDate, &i.EndDate, &i.Amount, &i.LeadsCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const leadMetricsByWeek = `-- name: LeadMetricsByWeek :many
SELECT m.id, m.amount, m.leads_count, c.id, c.name, s.id, s.name, w.id, w.start_date, w.end_date
FROM lead_metrics m
JOIN weeks w ON w.id = m.week_id
JOIN sources s ON s.id = m.source_id
JOIN categories c ON c.id = m.category_id
ORDER BY w.start_date, w.end_date, m.id
`

type WeekMetricRow struct {
	ID           int64
	Amount       int64
	LeadsCount   int64
	CategoryID   int64
	CategoryName string
	SourceID     int64
	SourceName   string
	WeekID       int64
	StartDate    string
	EndDate      string
}

func (q *Queries) LeadMetricsByWeek(ctx context.Context) ([]WeekMetricRow, error) {
	rows, err := q.db.QueryContext(ctx, leadMetricsByWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WeekMetricRow
	for rows.Next() {
		var i WeekMetricRow
		if err := rows.Scan(
			&i.ID, &i.Amount, &i.LeadsCount,
			&i.CategoryID, &i.CategoryName,
			&i.SourceID, &i.SourceName,
			&i.WeekID, &i.StartDate, &i.EndDate,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// sync

const getPendingSync = `-- name: GetPendingSync :many
SELECT id, version FROM lead_metrics
WHERE sync_status = 'pending'
ORDER BY created_at, id
LIMIT ?
`

type PendingRow struct {
	ID      int64
	Version int64
}

func (q *Queries) GetPendingSync(ctx context.Context, limit int64) ([]PendingRow, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSync, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PendingRow
	for rows.Next() {
		var i PendingRow
		if err := rows.Scan(&i.ID, &i.Version); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSyncRecord = `-- name: GetSyncRecord :one
SELECT m.id, m.week_id, m.source_id, m.category_id, m.amount, m.leads_count, m.version, m.sync_status,
       w.start_date, w.end_date, s.name, c.name
FROM lead_metrics m
JOIN weeks w ON w.id = m.week_id
JOIN sources s ON s.id = m.source_id
JOIN categories c ON c.id = m.category_id
WHERE m.id = ?
`

type SyncRow struct {
	LeadMetric
	StartDate    string
	EndDate      string
	SourceName   string
	CategoryName string
}

func (q *Queries) GetSyncRecord(ctx context.Context, id int64) (SyncRow, error) {
	row := q.db.QueryRowContext(ctx, getSyncRecord, id)
	var i SyncRow
	err := row.Scan(
		&i.ID,
		&i.WeekID,
		&i.SourceID,
		&i.CategoryID,
		&i.Amount,
		&i.LeadsCount,
		&i.Version,
		&i.SyncStatus,
		&i.StartDate,
		&i.EndDate,
		&i.SourceName,
		&i.CategoryName,
	)
	return i, err
}

const markSynced = `-- name: MarkSynced :execrows
UPDATE lead_metrics SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP
WHERE id = ? AND version = ?
`

func (q *Queries) MarkSynced(ctx context.Context, id, version int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSynced, id, version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markSyncError = `-- name: MarkSyncError :execrows
UPDATE lead_metrics SET sync_status = 'error'
WHERE id = ? AND version = ?
`

func (q *Queries) MarkSyncError(ctx context.Context, id, version int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markSyncError, id, version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
