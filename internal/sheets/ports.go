package sheets

import (
	"context"

	"leadboard/internal/core"
)

// Ports for outbound adapters.
type (
	// LeadMetricExporter writes one stored metric version as a sheet row.
	LeadMetricExporter interface {
		ExportLeadMetric(ctx context.Context, rec core.SyncRecord) (rowRef string, err error)
	}
)

// Header is the column layout of exported rows.
var Header = []string{
	"Metric ID",
	"Version",
	"Week start",
	"Week end",
	"Source",
	"Category",
	"Amount",
	"Leads",
	"Lead cost",
	"Exported at",
}

// Row renders rec in Header order. Lead cost is empty without leads.
func Row(rec core.SyncRecord, exportedAt string) []any {
	m := rec.Metric
	cost := any("")
	if c := core.LeadCost(m.Amount, m.LeadsCount); c != nil {
		cost = *c
	}
	return []any{
		m.ID,
		rec.Version,
		rec.WeekStart.String(),
		rec.WeekEnd.String(),
		rec.SourceName,
		rec.CategoryName,
		m.Amount,
		m.LeadsCount,
		cost,
		exportedAt,
	}
}
