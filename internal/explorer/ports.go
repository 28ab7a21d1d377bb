package explorer

import (
	"context"

	"leadboard/internal/core"
)

// DataSource is the remote collaborator the explorer reads from and writes to.
type DataSource interface {
	ListWeeks(ctx context.Context) ([]core.Week, error)
	ListSources(ctx context.Context) ([]core.Source, error)
	ListCategories(ctx context.Context) ([]core.Category, error)

	// ListLeadMetrics returns the records of exactly one triple.
	ListLeadMetrics(ctx context.Context, weekID, sourceID, categoryID int64) ([]core.LeadMetric, error)

	CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error)
	UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error)
}
