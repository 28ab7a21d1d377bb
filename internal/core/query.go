package core

// LeadMetricFilter narrows a lead metric listing. Nil fields match everything.
type LeadMetricFilter struct {
	WeekID     *int64
	SourceID   *int64
	CategoryID *int64
}

// Triple builds a filter matching exactly one (week, source, category) bucket.
func Triple(weekID, sourceID, categoryID int64) LeadMetricFilter {
	return LeadMetricFilter{WeekID: &weekID, SourceID: &sourceID, CategoryID: &categoryID}
}

// Matches reports whether m passes the filter.
func (f LeadMetricFilter) Matches(m LeadMetric) bool {
	if f.WeekID != nil && *f.WeekID != m.WeekID {
		return false
	}
	if f.SourceID != nil && *f.SourceID != m.SourceID {
		return false
	}
	if f.CategoryID != nil && *f.CategoryID != m.CategoryID {
		return false
	}
	return true
}

// DateRange bounds stats queries: weeks starting on or after From and ending
// on or before To. Zero dates are open bounds.
type DateRange struct {
	From Date
	To   Date
}

// Contains reports whether the week lies inside the range.
func (r DateRange) Contains(w Week) bool {
	if !r.From.IsZero() && w.StartDate.Before(r.From.Time) {
		return false
	}
	if !r.To.IsZero() && w.EndDate.After(r.To.Time) {
		return false
	}
	return true
}

// SyncStatus is the export state of a stored lead metric.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// SyncRecord is a stored lead metric with what the sheet export needs.
type SyncRecord struct {
	Metric       LeadMetric
	Version      int64
	Status       SyncStatus
	WeekStart    Date
	WeekEnd      Date
	SourceName   string
	CategoryName string
}

// PendingSync identifies a metric version waiting for export.
type PendingSync struct {
	ID      int64
	Version int64
}
