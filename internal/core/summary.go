package core

import "math"

// CategoryTotal aggregates all metrics of one category.
type CategoryTotal struct {
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	TotalLeads   int64  `json:"total_leads"`
	TotalAmount  int64  `json:"total_amount"`
}

// SourceTotal aggregates all metrics of one source.
type SourceTotal struct {
	SourceID    int64  `json:"source_id"`
	SourceName  string `json:"source_name"`
	TotalLeads  int64  `json:"total_leads"`
	TotalAmount int64  `json:"total_amount"`
}

// LeadOverview is the dashboard summary by category and by source.
type LeadOverview struct {
	ByCategory []CategoryTotal `json:"by_category"`
	BySource   []SourceTotal   `json:"by_source"`
}

// WeeklyStats is one week's totals for a category or source.
type WeeklyStats struct {
	WeekID     int64    `json:"id"`
	SourceID   *int64   `json:"source_id"`
	CategoryID *int64   `json:"category_id"`
	StartDate  Date     `json:"start_date"`
	EndDate    Date     `json:"end_date"`
	Amount     int64    `json:"amount"`
	LeadsCount int64    `json:"leads_count"`
	LeadCost   *float64 `json:"lead_cost"`
}

// StatsSummary totals a series of weekly stats.
type StatsSummary struct {
	TotalLeads  int64         `json:"total_leads"`
	TotalAmount int64         `json:"total_amount"`
	LeadCost    *float64      `json:"lead_cost"`
	WeeklyStats []WeeklyStats `json:"weekly_stats"`
}

// LeadCost returns amount/leads rounded to two decimals, or nil without leads.
func LeadCost(amount, leads int64) *float64 {
	if leads <= 0 {
		return nil
	}
	v := math.Round(float64(amount)/float64(leads)*100) / 100
	return &v
}

// Summarize fills the weekly lead costs and the totals.
func Summarize(weeks []WeeklyStats) StatsSummary {
	s := StatsSummary{WeeklyStats: make([]WeeklyStats, 0, len(weeks))}
	for _, w := range weeks {
		w.LeadCost = LeadCost(w.Amount, w.LeadsCount)
		s.TotalAmount += w.Amount
		s.TotalLeads += w.LeadsCount
		s.WeeklyStats = append(s.WeeklyStats, w)
	}
	s.LeadCost = LeadCost(s.TotalAmount, s.TotalLeads)
	return s
}

// Ref names a source or category inside a WeekMetric.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// WeekRef is the week a WeekMetric belongs to.
type WeekRef struct {
	ID        int64 `json:"id"`
	StartDate Date  `json:"start_date"`
	EndDate   Date  `json:"end_date"`
}

// WeekMetric is one lead metric with its week, source and category resolved.
type WeekMetric struct {
	LeadMetricID int64   `json:"lead_metric_id"`
	Amount       int64   `json:"amount"`
	LeadsCount   int64   `json:"leads_count"`
	Category     Ref     `json:"category"`
	Source       Ref     `json:"source"`
	Week         WeekRef `json:"week"`
}

// WeekMetricGroup holds the metrics of every week spanning the same dates.
type WeekMetricGroup struct {
	StartDate Date         `json:"start_date"`
	EndDate   Date         `json:"end_date"`
	Metrics   []WeekMetric `json:"metrics"`
}

// GroupByWeekDates groups metrics by (start, end) of their week. The input
// must be sorted by start date, end date, then metric id; groups keep that
// order.
func GroupByWeekDates(metrics []WeekMetric) []WeekMetricGroup {
	groups := make([]WeekMetricGroup, 0)
	for _, m := range metrics {
		n := len(groups)
		if n > 0 && groups[n-1].StartDate.Equal(m.Week.StartDate.Time) && groups[n-1].EndDate.Equal(m.Week.EndDate.Time) {
			groups[n-1].Metrics = append(groups[n-1].Metrics, m)
			continue
		}
		groups = append(groups, WeekMetricGroup{
			StartDate: m.Week.StartDate,
			EndDate:   m.Week.EndDate,
			Metrics:   []WeekMetric{m},
		})
	}
	return groups
}
