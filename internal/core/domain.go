package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar days.
const DateLayout = "2006-01-02"

// MaxNameLength mirrors the column width of source and category names.
const MaxNameLength = 50

type (
	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	Week struct {
		ID        int64 `json:"id"`
		StartDate Date  `json:"start_date"`
		EndDate   Date  `json:"end_date"`
	}

	Source struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Category struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	// LeadMetric is one spend/lead record for a (week, source, category) triple.
	// Several records may share a triple.
	LeadMetric struct {
		ID         int64 `json:"id"`
		WeekID     int64 `json:"week_id"`
		SourceID   int64 `json:"source_id"`
		CategoryID int64 `json:"category_id"`
		Amount     int64 `json:"amount"`
		LeadsCount int64 `json:"leads_count"`
	}

	// LeadMetricInput is the body of create and update requests.
	LeadMetricInput struct {
		WeekID     int64 `json:"week_id"`
		SourceID   int64 `json:"source_id"`
		CategoryID int64 `json:"category_id"`
		Amount     int64 `json:"amount"`
		LeadsCount int64 `json:"leads_count"`
	}

	// WeekInput is the body of week create and update requests.
	WeekInput struct {
		StartDate Date `json:"start_date"`
		EndDate   Date `json:"end_date"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidRange     = errors.New("end date must not be before start date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidLeads     = errors.New("invalid leads count")
	ErrInvalidReference = errors.New("week, source and category ids are required")
	ErrEmptyName        = errors.New("empty name")
	ErrNameTooLong      = fmt.Errorf("name too long (max %d characters)", MaxNameLength)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Display formats the date as DD.MM.YYYY for the explorer headings.
func (d Date) Display() string {
	return d.Format("02.01.2006")
}

// AddDays returns the date shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (w WeekInput) Validate() error {
	if err := w.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if err := w.EndDate.Validate(); err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if w.EndDate.Before(w.StartDate.Time) {
		return ErrInvalidRange
	}
	return nil
}

// ValidateName checks a source or category name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len([]rune(name)) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (in LeadMetricInput) Validate() error {
	if in.WeekID <= 0 || in.SourceID <= 0 || in.CategoryID <= 0 {
		return ErrInvalidReference
	}
	if in.Amount < 0 {
		return ErrInvalidAmount
	}
	if in.LeadsCount < 0 {
		return ErrInvalidLeads
	}
	return nil
}

// Input returns the create/update body carrying the metric's current values.
func (m LeadMetric) Input() LeadMetricInput {
	return LeadMetricInput{
		WeekID:     m.WeekID,
		SourceID:   m.SourceID,
		CategoryID: m.CategoryID,
		Amount:     m.Amount,
		LeadsCount: m.LeadsCount,
	}
}

// EntityKind names the parent entities a lead metric references.
type EntityKind string

const (
	EntityWeek     EntityKind = "week"
	EntitySource   EntityKind = "source"
	EntityCategory EntityKind = "category"
)
