package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"leadboard/internal/core"
	"leadboard/internal/log"
)

// Store is the persistence the service orchestrates. Both the SQLite
// repository and the memory store implement it.
type Store interface {
	ListWeeks(ctx context.Context) ([]core.Week, error)
	GetWeek(ctx context.Context, id int64) (core.Week, error)
	CreateWeek(ctx context.Context, in core.WeekInput) (core.Week, error)
	UpdateWeek(ctx context.Context, id int64, in core.WeekInput) (core.Week, error)
	DeleteWeek(ctx context.Context, id int64) error

	ListSources(ctx context.Context) ([]core.Source, error)
	GetSource(ctx context.Context, id int64) (core.Source, error)
	CreateSource(ctx context.Context, name string) (core.Source, error)
	UpdateSource(ctx context.Context, id int64, name string) (core.Source, error)
	DeleteSource(ctx context.Context, id int64) error

	ListCategories(ctx context.Context) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	CreateCategory(ctx context.Context, name string) (core.Category, error)
	UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListLeadMetrics(ctx context.Context, f core.LeadMetricFilter) ([]core.LeadMetric, error)
	GetLeadMetric(ctx context.Context, id int64) (core.LeadMetric, error)
	CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error)
	UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error)
	DeleteLeadMetric(ctx context.Context, id int64) error

	LeadOverview(ctx context.Context) (core.LeadOverview, error)
	CategoryStats(ctx context.Context, categoryID int64, rng core.DateRange) ([]core.WeeklyStats, error)
	SourceStats(ctx context.Context, sourceID int64, rng core.DateRange) ([]core.WeeklyStats, error)
	LeadMetricsByWeek(ctx context.Context) ([]core.WeekMetricGroup, error)

	GetSyncRecord(ctx context.Context, id int64) (core.SyncRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// SyncPublisher announces a stored metric version to the sheet exporter.
type SyncPublisher interface {
	PublishLeadMetricSync(ctx context.Context, id, version int64) error
}

// DeletionNotifier is told about deleted weeks, sources and categories.
type DeletionNotifier interface {
	InvalidateEntity(ctx context.Context, kind core.EntityKind, id int64)
}

// ValidationError reports one invalid input field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// LeadService orchestrates writes across the store, the sync queue and the
// live explorer sessions.
type LeadService struct {
	store     Store
	publisher SyncPublisher
	logger    *log.Logger

	mu        sync.RWMutex
	notifiers []DeletionNotifier
}

// NewLeadService builds the service. publisher may be nil when no sync
// queue is configured.
func NewLeadService(store Store, publisher SyncPublisher, logger *log.Logger) *LeadService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LeadService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentService),
	}
}

// OnDelete registers n for deletion notifications.
func (s *LeadService) OnDelete(n DeletionNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

func (s *LeadService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Weeks

func (s *LeadService) ListWeeks(ctx context.Context) ([]core.Week, error) {
	return s.store.ListWeeks(ctx)
}

func (s *LeadService) GetWeek(ctx context.Context, id int64) (core.Week, error) {
	return s.store.GetWeek(ctx, id)
}

func (s *LeadService) CreateWeek(ctx context.Context, in core.WeekInput) (core.Week, error) {
	if err := validateWeek(in); err != nil {
		return core.Week{}, err
	}
	return s.store.CreateWeek(ctx, in)
}

func (s *LeadService) UpdateWeek(ctx context.Context, id int64, in core.WeekInput) (core.Week, error) {
	if err := validateWeek(in); err != nil {
		return core.Week{}, err
	}
	return s.store.UpdateWeek(ctx, id, in)
}

func (s *LeadService) DeleteWeek(ctx context.Context, id int64) error {
	if err := s.store.DeleteWeek(ctx, id); err != nil {
		return err
	}
	s.notifyDeleted(ctx, core.EntityWeek, id)
	return nil
}

// Sources

func (s *LeadService) ListSources(ctx context.Context) ([]core.Source, error) {
	return s.store.ListSources(ctx)
}

func (s *LeadService) GetSource(ctx context.Context, id int64) (core.Source, error) {
	return s.store.GetSource(ctx, id)
}

func (s *LeadService) CreateSource(ctx context.Context, name string) (core.Source, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Source{}, &ValidationError{Field: "name", Err: err}
	}
	return s.store.CreateSource(ctx, name)
}

func (s *LeadService) UpdateSource(ctx context.Context, id int64, name string) (core.Source, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Source{}, &ValidationError{Field: "name", Err: err}
	}
	return s.store.UpdateSource(ctx, id, name)
}

func (s *LeadService) DeleteSource(ctx context.Context, id int64) error {
	if err := s.store.DeleteSource(ctx, id); err != nil {
		return err
	}
	s.notifyDeleted(ctx, core.EntitySource, id)
	return nil
}

// Categories

func (s *LeadService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *LeadService) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *LeadService) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Category{}, &ValidationError{Field: "name", Err: err}
	}
	return s.store.CreateCategory(ctx, name)
}

func (s *LeadService) UpdateCategory(ctx context.Context, id int64, name string) (core.Category, error) {
	if err := core.ValidateName(name); err != nil {
		return core.Category{}, &ValidationError{Field: "name", Err: err}
	}
	return s.store.UpdateCategory(ctx, id, name)
}

func (s *LeadService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.notifyDeleted(ctx, core.EntityCategory, id)
	return nil
}

// Lead metrics

func (s *LeadService) ListLeadMetrics(ctx context.Context, f core.LeadMetricFilter) ([]core.LeadMetric, error) {
	return s.store.ListLeadMetrics(ctx, f)
}

func (s *LeadService) GetLeadMetric(ctx context.Context, id int64) (core.LeadMetric, error) {
	return s.store.GetLeadMetric(ctx, id)
}

// CreateLeadMetric saves a metric locally and publishes a sync message.
func (s *LeadService) CreateLeadMetric(ctx context.Context, in core.LeadMetricInput) (core.LeadMetric, error) {
	if err := validateLeadMetric(in); err != nil {
		return core.LeadMetric{}, err
	}

	m, err := s.store.CreateLeadMetric(ctx, in)
	if err != nil {
		return core.LeadMetric{}, fmt.Errorf("save lead metric: %w", err)
	}

	// new rows start at version 1
	s.publishSync(ctx, m.ID, 1)
	return m, nil
}

func (s *LeadService) UpdateLeadMetric(ctx context.Context, id int64, in core.LeadMetricInput) (core.LeadMetric, error) {
	if err := validateLeadMetric(in); err != nil {
		return core.LeadMetric{}, err
	}

	m, err := s.store.UpdateLeadMetric(ctx, id, in)
	if err != nil {
		return core.LeadMetric{}, fmt.Errorf("update lead metric: %w", err)
	}

	if s.publisher != nil {
		rec, err := s.store.GetSyncRecord(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to read metric version, sweep will export it",
				log.FieldMetricID, id, log.FieldError, err)
			return m, nil
		}
		s.publishSync(ctx, id, rec.Version)
	}
	return m, nil
}

func (s *LeadService) DeleteLeadMetric(ctx context.Context, id int64) error {
	return s.store.DeleteLeadMetric(ctx, id)
}

// Dashboard

func (s *LeadService) LeadOverview(ctx context.Context) (core.LeadOverview, error) {
	return s.store.LeadOverview(ctx)
}

// LeadMetricsByWeek lists every metric grouped by week dates.
func (s *LeadService) LeadMetricsByWeek(ctx context.Context) ([]core.WeekMetricGroup, error) {
	return s.store.LeadMetricsByWeek(ctx)
}

// CategoryStats summarizes one category per week. Unknown ids are ErrNotFound
// from the store.
func (s *LeadService) CategoryStats(ctx context.Context, id int64, rng core.DateRange) (core.StatsSummary, error) {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return core.StatsSummary{}, err
	}
	if err := validateRange(rng); err != nil {
		return core.StatsSummary{}, err
	}
	weeks, err := s.store.CategoryStats(ctx, id, rng)
	if err != nil {
		return core.StatsSummary{}, err
	}
	return core.Summarize(weeks), nil
}

func (s *LeadService) SourceStats(ctx context.Context, id int64, rng core.DateRange) (core.StatsSummary, error) {
	if _, err := s.store.GetSource(ctx, id); err != nil {
		return core.StatsSummary{}, err
	}
	if err := validateRange(rng); err != nil {
		return core.StatsSummary{}, err
	}
	weeks, err := s.store.SourceStats(ctx, id, rng)
	if err != nil {
		return core.StatsSummary{}, err
	}
	return core.Summarize(weeks), nil
}

func (s *LeadService) publishSync(ctx context.Context, id, version int64) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP client not available, skipping sync message", log.FieldMetricID, id)
		return
	}
	// the row is saved; a failed publish is picked up by the pending sweep
	if err := s.publisher.PublishLeadMetricSync(ctx, id, version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldMetricID, id,
			"version", version,
			log.FieldError, err)
	}
}

func (s *LeadService) notifyDeleted(ctx context.Context, kind core.EntityKind, id int64) {
	s.mu.RLock()
	notifiers := append([]DeletionNotifier(nil), s.notifiers...)
	s.mu.RUnlock()

	for _, n := range notifiers {
		n.InvalidateEntity(ctx, kind, id)
	}
	s.logger.InfoContext(ctx, "Entity deleted",
		"kind", string(kind),
		"id", id,
		"notified", len(notifiers))
}

// Close closes the store and, when it can be closed, the publisher.
func (s *LeadService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close lead service: %w", err)
	}
	return nil
}

func validateWeek(in core.WeekInput) error {
	if err := in.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "start_date", Err: err}
	}
	if err := in.EndDate.Validate(); err != nil {
		return &ValidationError{Field: "end_date", Err: err}
	}
	if err := in.Validate(); err != nil {
		return &ValidationError{Field: "end_date", Err: err}
	}
	return nil
}

func validateLeadMetric(in core.LeadMetricInput) error {
	err := in.Validate()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrInvalidAmount):
		return &ValidationError{Field: "amount", Err: err}
	case errors.Is(err, core.ErrInvalidLeads):
		return &ValidationError{Field: "leads_count", Err: err}
	case in.WeekID <= 0:
		return &ValidationError{Field: "week_id", Err: err}
	case in.SourceID <= 0:
		return &ValidationError{Field: "source_id", Err: err}
	default:
		return &ValidationError{Field: "category_id", Err: err}
	}
}

func validateRange(rng core.DateRange) error {
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From.Time) {
		return &ValidationError{Field: "to_date", Err: core.ErrInvalidRange}
	}
	return nil
}
