package worker

import (
	"context"
	"errors"
	"fmt"

	"leadboard/internal/amqp"
	"leadboard/internal/core"
	"leadboard/internal/log"
	"leadboard/internal/sheets"
	"leadboard/internal/storage"
)

// SyncStore is the part of the store the worker reads and marks.
type SyncStore interface {
	GetPendingSync(ctx context.Context, limit int) ([]core.PendingSync, error)
	GetSyncRecord(ctx context.Context, id int64) (core.SyncRecord, error)
	MarkSynced(ctx context.Context, id, version int64) error
	MarkSyncError(ctx context.Context, id, version int64) error
}

// SyncWorker mirrors stored lead metrics to the sheet exporter.
type SyncWorker struct {
	store     SyncStore
	exporter  sheets.LeadMetricExporter
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(store SyncStore, exporter sheets.LeadMetricExporter, batchSize int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage exports the metric named by msg. It has the signature of
// amqp.Handler; a returned error requeues the message.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LeadMetricSyncMessage) error {
	w.logger.DebugContext(ctx, "Processing sync message",
		log.FieldMetricID, msg.ID,
		"version", msg.Version)

	rec, err := w.store.GetSyncRecord(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// deleted after publishing; nothing to export
		w.logger.InfoContext(ctx, "Lead metric no longer exists, dropping message", log.FieldMetricID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get lead metric from storage: %w", err)
	}

	switch {
	case rec.Version > msg.Version:
		w.logger.DebugContext(ctx, "Newer version pending, skipping message",
			log.FieldMetricID, msg.ID,
			"message_version", msg.Version,
			"stored_version", rec.Version)
		return nil
	case rec.Status == core.SyncSynced:
		w.logger.DebugContext(ctx, "Already synced, skipping message", log.FieldMetricID, msg.ID)
		return nil
	}

	return w.export(ctx, rec)
}

// ProcessPending exports one batch of pending metrics. It backs up the queue
// when messages were lost or never published.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending batch once when the worker starts,
// to recover from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending lead metrics found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", synced+failed,
		"synced", synced,
		"errors", failed)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	pending, err := w.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending lead metrics: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending lead metrics", log.FieldCount, len(pending))

	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}

		rec, err := w.store.GetSyncRecord(ctx, p.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get lead metric", log.FieldMetricID, p.ID, log.FieldError, err)
			failed++
			continue
		}
		if err := w.export(ctx, rec); err != nil {
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

func (w *SyncWorker) export(ctx context.Context, rec core.SyncRecord) error {
	ref, err := w.exporter.ExportLeadMetric(ctx, rec)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, rec.Metric.ID, rec.Version); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldMetricID, rec.Metric.ID, log.FieldError, markErr)
		}
		w.logger.ErrorContext(ctx, "Failed to export lead metric", log.FieldMetricID, rec.Metric.ID, log.FieldError, err)
		return fmt.Errorf("export lead metric %d: %w", rec.Metric.ID, err)
	}

	// the row is written; a failed mark only means a duplicate export later
	if err := w.store.MarkSynced(ctx, rec.Metric.ID, rec.Version); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldMetricID, rec.Metric.ID, log.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Successfully synced lead metric",
		log.NewFields().
			WithMetric(rec.Metric.ID, rec.Metric.Amount, rec.Metric.LeadsCount).
			WithTriple(rec.Metric.WeekID, rec.Metric.SourceID, rec.Metric.CategoryID).
			ToSlice()...)
	w.logger.DebugContext(ctx, "Exported row", log.FieldMetricID, rec.Metric.ID, "sheets_ref", ref)
	return nil
}
