// Package memory keeps exported rows in process, for development without a
// spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"leadboard/internal/core"
	"leadboard/internal/sheets"
)

type Exporter struct {
	mu   sync.Mutex
	rows [][]any
	err  error
}

var _ sheets.LeadMetricExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{}
}

// ExportLeadMetric appends the row and returns a synthetic row reference.
func (e *Exporter) ExportLeadMetric(_ context.Context, rec core.SyncRecord) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return "", e.err
	}
	e.rows = append(e.rows, sheets.Row(rec, time.Now().UTC().Format(time.RFC3339)))
	return fmt.Sprintf("mem:%d", len(e.rows)), nil
}

// FailWith makes subsequent exports fail with err; nil restores success.
func (e *Exporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Rows returns a copy of the exported rows.
func (e *Exporter) Rows() [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.rows...)
}
