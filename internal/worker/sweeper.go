package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadboard/internal/log"
)

// Sweeper runs SyncWorker.ProcessPending on a fixed interval.
type Sweeper struct {
	worker   *SyncWorker
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSweeper(w *SyncWorker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		worker:   w,
		interval: interval,
		logger:   w.logger,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.runLoop(ctx, s.stopCh, s.doneCh)

	s.logger.InfoContext(ctx, "Pending sync sweeper started", "interval", s.interval.String())
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.logger.InfoContext(ctx, "Pending sync sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Pending sync sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			synced, failed, err := s.worker.ProcessPending(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "Pending sync sweep failed", log.FieldError, err)
				continue
			}
			if synced+failed > 0 {
				s.logger.InfoContext(ctx, "Pending sync sweep finished", "synced", synced, "errors", failed)
			}
		}
	}
}
