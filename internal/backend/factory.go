package backend

import (
	"context"
	"fmt"
	"time"

	"leadboard/internal/amqp"
	"leadboard/internal/log"
	"leadboard/internal/services"
	sheetsmem "leadboard/internal/sheets/memory"
	"leadboard/internal/storage"
	"leadboard/internal/storage/memory"
	"leadboard/internal/worker"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; a nil interface keeps LeadService from publishing.
	var publisher services.SyncPublisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		} else {
			publisher = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewLeadService(repo, publisher, f.logger)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Service: svc,
		Store:   repo,
		Cleanup: svc.Close,
	}, nil
}

// createMemoryBackend seeds a memory store and runs the sync sweep in process
// against an in-memory sheet, so the pipeline behaves as in production.
func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store := memory.NewFromFiles(dataDir)
	svc := services.NewLeadService(store, nil, f.logger)

	sw := worker.NewSyncWorker(store, sheetsmem.New(), config.SyncBatchSize, f.logger)
	sweeper := worker.NewSweeper(sw, config.SyncInterval)
	if err := sweeper.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start sync sweeper: %w", err)
	}

	f.logger.Info("Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{
		Service: svc,
		Store:   store,
		Cleanup: func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sweeper.Stop(stopCtx); err != nil {
				f.logger.Warn("Sync sweeper did not stop cleanly", log.FieldError, err)
			}
			return svc.Close()
		},
	}, nil
}
