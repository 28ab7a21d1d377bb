package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"leadboard/internal/api"
	"leadboard/internal/backend"
	"leadboard/internal/cli"
	apphttp "leadboard/internal/http"
	"leadboard/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx := context.Background()
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The explorer reads and writes through the public API, like any client.
	source := api.NewClient(cfg.ExplorerAPIURL,
		api.WithHTTPClient(&http.Client{Timeout: cfg.ExplorerFetchTimeout + time.Second}),
		api.WithLogger(logger))

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Service:            result.Service,
		DataSource:         source,
		FetchTimeout:       cfg.ExplorerFetchTimeout,
		SessionTTL:         cfg.ExplorerSessionTTL,
		MaxSessions:        cfg.ExplorerMaxSessions,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Registry:           reg,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", log.FieldError, err)
		_ = result.Cleanup()
		os.Exit(1)
	}
	srv.StartCleanup(5 * time.Minute)

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting leadboard server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"explorer_api", cfg.ExplorerAPIURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
