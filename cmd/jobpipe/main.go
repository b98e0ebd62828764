package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.LogLevel)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}

	shutdownTracing, err := bootstrap.InitTracing(cfg.Observability.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := shutdownTracing(flushCtx); terr != nil {
			logger.ErrorContext(ctx, "flush traces failed", "error", terr)
		}
	}()

	observability := bootstrap.BuildObservability(logger, cfg.Observability)
	if observability.MetricsSink != nil {
		defer func() {
			if cerr := observability.MetricsSink.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
			}
		}()
	}

	backends, err := bootstrap.OpenBackends(ctx, bootstrap.BackendsConfig{
		Config:  &cfg,
		Logger:  logger,
		Metrics: observability.MetricsSink,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backends.Close(context.Background()); cerr != nil {
			logger.ErrorContext(ctx, "close backends failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:        &cfg,
		Backends:      backends,
		Logger:        logger,
		Observability: &observability,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Backends: backends,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting jobpipe service",
		"store_backend", cfg.StoreBackend,
		"queue_backend", cfg.QueueBackend,
		"http_addr", cfg.HTTP.Addr,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}
