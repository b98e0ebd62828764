package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/adapters/jobrunner"
	"github.com/target/mmk-jobpipe/internal/adapters/redriver"
	"github.com/target/mmk-jobpipe/internal/delivery"
	"github.com/target/mmk-jobpipe/internal/observability/notify/slack"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
	"github.com/target/mmk-jobpipe/internal/pipeline"
	"github.com/target/mmk-jobpipe/internal/service"
	"github.com/target/mmk-jobpipe/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Delivery      *delivery.Manager
	Orchestrator  *pipeline.Orchestrator
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config   *config.AppConfig
	Backends *Backends
	Logger   *slog.Logger
	// Optional: overrides the observability built from Config.
	Observability *ObservabilityContainer
}

// BuildObservability configures metrics and notification adapters.
func BuildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	metricsSink, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  obsLogger.With("component", "statsd"),
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		metricsSink = nil
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

// NewServices wires the job service, delivery manager and orchestrator onto the backends.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.Backends == nil {
		return ServiceContainer{}, errors.New("service deps require config and backends")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var obs ObservabilityContainer
	if deps.Observability != nil {
		obs = *deps.Observability
	} else {
		obs = BuildObservability(logger, deps.Config.Observability)
	}
	metrics := metricsSink(obs)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:  deps.Backends.Store,
		Queue:  deps.Backends.Queue,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("job service: %w", err)
	}

	manager, err := delivery.NewManager(delivery.Options{
		Store:   deps.Backends.Store,
		Config:  deps.Config.Webhook,
		Metrics: metrics,
		Logger:  logger.With("component", "delivery"),
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("delivery manager: %w", err)
	}

	var notifier pipeline.FailureNotifier
	if obs.FailureNotifier != nil {
		notifier = obs.FailureNotifier
	}
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Store:         deps.Backends.Store,
		Deliverer:     manager,
		Notifier:      notifier,
		Config:        deps.Config.Pipeline,
		Metrics:       metrics,
		Logger:        logger.With("component", "pipeline"),
		NewDeliveryID: uuid.NewString,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("orchestrator: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Delivery:      manager,
		Orchestrator:  orchestrator,
		Observability: obs,
	}, nil
}

func metricsSink(obs ObservabilityContainer) statsd.Sink {
	if obs.MetricsSink == nil {
		return nil
	}
	return obs.MetricsSink
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}
	notifierLogger := baseLogger.With("component", "failure_notifier")

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: notifierLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 1)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:  notifierLogger,
		Sinks:   sinks,
		Timeout: cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Backends *Backends
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Backends: deps.cfg.Backends,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Backends == nil {
				return errors.New("worker requires backends")
			}
			runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
				Consumer: deps.cfg.Backends.Queue,
				Pipeline: deps.cfg.Services.Orchestrator,
				Logger:   deps.logger,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func newRedriverBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRedriver,
		name: "redriver",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Backends == nil {
				return errors.New("redriver requires backends")
			}
			var redriverCfg config.RedriverConfig
			if deps.cfg.Config != nil {
				redriverCfg = deps.cfg.Config.Redriver
			}
			runner, err := redriver.NewRunner(redriver.RunnerOptions{
				Store:   deps.cfg.Backends.Store,
				Queue:   deps.cfg.Backends.Queue,
				Config:  redriverCfg,
				Logger:  deps.logger,
				Metrics: metricsSink(deps.cfg.Services.Observability),
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newRedriverBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		// The service context is already canceled, so shutdown gets a fresh deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
