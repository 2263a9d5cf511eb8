package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobforge/jobforge/config"
	"github.com/jobforge/jobforge/internal/adapters/reaper"
	"github.com/jobforge/jobforge/internal/adapters/scheduler"
	"github.com/jobforge/jobforge/internal/adapters/worker"
	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/data"
	"github.com/jobforge/jobforge/internal/observability/statsd"
	"github.com/jobforge/jobforge/internal/service"
	"github.com/jobforge/jobforge/internal/uow"
)

// ServiceContainer holds the wired repositories and services.
type ServiceContainer struct {
	Definitions *data.JobDefinitionRepo
	Schedules   *data.ScheduledJobsRepo
	RunStore    *data.JobResultRepo
	LogStore    *data.JobLogRepo
	HookStore   *data.JobHookRepo

	Runs       *service.RunService
	Scheduler  *service.SchedulerService
	Hooks      *service.HookService
	Executor   *service.Executor
	Reconciler *catalog.Reconciler

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	LogDB       *sql.DB
	RedisClient redis.UniversalClient
	Catalog     *catalog.Catalog
	Logger      *slog.Logger
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.StatsdPrefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// NewServices wires repositories and services from the shared dependencies.
func NewServices(deps *ServiceDeps) ServiceContainer {
	if deps == nil {
		return ServiceContainer{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, appCfg.Observability)

	defs := data.NewJobDefinitionRepo(deps.DB)
	scheds := data.NewScheduledJobsRepo(deps.DB)
	runStore := data.NewJobResultRepo(deps.DB, data.JobResultRepoConfig{Logger: logger})

	logDB := deps.LogDB
	if logDB == nil {
		logDB = deps.DB
	}
	logStore := data.NewJobLogRepo(logDB)
	hookStore := data.NewJobHookRepo(deps.DB)

	executor := service.NewExecutor(service.ExecutorOptions{
		Catalog:     deps.Catalog,
		Runs:        runStore,
		Logs:        logStore,
		Definitions: defs,
		Metrics:     observability.MetricsSink,
		Logger:      logger,
		WorkerID:    "inline",
	})

	runSvc := service.NewRunService(service.RunServiceOptions{
		Definitions:  defs,
		Runs:         runStore,
		Logs:         logStore,
		UnitOfWork:   uow.NewRunner(deps.DB, logger),
		Executor:     executor,
		Metrics:      observability.MetricsSink,
		Logger:       logger,
		DefaultQueue: appCfg.Worker.Queue,
	})

	schedSvc := service.NewSchedulerService(service.SchedulerServiceOptions{
		Schedules:   scheds,
		Definitions: defs,
		Runs:        runStore,
		Metrics:     observability.MetricsSink,
		Logger:      logger,
	})

	var hookCache service.HookCache
	if deps.RedisClient != nil && appCfg.Hooks.CacheEnabled {
		hookCache = data.NewHookMatchCache(deps.RedisClient, appCfg.Hooks.CacheTTL)
	}
	hookSvc := service.NewHookService(service.HookServiceOptions{
		Hooks:       hookStore,
		Definitions: defs,
		Enqueuer:    runSvc,
		Cache:       hookCache,
		Metrics:     observability.MetricsSink,
		Logger:      logger,
	})

	var reconciler *catalog.Reconciler
	if deps.Catalog != nil {
		reconciler = catalog.NewReconciler(deps.Catalog, defs, logger)
	}

	return ServiceContainer{
		Definitions:   defs,
		Schedules:     scheds,
		RunStore:      runStore,
		LogStore:      logStore,
		HookStore:     hookStore,
		Runs:          runSvc,
		Scheduler:     schedSvc,
		Hooks:         hookSvc,
		Executor:      executor,
		Reconciler:    reconciler,
		Observability: observability,
	}
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	LogDB       *sql.DB
	RedisClient redis.UniversalClient
	Catalog     *catalog.Catalog
	Logger      *slog.Logger
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
					"service", descriptor.name,
					"error", errMsg,
				)
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

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			runner, err := scheduler.NewRunner(scheduler.RunnerOptions{
				DB:        deps.cfg.DB,
				Config:    deps.cfg.Config.Scheduler,
				Logger:    deps.logger,
				Metrics:   deps.cfg.Services.Observability.MetricsSink,
				Scheduler: deps.cfg.Services.Scheduler,
			})
			if err != nil {
				return err
			}
			return runner.Run(ctx)
		},
	}
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			pool, err := worker.NewPool(worker.PoolOptions{
				DB:      deps.cfg.DB,
				LogDB:   deps.cfg.LogDB,
				Config:  deps.cfg.Config.Worker,
				Catalog: deps.cfg.Catalog,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
			if err != nil {
				return err
			}
			return pool.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:      deps.cfg.DB,
				LogDB:   deps.cfg.LogDB,
				Config:  deps.cfg.Config.Reaper,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
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
		newSchedulerBackgroundService(deps),
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel      context.CancelFunc
	errCh       <-chan error
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
		gracefulStop(cfg)
		return nil
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		gracefulStop(cfg)
		return err
	}
}

// gracefulStop waits for background services to finish, with a per-service
// timeout.
func gracefulStop(cfg shutdownConfig) {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
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
