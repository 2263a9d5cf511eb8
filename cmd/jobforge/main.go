package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/jobforge/jobforge/config"
	"github.com/jobforge/jobforge/internal/bootstrap"
	"github.com/jobforge/jobforge/internal/catalog"
	"github.com/jobforge/jobforge/internal/jobs"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
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

	logStartupInfo(ctx, logger, &cfg)

	cfgPtr := &cfg
	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}

	db, logDB, redisClient, err := initInfrastructure(ctx, cfgPtr, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, logger, "database", db.Close)
	if logDB != db {
		defer closeQuietly(ctx, logger, "log store database", logDB.Close)
	}
	if redisClient != nil {
		defer closeQuietly(ctx, logger, "redis", redisClient.Close)
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
		if err = bootstrap.RunLogStoreMigrations(ctx, logDB, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	jobCatalog := catalog.New()
	if err = jobs.RegisterBuiltins(jobCatalog); err != nil {
		return fmt.Errorf("register built-in jobs: %w", err)
	}

	services := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfgPtr,
		DB:          db,
		LogDB:       logDB,
		RedisClient: redisClient,
		Catalog:     jobCatalog,
		Logger:      logger,
	})

	// Sync the in-process catalog with the persisted definition registry so
	// operators see the current job set before anything runs.
	if services.Reconciler != nil {
		report, recErr := services.Reconciler.Reconcile(ctx)
		if recErr != nil {
			return fmt.Errorf("reconcile job catalog: %w", recErr)
		}
		logger.InfoContext(ctx, "job catalog reconciled",
			"synced", report.Synced,
			"uninstalled", report.Uninstalled,
		)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      cfgPtr,
		Services:    services,
		DB:          db,
		LogDB:       logDB,
		RedisClient: redisClient,
		Catalog:     jobCatalog,
		Logger:      logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	enabledServices := bootstrap.GetEnabledServices(cfg)
	logger.InfoContext(ctx, "starting jobforge",
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"enabled_services", enabledServices)
}

// initInfrastructure connects shared dependencies used by the service runtime.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, *sql.DB, redis.UniversalClient, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect db: %w", err)
	}

	logDB, err := bootstrap.ConnectLogDB(cfg, logger)
	if err != nil {
		closeQuietly(ctx, logger, "database", db.Close)
		return nil, nil, nil, fmt.Errorf("connect log store db: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.Hooks.CacheEnabled {
		redisClient, err = bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
			DBConfig:    cfg.Postgres,
			RedisConfig: cfg.Redis,
			Logger:      logger,
		})
		if err != nil {
			// The hook cache degrades to database lookups without Redis.
			logger.WarnContext(ctx, "redis unavailable, hook match caching disabled", "error", err)
			redisClient = nil
		}
	}

	return db, logDB, redisClient, nil
}

func closeQuietly(ctx context.Context, logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		logger.ErrorContext(ctx, "close "+name+" failed", "error", err)
	}
}
