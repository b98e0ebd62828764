package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/target/mmk-jobpipe/config"
	"github.com/target/mmk-jobpipe/internal/core"
	"github.com/target/mmk-jobpipe/internal/data"
	"github.com/target/mmk-jobpipe/internal/data/memory"
	"github.com/target/mmk-jobpipe/internal/data/mongostore"
	"github.com/target/mmk-jobpipe/internal/observability/statsd"
	"github.com/target/mmk-jobpipe/internal/queue/local"
	"github.com/target/mmk-jobpipe/internal/queue/redisqueue"
)

// Queue is everything the process needs from a task queue backend.
type Queue interface {
	core.TaskQueue
	core.TaskConsumer
	core.DeadLetterAdmin
	core.HealthChecker
}

// Store is a JobStore that can also report its health.
type Store interface {
	core.JobStore
	core.HealthChecker
}

// Backends holds the connected store and queue plus the clients behind them.
type Backends struct {
	Store Store
	Queue Queue

	DB    *sql.DB
	Redis redis.UniversalClient
	Mongo *mongo.Client
}

// BackendsConfig groups inputs for OpenBackends.
type BackendsConfig struct {
	Config  *config.AppConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// OpenBackends connects the configured store and queue. On error every client
// opened so far is closed.
func OpenBackends(ctx context.Context, cfg BackendsConfig) (*Backends, error) {
	if cfg.Config == nil {
		return nil, errors.New("backends: config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Backends{}
	if err := b.openStore(ctx, cfg, logger); err != nil {
		return nil, errors.Join(err, b.Close(ctx))
	}
	if err := b.openQueue(cfg, logger); err != nil {
		return nil, errors.Join(err, b.Close(ctx))
	}
	return b, nil
}

func (b *Backends) openStore(ctx context.Context, cfg BackendsConfig, logger *slog.Logger) error {
	app := cfg.Config
	dbCfg := DatabaseConfig{DBConfig: app.Postgres, MongoConfig: app.Mongo, Logger: logger}

	switch app.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := ConnectDB(dbCfg)
		if err != nil {
			return err
		}
		b.DB = db
		if app.Postgres.RunMigrationsOnStart {
			if err := RunMigrations(ctx, db, logger); err != nil {
				return err
			}
		}
		b.Store = data.NewJobRepo(db, data.RepoConfig{Logger: logger.With("component", "job_repo")})
	case config.StoreBackendMongo:
		client, db, err := ConnectMongo(dbCfg)
		if err != nil {
			return err
		}
		b.Mongo = client
		store, err := mongostore.New(ctx, db, mongostore.Options{Logger: logger.With("component", "mongo_job_store")})
		if err != nil {
			return fmt.Errorf("open mongo store: %w", err)
		}
		b.Store = store
	case config.StoreBackendMemory:
		logger.Warn("using in-memory job store; jobs are lost on restart")
		b.Store = memory.NewStore()
	default:
		return fmt.Errorf("unknown store backend %q", app.StoreBackend)
	}
	return nil
}

func (b *Backends) openQueue(cfg BackendsConfig, logger *slog.Logger) error {
	app := cfg.Config
	worker := app.Worker

	switch app.QueueBackend {
	case config.QueueBackendRedis:
		client, err := ConnectRedis(DatabaseConfig{RedisConfig: app.Redis, Logger: logger})
		if err != nil {
			return err
		}
		b.Redis = client
		q, err := redisqueue.New(redisqueue.Options{
			Client:            client,
			KeyPrefix:         worker.QueueKeyPrefix,
			Concurrency:       worker.Concurrency,
			MaxDeliveries:     worker.MaxDeliveries,
			VisibilityTimeout: worker.VisibilityTimeout,
			ReclaimInterval:   worker.ReclaimInterval,
			RedeliveryDelay:   worker.RedeliveryDelay,
			Metrics:           cfg.Metrics,
			Logger:            logger.With("component", "redis_queue"),
		})
		if err != nil {
			return fmt.Errorf("open redis queue: %w", err)
		}
		b.Queue = q
	case config.QueueBackendLocal:
		b.Queue = local.New(local.Options{
			Concurrency:     worker.Concurrency,
			MaxDeliveries:   worker.MaxDeliveries,
			RedeliveryDelay: worker.RedeliveryDelay,
			Metrics:         cfg.Metrics,
			Logger:          logger.With("component", "local_queue"),
		})
	default:
		return fmt.Errorf("unknown queue backend %q", app.QueueBackend)
	}
	return nil
}

// HealthChecks returns the checks reported by the health endpoints.
func (b *Backends) HealthChecks() map[string]core.HealthChecker {
	checks := make(map[string]core.HealthChecker, 2)
	if b.Store != nil {
		checks["database"] = b.Store
	}
	if b.Queue != nil {
		checks["queue"] = b.Queue
	}
	return checks
}

// Close releases every client that was opened.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if b.Mongo != nil {
		if err := b.Mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect mongodb: %w", err))
		}
	}
	if b.DB != nil {
		if err := b.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
