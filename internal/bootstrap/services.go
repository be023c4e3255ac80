package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/data"
	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/navigate"
	"github.com/target/mmk-crawlsync/internal/domain/retry"
	httpx "github.com/target/mmk-crawlsync/internal/http"
	"github.com/target/mmk-crawlsync/internal/migrate"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
	"github.com/target/mmk-crawlsync/internal/service"
	"github.com/target/mmk-crawlsync/internal/sources"
)

// ServiceContainer holds the wired crawl pipeline.
type ServiceContainer struct {
	Tracker *service.Tracker
	Jobs    *data.CrawlJobRepo
	Records core.RecordStore
	Sources *sources.Registry
	Metrics statsd.Sink

	factory TargetFactory
	statsd  *statsd.Client
	checks  map[string]httpx.HealthCheck
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	Dialect     migrate.Dialect
	RedisClient redis.UniversalClient
	// Factory overrides the configured automation backend.
	Factory TargetFactory
	Clock   core.TimeProvider
	Logger  *slog.Logger
}

// NewServices builds the store, locks, sources, automation backend and job tracker.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = core.RealTimeProvider{}
	}

	c := &ServiceContainer{checks: map[string]httpx.HealthCheck{"database": deps.DB.PingContext}}

	reg, err := sources.Load(cfg.Sources.File)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	c.Sources = reg
	logger.Info("sources loaded", "file", cfg.Sources.File, "sources", reg.Names())

	c.statsd, c.Metrics = buildMetrics(logger, cfg.Observability.Metrics)

	c.Records = newRecordStore(deps.DB, deps.Dialect, logger)
	c.Jobs = data.NewCrawlJobRepo(deps.DB, data.CrawlJobRepoConfig{
		Dialect:      deps.Dialect,
		Logger:       logger,
		TimeProvider: clock,
	})

	locker, err := newTargetLocker(cfg.Locks, deps.RedisClient, clock)
	if err != nil {
		return nil, err
	}
	if rc := deps.RedisClient; rc != nil {
		c.checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	c.factory = deps.Factory
	if c.factory == nil {
		c.factory = NewTargetFactory(cfg.Browser, logger)
	}

	extractor := extract.New(extract.Options{Logger: logger, Now: clock.Now})
	nav, err := navigate.New(navigate.Options{Targets: c.factory, Extractor: extractor, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create navigator: %w", err)
	}

	syncEngine, err := service.NewSyncEngine(service.SyncEngineOptions{
		Store:     c.Records,
		BatchSize: cfg.Crawl.BatchSize,
		Clock:     clock,
		Logger:    logger,
		Metrics:   c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create sync engine: %w", err)
	}

	c.Tracker, err = service.NewTracker(service.TrackerOptions{
		Sources: reg,
		Runner:  nav,
		Sync:    syncEngine,
		Retry: retry.New(retry.Options{
			PolitenessDelay: cfg.Crawl.PolitenessDelay,
			BaseDelay:       cfg.Crawl.RetryBaseDelay,
			MaxDelay:        cfg.Crawl.RetryMaxDelay,
			MaxAttempts:     cfg.Crawl.MaxAttempts,
			Logger:          logger,
		}),
		Persistence:   c.Jobs,
		Locker:        locker,
		LockTTL:       cfg.Locks.TTL,
		MaxSpanDays:   cfg.Crawl.MaxSpanDays,
		MaxTargets:    cfg.Crawl.MaxTargets,
		MaxErrors:     cfg.Crawl.MaxErrors,
		Concurrency:   cfg.Crawl.JobConcurrency,
		DefaultSource: cfg.Crawl.DefaultSource,
		Clock:         clock,
		Logger:        logger,
		Metrics:       c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create job tracker: %w", err)
	}
	return c, nil
}

// HealthChecks returns the dependency probes served on /healthz.
func (c *ServiceContainer) HealthChecks() map[string]httpx.HealthCheck {
	return c.checks
}

// Close releases the automation backend and the metrics connection.
func (c *ServiceContainer) Close() error {
	var errs []error
	if c.factory != nil {
		if err := c.factory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close automation backend: %w", err))
		}
	}
	if c.statsd != nil {
		if err := c.statsd.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd: %w", err))
		}
	}
	return errors.Join(errs...)
}

// buildMetrics returns a nil sink when metrics are disabled or the dial fails.
//
//nolint:ireturn // a nil Sink disables emission.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) (*statsd.Client, statsd.Sink) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil, nil
	}
	return client, client
}

//nolint:ireturn // the record store is chosen by dialect.
func newRecordStore(db *sql.DB, dialect migrate.Dialect, logger *slog.Logger) core.RecordStore {
	if dialect == migrate.SQLite {
		return data.NewSQLiteRecordStore(db, logger)
	}
	return data.NewPostgresRecordStore(db, logger)
}

//nolint:ireturn // the lock backend is chosen by config.
func newTargetLocker(cfg config.LocksConfig, rc redis.UniversalClient, clock core.TimeProvider) (core.TargetLocker, error) {
	if cfg.Backend == config.LocksRedis {
		if rc == nil {
			return nil, errors.New("redis target locks need a redis connection")
		}
		return data.NewRedisTargetLock(rc), nil
	}
	return data.NewLocalTargetLock(clock), nil
}
