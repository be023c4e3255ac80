package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/migrate"
)

// Infra holds the connections a crawlsync process needs.
type Infra struct {
	DB      *sql.DB
	Dialect migrate.Dialect
	// Redis is nil unless target locks live in Redis.
	Redis redis.UniversalClient
}

// ConnectInfra opens the configured store and, for shared locks, Redis.
// Migrations run when the config asks for them on start.
func ConnectInfra(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*Infra, error) {
	dbCfg := DatabaseConfig{
		DBConfig:     cfg.Postgres,
		SQLiteConfig: cfg.SQLite,
		RedisConfig:  cfg.Redis,
		Logger:       logger,
	}
	db, dialect, err := ConnectStore(cfg.Store.Driver, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	infra := &Infra{DB: db, Dialect: dialect}

	if cfg.Postgres.RunMigrationsOnStart {
		if err = RunMigrations(ctx, db, dialect, logger); err != nil {
			return nil, errors.Join(err, infra.Close())
		}
	} else if logger != nil {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	if cfg.Locks.Backend == config.LocksRedis {
		infra.Redis, err = ConnectRedis(dbCfg)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("connect redis: %w", err), infra.Close())
		}
	}
	return infra, nil
}

// Close closes every open connection.
func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
