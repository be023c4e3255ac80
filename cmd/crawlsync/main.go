package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(&cfg)
	if err != nil {
		logger.ErrorContext(ctx, "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
	if err = run(ctx, logger, &cfg); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	logStartupInfo(ctx, logger, cfg)

	infra, err := bootstrap.ConnectInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := infra.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          infra.DB,
		Dialect:     infra.Dialect,
		RedisClient: infra.Redis,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close services failed", "error", cerr)
		}
	}()

	server := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   cfg.HTTP,
		Services: services,
		Logger:   logger,
	})
	return bootstrap.ServeHTTP(ctx, server, cfg.HTTP.ShutdownTimeout, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	attrs := []any{
		"store", string(cfg.Store.Driver),
		"locks", string(cfg.Locks.Backend),
		"automation", string(cfg.Browser.Backend),
		"default_source", cfg.Crawl.DefaultSource,
	}
	if cfg.Store.Driver == config.StorePostgres {
		attrs = append(attrs, "db_host", cfg.Postgres.Host, "db_name", cfg.Postgres.Name)
	} else {
		attrs = append(attrs, "sqlite_path", cfg.SQLite.Path)
	}
	logger.InfoContext(ctx, "starting crawlsync service", attrs...)
}
