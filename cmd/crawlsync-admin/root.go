package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/bootstrap"
)

// adminApp carries the process-level hooks the commands share.
type adminApp struct {
	loadConfig func() (config.AppConfig, error)
	// factory replaces the configured automation backend when set.
	factory bootstrap.TargetFactory
	logger  *slog.Logger
}

func newAdminApp() *adminApp {
	return &adminApp{loadConfig: bootstrap.LoadConfig}
}

func newRootCmd(app *adminApp) *cobra.Command {
	root := &cobra.Command{
		Use:           "crawlsync-admin",
		Short:         "crawlsync-admin runs crawl jobs and inspects synced records.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(app),
		newMigrateCmd(app),
		newSourcesCmd(app),
		newJobsCmd(app),
		newRecordCmd(app),
	)
	return root
}

func (a *adminApp) config() (*config.AppConfig, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if a.logger == nil {
		a.logger = bootstrap.InitLogger(&cfg)
	}
	return &cfg, nil
}

// session is an open store plus the wired pipeline.
type session struct {
	cfg      *config.AppConfig
	infra    *bootstrap.Infra
	services *bootstrap.ServiceContainer
}

func (a *adminApp) open(ctx context.Context) (*session, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	infra, err := bootstrap.ConnectInfra(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}
	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          infra.DB,
		Dialect:     infra.Dialect,
		RedisClient: infra.Redis,
		Factory:     a.factory,
		Logger:      a.logger,
	})
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	return &session{cfg: cfg, infra: infra, services: services}, nil
}

func (s *session) close() error {
	return errors.Join(s.services.Close(), s.infra.Close())
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func writef(w io.Writer, format string, args ...any) {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
	}
}
