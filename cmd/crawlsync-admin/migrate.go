package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/bootstrap"
	"github.com/target/mmk-crawlsync/internal/migrate"
)

func newMigrateCmd(app *adminApp) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate [--list]",
		Short: "Applies the schema migrations for the configured store.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			dialect := migrate.Postgres
			if cfg.Store.Driver == config.StoreSQLite {
				dialect = migrate.SQLite
			}
			if list {
				files, err := migrate.Files(dialect)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Dialect", "Migration"})
				for _, f := range files {
					t.AppendRow(table.Row{string(dialect), f})
				}
				t.Render()
				return nil
			}

			db, dialect, err := bootstrap.ConnectStore(cfg.Store.Driver, bootstrap.DatabaseConfig{
				DBConfig:     cfg.Postgres,
				SQLiteConfig: cfg.SQLite,
				Logger:       app.logger,
			})
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					app.logger.Error("close database", "error", cerr)
				}
			}()
			if err = bootstrap.RunMigrations(cmd.Context(), db, dialect, app.logger); err != nil {
				return err
			}
			writef(cmd.OutOrStdout(), "migrations applied (%s)\n", dialect)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List embedded migrations without applying them")
	return cmd
}
