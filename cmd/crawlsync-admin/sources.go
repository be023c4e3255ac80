package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/target/mmk-crawlsync/internal/sources"
)

func newSourcesCmd(app *adminApp) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Lists the configured sources.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			reg, err := sources.Load(cfg.Sources.File)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Name", "Mode", "Target field", "Period field", "Columns", "URL"})
			for _, src := range reg.All() {
				d := src.Def
				name := d.Name
				if d.Name == cfg.Crawl.DefaultSource {
					name += " (default)"
				}
				t.AppendRow(table.Row{name, string(d.Mode), d.TargetField, d.PeriodField, len(d.Columns), d.Navigation.URL})
			}
			t.Render()
			return nil
		},
	}
}
