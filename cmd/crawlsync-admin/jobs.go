package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/target/mmk-crawlsync/internal/util"
)

func newJobsCmd(app *adminApp) *cobra.Command {
	var (
		source string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "jobs [--source <name>] [--limit N]",
		Short: "Lists recent crawl jobs, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); cerr != nil {
					app.logger.Error("close admin session", "error", cerr)
				}
			}()

			jobs, err := s.services.Jobs.ListRecent(cmd.Context(), source, limit)
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"ID", "Source", "Status", "Created", "Duration", "Inserted", "Updated", "Skipped", "Errors"})
			for _, j := range jobs {
				t.AppendRow(table.Row{
					j.ID, j.Source, string(j.Status), util.FormatTime(&j.CreatedAt), util.FormatDuration(j.Duration()),
					j.Counts.Inserted, j.Counts.Updated, j.Counts.Skipped, len(j.Errors),
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Only jobs for this source")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")
	return cmd
}
