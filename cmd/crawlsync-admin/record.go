package main

import (
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRecordCmd(app *adminApp) *cobra.Command {
	return &cobra.Command{
		Use:   "record <source> <fingerprint>",
		Short: "Shows the latest stored version of one record.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); cerr != nil {
					app.logger.Error("close admin session", "error", cerr)
				}
			}()

			rec, err := s.services.Records.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout())
			t.SetTitle(rec.Source + " " + rec.Fingerprint)
			t.AppendRows([]table.Row{
				{"natural_key", rec.NaturalKey},
				{"version", rec.Version},
				{"content_hash", rec.ContentHash},
				{"first_seen", rec.FirstSeen.UTC().Format(time.RFC3339)},
				{"last_seen", rec.LastSeen.UTC().Format(time.RFC3339)},
			})
			t.AppendSeparator()
			fields := make([]string, 0, len(rec.Payload))
			for f := range rec.Payload {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				t.AppendRow(table.Row{f, rec.Payload[f].String()})
			}
			t.Render()
			return nil
		},
	}
}
