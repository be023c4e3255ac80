package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/util"
)

var errJobFailed = errors.New("job failed")

func newRunCmd(app *adminApp) *cobra.Command {
	var (
		req     model.JobRequest
		targets string
	)
	cmd := &cobra.Command{
		Use:   "run --targets <codes> [--from YYYY-MM-DD] [--to YYYY-MM-DD]",
		Short: "Runs one crawl job in the foreground and prints its result.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Targets = model.SplitList(targets)
			s, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := s.close(); cerr != nil {
					app.logger.Error("close admin session", "error", cerr)
				}
			}()

			job, runErr := s.services.Tracker.Run(cmd.Context(), req)
			if job == nil {
				return runErr
			}
			printJob(cmd.OutOrStdout(), job)
			if runErr != nil {
				return fmt.Errorf("%w: %w", errJobFailed, runErr)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Source, "source", "", "Source name (defaults to CRAWL_DEFAULT_SOURCE)")
	f.StringVar(&targets, "targets", "", "Comma separated target codes")
	f.StringVar(&req.DateFrom, "from", "", "First date, inclusive")
	f.StringVar(&req.DateTo, "to", "", "Last date, inclusive")
	f.BoolVar(&req.LatestOnly, "latest", false, "Only crawl the latest trading day")
	f.IntVar(&req.Limit, "limit", 0, "Maximum number of work items")
	f.BoolVar(&req.TestMode, "test-mode", false, "Crawl and extract without writing records")
	f.StringVar(&req.JobID, "job-id", "", "Use this job id instead of a generated one")
	_ = cmd.MarkFlagRequired("targets")
	return cmd
}

func printJob(w io.Writer, job *model.Job) {
	resp := model.NewJobResponse(job)
	t := newTable(w)
	t.SetTitle("Job " + job.ID)
	t.AppendRows([]table.Row{
		{"Source", job.Source},
		{"Status", string(job.Status)},
		{"Test mode", job.TestMode},
		{"Targets processed", resp.TargetsProcessed},
		{"Dates processed", resp.DatesProcessed},
		{"Scraped", resp.RecordsScraped},
		{"Inserted", resp.RecordsInserted},
		{"Updated", resp.RecordsUpdated},
		{"Skipped", resp.RecordsSkipped},
		{"Dropped", resp.RecordsDropped},
		{"Failed", resp.RecordsFailed},
		{"Started", util.FormatTime(job.StartedAt)},
		{"Duration", util.FormatDuration(job.Duration())},
	})
	if job.ErrorMessage != nil {
		t.AppendRow(table.Row{"Error", *job.ErrorMessage})
	}
	t.Render()

	if len(job.Errors) == 0 {
		return
	}
	et := newTable(w)
	et.SetTitle("Item errors")
	et.AppendHeader(table.Row{"Target", "Period", "Kind", "Message"})
	for _, e := range job.Errors {
		et.AppendRow(table.Row{e.Target, e.Period, e.Kind, strings.TrimSpace(e.Message)})
	}
	et.Render()
}
