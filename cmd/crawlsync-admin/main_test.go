package main

import (
	"bytes"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/mocks/automation"
)

const page = `<table>
<tr><th>Participant ID</th><th>Shareholding</th></tr>
<tr><td>C00019</td><td>1,000</td></tr>
</table>`

type testFactory struct {
	*automation.ScriptedFactory
}

func (testFactory) Close() error { return nil }

func newTestApp(t *testing.T, respond automation.Responder) (*adminApp, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admin.db")
	return &adminApp{
		loadConfig: func() (config.AppConfig, error) {
			var cfg config.AppConfig
			cfg.Store.Driver = config.StoreSQLite
			cfg.Postgres.RunMigrationsOnStart = true
			cfg.SQLite.Path = path
			cfg.Crawl.DefaultSource = "shareholding"
			cfg.Sanitize()
			cfg.Crawl.PolitenessDelay = 0
			cfg.Crawl.RetryBaseDelay = time.Millisecond
			cfg.Crawl.RetryMaxDelay = time.Millisecond
			return cfg, nil
		},
		factory: testFactory{automation.NewScriptedFactory(respond)},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, path
}

func execute(app *adminApp, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(app)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSourcesCommand(t *testing.T) {
	app, _ := newTestApp(t, automation.Static(page))
	out, err := execute(app, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "shareholding (default)")
	assert.Contains(t, out, "filings")
}

func TestMigrateCommand(t *testing.T) {
	app, _ := newTestApp(t, automation.Static(page))

	out, err := execute(app, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_sync_records.sql")
	assert.Contains(t, out, "0002_crawl_jobs.sql")

	out, err = execute(app, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied (sqlite)")
}

func TestRunJobsAndRecordCommands(t *testing.T) {
	app, path := newTestApp(t, automation.Static(page))

	out, err := execute(app, "run", "--targets", "700", "--from", "2025-01-10")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "Inserted")

	out, err = execute(app, "jobs", "--source", "shareholding")
	require.NoError(t, err)
	assert.Contains(t, out, "shareholding")
	assert.Contains(t, out, "completed")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	var fp string
	require.NoError(t, db.QueryRow(`SELECT fingerprint FROM sync_records LIMIT 1`).Scan(&fp))
	require.NoError(t, db.Close())

	out, err = execute(app, "record", "shareholding", fp)
	require.NoError(t, err)
	assert.Contains(t, out, "participant_id")
	assert.Contains(t, out, "C00019")

	_, err = execute(app, "record", "shareholding", "missing")
	require.Error(t, err)
}

func TestRunCommand_Failures(t *testing.T) {
	app, _ := newTestApp(t, automation.Static(page))

	_, err := execute(app, "run")
	require.ErrorContains(t, err, "targets")

	_, err = execute(app, "run", "--targets", "700", "--from", "2024-01-01", "--to", "2025-01-01")
	require.Error(t, err)

	app, _ = newTestApp(t, automation.Static("<p>System is busy</p>"))
	out, err := execute(app, "run", "--targets", "700", "--from", "2025-01-10")
	require.NoError(t, err, "item failures do not fail the job")
	assert.Contains(t, out, "Item errors")
	assert.Contains(t, out, "System is busy")
}
