// Package workflowtest runs the crawl pipeline end to end behind its real HTTP router.
package workflowtest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-crawlsync/config"
	"github.com/target/mmk-crawlsync/internal/bootstrap"
	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/migrate"
	"github.com/target/mmk-crawlsync/internal/mocks/automation"
	"github.com/target/mmk-crawlsync/internal/testutil"
)

// WorkflowTestHarness wires the production services against a test database,
// a scripted automation backend and an httptest server.
//
//nolint:revive // WorkflowTestHarness is intentionally verbose for clarity in test code.
type WorkflowTestHarness struct {
	t  testutil.TestingTB
	db *sql.DB
	ts *httptest.Server

	Services *bootstrap.ServiceContainer
	Factory  *automation.ScriptedFactory
	Clock    *core.FixedTimeProvider
	Dialect  migrate.Dialect

	// Optional Redis components
	RedisClient *redis.Client
}

// WorkflowTestOptions configures the workflow test harness.
//
//nolint:revive // WorkflowTestOptions is intentionally verbose for clarity in test code.
type WorkflowTestOptions struct {
	// Respond serves page content. Defaults to a shareholding table keyed by target.
	Respond automation.Responder
	// Now pins the harness clock. Defaults to 2025-01-10 12:00 UTC, a trading day.
	Now time.Time
	// EnableRedis switches target locks to Redis.
	EnableRedis bool
	// Configure adjusts the app config before services are built.
	Configure func(*config.AppConfig)
}

// Default harness clock.
var DefaultNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

type closerTB interface {
	testutil.TestingTB
	Cleanup(func())
}

// NewWorkflowTestHarness creates a harness over db, which must already be migrated for dialect.
func NewWorkflowTestHarness(
	t closerTB,
	db *sql.DB,
	dialect migrate.Dialect,
	opts WorkflowTestOptions,
) *WorkflowTestHarness {
	t.Helper()

	if opts.Respond == nil {
		opts.Respond = ShareholdingResponder(map[string][]Holding{})
	}
	if opts.Now.IsZero() {
		opts.Now = DefaultNow
	}

	cfg := &config.AppConfig{}
	cfg.Sanitize()
	cfg.Crawl.PolitenessDelay = 0
	cfg.Crawl.RetryBaseDelay = time.Millisecond
	cfg.Crawl.RetryMaxDelay = 5 * time.Millisecond

	h := &WorkflowTestHarness{
		t:       t,
		db:      db,
		Factory: automation.NewScriptedFactory(opts.Respond),
		Clock:   core.NewFixedTimeProvider(opts.Now),
		Dialect: dialect,
	}

	var redisClient redis.UniversalClient
	if opts.EnableRedis {
		h.RedisClient = testutil.SetupTestRedis(t)
		redisClient = h.RedisClient
		cfg.Locks.Backend = config.LocksRedis
	}
	if opts.Configure != nil {
		opts.Configure(cfg)
	}

	svc, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          db,
		Dialect:     dialect,
		RedisClient: redisClient,
		Factory:     scriptedFactory{h.Factory},
		Clock:       h.Clock,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("build services: %v", err)
	}
	h.Services = svc

	server := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   cfg.HTTP,
		Services: svc,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.ts = httptest.NewServer(server.Handler)
	t.Cleanup(h.Close)
	return h
}

type scriptedFactory struct {
	*automation.ScriptedFactory
}

func (scriptedFactory) Close() error { return nil }

// Close cleans up all resources.
func (h *WorkflowTestHarness) Close() {
	if h.ts != nil {
		h.ts.Close()
		h.ts = nil
	}
	if h.Services != nil {
		if err := h.Services.Close(); err != nil {
			h.t.Logf("warning: failed to close services: %v", err)
		}
		h.Services = nil
	}
}

// BaseURL returns the base URL of the test HTTP server.
func (h *WorkflowTestHarness) BaseURL() string {
	return h.ts.URL
}

// DB returns the harness database.
func (h *WorkflowTestHarness) DB() *sql.DB { return h.db }

// HTTPClient provides utilities for making HTTP requests to the test server.
type HTTPClient struct {
	t       testutil.TestingTB
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP client for testing.
func (h *WorkflowTestHarness) NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		t:       h.t,
		baseURL: h.BaseURL(),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// DoJSON sends payload as JSON, or no body when payload is nil.
func (c *HTTPClient) DoJSON(method, path string, payload any) *http.Response {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		c.t.Fatalf("create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// RunJob posts a job request and returns the response body and status.
func (c *HTTPClient) RunJob(req model.JobRequest) (model.JobResponse, int) {
	c.t.Helper()
	resp := c.DoJSON(http.MethodPost, "/api/crawl-jobs", req)
	defer resp.Body.Close()

	var out model.JobResponse
	c.decode(resp, &out)
	return out, resp.StatusCode
}

// GetJob fetches a job by id, failing the test on anything but 200.
func (c *HTTPClient) GetJob(id string) model.Job {
	c.t.Helper()
	resp := c.DoJSON(http.MethodGet, "/api/crawl-jobs/"+id, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("get job %s status: %d", id, resp.StatusCode)
	}
	var out model.Job
	c.decode(resp, &out)
	return out
}

// ListJobs lists recent jobs, optionally for one source.
func (c *HTTPClient) ListJobs(source string) []model.Job {
	c.t.Helper()
	path := "/api/crawl-jobs"
	if source != "" {
		path += "?source=" + source
	}
	resp := c.DoJSON(http.MethodGet, path, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("list jobs status: %d", resp.StatusCode)
	}
	var out []model.Job
	c.decode(resp, &out)
	return out
}

// GetRecord fetches the latest stored version of a record and the response status.
func (c *HTTPClient) GetRecord(source, fingerprint string) (model.SyncRecord, int) {
	c.t.Helper()
	resp := c.DoJSON(http.MethodGet, "/api/records/"+source+"/"+fingerprint, nil)
	defer resp.Body.Close()
	var out model.SyncRecord
	if resp.StatusCode == http.StatusOK {
		c.decode(resp, &out)
	}
	return out, resp.StatusCode
}

func (c *HTTPClient) decode(resp *http.Response, out any) {
	c.t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.t.Fatalf("decode %s response: %v", resp.Request.URL.Path, err)
	}
}

// WorkflowHelpers provides high-level operations over the harness store.
type WorkflowHelpers struct {
	h *WorkflowTestHarness
}

// NewWorkflowHelpers creates helpers bound to the harness.
func (h *WorkflowTestHarness) NewWorkflowHelpers() *WorkflowHelpers {
	return &WorkflowHelpers{h: h}
}

// CountRecords counts stored rows for source, every version included.
func (w *WorkflowHelpers) CountRecords(source string) int {
	w.h.t.Helper()
	var n int
	q := `SELECT COUNT(*) FROM sync_records WHERE source = ` + w.h.Dialect.Placeholder(1)
	if err := w.h.db.QueryRow(q, source).Scan(&n); err != nil {
		w.h.t.Fatalf("count records: %v", err)
	}
	return n
}

// Fingerprints returns the stored fingerprints for source in a stable order.
func (w *WorkflowHelpers) Fingerprints(source string) []string {
	w.h.t.Helper()
	q := `SELECT fingerprint FROM sync_records WHERE source = ` + w.h.Dialect.Placeholder(1) + ` ORDER BY fingerprint, version`
	rows, err := w.h.db.Query(q, source)
	if err != nil {
		w.h.t.Fatalf("query fingerprints: %v", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			w.h.t.Fatalf("scan fingerprint: %v", err)
		}
		out = append(out, fp)
	}
	if err := rows.Err(); err != nil {
		w.h.t.Fatalf("iterate fingerprints: %v", err)
	}
	return out
}

// VerifyJobCompleted fails the test unless the stored job completed.
func (w *WorkflowHelpers) VerifyJobCompleted(jobID string) model.Job {
	w.h.t.Helper()
	job := w.h.NewHTTPClient().GetJob(jobID)
	if job.Status != model.JobStatusCompleted {
		w.h.t.Fatalf("job %s status = %s, want completed", jobID, job.Status)
	}
	return job
}

// Holding is one participant row of a shareholding page.
type Holding struct {
	ParticipantID string
	Name          string
	Shares        int
}

// ShareholdingPage renders a results table the built-in shareholding source extracts.
func ShareholdingPage(rows ...Holding) string {
	if len(rows) == 0 {
		return "<html><body><p>No match record found.</p></body></html>"
	}
	var b strings.Builder
	b.WriteString(`<html><body><div id="pnlResultNormal"><table>`)
	b.WriteString("<tr><th>Participant ID</th><th>Name of CCASS Participant</th><th>Shareholding</th></tr>")
	for _, r := range rows {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td></tr>", r.ParticipantID, r.Name, r.Shares)
	}
	b.WriteString("</table></div></body></html>")
	return b.String()
}

// ShareholdingResponder serves holdings by the target code filled into the form.
// Targets without an entry get the no-data page.
func ShareholdingResponder(byTarget map[string][]Holding) automation.Responder {
	return func(p automation.Page) (string, error) {
		for _, v := range p.Fields {
			if rows, ok := byTarget[v]; ok {
				return ShareholdingPage(rows...), nil
			}
		}
		return ShareholdingPage(), nil
	}
}

// WithWorkflowHarness runs fn against a harness on a fresh SQLite store.
func WithWorkflowHarness(t closerTB, tempDir string, opts WorkflowTestOptions, fn func(*WorkflowTestHarness)) {
	t.Helper()
	db := openSQLite(t, tempDir)
	fn(NewWorkflowTestHarness(t, db, migrate.SQLite, opts))
}

// WithPostgresWorkflowHarness runs fn against a harness on the shared Postgres test database.
func WithPostgresWorkflowHarness(t closerTB, opts WorkflowTestOptions, fn func(*WorkflowTestHarness)) {
	t.Helper()
	testutil.SkipIfNoTestDB(t)
	testutil.WithAutoDB(t, func(db *sql.DB) {
		fn(NewWorkflowTestHarness(t, db, migrate.Postgres, opts))
	})
}

func openSQLite(t closerTB, dir string) *sql.DB {
	t.Helper()
	db, err := bootstrap.ConnectSQLite(bootstrap.DatabaseConfig{
		SQLiteConfig: config.SQLiteConfig{Path: dir + "/workflow.db", BusyTimeout: 5 * time.Second},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close sqlite: %v", err)
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db, migrate.SQLite); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
