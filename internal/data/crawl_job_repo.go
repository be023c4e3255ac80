package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
	"github.com/target/mmk-crawlsync/internal/migrate"
)

// CrawlJobRepoConfig holds configuration options for the crawl job repository.
type CrawlJobRepoConfig struct {
	Dialect      migrate.Dialect
	Logger       *slog.Logger
	TimeProvider core.TimeProvider
}

// CrawlJobRepo persists crawl job state for both SQL dialects.
type CrawlJobRepo struct {
	DB           *sql.DB
	dialect      migrate.Dialect
	timeProvider core.TimeProvider
	logger       *slog.Logger
}

var _ core.JobPersistence = (*CrawlJobRepo)(nil)

// NewCrawlJobRepo creates a new CrawlJobRepo.
func NewCrawlJobRepo(db *sql.DB, cfg CrawlJobRepoConfig) *CrawlJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = core.RealTimeProvider{}
	}
	d := cfg.Dialect
	if !d.Valid() {
		d = migrate.Postgres
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CrawlJobRepo{
		DB:           db,
		dialect:      d,
		timeProvider: tp,
		logger:       logger.With("component", "crawl_job_repo"),
	}
}

const crawlJobColumns = `
  id,
  source,
  status,
  test_mode,
  counts,
  targets_processed,
  dates_processed,
  errors,
  error_message,
  created_at,
  started_at,
  completed_at
`

// q rewrites ? placeholders for the repo's dialect.
func (r *CrawlJobRepo) q(query string) string {
	if r.dialect == migrate.SQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString(r.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// UpdateStatus upserts the job snapshot. Later snapshots overwrite earlier ones
// until the job is completed or failed; a finished row is never rewritten.
func (r *CrawlJobRepo) UpdateStatus(ctx context.Context, u model.JobStatusUpdate) error {
	if u.JobID == "" {
		return ErrJobIDRequired
	}
	if !u.Status.Valid() {
		return apperrors.ValidationField("status", fmt.Sprintf("invalid job status %q", u.Status))
	}
	counts := model.JobCounts{}
	if u.Counts != nil {
		counts = *u.Counts
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	errs := u.Errors
	if errs == nil {
		errs = []model.ItemError{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO crawl_jobs (`+crawlJobColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status            = excluded.status,
			counts            = excluded.counts,
			targets_processed = excluded.targets_processed,
			dates_processed   = excluded.dates_processed,
			errors            = excluded.errors,
			error_message     = excluded.error_message,
			started_at        = excluded.started_at,
			completed_at      = excluded.completed_at,
			updated_at        = excluded.updated_at
		WHERE crawl_jobs.status NOT IN ('completed', 'failed')`),
		u.JobID, u.Source, string(u.Status), u.TestMode,
		string(countsJSON), u.TargetsProcessed, u.DatesProcessed, string(errsJSON), u.ErrorMessage,
		u.CreatedAt.UTC(), utcPtr(u.StartedAt), utcPtr(u.CompletedAt), r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update crawl job %s: %w", u.JobID, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update crawl job %s: %w", u.JobID, err)
	}
	if n == 0 {
		return fmt.Errorf("update crawl job %s: %w", u.JobID, ErrJobFinished)
	}
	return nil
}

// GetJob returns a persisted job.
func (r *CrawlJobRepo) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE id = ?`), id)
	job, err := scanCrawlJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, apperrors.MapDBError(err)
	}
	return job, nil
}

// ListRecent returns the most recent jobs, optionally for one source.
func (r *CrawlJobRepo) ListRecent(ctx context.Context, source string, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + crawlJobColumns + ` FROM crawl_jobs`
	var args []any
	if source != "" {
		query += ` WHERE source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	var out []*model.Job
	for rows.Next() {
		job, err := scanCrawlJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan crawl job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

func scanCrawlJob(row rowScanner) (*model.Job, error) {
	var (
		job         model.Job
		status      string
		countsJSON  []byte
		errsJSON    []byte
		errMsg      sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.Source, &status, &job.TestMode, &countsJSON,
		&job.TargetsProcessed, &job.DatesProcessed, &errsJSON, &errMsg,
		&job.CreatedAt, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	if err := json.Unmarshal(countsJSON, &job.Counts); err != nil {
		return nil, fmt.Errorf("decode counts of %s: %w", job.ID, err)
	}
	if err := json.Unmarshal(errsJSON, &job.Errors); err != nil {
		return nil, fmt.Errorf("decode errors of %s: %w", job.ID, err)
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.StartedAt = nullTimePtr(startedAt)
	job.CompletedAt = nullTimePtr(completedAt)
	return &job, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
