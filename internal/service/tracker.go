package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/domain/navigate"
	"github.com/target/mmk-crawlsync/internal/domain/retry"
	"github.com/target/mmk-crawlsync/internal/domain/workitem"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
	"github.com/target/mmk-crawlsync/internal/observability/metrics"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
	"github.com/target/mmk-crawlsync/internal/sources"
)

const (
	// DefaultMaxErrors bounds the detailed per-item errors kept on a job.
	DefaultMaxErrors = 10
	// DefaultLockTTL is how long a target lock survives a crashed holder.
	DefaultLockTTL = 30 * time.Minute
	// DefaultJobConcurrency bounds RunMany.
	DefaultJobConcurrency = 2

	defaultPersistTimeout = 5 * time.Second
)

// SourceResolver looks up configured sources by name.
type SourceResolver interface {
	Resolve(name string) (*sources.Source, error)
}

// ItemRunner navigates to and extracts one work item.
type ItemRunner interface {
	Run(ctx context.Context, item model.WorkItem, schema *extract.Schema) navigate.Result
}

// TrackerOptions groups dependencies and limits for Tracker.
type TrackerOptions struct {
	Sources     SourceResolver      // Required
	Runner      ItemRunner          // Required: usually *navigate.Navigator
	Sync        *SyncEngine         // Required
	Retry       *retry.Controller   // Optional: defaults to retry.New(retry.Options{})
	Persistence core.JobPersistence // Optional: job state is kept in memory only when nil
	Locker      core.TargetLocker   // Optional: no target locking when nil
	LockTTL     time.Duration
	MaxSpanDays int
	MaxTargets  int
	MaxErrors   int
	Concurrency int
	// DefaultSource is used when a request names no source.
	DefaultSource  string
	PersistTimeout time.Duration
	Clock          core.TimeProvider
	Logger         *slog.Logger
	Metrics        statsd.Sink
}

// Tracker drives crawl jobs through Pending → Running → Completed/Failed.
type Tracker struct {
	sources        SourceResolver
	runner         ItemRunner
	sync           *SyncEngine
	retry          *retry.Controller
	persistence    core.JobPersistence
	locker         core.TargetLocker
	lockTTL        time.Duration
	maxSpanDays    int
	maxTargets     int
	maxErrors      int
	concurrency    int
	defaultSource  string
	persistTimeout time.Duration
	clock          core.TimeProvider
	logger         *slog.Logger
	metrics        statsd.Sink

	mu     sync.Mutex
	active map[string]*activeJob
}

// NewTracker constructs a Tracker.
func NewTracker(opts TrackerOptions) (*Tracker, error) {
	if opts.Sources == nil {
		return nil, errors.New("SourceResolver is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("ItemRunner is required")
	}
	if opts.Sync == nil {
		return nil, errors.New("SyncEngine is required")
	}
	t := &Tracker{
		sources:        opts.Sources,
		runner:         opts.Runner,
		sync:           opts.Sync,
		retry:          opts.Retry,
		persistence:    opts.Persistence,
		locker:         opts.Locker,
		lockTTL:        opts.LockTTL,
		maxSpanDays:    opts.MaxSpanDays,
		maxTargets:     opts.MaxTargets,
		maxErrors:      opts.MaxErrors,
		concurrency:    opts.Concurrency,
		defaultSource:  opts.DefaultSource,
		persistTimeout: opts.PersistTimeout,
		clock:          opts.Clock,
		metrics:        opts.Metrics,
		active:         make(map[string]*activeJob),
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t.logger = logger.With("component", "job_tracker")
	if t.retry == nil {
		t.retry = retry.New(retry.Options{Logger: logger})
	}
	if t.lockTTL <= 0 {
		t.lockTTL = DefaultLockTTL
	}
	if t.maxErrors <= 0 {
		t.maxErrors = DefaultMaxErrors
	}
	if t.concurrency <= 0 {
		t.concurrency = DefaultJobConcurrency
	}
	if t.persistTimeout <= 0 {
		t.persistTimeout = defaultPersistTimeout
	}
	if t.clock == nil {
		t.clock = core.RealTimeProvider{}
	}
	return t, nil
}

// activeJob is the in-memory state of a job this process is running.
type activeJob struct {
	mu     sync.Mutex
	job    model.Job
	cancel context.CancelFunc
}

func (a *activeJob) update(fn func(j *model.Job)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.job)
}

func (a *activeJob) snapshot() *model.Job {
	a.mu.Lock()
	defer a.mu.Unlock()
	j := a.job
	j.Errors = append([]model.ItemError(nil), a.job.Errors...)
	return &j
}

// plan is the outcome of pre-flight.
type plan struct {
	source   *sources.Source
	items    []model.WorkItem
	testMode bool
}

// Run executes one job to a terminal state and returns it. The returned error is
// non-nil only when the job failed: a pre-flight error or an external cancellation.
// Per-item failures are reported in the job's counts and error list. The job is nil
// only when a job with the same id is already running or has already been recorded.
func (t *Tracker) Run(ctx context.Context, req model.JobRequest) (*model.Job, error) {
	now := t.clock.Now()
	id := req.JobID
	if id == "" {
		id = uuid.NewString()
	}
	sourceName := req.Source
	if sourceName == "" {
		sourceName = t.defaultSource
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a := &activeJob{
		job: model.Job{
			ID:        id,
			Source:    sourceName,
			Status:    model.JobStatusPending,
			TestMode:  req.TestMode,
			CreatedAt: now,
		},
		cancel: cancel,
	}
	if err := t.register(a); err != nil {
		return nil, err
	}
	defer t.unregister(id)

	logger := t.logger.With("job_id", id, "source", sourceName)
	if req.JobID != "" {
		if err := t.ensureUnused(ctx, logger, id); err != nil {
			return nil, err
		}
	}
	t.persist(ctx, logger, a)

	p, err := t.preflight(req, sourceName, now)
	if err != nil {
		return t.fail(ctx, logger, a, err)
	}
	release, err := t.lockTargets(ctx, p, id)
	if err != nil {
		return t.fail(ctx, logger, a, err)
	}
	defer release()

	return t.execute(ctx, runCtx, logger, a, p)
}

func (t *Tracker) preflight(req model.JobRequest, sourceName string, now time.Time) (*plan, error) {
	src, err := t.sources.Resolve(sourceName)
	if err != nil {
		return nil, err
	}
	from, err := model.ParseDate("date_from", req.DateFrom)
	if err != nil {
		return nil, apperrors.ValidationField("date_from", err.Error())
	}
	to, err := model.ParseDate("date_to", req.DateTo)
	if err != nil {
		return nil, apperrors.ValidationField("date_to", err.Error())
	}
	if req.Limit < 0 {
		return nil, apperrors.ValidationField("limit", "limit must not be negative")
	}

	gen := workitem.NewGenerator(workitem.Options{
		MaxSpanDays: t.maxSpanDays,
		MaxTargets:  t.maxTargets,
		TargetWidth: src.Def.TargetWidth,
		Calendar:    src.Calendar,
	})
	items, err := gen.Generate(workitem.Request{
		Targets:    req.Targets,
		DateFrom:   from,
		DateTo:     to,
		LatestOnly: req.LatestOnly,
	}, now)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(items) > req.Limit {
		items = items[:req.Limit]
	}
	return &plan{source: src, items: items, testMode: req.TestMode}, nil
}

// lockTargets takes one lock per distinct target. The returned func releases them all.
func (t *Tracker) lockTargets(ctx context.Context, p *plan, token string) (func(), error) {
	if t.locker == nil {
		return func() {}, nil
	}
	var held []string
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.persistTimeout)
		defer cancel()
		for _, key := range held {
			if err := t.locker.Release(rctx, key, token); err != nil {
				t.logger.WarnContext(rctx, "release target lock", "key", key, "error", err)
			}
		}
	}
	seen := map[string]bool{}
	for _, item := range p.items {
		if seen[item.TargetKey] {
			continue
		}
		seen[item.TargetKey] = true
		key := LockKey(p.source.Def.Name, item.TargetKey)
		ok, err := t.locker.Acquire(ctx, key, token, t.lockTTL)
		if err != nil {
			release()
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "acquire target lock %s", key)
		}
		if !ok {
			release()
			return nil, apperrors.Conflictf("target %s of source %s is locked by another job", item.TargetKey, p.source.Def.Name)
		}
		held = append(held, key)
	}
	return release, nil
}

// LockKey is the lock name for one source target.
func LockKey(source, target string) string {
	return "crawlsync:lock:" + source + ":" + target
}

func (t *Tracker) execute(ctx, runCtx context.Context, logger *slog.Logger, a *activeJob, p *plan) (*model.Job, error) {
	started := t.clock.Now()
	a.update(func(j *model.Job) {
		j.Status = model.JobStatusRunning
		j.StartedAt = &started
	})
	t.persist(ctx, logger, a)
	metrics.EmitJobLifecycle(t.metrics, metrics.JobMetric{
		Source:     p.source.Def.Name,
		Transition: metrics.TransitionStarted,
		Result:     metrics.ResultSuccess,
	})
	logger.InfoContext(ctx, "job started", "work_items", len(p.items), "test_mode", p.testMode)

	targets := map[string]bool{}
	dates := map[string]bool{}
	for i, item := range p.items {
		if i > 0 {
			if err := t.retry.Pace(runCtx); err != nil {
				return t.canceled(ctx, logger, a, p)
			}
		}
		if runCtx.Err() != nil {
			return t.canceled(ctx, logger, a, p)
		}

		// A started item runs to completion or to its own timeout.
		t.processItem(context.WithoutCancel(runCtx), logger, a, p, item)

		targets[item.TargetKey] = true
		dates[item.PeriodKey] = true
		a.update(func(j *model.Job) {
			j.TargetsProcessed = len(targets)
			j.DatesProcessed = len(dates)
		})
		t.persist(ctx, logger, a)
	}

	done := t.clock.Now()
	a.update(func(j *model.Job) {
		j.Status = model.JobStatusCompleted
		j.CompletedAt = &done
	})
	t.persist(ctx, logger, a)
	job := a.snapshot()
	metrics.EmitJobLifecycle(t.metrics, metrics.JobMetric{
		Source:     p.source.Def.Name,
		Transition: metrics.TransitionCompleted,
		Result:     metrics.ResultSuccess,
		Duration:   job.Duration(),
	})
	logger.InfoContext(ctx, "job completed",
		"targets", job.TargetsProcessed, "dates", job.DatesProcessed,
		"scraped", job.Counts.Scraped, "inserted", job.Counts.Inserted,
		"updated", job.Counts.Updated, "skipped", job.Counts.Skipped,
		"failed", job.Counts.Failed, "duration_ms", job.Duration().Milliseconds())
	return job, nil
}

func (t *Tracker) processItem(ctx context.Context, logger *slog.Logger, a *activeJob, p *plan, item model.WorkItem) {
	start := t.clock.Now()
	def := p.source.Def
	ilog := logger.With("target", item.TargetKey, "period", item.PeriodKey)

	var res navigate.Result
	attempts, err := t.retry.Do(ctx, func(ctx context.Context) error {
		res = t.runner.Run(ctx, item, p.source.Schema)
		if res.Outcome.Status == model.OutcomeError {
			return res.Outcome.Err
		}
		return nil
	})

	if err != nil {
		ilog.WarnContext(ctx, "work item failed", "attempts", attempts, "state", res.Final(), "error", err)
		a.update(func(j *model.Job) {
			j.Counts.Failed++
			t.recordError(j, item, err)
		})
		metrics.EmitWorkItem(t.metrics, metrics.WorkItemMetric{
			Source: def.Name, Status: model.OutcomeError, Attempts: attempts,
			Duration: t.clock.Now().Sub(start), Err: err,
		})
		return
	}

	out := res.Outcome
	synced := t.sync.Sync(ctx, SyncRequest{Source: def, Records: out.Records, DryRun: p.testMode})
	a.update(func(j *model.Job) {
		j.Counts.Scraped += len(out.Records)
		j.Counts.Dropped += out.Dropped
		j.Counts.Inserted += synced.Counts.Inserted
		j.Counts.Updated += synced.Counts.Updated
		j.Counts.Skipped += synced.Counts.Skipped
		j.Counts.Failed += synced.Counts.Failed
		if out.Err != nil {
			t.recordError(j, item, out.Err)
		}
		for _, serr := range synced.Errors {
			t.recordError(j, item, serr)
		}
	})
	ilog.DebugContext(ctx, "work item processed",
		"status", out.Status, "detail", out.Detail, "attempts", attempts,
		"records", len(out.Records), "inserted", synced.Counts.Inserted,
		"updated", synced.Counts.Updated, "skipped", synced.Counts.Skipped,
		"failed", synced.Counts.Failed)
	metrics.EmitWorkItem(t.metrics, metrics.WorkItemMetric{
		Source: def.Name, Status: out.Status, Attempts: attempts,
		Records: len(out.Records), Duration: t.clock.Now().Sub(start), Err: out.Err,
	})
}

// recordError keeps the first maxErrors item errors. Callers hold the job lock.
func (t *Tracker) recordError(j *model.Job, item model.WorkItem, err error) {
	if len(j.Errors) >= t.maxErrors {
		return
	}
	kind := string(apperrors.GetCode(err))
	if kind == "" {
		kind = string(apperrors.ErrCodeInternal)
	}
	j.Errors = append(j.Errors, model.ItemError{
		Target:  item.TargetKey,
		Period:  item.PeriodKey,
		Kind:    kind,
		Message: err.Error(),
	})
}

func (t *Tracker) canceled(ctx context.Context, logger *slog.Logger, a *activeJob, p *plan) (*model.Job, error) {
	err := apperrors.New(apperrors.ErrCodeCanceled, "job canceled")
	logger.WarnContext(ctx, "job canceled between work items", "work_items", len(p.items))
	return t.fail(ctx, logger, a, err)
}

func (t *Tracker) fail(ctx context.Context, logger *slog.Logger, a *activeJob, cause error) (*model.Job, error) {
	done := t.clock.Now()
	msg := cause.Error()
	a.update(func(j *model.Job) {
		j.Status = model.JobStatusFailed
		j.ErrorMessage = &msg
		j.CompletedAt = &done
	})
	t.persist(ctx, logger, a)
	job := a.snapshot()
	metrics.EmitJobLifecycle(t.metrics, metrics.JobMetric{
		Source:     job.Source,
		Transition: metrics.TransitionFailed,
		Result:     metrics.ResultError,
		Duration:   job.Duration(),
		Err:        cause,
	})
	logger.ErrorContext(ctx, "job failed", "error", cause)
	return job, cause
}

// persist hands the job snapshot to persistence. Failures are logged and never fail the job.
func (t *Tracker) persist(ctx context.Context, logger *slog.Logger, a *activeJob) {
	if t.persistence == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.persistTimeout)
	defer cancel()
	job := a.snapshot()
	if err := t.persistence.UpdateStatus(pctx, job.StatusUpdate()); err != nil {
		logger.WarnContext(ctx, "persist job status", "status", job.Status, "error", err)
		if t.metrics != nil {
			t.metrics.Count("job.persist_failed", 1, map[string]string{"source": job.Source})
		}
	}
}

// ensureUnused rejects a caller-supplied id that already names a persisted job.
// Jobs are never reused, so a completed or failed id cannot run again. Lookup
// failures other than not-found are logged and the run proceeds.
func (t *Tracker) ensureUnused(ctx context.Context, logger *slog.Logger, id string) error {
	if t.persistence == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.persistTimeout)
	defer cancel()
	_, err := t.persistence.GetJob(pctx, id)
	switch {
	case err == nil:
		return apperrors.Conflictf("job %s already exists", id)
	case apperrors.IsNotFound(err):
		return nil
	default:
		logger.WarnContext(ctx, "look up job id", "error", err)
		return nil
	}
}

func (t *Tracker) register(a *activeJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[a.job.ID]; ok {
		return apperrors.Conflictf("job %s is already running", a.job.ID)
	}
	t.active[a.job.ID] = a
	return nil
}

func (t *Tracker) unregister(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
}

// Cancel stops a running job before its next work item. The item in flight finishes.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	a, ok := t.active[id]
	t.mu.Unlock()
	if !ok {
		return apperrors.NotFoundf("job %s is not running", id)
	}
	a.cancel()
	return nil
}

// Get returns the live state of a running job, falling back to persisted state.
func (t *Tracker) Get(ctx context.Context, id string) (*model.Job, error) {
	t.mu.Lock()
	a, ok := t.active[id]
	t.mu.Unlock()
	if ok {
		return a.snapshot(), nil
	}
	if t.persistence == nil {
		return nil, apperrors.NotFoundf("job %s not found", id)
	}
	job, err := t.persistence.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// RunResult pairs a job with the error Run returned for it.
type RunResult struct {
	Job *model.Job
	Err error
}

// RunMany runs independent jobs concurrently, each with its own sequential worker.
// Results are in request order.
func (t *Tracker) RunMany(ctx context.Context, reqs []model.JobRequest) []RunResult {
	out := make([]RunResult, len(reqs))
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			job, err := t.Run(ctx, req)
			out[i] = RunResult{Job: job, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
