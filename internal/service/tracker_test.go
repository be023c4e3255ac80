package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/data"
	"github.com/target/mmk-crawlsync/internal/domain/extract"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/domain/navigate"
	"github.com/target/mmk-crawlsync/internal/domain/retry"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
	"github.com/target/mmk-crawlsync/internal/migrate"
	"github.com/target/mmk-crawlsync/internal/mocks"
	"github.com/target/mmk-crawlsync/internal/mocks/automation"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
	"github.com/target/mmk-crawlsync/internal/sources"
	"github.com/target/mmk-crawlsync/internal/testutil"
)

const trackerSources = `
sources:
  - name: shareholding
    mode: identity
    target_width: 5
    target_field: stock_code
    period_field: shareholding_date
    identity: [stock_code, shareholding_date, participant_id]
    holidays: ["2025-01-01"]
    columns:
      - {field: participant_id, labels: [Participant ID], type: text, required: true}
      - {field: shareholding, labels: [Shareholding], type: integer}
    navigation:
      url: "https://example.test/search"
      target_input: "#code"
      period_input: "#date"
      period_layout: "2006/01/02"
      submit: "#go"
      no_data_markers: ["No record found"]
      timeout: 1s
`

var trackerNow = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func table(rows ...string) string {
	var b strings.Builder
	b.WriteString("<table><tr><th>Participant ID</th><th>Shareholding</th></tr>")
	for _, r := range rows {
		b.WriteString(r)
	}
	b.WriteString("</table>")
	return b.String()
}

func row(id string, shares int) string {
	return fmt.Sprintf("<tr><td>%s</td><td>%d</td></tr>", id, shares)
}

type trackerFixture struct {
	tracker *Tracker
	factory *automation.ScriptedFactory
	store   *memStore
	metrics *statsd.Recorder
	sleeps  []time.Duration
	mu      sync.Mutex
}

type fixtureOpts struct {
	respond     automation.Responder
	persistence core.JobPersistence
	locker      core.TargetLocker
	maxErrors   int
}

func newTrackerFixture(t *testing.T, o fixtureOpts) *trackerFixture {
	t.Helper()
	reg, err := sources.Parse([]byte(trackerSources))
	require.NoError(t, err)

	f := &trackerFixture{
		factory: automation.NewScriptedFactory(o.respond),
		store:   newMemStore(),
		metrics: &statsd.Recorder{},
	}
	clock := core.NewFixedTimeProvider(trackerNow)
	nav, err := navigate.New(navigate.Options{Targets: f.factory, Extractor: extract.New(extract.Options{})})
	require.NoError(t, err)
	engine, err := NewSyncEngine(SyncEngineOptions{Store: f.store, Clock: clock})
	require.NoError(t, err)
	ctrl := retry.New(retry.Options{
		MaxAttempts: 3,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.mu.Lock()
			f.sleeps = append(f.sleeps, d)
			f.mu.Unlock()
			return ctx.Err()
		},
	})

	f.tracker, err = NewTracker(TrackerOptions{
		Sources:       reg,
		Runner:        nav,
		Sync:          engine,
		Retry:         ctrl,
		Persistence:   o.persistence,
		Locker:        o.locker,
		MaxErrors:     o.maxErrors,
		DefaultSource: "shareholding",
		Clock:         clock,
		Metrics:       f.metrics,
	})
	require.NoError(t, err)
	return f
}

func TestNewTracker_RequiresCollaborators(t *testing.T) {
	_, err := NewTracker(TrackerOptions{})
	assert.Error(t, err)
}

func TestTracker_NoDataScenario(t *testing.T) {
	f := newTrackerFixture(t, fixtureOpts{respond: automation.Static("<div>No record found</div>")})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"700"},
		DateFrom: "2025-01-10",
		DateTo:   "2025-01-10",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.JobCounts{}, job.Counts)
	assert.Equal(t, 1, job.TargetsProcessed)
	assert.Equal(t, 1, job.DatesProcessed)
	assert.Empty(t, job.Errors)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	pages := f.factory.Pages()
	require.Len(t, pages, 1)
	assert.Equal(t, map[string]string{"#code": "00700", "#date": "2025/01/10"}, pages[0].Fields)
	assert.True(t, model.NewJobResponse(job).Success)
}

func TestTracker_PartialFailureCompletes(t *testing.T) {
	respond := func(p automation.Page) (string, error) {
		switch p.Fields["#date"] {
		case "2025/01/07":
			return table(row("C00001", 100), row("C00002", 200)), nil
		case "2025/01/08":
			return "", apperrors.New(apperrors.ErrCodeExtractionFailure, "unparseable content")
		default:
			return table(row("C00003", 300)), nil
		}
	}
	f := newTrackerFixture(t, fixtureOpts{respond: respond})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"00700"},
		DateFrom: "2025-01-07",
		DateTo:   "2025-01-09",
	})
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.JobCounts{Scraped: 3, Inserted: 3, Failed: 1}, job.Counts)
	assert.Equal(t, 3, job.DatesProcessed)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, model.ItemError{
		Target: "00700", Period: "2025-01-08", Kind: string(apperrors.ErrCodeExtractionFailure),
		Message: job.Errors[0].Message,
	}, job.Errors[0])
	assert.Equal(t, 3, f.store.len())
	assert.Equal(t, 0, f.factory.Leaked())

	resp := model.NewJobResponse(job)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.RecordsFailed)
}

func TestTracker_RetryBound(t *testing.T) {
	respond := func(automation.Page) (string, error) {
		return "", apperrors.New(apperrors.ErrCodeRateLimitExceeded, "429 Too Many Requests")
	}
	f := newTrackerFixture(t, fixtureOpts{respond: respond})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"00700"},
		DateFrom: "2025-01-10",
		DateTo:   "2025-01-10",
	})
	require.NoError(t, err, "exhausted retries are not job-fatal")

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, f.factory.Opened())
	assert.Equal(t, 1, job.Counts.Failed)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, string(apperrors.ErrCodeRateLimitExceeded), job.Errors[0].Kind)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps)
	assert.Equal(t, 2.0, f.metrics.Sum("work_item.retries", nil))
}

func TestTracker_PolitenessBetweenItems(t *testing.T) {
	f := newTrackerFixture(t, fixtureOpts{respond: automation.Static("No record found")})

	_, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"1", "2"},
		DateFrom: "2025-01-09",
		DateTo:   "2025-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		retry.DefaultPolitenessDelay, retry.DefaultPolitenessDelay, retry.DefaultPolitenessDelay,
	}, f.sleeps, "three gaps between four items")

	var order []string
	for _, p := range f.factory.Pages() {
		order = append(order, p.Fields["#code"]+"@"+p.Fields["#date"])
	}
	assert.Equal(t, []string{"00001@2025/01/09", "00001@2025/01/10", "00002@2025/01/09", "00002@2025/01/10"}, order)
}

func TestTracker_PreflightFailures(t *testing.T) {
	tests := []struct {
		name string
		req  model.JobRequest
		code apperrors.ErrorCode
	}{
		{
			name: "range too large",
			req:  model.JobRequest{Targets: model.StringList{"700"}, DateFrom: "2024-01-01", DateTo: "2024-06-01"},
			code: apperrors.ErrCodeRangeTooLarge,
		},
		{
			name: "unknown source",
			req:  model.JobRequest{Source: "nope", Targets: model.StringList{"700"}},
			code: apperrors.ErrCodeMissingConfiguration,
		},
		{
			name: "bad date",
			req:  model.JobRequest{Targets: model.StringList{"700"}, DateFrom: "10/01/2025"},
			code: apperrors.ErrCodeValidation,
		},
		{
			name: "no targets",
			req:  model.JobRequest{LatestOnly: true},
			code: apperrors.ErrCodeValidation,
		},
		{
			name: "negative limit",
			req:  model.JobRequest{Targets: model.StringList{"700"}, Limit: -1},
			code: apperrors.ErrCodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTrackerFixture(t, fixtureOpts{respond: automation.Static("")})

			job, err := f.tracker.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
			assert.True(t, apperrors.IsJobFatal(err))
			assert.Equal(t, model.JobStatusFailed, job.Status)
			assert.Nil(t, job.StartedAt, "never entered running")
			require.NotNil(t, job.ErrorMessage)
			assert.Equal(t, 0, f.factory.Opened())

			resp := model.NewJobResponse(job)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestTracker_LatestOnlyAndLimit(t *testing.T) {
	f := newTrackerFixture(t, fixtureOpts{respond: automation.Static("No record found")})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:    model.StringList{"1", "2", "3"},
		LatestOnly: true,
		Limit:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, job.TargetsProcessed)
	assert.Equal(t, 1, job.DatesProcessed)
	for _, p := range f.factory.Pages() {
		assert.Equal(t, "2025/01/10", p.Fields["#date"])
	}
}

func TestTracker_TestModeWritesNothing(t *testing.T) {
	f := newTrackerFixture(t, fixtureOpts{respond: automation.Static(table(row("C00001", 1), row("C00002", 2)))})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"700"},
		DateFrom: "2025-01-10",
		TestMode: true,
	})
	require.NoError(t, err)
	assert.True(t, job.TestMode)
	assert.Equal(t, 2, job.Counts.Inserted)
	assert.Equal(t, 0, f.store.len())
}

func TestTracker_MaxErrorsBound(t *testing.T) {
	respond := func(automation.Page) (string, error) {
		return "", apperrors.New(apperrors.ErrCodeNavigationError, "404")
	}
	f := newTrackerFixture(t, fixtureOpts{respond: respond, maxErrors: 2})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"1", "2", "3", "4"},
		DateFrom: "2025-01-10",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, job.Counts.Failed)
	assert.Len(t, job.Errors, 2)
	assert.Equal(t, 4, f.factory.Opened(), "navigation errors are not retried")
}

func TestTracker_PersistenceFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockJobPersistence(ctrl)
	var statuses []model.JobStatus
	persistence.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u model.JobStatusUpdate) error {
			statuses = append(statuses, u.Status)
			return errors.New("database unavailable")
		}).AnyTimes()
	persistence.EXPECT().GetJob(gomock.Any(), "job-1").Return(nil, errors.New("database unavailable"))
	f := newTrackerFixture(t, fixtureOpts{respond: automation.Static(table(row("C00001", 1))), persistence: persistence})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"700"},
		DateFrom: "2025-01-10",
		JobID:    "job-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, []model.JobStatus{
		model.JobStatusPending, model.JobStatusRunning, model.JobStatusRunning, model.JobStatusCompleted,
	}, statuses)
	assert.Positive(t, f.metrics.Sum("job.persist_failed", nil))
}

func TestTracker_CancelBetweenItems(t *testing.T) {
	var f *trackerFixture
	respond := func(automation.Page) (string, error) {
		if len(f.factory.Pages()) == 1 {
			require.NoError(t, f.tracker.Cancel("job-c"))
		}
		return table(row("C00001", 1)), nil
	}
	f = newTrackerFixture(t, fixtureOpts{respond: respond})

	job, err := f.tracker.Run(context.Background(), model.JobRequest{
		Targets:  model.StringList{"1", "2", "3"},
		DateFrom: "2025-01-10",
		JobID:    "job-c",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCanceled, apperrors.GetCode(err))
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Len(t, f.factory.Pages(), 1, "in-flight item finished, later items not scheduled")
	assert.Equal(t, 1, f.store.len(), "written records are kept")

	assert.True(t, apperrors.IsNotFound(f.tracker.Cancel("job-c")))
}

func TestTracker_TargetLocks(t *testing.T) {
	t.Run("held lock fails pre-flight", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		locker := mocks.NewMockTargetLocker(ctrl)
		gomock.InOrder(
			locker.EXPECT().Acquire(gomock.Any(), LockKey("shareholding", "00001"), "job-l", DefaultLockTTL).Return(true, nil),
			locker.EXPECT().Acquire(gomock.Any(), LockKey("shareholding", "00002"), "job-l", DefaultLockTTL).Return(false, nil),
		)
		locker.EXPECT().Release(gomock.Any(), LockKey("shareholding", "00001"), "job-l").Return(nil)
		f := newTrackerFixture(t, fixtureOpts{respond: automation.Static(""), locker: locker})

		job, err := f.tracker.Run(context.Background(), model.JobRequest{
			Targets: model.StringList{"1", "2"}, DateFrom: "2025-01-10", JobID: "job-l",
		})
		assert.True(t, apperrors.IsConflict(err))
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, 0, f.factory.Opened())
	})

	t.Run("locks released after completion", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		locker := mocks.NewMockTargetLocker(ctrl)
		locker.EXPECT().Acquire(gomock.Any(), LockKey("shareholding", "00001"), gomock.Any(), gomock.Any()).Return(true, nil)
		locker.EXPECT().Release(gomock.Any(), LockKey("shareholding", "00001"), gomock.Any()).Return(nil)
		f := newTrackerFixture(t, fixtureOpts{respond: automation.Static("No record found"), locker: locker})

		_, err := f.tracker.Run(context.Background(), model.JobRequest{
			Targets: model.StringList{"1"}, DateFrom: "2025-01-09", DateTo: "2025-01-10",
		})
		require.NoError(t, err)
	})
}

func TestTracker_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	persistence := mocks.NewMockJobPersistence(ctrl)
	persistence.EXPECT().UpdateStatus(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	persistence.EXPECT().GetJob(gomock.Any(), "done").Return(&model.Job{ID: "done", Status: model.JobStatusCompleted}, nil)
	persistence.EXPECT().GetJob(gomock.Any(), "missing").Return(nil, apperrors.NotFoundf("job missing"))
	persistence.EXPECT().GetJob(gomock.Any(), "live").Return(nil, apperrors.NotFoundf("job live"))

	var live *model.Job
	var f *trackerFixture
	respond := func(automation.Page) (string, error) {
		var err error
		live, err = f.tracker.Get(context.Background(), "live")
		return "No record found", err
	}
	f = newTrackerFixture(t, fixtureOpts{respond: respond, persistence: persistence})

	_, err := f.tracker.Run(context.Background(), model.JobRequest{Targets: model.StringList{"1"}, DateFrom: "2025-01-10", JobID: "live"})
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, model.JobStatusRunning, live.Status)

	got, err := f.tracker.Get(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)

	_, err = f.tracker.Get(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTracker_RunMany(t *testing.T) {
	f := newTrackerFixture(t, fixtureOpts{respond: func(p automation.Page) (string, error) {
		return table(row("C0000"+p.Fields["#code"][4:], 1)), nil
	}})

	results := f.tracker.RunMany(context.Background(), []model.JobRequest{
		{Targets: model.StringList{"1"}, DateFrom: "2025-01-10"},
		{Targets: model.StringList{"2"}, DateFrom: "2025-01-10"},
		{Targets: model.StringList{"3"}, DateFrom: "2024-01-01", DateTo: "2024-12-31"},
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.True(t, apperrors.IsRangeTooLarge(results[2].Err))
	assert.Equal(t, model.JobStatusCompleted, results[0].Job.Status)
	assert.Equal(t, model.JobStatusFailed, results[2].Job.Status)
	assert.Equal(t, 2, f.store.len())
}

func TestTracker_FinishedJobIDIsNotReused(t *testing.T) {
	repo := data.NewCrawlJobRepo(testutil.SetupSQLiteDB(t), data.CrawlJobRepoConfig{Dialect: migrate.SQLite})
	f := newTrackerFixture(t, fixtureOpts{
		respond:     automation.Static(table(row("C00019", 1000))),
		persistence: repo,
	})
	ctx := context.Background()

	first, err := f.tracker.Run(ctx, model.JobRequest{Targets: model.StringList{"700"}, DateFrom: "2025-01-10", JobID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, first.Status)
	pages := len(f.factory.Pages())

	second, err := f.tracker.Run(ctx, model.JobRequest{Targets: model.StringList{"5"}, DateFrom: "2025-01-10", JobID: "job-1"})
	require.Error(t, err)
	assert.Nil(t, second)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	assert.Len(t, f.factory.Pages(), pages, "second run must not crawl")

	stored, err := repo.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, first.Counts, stored.Counts)
	assert.Equal(t, first.TargetsProcessed, stored.TargetsProcessed)

	fresh, err := f.tracker.Run(ctx, model.JobRequest{Targets: model.StringList{"5"}, DateFrom: "2025-01-10", JobID: "job-2"})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, fresh.Status)
}
