package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

type fakeJobs struct {
	run      func(ctx context.Context, req model.JobRequest) (*model.Job, error)
	jobs     map[string]*model.Job
	canceled []string
	gotReq   model.JobRequest
}

func (f *fakeJobs) Run(ctx context.Context, req model.JobRequest) (*model.Job, error) {
	f.gotReq = req
	return f.run(ctx, req)
}

func (f *fakeJobs) Get(_ context.Context, id string) (*model.Job, error) {
	if j, ok := f.jobs[id]; ok {
		return j, nil
	}
	return nil, apperrors.NotFoundf("job %s not found", id)
}

func (f *fakeJobs) Cancel(id string) error {
	if j, ok := f.jobs[id]; !ok || j.Status != model.JobStatusRunning {
		return apperrors.NotFoundf("job %s is not running", id)
	}
	f.canceled = append(f.canceled, id)
	return nil
}

type fakeRecords map[string]*model.SyncRecord

func (f fakeRecords) Get(_ context.Context, source, fp string) (*model.SyncRecord, error) {
	if r, ok := f[source+"/"+fp]; ok {
		return r, nil
	}
	return nil, apperrors.NotFoundf("record %s/%s not found", source, fp)
}

type fakeSources []string

func (f fakeSources) Names() []string { return f }

func completedJob(id string) *model.Job {
	created := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	done := created.Add(1500 * time.Millisecond)
	return &model.Job{
		ID:               id,
		Source:           "shareholding",
		Status:           model.JobStatusCompleted,
		TargetsProcessed: 1,
		DatesProcessed:   3,
		Counts:           model.JobCounts{Scraped: 9, Inserted: 6, Skipped: 2, Failed: 1},
		CreatedAt:        created,
		CompletedAt:      &done,
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateJob(t *testing.T) {
	jobs := &fakeJobs{run: func(_ context.Context, req model.JobRequest) (*model.Job, error) {
		return completedJob(req.JobID), nil
	}}
	router := NewRouter(RouterServices{Jobs: jobs})

	rec := serve(t, router, http.MethodPost, "/api/crawl-jobs",
		`{"targets":"700, 5","date_from":"2025-01-08","date_to":"2025-01-10","job_id":"j1","test_mode":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp model.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "j1", resp.JobID)
	assert.Equal(t, 6, resp.RecordsInserted)
	assert.Equal(t, 1, resp.RecordsFailed)
	assert.Equal(t, int64(1500), resp.DurationMS)
	assert.Equal(t, model.StringList{"700", "5"}, jobs.gotReq.Targets)
	assert.True(t, jobs.gotReq.TestMode)
}

func TestCreateJob_Failures(t *testing.T) {
	failed := func(err error) func(context.Context, model.JobRequest) (*model.Job, error) {
		return func(_ context.Context, req model.JobRequest) (*model.Job, error) {
			msg := err.Error()
			return &model.Job{ID: "j", Status: model.JobStatusFailed, ErrorMessage: &msg}, err
		}
	}
	tests := []struct {
		name       string
		run        func(context.Context, model.JobRequest) (*model.Job, error)
		body       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "range too large",
			run:        failed(apperrors.RangeTooLargef("date range spans 152 days")),
			body:       `{"targets":["00700"],"date_from":"2024-01-01","date_to":"2024-06-01"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "date range spans 152 days",
		},
		{
			name:       "unknown source",
			run:        failed(apperrors.MissingConfigurationf("unknown source %q", "nope")),
			body:       `{"targets":["1"],"source":"nope"}`,
			wantStatus: http.StatusInternalServerError,
			wantError:  `unknown source "nope"`,
		},
		{
			name:       "held lock",
			run:        failed(apperrors.Conflictf("target 00700 is locked")),
			body:       `{"targets":["1"],"latest_only":true}`,
			wantStatus: http.StatusConflict,
			wantError:  "target 00700 is locked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(RouterServices{Jobs: &fakeJobs{run: tt.run}})
			rec := serve(t, router, http.MethodPost, "/api/crawl-jobs", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp model.JobResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		router := NewRouter(RouterServices{Jobs: &fakeJobs{}})
		rec := serve(t, router, http.MethodPost, "/api/crawl-jobs", `{"targets":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_json")

		rec = serve(t, router, http.MethodPost, "/api/crawl-jobs", `{"targets":["1"],"bogus":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate running job id", func(t *testing.T) {
		router := NewRouter(RouterServices{Jobs: &fakeJobs{run: func(context.Context, model.JobRequest) (*model.Job, error) {
			return nil, apperrors.Conflictf("job j is already running")
		}}})
		rec := serve(t, router, http.MethodPost, "/api/crawl-jobs", `{"targets":["1"],"job_id":"j"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"conflict"`)
	})

	t.Run("request context is detached", func(t *testing.T) {
		var sawCancel bool
		jobs := &fakeJobs{run: func(ctx context.Context, req model.JobRequest) (*model.Job, error) {
			sawCancel = ctx.Err() != nil
			return completedJob("j"), nil
		}}
		router := NewRouter(RouterServices{Jobs: jobs})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/api/crawl-jobs", strings.NewReader(`{"targets":["1"]}`)).WithContext(ctx)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, sawCancel)
	})
}

func TestGetAndCancelJob(t *testing.T) {
	running := completedJob("run-1")
	running.Status = model.JobStatusRunning
	jobs := &fakeJobs{jobs: map[string]*model.Job{"done-1": completedJob("done-1"), "run-1": running}}
	router := NewRouter(RouterServices{Jobs: jobs})

	rec := serve(t, router, http.MethodGet, "/api/crawl-jobs/done-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	rec = serve(t, router, http.MethodGet, "/api/crawl-jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, http.MethodPost, "/api/crawl-jobs/run-1/cancel", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"run-1"}, jobs.canceled)

	rec = serve(t, router, http.MethodPost, "/api/crawl-jobs/done-1/cancel", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordsSourcesAndHealth(t *testing.T) {
	records := fakeRecords{"shareholding/abc": {Source: "shareholding", Fingerprint: "abc", Version: 2}}
	router := NewRouter(RouterServices{
		Jobs:    &fakeJobs{},
		Records: records,
		Sources: fakeSources{"filings", "shareholding"},
		Checks: map[string]HealthCheck{
			"store": func(context.Context) error { return nil },
		},
	})

	rec := serve(t, router, http.MethodGet, "/api/records/shareholding/abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":2`)

	rec = serve(t, router, http.MethodGet, "/api/records/shareholding/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, router, http.MethodGet, "/api/sources", "")
	assert.JSONEq(t, `{"sources":["filings","shareholding"]}`, rec.Body.String())

	rec = serve(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, router, http.MethodGet, "/api/crawl-jobs", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(t, router, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	degraded := NewRouter(RouterServices{Jobs: &fakeJobs{}, Checks: map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("dial tcp: refused") },
	}})
	rec = serve(t, degraded, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "refused")
}

func TestRecover(t *testing.T) {
	h := Recover(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
