// Package httpx exposes the crawl job API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// JobRunner runs and tracks crawl jobs.
type JobRunner interface {
	Run(ctx context.Context, req model.JobRequest) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Cancel(id string) error
}

// JobLister lists persisted jobs.
type JobLister interface {
	ListRecent(ctx context.Context, source string, limit int) ([]*model.Job, error)
}

// JobHandlers serves the crawl job endpoints.
type JobHandlers struct {
	Jobs   JobRunner
	List   JobLister
	Logger *slog.Logger
}

const defaultListLimit = 50

// CreateJob runs a job to a terminal state and returns its response.
// The job outlives the request: a disconnecting client does not cancel it.
func (h *JobHandlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req model.JobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.Jobs.Run(context.WithoutCancel(r.Context()), req)
	if job == nil {
		if err == nil {
			err = errors.New("job produced no result")
		}
		WriteAppError(w, err)
		return
	}
	resp := model.NewJobResponse(job)
	if err != nil {
		h.Logger.Info("job failed", "job_id", job.ID, "error", err)
		WriteJSON(w, StatusFor(err), resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetJob returns the live or persisted state of a job.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// CancelJob asks a running job to stop before its next work item.
func (h *JobHandlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Jobs.Cancel(id); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "canceling"})
}

// ListJobs returns recent persisted jobs, optionally for one source.
func (h *JobHandlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	if h.List == nil {
		WriteJSON(w, http.StatusOK, []*model.Job{})
		return
	}
	jobs, err := h.List.ListRecent(r.Context(), r.URL.Query().Get("source"), parseIntQuery(r, "limit", defaultListLimit))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	WriteJSON(w, http.StatusOK, jobs)
}
