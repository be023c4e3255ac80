package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterServices holds what the HTTP router serves.
type RouterServices struct {
	Jobs    JobRunner
	List    JobLister
	Records RecordReader
	Sources SourceLister
	// Checks run on /healthz, keyed by dependency name.
	Checks map[string]HealthCheck
	// ReadTimeout bounds the read-only endpoints. Job runs are not bounded here.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

// NewRouter builds the chi router for the crawl API.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readTimeout := services.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	jobs := &JobHandlers{Jobs: services.Jobs, List: services.List, Logger: logger.With("component", "http_jobs")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recover(logger))
	r.Use(Logging(logger))

	health := healthHandler(services.Checks)
	r.Get("/healthz", health)
	r.Head("/healthz", health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/crawl-jobs", jobs.CreateJob)
		r.Post("/crawl-jobs/{id}/cancel", jobs.CancelJob)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(readTimeout))
			r.Get("/crawl-jobs", jobs.ListJobs)
			r.Get("/crawl-jobs/{id}", jobs.GetJob)
			records := &RecordHandlers{Records: services.Records, Sources: services.Sources}
			if services.Records != nil {
				r.Get("/records/{source}/{fingerprint}", records.GetRecord)
			}
			if services.Sources != nil {
				r.Get("/sources", records.ListSources)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: errNotFound})
	})
	return r
}
