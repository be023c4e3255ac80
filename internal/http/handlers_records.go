package httpx

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// RecordReader reads stored sync records.
type RecordReader interface {
	Get(ctx context.Context, source, fingerprint string) (*model.SyncRecord, error)
}

// SourceLister names the registered sources.
type SourceLister interface {
	Names() []string
}

// RecordHandlers serves read-only record and source lookups.
type RecordHandlers struct {
	Records RecordReader
	Sources SourceLister
}

// GetRecord returns the latest stored version of a record.
func (h *RecordHandlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Records.Get(r.Context(), chi.URLParam(r, "source"), chi.URLParam(r, "fingerprint"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// ListSources returns the registered source names.
func (h *RecordHandlers) ListSources(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{"sources": h.Sources.Names()})
}
