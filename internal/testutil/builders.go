package testutil

import (
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building crawl job requests in tests.
type JobRequestBuilder struct {
	req model.JobRequest
}

// NewJobRequest creates a builder for a single-target, single-day request.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{req: model.JobRequest{
		Targets:  model.StringList{"00700"},
		DateFrom: "2025-01-10",
		DateTo:   "2025-01-10",
	}}
}

// WithSource sets the source name.
func (b *JobRequestBuilder) WithSource(source string) *JobRequestBuilder {
	b.req.Source = source
	return b
}

// WithTargets replaces the targets.
func (b *JobRequestBuilder) WithTargets(targets ...string) *JobRequestBuilder {
	b.req.Targets = targets
	return b
}

// WithRange sets an inclusive date range.
func (b *JobRequestBuilder) WithRange(from, to string) *JobRequestBuilder {
	b.req.DateFrom, b.req.DateTo = from, to
	return b
}

// Latest switches the request to latest-only mode.
func (b *JobRequestBuilder) Latest() *JobRequestBuilder {
	b.req.DateFrom, b.req.DateTo = "", ""
	b.req.LatestOnly = true
	return b
}

// WithLimit caps the number of work items.
func (b *JobRequestBuilder) WithLimit(n int) *JobRequestBuilder {
	b.req.Limit = n
	return b
}

// TestMode marks the request as a dry run.
func (b *JobRequestBuilder) TestMode() *JobRequestBuilder {
	b.req.TestMode = true
	return b
}

// WithJobID pins the job id.
func (b *JobRequestBuilder) WithJobID(id string) *JobRequestBuilder {
	b.req.JobID = id
	return b
}

// Build returns the request.
func (b *JobRequestBuilder) Build() model.JobRequest {
	return b.req
}

// SyncRecordBuilder builds stored records for store tests.
type SyncRecordBuilder struct {
	rec model.SyncRecord
}

// NewSyncRecord creates a version 1 identity record seen at TestTime.
func NewSyncRecord(source, fingerprint string) *SyncRecordBuilder {
	now := TestTime()
	return &SyncRecordBuilder{rec: model.SyncRecord{
		Source:      source,
		Fingerprint: fingerprint,
		NaturalKey:  fingerprint,
		ContentHash: "hash-" + fingerprint,
		Payload:     map[string]model.Value{"fingerprint": model.String(fingerprint)},
		FirstSeen:   now,
		LastSeen:    now,
		Version:     1,
	}}
}

// WithNaturalKey sets the natural key.
func (b *SyncRecordBuilder) WithNaturalKey(key string) *SyncRecordBuilder {
	b.rec.NaturalKey = key
	return b
}

// WithContent sets the content hash and a payload field.
func (b *SyncRecordBuilder) WithContent(hash string, field string, v model.Value) *SyncRecordBuilder {
	b.rec.ContentHash = hash
	b.rec.Payload[field] = v
	return b
}

// WithVersion sets the version.
func (b *SyncRecordBuilder) WithVersion(v int) *SyncRecordBuilder {
	b.rec.Version = v
	return b
}

// SeenAt sets last_seen.
func (b *SyncRecordBuilder) SeenAt(t time.Time) *SyncRecordBuilder {
	b.rec.LastSeen = t
	return b
}

// Build returns a pointer to a copy of the record.
func (b *SyncRecordBuilder) Build() *model.SyncRecord {
	rec := b.rec
	rec.Payload = make(map[string]model.Value, len(b.rec.Payload))
	for k, v := range b.rec.Payload {
		rec.Payload[k] = v
	}
	return &rec
}
