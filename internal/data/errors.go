package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrUnsupportedConflictKey is returned when Upsert is asked for a key no unique index backs.
	ErrUnsupportedConflictKey = errors.New("unsupported conflict key")
	// ErrJobIDRequired is returned when a job update carries no id.
	ErrJobIDRequired = errors.New("job_id is required")
	// ErrJobFinished is returned when an update targets a completed or failed job.
	ErrJobFinished = errors.New("job already finished")
	// ErrKeyRequired is returned when a lock key is empty.
	ErrKeyRequired = errors.New("key cannot be empty")
)
