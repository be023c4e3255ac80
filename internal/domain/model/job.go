// Package model defines the data types shared by the crawl pipeline, its stores and its HTTP boundary.
package model

import (
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of a crawl job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job was requested but has not started any work item.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is processing work items.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every scheduled work item was attempted.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a pre-flight failure or an external cancellation.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

// JobCounts are the running totals of a job.
type JobCounts struct {
	Scraped  int `json:"scraped"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Dropped  int `json:"dropped"`
}

// ItemError is a retained per-work-item failure.
type ItemError struct {
	Target  string `json:"target"`
	Period  string `json:"period"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job is one run-to-completion execution over a set of work items.
type Job struct {
	ID               string      `json:"id"                      db:"id"`
	Source           string      `json:"source"                  db:"source"`
	Status           JobStatus   `json:"status"                  db:"status"`
	Counts           JobCounts   `json:"counts"                  db:"counts"`
	TargetsProcessed int         `json:"targets_processed"       db:"targets_processed"`
	DatesProcessed   int         `json:"dates_processed"         db:"dates_processed"`
	TestMode         bool        `json:"test_mode"               db:"test_mode"`
	Errors           []ItemError `json:"errors,omitempty"        db:"errors"`
	ErrorMessage     *string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time   `json:"created_at"              db:"created_at"`
	StartedAt        *time.Time  `json:"started_at,omitempty"    db:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"  db:"completed_at"`
}

// Duration is the wall time from creation to completion, or zero while running.
func (j *Job) Duration() time.Duration {
	if j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(j.CreatedAt)
}

// JobStatusUpdate is the snapshot handed to job persistence on every transition.
type JobStatusUpdate struct {
	JobID            string
	Source           string
	Status           JobStatus
	Counts           *JobCounts
	TargetsProcessed int
	DatesProcessed   int
	TestMode         bool
	Errors           []ItemError
	ErrorMessage     *string
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// StatusUpdate snapshots the job for persistence.
func (j *Job) StatusUpdate() JobStatusUpdate {
	counts := j.Counts
	errs := make([]ItemError, len(j.Errors))
	copy(errs, j.Errors)
	return JobStatusUpdate{
		JobID:            j.ID,
		Source:           j.Source,
		Status:           j.Status,
		Counts:           &counts,
		TargetsProcessed: j.TargetsProcessed,
		DatesProcessed:   j.DatesProcessed,
		TestMode:         j.TestMode,
		Errors:           errs,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}
