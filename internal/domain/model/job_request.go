package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of request dates and work item periods.
const DateLayout = "2006-01-02"

// StringList accepts either a JSON string (comma separated) or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = SplitList(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("targets must be a string or an array of strings")
	}
	out := make([]string, 0, len(many))
	for _, s := range many {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JobRequest is the body accepted by the job endpoint.
type JobRequest struct {
	Source     string     `json:"source,omitempty"`
	Targets    StringList `json:"targets"`
	DateFrom   string     `json:"date_from,omitempty"`
	DateTo     string     `json:"date_to,omitempty"`
	LatestOnly bool       `json:"latest_only,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	TestMode   bool       `json:"test_mode,omitempty"`
	JobID      string     `json:"job_id,omitempty"`
}

// JobResponse is the body returned once a job reaches a terminal state.
type JobResponse struct {
	Success          bool        `json:"success"`
	JobID            string      `json:"job_id"`
	Status           JobStatus   `json:"status"`
	TargetsProcessed int         `json:"targets_processed"`
	DatesProcessed   int         `json:"dates_processed"`
	RecordsScraped   int         `json:"records_scraped"`
	RecordsInserted  int         `json:"records_inserted"`
	RecordsUpdated   int         `json:"records_updated"`
	RecordsSkipped   int         `json:"records_skipped"`
	RecordsDropped   int         `json:"records_dropped"`
	RecordsFailed    int         `json:"records_failed"`
	DurationMS       int64       `json:"duration_ms"`
	Errors           []ItemError `json:"errors,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// NewJobResponse maps a terminal job to its response. Only completed jobs report success.
func NewJobResponse(job *Job) JobResponse {
	resp := JobResponse{
		Success:          job.Status == JobStatusCompleted,
		JobID:            job.ID,
		Status:           job.Status,
		TargetsProcessed: job.TargetsProcessed,
		DatesProcessed:   job.DatesProcessed,
		RecordsScraped:   job.Counts.Scraped,
		RecordsInserted:  job.Counts.Inserted,
		RecordsUpdated:   job.Counts.Updated,
		RecordsSkipped:   job.Counts.Skipped,
		RecordsDropped:   job.Counts.Dropped,
		RecordsFailed:    job.Counts.Failed,
		DurationMS:       job.Duration().Milliseconds(),
		Errors:           job.Errors,
	}
	if job.ErrorMessage != nil {
		resp.Error = *job.ErrorMessage
	}
	return resp
}

// ParseDate parses an optional YYYY-MM-DD date; empty input yields the zero time.
func ParseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, err)
	}
	return t, nil
}
