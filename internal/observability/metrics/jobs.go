// Package metrics emits the crawl pipeline's standard metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	obserrors "github.com/target/mmk-crawlsync/internal/observability/errors"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names for job lifecycle metrics.
const (
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Source     string
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"source":     in.Source,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// WorkItemMetric describes one processed work item.
type WorkItemMetric struct {
	Source   string
	Status   model.OutcomeStatus
	Attempts int
	Records  int
	Duration time.Duration
	Err      error
}

// EmitWorkItem emits the outcome counter, attempt count and duration of a work item.
func EmitWorkItem(sink statsd.Sink, in WorkItemMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"source": in.Source, "status": string(in.Status)}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("work_item.outcome", 1, tags)
	sink.Count("work_item.records", int64(in.Records), CloneTags(tags))
	if in.Attempts > 1 {
		sink.Count("work_item.retries", int64(in.Attempts-1), map[string]string{"source": in.Source})
	}
	if in.Duration > 0 {
		sink.Timing("work_item.duration", in.Duration, CloneTags(tags))
	}
}

// EmitSyncDecisions emits one counter per sync decision kind.
func EmitSyncDecisions(sink statsd.Sink, source string, counts model.SyncCounts, dryRun bool) {
	if sink == nil {
		return
	}
	emit := func(action string, n int) {
		if n == 0 {
			return
		}
		sink.Count("sync.decision", int64(n), map[string]string{
			"source":  source,
			"action":  action,
			"dry_run": strconv.FormatBool(dryRun),
		})
	}
	emit("inserted", counts.Inserted)
	emit("updated", counts.Updated)
	emit("skipped", counts.Skipped)
	emit("failed", counts.Failed)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
