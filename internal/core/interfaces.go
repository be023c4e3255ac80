// Package core declares the ports between the crawl pipeline and the collaborators it drives.
package core

import (
	"context"
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

// AutomationTarget is one automation session against a target site. The pipeline
// never inspects its internals. Implementations classify failures with the
// internal/errors codes (rate limit, transient network, navigation error or timeout).
type AutomationTarget interface {
	Navigate(ctx context.Context, url string) error
	FillField(ctx context.Context, name, value string) error
	Submit(ctx context.Context) error
	// WaitForStable blocks until the submitted content has settled or timeout elapses.
	WaitForStable(ctx context.Context, timeout time.Duration) error
	ReadContent(ctx context.Context) (string, error)
	Close() error
}

// TargetFactory opens a fresh session per work item.
type TargetFactory interface {
	Open(ctx context.Context, nav model.NavigationSpec) (AutomationTarget, error)
}

// RecordStore persists sync records. Upsert must be idempotent for a given conflict key.
type RecordStore interface {
	Get(ctx context.Context, source, fingerprint string) (*model.SyncRecord, error)
	GetByFingerprints(ctx context.Context, source string, fingerprints []string) (map[string]*model.SyncRecord, error)
	// LatestByNaturalKeys returns the highest version stored for each natural key.
	LatestByNaturalKeys(ctx context.Context, source string, keys []string) (map[string]*model.SyncRecord, error)
	Upsert(ctx context.Context, records []*model.SyncRecord, conflictKey []string) (model.UpsertResult, error)
}

// JobPersistence records job state transitions. Callers treat it as fire-and-forget.
type JobPersistence interface {
	UpdateStatus(ctx context.Context, update model.JobStatusUpdate) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
}

// TargetLocker serializes jobs that would hit the same target.
type TargetLocker interface {
	// Acquire returns false when another holder owns key.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release frees key only if token still owns it.
	Release(ctx context.Context, key, token string) error
}
