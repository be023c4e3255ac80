package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/fingerprint"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
	"github.com/target/mmk-crawlsync/internal/observability/metrics"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
)

const (
	// DefaultSyncBatchSize is the number of records written per store round trip.
	DefaultSyncBatchSize = 50
	// MaxSyncBatchSize caps configured batch sizes.
	MaxSyncBatchSize = 500
)

// SyncEngineOptions groups dependencies for SyncEngine.
type SyncEngineOptions struct {
	Store     core.RecordStore  // Required: record store
	BatchSize int               // Optional: defaults to DefaultSyncBatchSize
	Clock     core.TimeProvider // Optional: defaults to real time
	Logger    *slog.Logger      // Optional: structured logger
	Metrics   statsd.Sink       // Optional: decision counters
}

// SyncEngine merges extracted records into the record store with insert/update/skip semantics.
type SyncEngine struct {
	store     core.RecordStore
	batchSize int
	clock     core.TimeProvider
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewSyncEngine constructs a SyncEngine.
func NewSyncEngine(opts SyncEngineOptions) (*SyncEngine, error) {
	if opts.Store == nil {
		return nil, errors.New("RecordStore is required")
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultSyncBatchSize
	}
	if batch > MaxSyncBatchSize {
		batch = MaxSyncBatchSize
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.RealTimeProvider{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncEngine{
		store:     opts.Store,
		batchSize: batch,
		clock:     clock,
		logger:    logger.With("component", "sync_engine"),
		metrics:   opts.Metrics,
	}, nil
}

// SyncRequest is one call's worth of records from a single work item.
type SyncRequest struct {
	Source  *model.SourceDefinition
	Records []model.Record
	// DryRun performs lookups and decisions without writing.
	DryRun bool
}

// SyncResult reports the decisions and the store errors encountered.
type SyncResult struct {
	Counts model.SyncCounts
	Errors []error
}

type decision int

const (
	decideInsert decision = iota
	decideUpdate
	decideSkip
)

type pending struct {
	rec      *model.SyncRecord
	decision decision
}

// Sync applies records batch by batch, in order. A failed batch write is retried
// record by record; records that still fail are counted as failed and skipped.
func (e *SyncEngine) Sync(ctx context.Context, req SyncRequest) SyncResult {
	var res SyncResult
	for start := 0; start < len(req.Records); start += e.batchSize {
		end := min(start+e.batchSize, len(req.Records))
		e.syncBatch(ctx, req, req.Records[start:end], &res)
	}
	metrics.EmitSyncDecisions(e.metrics, req.Source.Name, res.Counts, req.DryRun)
	return res
}

func (e *SyncEngine) syncBatch(ctx context.Context, req SyncRequest, batch []model.Record, res *SyncResult) {
	def := req.Source
	now := e.clock.Now().UTC()

	// Coalesce repeats of the same dedup key; the later record wins.
	order := make([]string, 0, len(batch))
	byKey := make(map[string]*model.SyncRecord, len(batch))
	for _, r := range batch {
		keys := fingerprint.Of(r, def)
		dedup := keys.Fingerprint
		if def.Mode == model.ModeContent {
			dedup = keys.NaturalKey
		}
		if _, seen := byKey[dedup]; seen {
			res.Counts.Skipped++
		} else {
			order = append(order, dedup)
		}
		byKey[dedup] = &model.SyncRecord{
			Source:      def.Name,
			Fingerprint: keys.Fingerprint,
			NaturalKey:  keys.NaturalKey,
			ContentHash: keys.ContentHash,
			Payload:     r.Fields,
		}
	}

	existing, err := e.lookup(ctx, def, order)
	if err != nil {
		e.logger.ErrorContext(ctx, "record lookup failed", "source", def.Name, "records", len(order), "error", err)
		res.Counts.Failed += len(order)
		res.Errors = append(res.Errors, apperrors.StoreWrite(err, "look up existing records"))
		return
	}

	plan := make([]pending, 0, len(order))
	for _, k := range order {
		plan = append(plan, decide(def, byKey[k], existing[k], now))
	}

	writes := make([]*model.SyncRecord, 0, len(plan))
	for _, p := range plan {
		if p.decision == decideSkip {
			res.Counts.Skipped++
			continue
		}
		writes = append(writes, p.rec)
	}
	if len(writes) == 0 {
		return
	}
	if req.DryRun {
		tally(plan, &res.Counts, nil)
		return
	}

	out, err := e.store.Upsert(ctx, writes, def.ConflictKey())
	if err == nil && len(out.Errors) == 0 {
		tally(plan, &res.Counts, nil)
		return
	}

	e.logger.WarnContext(ctx, "batch write failed, retrying per record",
		"source", def.Name, "records", len(writes), "error", errors.Join(append(out.Errors, err)...))
	failed := make(map[*model.SyncRecord]bool)
	for _, w := range writes {
		if _, werr := e.store.Upsert(ctx, []*model.SyncRecord{w}, def.ConflictKey()); werr != nil {
			failed[w] = true
			res.Errors = append(res.Errors, apperrors.StoreWrite(werr,
				fmt.Sprintf("write record %s", short(w.Fingerprint))))
		}
	}
	tally(plan, &res.Counts, failed)
}

func (e *SyncEngine) lookup(ctx context.Context, def *model.SourceDefinition, keys []string) (map[string]*model.SyncRecord, error) {
	if len(keys) == 0 {
		return map[string]*model.SyncRecord{}, nil
	}
	if def.Mode == model.ModeContent {
		return e.store.LatestByNaturalKeys(ctx, def.Name, keys)
	}
	return e.store.GetByFingerprints(ctx, def.Name, keys)
}

// decide applies the sync decision table to one record.
func decide(def *model.SourceDefinition, rec, existing *model.SyncRecord, now time.Time) pending {
	if existing == nil {
		rec.FirstSeen, rec.LastSeen, rec.Version = now, now, 1
		return pending{rec: rec, decision: decideInsert}
	}
	if existing.ContentHash == rec.ContentHash {
		return pending{rec: rec, decision: decideSkip}
	}
	if def.Mode == model.ModeContent {
		rec.FirstSeen, rec.LastSeen, rec.Version = now, now, existing.Version+1
		return pending{rec: rec, decision: decideInsert}
	}
	rec.FirstSeen = existing.FirstSeen
	if rec.FirstSeen.IsZero() || rec.FirstSeen.After(now) {
		rec.FirstSeen = now
	}
	rec.LastSeen, rec.Version = now, existing.Version+1
	return pending{rec: rec, decision: decideUpdate}
}

func tally(plan []pending, counts *model.SyncCounts, failed map[*model.SyncRecord]bool) {
	for _, p := range plan {
		switch {
		case p.decision == decideSkip:
		case failed[p.rec]:
			counts.Failed++
		case p.decision == decideInsert:
			counts.Inserted++
		case p.decision == decideUpdate:
			counts.Updated++
		}
	}
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
