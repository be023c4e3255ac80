package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
	"github.com/target/mmk-crawlsync/internal/mocks"
	"github.com/target/mmk-crawlsync/internal/observability/statsd"
)

// memStore is an in-memory RecordStore keyed by the requested conflict key.
type memStore struct {
	mu   sync.Mutex
	rows map[string]*model.SyncRecord
}

func newMemStore() *memStore { return &memStore{rows: map[string]*model.SyncRecord{}} }

var _ core.RecordStore = (*memStore)(nil)

func (m *memStore) Get(_ context.Context, source, fp string) (*model.SyncRecord, error) {
	got, _ := m.GetByFingerprints(context.Background(), source, []string{fp})
	if r, ok := got[fp]; ok {
		return r, nil
	}
	return nil, apperrors.NotFoundf("record %s", fp)
}

func (m *memStore) GetByFingerprints(_ context.Context, source string, fps []string) (map[string]*model.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*model.SyncRecord{}
	for _, r := range m.rows {
		for _, fp := range fps {
			if r.Source == source && r.Fingerprint == fp {
				if cur, ok := out[fp]; !ok || r.Version > cur.Version {
					cp := *r
					out[fp] = &cp
				}
			}
		}
	}
	return out, nil
}

func (m *memStore) LatestByNaturalKeys(_ context.Context, source string, keys []string) (map[string]*model.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*model.SyncRecord{}
	for _, r := range m.rows {
		for _, k := range keys {
			if r.Source == source && r.NaturalKey == k {
				if cur, ok := out[k]; !ok || r.Version > cur.Version {
					cp := *r
					out[k] = &cp
				}
			}
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, recs []*model.SyncRecord, conflictKey []string) (model.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res model.UpsertResult
	for _, r := range recs {
		key := r.Source + "|" + r.Fingerprint
		if len(conflictKey) == 3 {
			key = fmt.Sprintf("%s|%s|%d", r.Source, r.NaturalKey, r.Version)
		}
		if _, ok := m.rows[key]; ok {
			res.Updated++
		} else {
			res.Inserted++
		}
		cp := *r
		m.rows[key] = &cp
	}
	return res, nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

var syncNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func identityDef() *model.SourceDefinition {
	return &model.SourceDefinition{
		Name:        "shareholding",
		Mode:        model.ModeIdentity,
		TargetField: "stock_code",
		PeriodField: "shareholding_date",
		Identity:    []string{"stock_code", "shareholding_date", "participant_id"},
		Columns: []model.ColumnSpec{
			{Field: "participant_id", Type: model.ColumnText, Required: true},
			{Field: "shareholding", Type: model.ColumnInteger},
		},
	}
}

func contentDef() *model.SourceDefinition {
	d := identityDef()
	d.Name = "filings"
	d.Mode = model.ModeContent
	return d
}

func holding(participant string, shares float64) model.Record {
	r := model.NewRecord(syncNow)
	r.Set("stock_code", model.String("00700"))
	r.Set("shareholding_date", model.String("2025-01-10"))
	r.Set("participant_id", model.String(participant))
	r.Set("shareholding", model.Number(shares))
	return r
}

func newEngine(t *testing.T, store core.RecordStore, batch int, clock core.TimeProvider) *SyncEngine {
	t.Helper()
	e, err := NewSyncEngine(SyncEngineOptions{Store: store, BatchSize: batch, Clock: clock})
	require.NoError(t, err)
	return e
}

func TestNewSyncEngine(t *testing.T) {
	_, err := NewSyncEngine(SyncEngineOptions{})
	assert.Error(t, err)

	e, err := NewSyncEngine(SyncEngineOptions{Store: newMemStore(), BatchSize: 10_000})
	require.NoError(t, err)
	assert.Equal(t, MaxSyncBatchSize, e.batchSize)

	e, err = NewSyncEngine(SyncEngineOptions{Store: newMemStore()})
	require.NoError(t, err)
	assert.Equal(t, DefaultSyncBatchSize, e.batchSize)
}

func TestSync_IdempotentIdentity(t *testing.T) {
	for _, n := range []int{0, 1, 7, 120} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := newMemStore()
			engine := newEngine(t, store, 50, core.NewFixedTimeProvider(syncNow))
			recs := make([]model.Record, n)
			for i := range recs {
				recs[i] = holding(fmt.Sprintf("C%05d", i), float64(1000+i))
			}
			req := SyncRequest{Source: identityDef(), Records: recs}

			first := engine.Sync(context.Background(), req)
			assert.Equal(t, model.SyncCounts{Inserted: n}, first.Counts)
			assert.Empty(t, first.Errors)

			second := engine.Sync(context.Background(), req)
			assert.Equal(t, model.SyncCounts{Skipped: n}, second.Counts)
			assert.Equal(t, n, store.len())
		})
	}
}

func TestSync_IdentityUpdateInPlace(t *testing.T) {
	store := newMemStore()
	clock := core.NewFixedTimeProvider(syncNow)
	engine := newEngine(t, store, 50, clock)
	def := identityDef()

	engine.Sync(context.Background(), SyncRequest{Source: def, Records: []model.Record{holding("C00019", 1000)}})
	clock.AddTime(24 * time.Hour)
	res := engine.Sync(context.Background(), SyncRequest{Source: def, Records: []model.Record{holding("C00019", 2000)}})

	assert.Equal(t, model.SyncCounts{Updated: 1}, res.Counts)
	require.Equal(t, 1, store.len())
	for _, r := range store.rows {
		assert.Equal(t, 2, r.Version)
		assert.Equal(t, syncNow, r.FirstSeen)
		assert.Equal(t, syncNow.Add(24*time.Hour), r.LastSeen)
		assert.Equal(t, model.Number(2000), r.Payload["shareholding"])
	}
}

func TestSync_ContentKeepsHistory(t *testing.T) {
	store := newMemStore()
	engine := newEngine(t, store, 50, core.NewFixedTimeProvider(syncNow))
	def := contentDef()

	first := engine.Sync(context.Background(), SyncRequest{Source: def, Records: []model.Record{holding("C00019", 1000)}})
	second := engine.Sync(context.Background(), SyncRequest{Source: def, Records: []model.Record{holding("C00019", 2000)}})
	third := engine.Sync(context.Background(), SyncRequest{Source: def, Records: []model.Record{holding("C00019", 2000)}})

	assert.Equal(t, model.SyncCounts{Inserted: 1}, first.Counts)
	assert.Equal(t, model.SyncCounts{Inserted: 1}, second.Counts, "changed content adds a row")
	assert.Equal(t, model.SyncCounts{Skipped: 1}, third.Counts)
	assert.Equal(t, 2, store.len())

	versions := map[int]bool{}
	for _, r := range store.rows {
		versions[r.Version] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, versions)
}

func TestSync_DuplicateInBatchLaterWins(t *testing.T) {
	store := newMemStore()
	engine := newEngine(t, store, 50, core.NewFixedTimeProvider(syncNow))

	res := engine.Sync(context.Background(), SyncRequest{
		Source:  identityDef(),
		Records: []model.Record{holding("C00019", 1000), holding("C00019", 3000)},
	})
	assert.Equal(t, model.SyncCounts{Inserted: 1, Skipped: 1}, res.Counts)
	for _, r := range store.rows {
		assert.Equal(t, model.Number(3000), r.Payload["shareholding"])
	}
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().GetByFingerprints(gomock.Any(), "shareholding", gomock.Len(2)).
		Return(map[string]*model.SyncRecord{}, nil)
	rec := &statsd.Recorder{}
	engine, err := NewSyncEngine(SyncEngineOptions{Store: store, Metrics: rec})
	require.NoError(t, err)

	res := engine.Sync(context.Background(), SyncRequest{
		Source:  identityDef(),
		Records: []model.Record{holding("C00019", 1), holding("C00020", 2)},
		DryRun:  true,
	})
	assert.Equal(t, model.SyncCounts{Inserted: 2}, res.Counts)
	assert.Equal(t, 2.0, rec.Sum("sync.decision", map[string]string{"action": "inserted", "dry_run": "true"}))
}

func TestSync_BatchFailureDegradesPerRecord(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().GetByFingerprints(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(map[string]*model.SyncRecord{}, nil)
	gomock.InOrder(
		store.EXPECT().Upsert(gomock.Any(), gomock.Len(3), []string{"source", "fingerprint"}).
			Return(model.UpsertResult{}, errors.New("batch rejected")),
		store.EXPECT().Upsert(gomock.Any(), gomock.Len(1), gomock.Any()).Return(model.UpsertResult{Inserted: 1}, nil),
		store.EXPECT().Upsert(gomock.Any(), gomock.Len(1), gomock.Any()).
			Return(model.UpsertResult{}, apperrors.New(apperrors.ErrCodeValidation, "bad row")),
		store.EXPECT().Upsert(gomock.Any(), gomock.Len(1), gomock.Any()).Return(model.UpsertResult{Inserted: 1}, nil),
	)
	engine := newEngine(t, store, 50, nil)

	res := engine.Sync(context.Background(), SyncRequest{
		Source:  identityDef(),
		Records: []model.Record{holding("C00001", 1), holding("C00002", 2), holding("C00003", 3)},
	})
	assert.Equal(t, model.SyncCounts{Inserted: 2, Failed: 1}, res.Counts)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.ErrCodeStoreWrite, apperrors.GetCode(res.Errors[0]))
}

func TestSync_LookupFailureFailsBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().GetByFingerprints(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))
	engine := newEngine(t, store, 50, nil)

	res := engine.Sync(context.Background(), SyncRequest{
		Source:  identityDef(),
		Records: []model.Record{holding("C00001", 1), holding("C00002", 2)},
	})
	assert.Equal(t, model.SyncCounts{Failed: 2}, res.Counts)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, apperrors.ErrCodeStoreWrite, apperrors.GetCode(res.Errors[0]))
}

func TestSync_Batches(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().GetByFingerprints(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(map[string]*model.SyncRecord{}, nil).Times(3)
	store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, recs []*model.SyncRecord, _ []string) (model.UpsertResult, error) {
			assert.LessOrEqual(t, len(recs), 2)
			return model.UpsertResult{Inserted: len(recs)}, nil
		}).Times(3)
	engine := newEngine(t, store, 2, nil)

	recs := []model.Record{holding("C00001", 1), holding("C00002", 2), holding("C00003", 3), holding("C00004", 4), holding("C00005", 5)}
	res := engine.Sync(context.Background(), SyncRequest{Source: identityDef(), Records: recs})
	assert.Equal(t, model.SyncCounts{Inserted: 5}, res.Counts)
}

func TestSync_ContentModeLooksUpByNaturalKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().LatestByNaturalKeys(gomock.Any(), "filings", gomock.Len(1)).
		DoAndReturn(func(_ context.Context, _ string, keys []string) (map[string]*model.SyncRecord, error) {
			return map[string]*model.SyncRecord{keys[0]: {NaturalKey: keys[0], ContentHash: "old", Version: 4}}, nil
		})
	store.EXPECT().Upsert(gomock.Any(), gomock.Any(), []string{"source", "natural_key", "version"}).
		DoAndReturn(func(_ context.Context, recs []*model.SyncRecord, _ []string) (model.UpsertResult, error) {
			require.Len(t, recs, 1)
			assert.Equal(t, 5, recs[0].Version)
			return model.UpsertResult{Inserted: 1}, nil
		})
	engine := newEngine(t, store, 50, nil)

	res := engine.Sync(context.Background(), SyncRequest{Source: contentDef(), Records: []model.Record{holding("C00019", 1)}})
	assert.Equal(t, model.SyncCounts{Inserted: 1}, res.Counts)
}
