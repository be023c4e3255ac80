package data

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

var (
	identityConflictKey = []string{"source", "fingerprint"}
	contentConflictKey  = []string{"source", "natural_key", "version"}
)

// keyedBy maps a conflict key to the row's keyed_by column.
func keyedBy(conflictKey []string) (model.FingerprintMode, error) {
	switch {
	case slices.Equal(conflictKey, identityConflictKey):
		return model.ModeIdentity, nil
	case slices.Equal(conflictKey, contentConflictKey):
		return model.ModeContent, nil
	default:
		return "", fmt.Errorf("%w: %v", ErrUnsupportedConflictKey, conflictKey)
	}
}

const syncRecordColumns = `source, fingerprint, natural_key, content_hash, payload, first_seen, last_seen, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (*model.SyncRecord, error) {
	var (
		rec     model.SyncRecord
		payload []byte
	)
	if err := row.Scan(&rec.Source, &rec.Fingerprint, &rec.NaturalKey, &rec.ContentHash,
		&payload, &rec.FirstSeen, &rec.LastSeen, &rec.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", rec.Fingerprint, err)
	}
	rec.FirstSeen = rec.FirstSeen.UTC()
	rec.LastSeen = rec.LastSeen.UTC()
	return &rec, nil
}

func encodePayload(rec *model.SyncRecord) ([]byte, error) {
	payload := rec.Payload
	if payload == nil {
		payload = map[string]model.Value{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of %s: %w", rec.Fingerprint, err)
	}
	return b, nil
}

// keepLatest retains the highest version per key.
func keepLatest(out map[string]*model.SyncRecord, key string, rec *model.SyncRecord) {
	if cur, ok := out[key]; !ok || rec.Version > cur.Version {
		out[key] = rec
	}
}
