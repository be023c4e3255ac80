package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/data/dbutil"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

// SQLiteRecordStore persists sync records in an embedded SQLite database.
type SQLiteRecordStore struct {
	DB     *sql.DB
	logger *slog.Logger
}

var _ core.RecordStore = (*SQLiteRecordStore)(nil)

// NewSQLiteRecordStore creates a SQLiteRecordStore.
func NewSQLiteRecordStore(db *sql.DB, logger *slog.Logger) *SQLiteRecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteRecordStore{DB: db, logger: logger.With("component", "record_store", "driver", "sqlite")}
}

// Get returns the latest version stored under fingerprint.
func (s *SQLiteRecordStore) Get(ctx context.Context, source, fingerprint string) (*model.SyncRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+syncRecordColumns+`
		FROM sync_records
		WHERE source = ? AND fingerprint = ?
		ORDER BY version DESC
		LIMIT 1`, source, fingerprint)
	rec, err := scanSyncRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFoundf("record %s/%s not found", source, fingerprint)
		}
		return nil, apperrors.MapDBError(err)
	}
	return rec, nil
}

// GetByFingerprints returns the latest version per fingerprint.
func (s *SQLiteRecordStore) GetByFingerprints(
	ctx context.Context,
	source string,
	fingerprints []string,
) (map[string]*model.SyncRecord, error) {
	return s.latest(ctx, "fingerprint", source, fingerprints)
}

// LatestByNaturalKeys returns the highest version per natural key.
func (s *SQLiteRecordStore) LatestByNaturalKeys(
	ctx context.Context,
	source string,
	keys []string,
) (map[string]*model.SyncRecord, error) {
	return s.latest(ctx, "natural_key", source, keys)
}

func (s *SQLiteRecordStore) latest(ctx context.Context, column, source string, keys []string) (map[string]*model.SyncRecord, error) {
	out := make(map[string]*model.SyncRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(keys)+1)
	args = append(args, source)
	for _, k := range keys {
		args = append(args, k)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := fmt.Sprintf(`SELECT `+syncRecordColumns+` FROM sync_records WHERE source = ? AND %s IN (%s)`, column, marks)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		if column == "natural_key" {
			keepLatest(out, rec.NaturalKey, rec)
		} else {
			keepLatest(out, rec.Fingerprint, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return out, nil
}

// Upsert writes records in one transaction. SQLite has no xmax, so existence is checked first.
func (s *SQLiteRecordStore) Upsert(
	ctx context.Context,
	records []*model.SyncRecord,
	conflictKey []string,
) (model.UpsertResult, error) {
	var res model.UpsertResult
	if len(records) == 0 {
		return res, nil
	}
	mode, err := keyedBy(conflictKey)
	if err != nil {
		return res, err
	}
	exists, upsert := sqliteUpsertSQL(mode)

	err = dbutil.WithSQLTx(ctx, s.DB, dbutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		for i, rec := range records {
			payload, err := encodePayload(rec)
			if err != nil {
				return err
			}
			var n int
			existsArgs := []any{rec.Source, rec.Fingerprint}
			if mode == model.ModeContent {
				existsArgs = []any{rec.Source, rec.NaturalKey, rec.Version}
			}
			if err := tx.QueryRowContext(ctx, exists, existsArgs...).Scan(&n); err != nil {
				return fmt.Errorf("check record %d: %w", i, err)
			}
			if _, err := tx.ExecContext(ctx, upsert, rec.Source, string(mode), rec.Fingerprint, rec.NaturalKey,
				rec.ContentHash, string(payload), rec.FirstSeen.UTC(), rec.LastSeen.UTC(), rec.Version); err != nil {
				return fmt.Errorf("upsert record %d: %w", i, err)
			}
			if n == 0 {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		return nil
	}})
	if err != nil {
		s.logger.WarnContext(ctx, "batch upsert failed", "records", len(records), "error", err)
		return model.UpsertResult{}, apperrors.StoreWrite(err, "upsert sync records")
	}
	return res, nil
}

func sqliteUpsertSQL(mode model.FingerprintMode) (exists, upsert string) {
	exists = `SELECT COUNT(1) FROM sync_records WHERE source = ? AND fingerprint = ? AND keyed_by = 'identity'`
	target := `(source, fingerprint) WHERE keyed_by = 'identity'`
	if mode == model.ModeContent {
		exists = `SELECT COUNT(1) FROM sync_records WHERE source = ? AND natural_key = ? AND version = ?`
		target = `(source, natural_key, version)`
	}
	upsert = `
		INSERT INTO sync_records (source, keyed_by, fingerprint, natural_key, content_hash, payload, first_seen, last_seen, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT ` + target + ` DO UPDATE SET
			fingerprint  = excluded.fingerprint,
			content_hash = excluded.content_hash,
			payload      = excluded.payload,
			last_seen    = excluded.last_seen,
			version      = excluded.version`
	return exists, upsert
}
