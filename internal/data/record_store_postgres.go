package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-crawlsync/internal/core"
	"github.com/target/mmk-crawlsync/internal/data/dbutil"
	"github.com/target/mmk-crawlsync/internal/domain/model"
	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

// PostgresRecordStore persists sync records in Postgres using pgx batches.
type PostgresRecordStore struct {
	DB     *sql.DB
	logger *slog.Logger
}

var _ core.RecordStore = (*PostgresRecordStore)(nil)

// NewPostgresRecordStore creates a PostgresRecordStore.
func NewPostgresRecordStore(db *sql.DB, logger *slog.Logger) *PostgresRecordStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRecordStore{DB: db, logger: logger.With("component", "record_store", "driver", "postgres")}
}

// Get returns the latest version stored under fingerprint.
func (s *PostgresRecordStore) Get(ctx context.Context, source, fingerprint string) (*model.SyncRecord, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+syncRecordColumns+`
		FROM sync_records
		WHERE source = $1 AND fingerprint = $2
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

// GetByFingerprints returns the latest version per fingerprint; absent fingerprints are omitted.
func (s *PostgresRecordStore) GetByFingerprints(
	ctx context.Context,
	source string,
	fingerprints []string,
) (map[string]*model.SyncRecord, error) {
	return s.latest(ctx, "fingerprint", source, fingerprints)
}

// LatestByNaturalKeys returns the highest version per natural key.
func (s *PostgresRecordStore) LatestByNaturalKeys(
	ctx context.Context,
	source string,
	keys []string,
) (map[string]*model.SyncRecord, error) {
	return s.latest(ctx, "natural_key", source, keys)
}

// latest uses DISTINCT ON to pick the highest version per key column.
func (s *PostgresRecordStore) latest(ctx context.Context, column, source string, keys []string) (map[string]*model.SyncRecord, error) {
	out := make(map[string]*model.SyncRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (%[1]s) `+syncRecordColumns+`
		FROM sync_records
		WHERE source = $1 AND %[1]s = ANY($2)
		ORDER BY %[1]s, version DESC`, column)
	rows, err := s.DB.QueryContext(ctx, query, source, keys)
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

// Upsert writes records as one pgx batch. The batch runs in a single implicit transaction,
// so any failing record fails the call and nothing is written.
func (s *PostgresRecordStore) Upsert(
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
	query := postgresUpsertSQL(mode)

	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := encodePayload(rec)
		if err != nil {
			return res, apperrors.StoreWrite(err, "encode record")
		}
		batch.Queue(query, rec.Source, string(mode), rec.Fingerprint, rec.NaturalKey, rec.ContentHash,
			string(payload), rec.FirstSeen, rec.LastSeen, rec.Version)
	}

	err = dbutil.WithPgxConn(ctx, s.DB, func(conn *pgx.Conn) error {
		br := conn.SendBatch(ctx, batch)
		for i := range records {
			var inserted bool
			if err := br.QueryRow().Scan(&inserted); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert record %d: %w", i, err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}
		if cerr := br.Close(); cerr != nil {
			return fmt.Errorf("batch close: %w", cerr)
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "batch upsert failed", "records", len(records), "error", err)
		return model.UpsertResult{}, apperrors.StoreWrite(err, "upsert sync records")
	}
	return res, nil
}

// postgresUpsertSQL reports inserted rows through xmax, which is zero for a fresh tuple.
func postgresUpsertSQL(mode model.FingerprintMode) string {
	target := `(source, fingerprint) WHERE keyed_by = 'identity'`
	if mode == model.ModeContent {
		target = `(source, natural_key, version)`
	}
	return `
		INSERT INTO sync_records (source, keyed_by, fingerprint, natural_key, content_hash, payload, first_seen, last_seen, version)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		ON CONFLICT ` + target + ` DO UPDATE SET
			fingerprint  = EXCLUDED.fingerprint,
			content_hash = EXCLUDED.content_hash,
			payload      = EXCLUDED.payload,
			last_seen    = EXCLUDED.last_seen,
			version      = EXCLUDED.version
		RETURNING (xmax = 0) AS inserted`
}
