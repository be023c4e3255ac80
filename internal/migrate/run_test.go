package migrate

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestFiles(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		files, err := Files(d)
		require.NoError(t, err)
		assert.Equal(t, []string{"0001_sync_records.sql", "0002_crawl_jobs.sql"}, files, d)
	}
}

func TestTables(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		tables, err := Tables(d)
		require.NoError(t, err)
		assert.Equal(t, []string{"sync_records", "crawl_jobs"}, tables, d)
	}
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$3", Postgres.Placeholder(3))
	assert.Equal(t, "?", SQLite.Placeholder(3))
}

func TestStatements(t *testing.T) {
	script := "-- comment\nCREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n"
	assert.Len(t, statements(script, SQLite), 2)
	assert.Len(t, statements(script, Postgres), 1)
}

func TestRun_SQLiteIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "crawl.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, Run(ctx, db, SQLite))
	require.NoError(t, Run(ctx, db, SQLite))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 2, n)
	for _, table := range []string{"sync_records", "crawl_jobs"} {
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestRun_UnknownDialect(t *testing.T) {
	assert.Error(t, Run(context.Background(), nil, Dialect("mysql")))
}
