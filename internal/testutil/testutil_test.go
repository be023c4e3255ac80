package testutil

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-crawlsync/internal/domain/model"
	"github.com/target/mmk-crawlsync/internal/migrate"
)

func TestPostgresConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want PostgresConfig
	}{
		{
			name: "local defaults",
			env: map[string]string{
				"TEST_DB_HOST": "", "TEST_DB_PORT": "", "TEST_DB_USER": "",
				"TEST_DB_PASSWORD": "", "TEST_DB_NAME": "", "DB_SSL_MODE": "",
			},
			want: PostgresConfig{
				Host: "localhost", Port: "55432", User: "crawlsync",
				Password: "crawlsync", DBName: "crawlsync", SSLMode: "disable",
			},
		},
		{
			name: "ci overrides",
			env: map[string]string{
				"TEST_DB_HOST": "postgres", "TEST_DB_PORT": "5432", "TEST_DB_USER": "ci",
				"TEST_DB_PASSWORD": "secret", "TEST_DB_NAME": "crawl_ci", "DB_SSL_MODE": "require",
			},
			want: PostgresConfig{
				Host: "postgres", Port: "5432", User: "ci",
				Password: "secret", DBName: "crawl_ci", SSLMode: "require",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, PostgresConfigFromEnv())
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", User: "crawl", Password: "p@ss", DBName: "crawlsync", SSLMode: "disable"}

	u, err := url.Parse(cfg.DSN(""))
	require.NoError(t, err)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/crawlsync", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)
	assert.Empty(t, u.Query().Get("search_path"))

	scoped, err := url.Parse(cfg.DSN("crawl_ab12"))
	require.NoError(t, err)
	assert.Equal(t, "crawl_ab12,public", scoped.Query().Get("search_path"))
}

func TestSetupSQLiteDB_ResetTables(t *testing.T) {
	db := SetupSQLiteDB(t)
	ctx := context.Background()

	tables, err := migrate.Tables(migrate.SQLite)
	require.NoError(t, err)
	for _, table := range tables {
		var n int
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO crawl_jobs (id, source, status, test_mode, counts, errors, created_at, updated_at)
		VALUES ('job-1', 'shareholding', 'completed', 0, '{}', '[]', ?, ?)`, TestTime(), TestTime())
	require.NoError(t, err)

	ResetTables(t, db, migrate.SQLite)
	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM crawl_jobs`).Scan(&n))
	assert.Zero(t, n)
}

func TestNewJobRequest(t *testing.T) {
	req := NewJobRequest().WithSource("filings").WithTargets("700", "5").WithLimit(3).WithJobID("j").Build()
	assert.Equal(t, "filings", req.Source)
	assert.Equal(t, model.StringList{"700", "5"}, req.Targets)
	assert.Equal(t, 3, req.Limit)
	assert.Equal(t, "j", req.JobID)

	latest := NewJobRequest().Latest().TestMode().Build()
	assert.True(t, latest.LatestOnly)
	assert.True(t, latest.TestMode)
	assert.Empty(t, latest.DateFrom)
}
