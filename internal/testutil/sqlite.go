package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	// Registers the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/target/mmk-crawlsync/internal/migrate"
)

// SetupSQLiteDB opens a migrated SQLite file in a per-test temp dir. It never skips.
func SetupSQLiteDB(t interface {
	TestingTB
	TempDir() string
	Cleanup(func())
}) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crawlsync.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		t.Fatal("open sqlite:", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { closeQuietly(t, "sqlite db", db) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db, migrate.SQLite); err != nil {
		t.Fatal("migrate sqlite:", err)
	}
	return db
}
