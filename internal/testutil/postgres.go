package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"slices"
	"time"

	// Registers the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/mmk-crawlsync/internal/migrate"
)

// PostgresConfig locates the test Postgres. The default port 55432 is the local
// compose test profile; CI sets TEST_DB_PORT=5432.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresConfigFromEnv reads TEST_DB_* with local defaults.
func PostgresConfigFromEnv() PostgresConfig {
	return PostgresConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "crawlsync"),
		Password: envOr("TEST_DB_PASSWORD", "crawlsync"),
		DBName:   envOr("TEST_DB_NAME", "crawlsync"),
		SSLMode:  envOr("DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a pgx URL, optionally scoped to a schema.
func (c PostgresConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{"sslmode": {c.SSLMode}}
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// SkipIfNoTestDB skips t unless the test Postgres answers a ping.
// TEST_REQUIRE_DB turns the skip into a failure.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	db, err := openPostgres(ctx, PostgresConfigFromEnv().DSN(""))
	if err != nil {
		unavailable(t, envBool("TEST_REQUIRE_DB"), "test database", err)
		return
	}
	closeQuietly(t, "test db probe", db)
}

// WithAutoDB runs fn against a migrated Postgres. With TEST_DB_EPHEMERAL set it
// uses a throwaway schema; otherwise the shared database with the crawl tables
// emptied before and after fn.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	if envBool("TEST_DB_EPHEMERAL") {
		withSchema(t, fn)
		return
	}
	withShared(t, fn)
}

func withShared(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := openPostgres(ctx, PostgresConfigFromEnv().DSN(""))
	if err != nil {
		t.Fatal("open test database:", err)
	}
	defer closeQuietly(t, "test db", db)
	if err := migrate.Run(ctx, db, migrate.Postgres); err != nil {
		t.Fatal("migrate test database:", err)
	}
	ResetTables(t, db, migrate.Postgres)
	defer ResetTables(t, db, migrate.Postgres)
	fn(db)
}

func withSchema(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	cfg := PostgresConfigFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	admin, err := openPostgres(ctx, cfg.DSN(""))
	if err != nil {
		t.Fatal("open admin database:", err)
	}
	defer closeQuietly(t, "admin db", admin)

	schema := schemaName()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Logf("using schema %s", schema)
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dcancel()
		if _, err := admin.ExecContext(dctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	}()

	db, err := openPostgres(ctx, cfg.DSN(schema))
	if err != nil {
		t.Fatal("open schema database:", err)
	}
	defer closeQuietly(t, "schema db", db)
	if err := migrate.Run(ctx, db, migrate.Postgres); err != nil {
		t.Fatal("migrate schema:", err)
	}
	fn(db)
}

// ResetTables empties every table the dialect's migrations create.
func ResetTables(t TestingTB, db *sql.DB, dialect migrate.Dialect) {
	t.Helper()
	tables, err := migrate.Tables(dialect)
	if err != nil {
		t.Fatal("list migrated tables:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range slices.Backward(tables) {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("crawl_%d", time.Now().UnixNano())
	}
	return "crawl_" + hex.EncodeToString(b)
}
