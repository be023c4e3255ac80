package config

import (
	"strings"
	"time"
)

// StoreDriver selects the record store and job persistence backend.
type StoreDriver string

const (
	// StorePostgres stores records in PostgreSQL.
	StorePostgres StoreDriver = "postgres"
	// StoreSQLite stores records in an embedded SQLite file.
	StoreSQLite StoreDriver = "sqlite"
)

// StoreConfig selects the storage backend.
type StoreConfig struct {
	Driver StoreDriver `env:"STORE_DRIVER" envDefault:"postgres"`
}

// Sanitize falls back to postgres for unknown drivers.
func (s *StoreConfig) Sanitize() {
	s.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(string(s.Driver))))
	if s.Driver != StoreSQLite {
		s.Driver = StorePostgres
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"crawlsync"`
	Password string `env:"PASSWORD"                envDefault:"crawlsync"`
	Name     string `env:"NAME"                    envDefault:"crawlsync"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// SQLiteConfig contains the embedded store settings.
type SQLiteConfig struct {
	Path        string        `env:"PATH"         envDefault:"crawlsync.db"`
	BusyTimeout time.Duration `env:"BUSY_TIMEOUT" envDefault:"5s"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// LocksBackend selects where target locks live.
type LocksBackend string

const (
	// LocksLocal keeps locks in process memory.
	LocksLocal LocksBackend = "local"
	// LocksRedis shares locks across replicas through Redis.
	LocksRedis LocksBackend = "redis"
)

// LocksConfig configures per-target job locks.
type LocksConfig struct {
	Backend LocksBackend  `env:"BACKEND" envDefault:"local"`
	TTL     time.Duration `env:"TTL"     envDefault:"30m"`
}

// Sanitize falls back to local locks and a 30 minute TTL.
func (l *LocksConfig) Sanitize() {
	l.Backend = LocksBackend(strings.ToLower(strings.TrimSpace(string(l.Backend))))
	if l.Backend != LocksRedis {
		l.Backend = LocksLocal
	}
	if l.TTL <= 0 {
		l.TTL = 30 * time.Minute
	}
}
