package config

import (
	"fmt"
	"strings"
)

// StoreBackend names a JobStore implementation.
type StoreBackend string

const (
	// StoreBackendPostgres persists jobs in PostgreSQL.
	StoreBackendPostgres StoreBackend = "postgres"
	// StoreBackendMongo persists jobs in MongoDB.
	StoreBackendMongo StoreBackend = "mongo"
	// StoreBackendMemory keeps jobs in process memory (development only).
	StoreBackendMemory StoreBackend = "memory"
)

// UnmarshalText validates the backend name when loaded from env.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := StoreBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StoreBackendPostgres, StoreBackendMongo, StoreBackendMemory:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid store backend: %q (valid options: postgres, mongo, memory)", string(text))
	}
}

// QueueBackend names a TaskQueue implementation.
type QueueBackend string

const (
	// QueueBackendRedis uses a Redis reliable list queue shared across processes.
	QueueBackendRedis QueueBackend = "redis"
	// QueueBackendLocal uses an in-process channel queue.
	QueueBackendLocal QueueBackend = "local"
)

// UnmarshalText validates the backend name when loaded from env.
func (b *QueueBackend) UnmarshalText(text []byte) error {
	v := QueueBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case QueueBackendRedis, QueueBackendLocal:
		*b = v
		return nil
	default:
		return fmt.Errorf("invalid queue backend: %q (valid options: redis, local)", string(text))
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobpipe"`
	Password string `env:"PASSWORD"                envDefault:"jobpipe"`
	Name     string `env:"NAME"                    envDefault:"jobpipe"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// MongoConfig contains MongoDB configuration.
type MongoConfig struct {
	URL      string `env:"MONGODB_URL"      envDefault:"mongodb://localhost:27017"`
	Database string `env:"MONGODB_DATABASE" envDefault:"job_pipeline"`
}

// Sanitize trims connection settings.
func (m *MongoConfig) Sanitize() {
	m.URL = strings.TrimSpace(m.URL)
	if m.Database = strings.TrimSpace(m.Database); m.Database == "" {
		m.Database = "job_pipeline"
	}
}
