// Package domain defines the core interfaces and types for txmon.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Reference data and transactions
	ReplaceSnapshot(ctx context.Context, snap *Snapshot) error
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// Runs and their flag ledgers. SaveRun stores the run and all of its
	// flags atomically.
	SaveRun(ctx context.Context, run *Run, flags []Flag) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListFlags(ctx context.Context, runID string) ([]Flag, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
