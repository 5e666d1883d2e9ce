package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU + Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetReport retrieves the cached report of a run.
	// Returns nil, nil on a miss.
	GetReport(ctx context.Context, runID string) (*Report, error)

	// SetReport caches the report of a run.
	SetReport(ctx context.Context, runID string, report *Report, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"two_phase"` // If true, check local first, then Redis

	// ReportTTL is how long run reports stay cached.
	ReportTTL time.Duration `yaml:"report_ttl"`
}
