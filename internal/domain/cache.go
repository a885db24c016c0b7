package domain

import (
	"context"
	"time"
)

// Cache stores hot lookups for the detection pipeline: velocity
// counters and recently computed risk scores. Backed by a local LRU
// (Community) or Redis, optionally two-phase (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetRiskScore retrieves a cached risk score for an account.
	GetRiskScore(ctx context.Context, accountID string) (*RiskScore, error)

	// SetRiskScore caches a computed risk score.
	SetRiskScore(ctx context.Context, accountID string, score *RiskScore, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the
	// new value. Used for velocity bookkeeping in time windows.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
