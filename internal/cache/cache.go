package cache

import (
	"context"
	"time"
)

// Cache is the byte cache abstraction. Implementations must be safe for
// concurrent use.
//
// Get returns (nil, false, nil) on a miss; expired entries are misses.
// DeletePattern removes every key matching the wildcard pattern and
// returns how many it removed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Config holds cache tuning.
type Config struct {
	// DefaultTTL applies when Set is called with ttl <= 0.
	// Zero means entries never expire and are removed only by
	// invalidation.
	DefaultTTL time.Duration
}

// DefaultConfig returns the engine defaults: no TTL, mutation-driven
// invalidation only.
func DefaultConfig() Config {
	return Config{DefaultTTL: 0}
}
