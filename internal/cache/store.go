// Package cache is the key-value layer behind the config, configkey,
// session-access and session-key caches.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a minimal string key-value store with TTLs.
type Store interface {
	// Get returns ErrMiss if the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Take atomically reads and removes key, so at most one caller
	// ever observes a given value. Returns ErrMiss if absent.
	Take(ctx context.Context, key string) (string, error)
}
