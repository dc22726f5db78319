// Package cache memoizes expensive results such as recommendations behind
// a small byte-oriented interface with per-entry TTLs.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long recommendation results are kept.
const DefaultTTL = 172800 * time.Second

// Cache stores opaque values by key.
type Cache interface {
	// Get returns the value for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key for ttl. A zero ttl means DefaultTTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Close() error
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
