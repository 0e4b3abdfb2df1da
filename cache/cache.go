// Package cache provides the TTL store and the compute-or-reuse wrapper that
// shield the site's upstream integrations from being called on every request.
//
// A [Store] maps keys to byte values with an optional expiry. [Memory] is the
// default, unbounded implementation; [L1] bounds the number of entries using
// ristretto. [Memo] sits on top of a Store and decides whether to serve a
// cached value or run a [Producer].
package cache

import (
	"context"
	"math"
	"time"
)

// NoExpiry is the TTL that keeps an entry until the key is overwritten.
const NoExpiry time.Duration = math.MaxInt64

// Store is a concurrency-safe key/value store with per-entry TTL semantics.
//
// An expired entry is logically absent: Get and Contains must report a miss
// for it even if the implementation still holds it in memory.
type Store interface {
	// Get retrieves a value by key. The boolean indicates a cache hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key, replacing any previous entry. A TTL of
	// NoExpiry means the entry has no automatic expiration. A TTL of zero or
	// less makes the entry expire immediately, so the key reads as absent.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Contains reports whether Get would currently return a hit for key.
	Contains(ctx context.Context, key string) (bool, error)
}
