// Package cache stores catalog API responses between runs.
//
// Only metadata responses (project records, file listings, discovery
// lookups) are cached. The edge store and fetched manifests never pass
// through here.
//
// Four backends share the [Cache] interface:
//
//   - [FileCache]: hash-sharded files under the user cache directory
//   - [MemoryCache]: a bounded in-process LRU
//   - [RedisCache]: shared across processes and hosts
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL.
type Cache interface {
	// Get returns the data stored under key. A miss returns (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
