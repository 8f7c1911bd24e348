package cache

import (
	"context"
	"time"
)

// Backend is the shared key-value store a TTLCache writes through to.
// Implementations must be safe for concurrent use and return the exact bytes
// previously stored for a key.
type Backend interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on a miss or
	// an expired entry. Transport failures return a non-nil error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key with the store's native expiry set to ttl.
	// Existing values are overwritten unconditionally.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByPrefix removes every key whose string form starts with prefix
	// and reports how many keys were removed. Matching is a raw string prefix.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Close releases resources held by the backend.
	Close(ctx context.Context) error
}
