package port

import (
	"context"
	"time"
)

// LockProvider is a TTL'd, token-owned mutual-exclusion primitive over a key
// space. At most one live token exists per key at any instant.
type LockProvider interface {
	// Acquire attempts an atomic set-if-absent-with-expiry, retrying with
	// exponential backoff on contention. ok=false means the bound was
	// exhausted or the store failed (fail closed); token is empty then.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Release deletes the lock only if the stored token matches, as a single
	// atomic check-and-delete. A mismatched token is a no-op.
	Release(ctx context.Context, key, token string) error

	// IsLocked reports whether a live token exists for the key.
	IsLocked(ctx context.Context, key string) (bool, error)

	// TTLRemaining returns the remaining lifetime of the lock, zero if none.
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)

	// ForceRelease unconditionally deletes the lock. Reserved for the sweep
	// worker cleaning up orphans after the reservation is already resolved.
	ForceRelease(ctx context.Context, key string) error
}
