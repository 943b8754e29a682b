package port

import (
	"context"
	"net/http"
	"time"
)

// IdempotencyRecord is the cached outcome of a completed mutating request.
// Once written for a key it is immutable until its TTL expires.
type IdempotencyRecord struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// IdempotencyStore caches responses keyed by client-supplied idempotency
// tokens so retried mutating requests replay instead of re-executing.
type IdempotencyStore interface {
	// Get returns the recorded response for key, or nil on a miss.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Put stores the record if the key is absent. A second write for the
	// same key is silently dropped so the first recorded response wins.
	Put(ctx context.Context, key string, rec *IdempotencyRecord, ttl time.Duration) error

	// Invalidate purges the record so the token no longer echoes a
	// since-invalidated result.
	Invalidate(ctx context.Context, key string) error
}
