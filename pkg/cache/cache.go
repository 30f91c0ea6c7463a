// Package cache defines the hot-cache capability interface (component D): a
// TTL key/value store fronting the durable record store. The cache is
// optional — its absence must never affect correctness, only latency — so
// every caller treats cache errors as a logged degradation, not a failure.
package cache

import (
	"context"
	"time"
)

// Cache is the capability interface consumed by the session manager and the
// teaching orchestrator for checkpointing. Implementations must not block
// past their own per-op timeout and must return a distinguishable error so
// callers can log-and-continue rather than fail the request.
type Cache interface {
	// Get returns the raw bytes stored at key, or ErrMiss if absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value at key with the given expiry, refreshing the TTL
	// on every write.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error

	// PushTrim appends value to the list at key (most-recent-last), then trims
	// the list to at most maxLen entries from the tail, and refreshes ttl. Used
	// for the bounded recent-messages list.
	PushTrim(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error

	// Range returns up to limit of the most recent entries of the list at key,
	// in insertion (chronological) order. Returns ErrMiss if the key is absent.
	Range(ctx context.Context, key string, limit int) ([][]byte, error)
}

// ErrMiss is returned by Get and Range when the key does not exist or has
// expired. Callers distinguish a miss (reconcile from the durable record
// store) from a genuine outage (log and continue without the cache).
var ErrMiss = errMiss{}

type errMiss struct{}

func (errMiss) Error() string { return "cache: key not found" }
