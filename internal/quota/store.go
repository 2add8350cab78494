// Package quota enforces the per-user daily search allowance. Counters live
// in an injected CounterStore so that every cross-request coordination
// point is an atomic store operation rather than an in-process lock.
package quota

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable wraps any failure of the underlying counter store.
var ErrStoreUnavailable = errors.New("counter store unavailable")

// CounterStore is a key/value store of integer counters with per-key TTL.
type CounterStore interface {
	// Get returns the current count for key, or 0 when the key is absent.
	// It never creates or mutates the key.
	Get(ctx context.Context, key string) (int64, error)

	// IncrBelow atomically increments key only if its current value is below
	// limit, refreshing the key's TTL on success. It returns the resulting
	// count and whether the increment happened. When it did not, count is the
	// unchanged current value.
	IncrBelow(ctx context.Context, key string, limit int64, ttl time.Duration) (count int64, ok bool, err error)
}
