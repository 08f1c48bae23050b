// Package store is the thin capability surface this worker needs from the
// shared data store: list push/pop, string get/set with TTL, hash
// increment, and a distributed lease. It is deliberately narrow so that any
// engine providing these primitives could back it; github.com/redis/go-redis/v9
// is the production implementation.
package store

import (
	"context"
	"time"
)

// Client is the capability bundle consumed by the rest of this worker.
// Methods for which absence is a normal outcome, not an error
// (ListPopTail, GetString, TryAcquireLease), return (value, ok, error): ok
// distinguishes "found" from "not found".
type Client interface {
	// ListPushHead pushes value onto the head of the named list.
	ListPushHead(ctx context.Context, key string, value string) error
	// ListPopTail pops one value from the tail of the named list. If
	// block is non-zero, the call may wait up to that duration for an
	// item to appear. Returns ok=false (no error) on an empty/timed-out
	// pop: an empty queue is a normal poll outcome, not a failure.
	ListPopTail(ctx context.Context, key string, block time.Duration) (value string, ok bool, err error)
	// ListLength reports the current length of the named list.
	ListLength(ctx context.Context, key string) (int64, error)

	// GetString reads a key. ok=false means the key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	// SetStringWithTTL writes a key with an expiry.
	SetStringWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error
	// Delete removes a key; it is not an error if the key is absent.
	Delete(ctx context.Context, key string) error

	// HashIncrementInt atomically increments an integer hash field.
	HashIncrementInt(ctx context.Context, key, field string, delta int64) (int64, error)
	// HashIncrementFloat atomically increments a float hash field.
	HashIncrementFloat(ctx context.Context, key, field string, delta float64) (float64, error)
	// HashGetAll reads every field of a hash.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// TryAcquireLease attempts to acquire the named advisory lock for
	// ttl. ok=false means another holder currently owns it.
	TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (handle LeaseHandle, ok bool, err error)

	// Close releases any resources held by the client.
	Close() error
}

// LeaseHandle represents ownership of a distributed lease. Release is safe
// to call more than once and is a no-op if the lease already expired or was
// reassigned.
type LeaseHandle interface {
	Release(ctx context.Context) error
}
