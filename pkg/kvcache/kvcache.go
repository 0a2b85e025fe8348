// Package kvcache provides a small durable key-value cache used for
// sync checkpoints, cached rosters and access tokens. Values survive
// process restarts and may carry a TTL after which they expire.
package kvcache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has expired.
var ErrNotFound = errors.New("kvcache: key not found")

// Store is a minimal durable key-value store with optional expiry.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with no expiry.
	Set(ctx context.Context, key string, value []byte) error

	// SetTTL stores value under key, expiring after ttl.
	SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
