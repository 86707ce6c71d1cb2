// Package cache defines the storage contract used to memoize calculation
// results, together with the shared errors and CBOR codec of its backends.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry TTL.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns ErrNotFound when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	Health(ctx context.Context) error

	// Stats keys depend on the backend.
	Stats() (map[string]any, error)

	Close() error
}

// GetValue reads key and decodes it from CBOR into a T.
func GetValue[T any](ctx context.Context, c Cache, key string) (T, error) {
	var zero T
	data, err := c.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	v, err := Unmarshal[T](data)
	if err != nil {
		return zero, NewOperationError("decode", key, err)
	}
	return v, nil
}

// SetValue encodes v as CBOR and stores it under key.
func SetValue[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	data, err := Marshal(v)
	if err != nil {
		return NewOperationError("encode", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// IsMiss reports whether err means the key was simply not there.
func IsMiss(err error) bool {
	return errors.Is(err, ErrNotFound)
}
