package ports

import (
	"context"
	"time"
)

// Cache defines a key-value capability for usecases.
// The SQL-backed adapter runs on the ambient connection, so writes made
// inside a unit of work commit or roll back with it.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set stores value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// SetIfAbsent stores value only when key is missing or expired and
	// reports whether it did. An existing entry is never overwritten.
	SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (stored bool, err error)
	Delete(ctx context.Context, key string) error
}
