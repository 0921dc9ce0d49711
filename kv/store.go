package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every transport or server failure of the backing store.
	ErrUnavailable = errors.New("kv store unavailable")
	// ErrCorrupt is returned when a stored value cannot be decoded into the target.
	ErrCorrupt = errors.New("kv value corrupt")
)

// Store is the minimal contract the auth core consumes.
//
// Get and Take decode the stored value into dst and report whether the key
// existed. A missing key is never an error. Set with ttl <= 0 stores without
// expiry, which callers in this module never do.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) (bool, error)
	// Take atomically reads and deletes key. Used for one-time records.
	Take(ctx context.Context, key string, dst any) (bool, error)
}
