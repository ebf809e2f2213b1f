package db

import "context"

// KV is the durable key-value backend under the Session Store.
// Get reports found=false for a missing key instead of an error.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update replaces the value under key with fn(old) atomically with
	// respect to every other handle on the same backend. old is nil for a
	// missing key and a nil result deletes the key. fn may be called more
	// than once; an error from fn aborts the update and is returned as-is.
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error
	// Size returns the approximate storage used, in bytes
	Size(ctx context.Context) (int64, error)
	Close() error
}
