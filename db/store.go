package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned when a conversation id is unknown
var ErrNotFound = errors.New("not found")

// Store is the Session Store. It owns history, conversations and rules.
// Every read-modify-write of the underlying JSON arrays goes through
// KV.Update, so it stays atomic across handles and processes.
type Store struct {
	kv  KV
	mu  sync.Mutex
	now func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Session Store over kv
func NewStore(kv KV, opts ...StoreOption) *Store {
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the backend
func (s *Store) Close() error {
	return s.kv.Close()
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// load decodes the JSON array stored under key; a missing key is an empty list
func load[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	data, found, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || len(data) == 0 {
		return nil, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return items, nil
}

// modify rewrites the JSON array under key with fn in one KV.Update
func modify[T any](ctx context.Context, kv KV, key string, fn func(items []T) ([]T, error)) error {
	return kv.Update(ctx, key, func(old []byte) ([]byte, error) {
		var items []T
		if len(old) > 0 {
			if err := json.Unmarshal(old, &items); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", key, err)
			}
		}

		items, err := fn(items)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []T{}
		}
		data, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		return data, nil
	})
}

// Compact reclaims backend space when the backend supports it
func (s *Store) Compact(ctx context.Context) error {
	c, ok := s.kv.(interface {
		Vacuum(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.Vacuum(ctx)
}
