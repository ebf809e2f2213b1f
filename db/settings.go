package db

import (
	"context"
	"fmt"
)

// Ready reports whether the stored credential is usable. It is true until
// ClearReady is called and again after MarkReady.
func (s *Store) Ready(ctx context.Context) (bool, error) {
	_, invalid, err := s.kv.Get(ctx, keyAuthInvalid)
	if err != nil {
		return false, fmt.Errorf("failed to read credential flag: %w", err)
	}
	return !invalid, nil
}

// ClearReady forces re-authentication before the next request
func (s *Store) ClearReady(ctx context.Context) error {
	if err := s.kv.Set(ctx, keyAuthInvalid, []byte("1")); err != nil {
		return fmt.Errorf("failed to clear credential flag: %w", err)
	}
	return nil
}

// MarkReady records a successful re-authentication
func (s *Store) MarkReady(ctx context.Context) error {
	if err := s.kv.Delete(ctx, keyAuthInvalid); err != nil {
		return fmt.Errorf("failed to set credential flag: %w", err)
	}
	return nil
}
