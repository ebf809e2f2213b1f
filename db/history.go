package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AppendHistory prepends item so the list stays newest first. Missing id and
// timestamp are filled in.
func (s *Store) AppendHistory(ctx context.Context, item HistoryItem) (*HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp == 0 {
		item.Timestamp = s.nowMillis()
	}

	err := modify(ctx, s.kv, KeyHistory, func(items []HistoryItem) ([]HistoryItem, error) {
		return append([]HistoryItem{item}, items...), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}
	return &item, nil
}

// ListHistory returns all history items, newest first
func (s *Store) ListHistory(ctx context.Context) ([]HistoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := load[HistoryItem](ctx, s.kv, KeyHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return items, nil
}

// ClearHistory removes every history item from the backend
func (s *Store) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, KeyHistory); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
