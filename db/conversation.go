package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"veritas-client/llm"
)

// UpsertConversation appends msgs to the conversation id and returns its id.
// An empty id creates a new conversation with a generated id; an unknown id
// creates one under that id so server-assigned ids can be adopted as-is.
func (s *Store) UpsertConversation(ctx context.Context, id string, msgs ...llm.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	updatedAt := s.nowMillis()

	err := modify(ctx, s.kv, KeyConversations, func(convs []Conversation) ([]Conversation, error) {
		conv := Conversation{ID: id}
		if idx := indexOf(convs, id); idx >= 0 {
			conv = convs[idx]
			convs = append(convs[:idx:idx], convs[idx+1:]...)
		}
		conv.Messages = append(conv.Messages, msgs...)
		conv.UpdatedAt = updatedAt

		// Most recently updated first
		return append([]Conversation{conv}, convs...), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to upsert conversation: %w", err)
	}
	return id, nil
}

// RenameConversation sets the title of an existing conversation
func (s *Store) RenameConversation(ctx context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := modify(ctx, s.kv, KeyConversations, func(convs []Conversation) ([]Conversation, error) {
		idx := indexOf(convs, id)
		if idx < 0 {
			return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		convs[idx].Title = title
		return convs, nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by ID
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := load[Conversation](ctx, s.kv, KeyConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	idx := indexOf(convs, id)
	if idx < 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return &convs[idx], nil
}

// ListConversations returns conversation summaries ordered by update time, newest first
func (s *Store) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := load[Conversation](ctx, s.kv, KeyConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	summaries := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, ConversationSummary{
			ID:           c.ID,
			Title:        c.Title,
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return summaries, nil
}

// ListAllConversations returns full conversations, newest first
func (s *Store) ListAllConversations(ctx context.Context) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	convs, err := load[Conversation](ctx, s.kv, KeyConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// DeleteConversation removes one conversation
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := modify(ctx, s.kv, KeyConversations, func(convs []Conversation) ([]Conversation, error) {
		idx := indexOf(convs, id)
		if idx < 0 {
			return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		return append(convs[:idx], convs[idx+1:]...), nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ClearAllConversations removes every conversation
func (s *Store) ClearAllConversations(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, KeyConversations); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}

// TitleFromMessage derives a conversation title from its first user message
func TitleFromMessage(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	r := []rune(message)
	if len(r) > 50 {
		return string(r[:50]) + "..."
	}
	if message == "" {
		return "New conversation"
	}
	return message
}

func indexOf(convs []Conversation, id string) int {
	for i, c := range convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}
