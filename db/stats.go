package db

import (
	"context"
	"fmt"

	"veritas-client/llm"
)

// Stats summarises what the Session Store holds
type Stats struct {
	HistoryCount      int
	VerdictCounts     map[llm.Verdict]int
	RuleCount         int
	RulesByType       map[llm.ContentType]int
	ConversationCount int
	MessageCount      int
	SizeBytes         int64
}

// GetStats returns session statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &Stats{
		VerdictCounts: make(map[llm.Verdict]int),
		RulesByType:   make(map[llm.ContentType]int),
	}

	history, err := load[HistoryItem](ctx, s.kv, KeyHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}
	stats.HistoryCount = len(history)
	for _, item := range history {
		stats.VerdictCounts[item.Result.Verdict]++
	}

	rules, err := load[llm.Rule](ctx, s.kv, KeyRules)
	if err != nil {
		return nil, fmt.Errorf("failed to count rules: %w", err)
	}
	stats.RuleCount = len(rules)
	for _, r := range rules {
		stats.RulesByType[r.ContentType]++
	}

	convs, err := load[Conversation](ctx, s.kv, KeyConversations)
	if err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}
	stats.ConversationCount = len(convs)
	for _, c := range convs {
		stats.MessageCount += len(c.Messages)
	}

	if stats.SizeBytes, err = s.kv.Size(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}
