package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"veritas-client/llm"
)

// RecordRule stores a user-taught rule. Rules are never deduplicated; the list
// is kept newest first.
func (s *Store) RecordRule(ctx context.Context, rule llm.Rule) (*llm.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt == 0 {
		rule.CreatedAt = s.nowMillis()
	}

	err := modify(ctx, s.kv, KeyRules, func(rules []llm.Rule) ([]llm.Rule, error) {
		return append([]llm.Rule{rule}, rules...), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record rule: %w", err)
	}
	return &rule, nil
}

// ListRules returns every stored rule, newest first
func (s *Store) ListRules(ctx context.Context) ([]llm.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := load[llm.Rule](ctx, s.kv, KeyRules)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// RulesFor returns up to limit rules for contentType, newest first. limit <= 0 means all.
func (s *Store) RulesFor(ctx context.Context, contentType llm.ContentType, limit int) ([]llm.Rule, error) {
	rules, err := s.ListRules(ctx)
	if err != nil {
		return nil, err
	}

	var out []llm.Rule
	for _, r := range rules {
		if r.ContentType != contentType {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
