package db

import "veritas-client/llm"

// Storage keys of the persisted JSON arrays
const (
	KeyHistory       = "veritas_history"
	KeyRules         = "veritas_rules"
	KeyConversations = "veritas_conversations"
	keyAuthInvalid   = "auth_invalidated"
	keyAdmission     = "veritas_admission"
)

// HistoryItem is one completed verification. Immutable after creation.
type HistoryItem struct {
	ID          string                 `json:"id"`
	Timestamp   int64                  `json:"timestamp"` // unix ms
	ContentType llm.ContentType        `json:"type"`
	Preview     string                 `json:"preview"`
	Thumbnail   string                 `json:"thumbnail,omitempty"` // data URL
	Result      llm.VerificationResult `json:"result"`
}

// Conversation represents a chat conversation
type Conversation struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []llm.ChatMessage `json:"messages"`
	UpdatedAt int64             `json:"updatedAt"` // unix ms
}

// ConversationSummary is a Conversation without its messages
type ConversationSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"messageCount"`
	UpdatedAt    int64  `json:"updatedAt"`
}
