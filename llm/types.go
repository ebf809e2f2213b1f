package llm

import (
	"context"
	"strings"
)

// ContentType identifies the kind of content submitted for verification
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
)

// Valid reports whether the content type is one of the known kinds
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentAudio, ContentVideo:
		return true
	}
	return false
}

// Content is either plain text or a media attachment, never both
type Content struct {
	Text  string `json:"text,omitempty"`
	Media *Media `json:"media,omitempty"`
}

// Media represents a binary attachment (image, audio or video)
type Media struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Name     string `json:"name,omitempty"` // display only
}

// TextContent builds a text Content
func TextContent(text string) Content {
	return Content{Text: text}
}

// MediaContent builds a media Content
func MediaContent(data []byte, mimeType, name string) Content {
	return Content{Media: &Media{
		Data:     data,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Name:     name,
	}}
}

// IsMedia reports whether the content carries an attachment
func (c Content) IsMedia() bool {
	return c.Media != nil
}

// Empty reports whether there is nothing to submit
func (c Content) Empty() bool {
	if c.Media != nil {
		return len(c.Media.Data) == 0
	}
	return strings.TrimSpace(c.Text) == ""
}

// Type derives the content type from the populated variant. It is empty for
// media that is not image, audio or video.
func (c Content) Type() ContentType {
	if c.Media == nil {
		return ContentText
	}
	switch {
	case strings.HasPrefix(c.Media.MimeType, "image/"):
		return ContentImage
	case strings.HasPrefix(c.Media.MimeType, "audio/"):
		return ContentAudio
	case strings.HasPrefix(c.Media.MimeType, "video/"):
		return ContentVideo
	}
	return ""
}

// AnalysisRequest is a single verification request. It must not be modified after submission.
type AnalysisRequest struct {
	ContentType   ContentType `json:"contentType"`
	Content       Content     `json:"content"`
	UseSearch     bool        `json:"useSearch"`
	LearningRules []Rule      `json:"learningRules,omitempty"`
}

// Verdict is the categorical authenticity judgment returned by the model
type Verdict string

const (
	VerdictAuthentic     Verdict = "Authentic"
	VerdictSuspicious    Verdict = "Suspicious"
	VerdictFakeGenerated Verdict = "Fake/Generated"
	VerdictInconclusive  Verdict = "Inconclusive"
)

// Valid reports whether the verdict belongs to the fixed enum
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAuthentic, VerdictSuspicious, VerdictFakeGenerated, VerdictInconclusive:
		return true
	}
	return false
}

// DetailStatus is the outcome of a single technical check
type DetailStatus string

const (
	StatusPass DetailStatus = "pass"
	StatusFail DetailStatus = "fail"
	StatusWarn DetailStatus = "warn"
)

// Valid reports whether the status belongs to the fixed enum
func (s DetailStatus) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusWarn:
		return true
	}
	return false
}

// VerificationResult is the decoded model verdict
type VerificationResult struct {
	Verdict          Verdict  `json:"verdict"`
	Confidence       int      `json:"confidence"`
	Summary          string   `json:"summary"`
	Reasoning        []string `json:"reasoning"`
	TechnicalDetails []Detail `json:"technicalDetails"`
	Sources          []Source `json:"sources,omitempty"`
}

// Detail is one technical check reported by the model
type Detail struct {
	Label       string       `json:"label"`
	Value       string       `json:"value"`
	Status      DetailStatus `json:"status"`
	Explanation string       `json:"explanation"`
}

// Source is a web citation attached when search augmentation was used
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Rule is a user-taught correction folded into future prompts
type Rule struct {
	ID              string      `json:"id"`
	ContentType     ContentType `json:"type"`
	Pattern         string      `json:"pattern"`
	Verdict         Verdict     `json:"verdict"`
	Confidence      int         `json:"confidence"`
	OriginalVerdict Verdict     `json:"originalVerdict,omitempty"`
	Example         string      `json:"example,omitempty"`
	CreatedAt       int64       `json:"createdAt"` // unix ms
	Remote          bool        `json:"remote"`    // accepted by the primary backend
}

// Role of a chat message author
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a chat message
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Stopped bool   `json:"stopped,omitempty"` // reply aborted by the user before completion
}

// ChatRequest is one outbound chat turn
type ChatRequest struct {
	Message        string
	ConversationID string
	History        []ChatMessage // prior turns, used by direct transports only
}

// RawReply is the undecoded model output of a verification call
type RawReply struct {
	Text      string
	Grounding []Source
}

// StreamEvent represents one decoded frame of a streaming reply.
// Text is cumulative; Delta is the increment carried by this frame.
type StreamEvent struct {
	Delta          string
	Text           string
	Done           bool
	ConversationID string
	Err            error
}

// Capabilities describes what a transport can do natively
type Capabilities struct {
	SchemaEnforcement bool
	SearchTool        bool
	Streaming         bool
}

// Transport is a backend able to serve verification, chat and feedback calls
type Transport interface {
	// Name returns the transport name for logs
	Name() string

	// Capabilities returns the native feature set
	Capabilities() Capabilities

	// Verify sends the analysis request and returns the raw model reply
	Verify(ctx context.Context, req AnalysisRequest) (*RawReply, error)

	// StreamChat sends a chat turn and returns a channel of cumulative events
	StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error)

	// Learn submits a feedback rule
	Learn(ctx context.Context, rule Rule) error
}

// Config represents provider configuration
type Config struct {
	ProviderName string
	APIKey       string
	BaseURL      string
	Model        string
	AudioModel   string // transcription model, OpenAI-compatible only
	Timeout      int    // seconds
	MaxTokens    int
	Temperature  float64
}
