package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiProvider calls the Gemini generateContent API directly
type GeminiProvider struct {
	apiKey  string
	baseURL string
	config  Config
	client  *http.Client
	stream  *http.Client
}

// GeminiContent represents content in Gemini's format
type GeminiContent struct {
	Parts []GeminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

// GeminiPart represents a part of content
type GeminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *GeminiInlineData `json:"inlineData,omitempty"`
}

// GeminiInlineData represents inline media
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

// GeminiTool enables a built-in tool such as Google Search grounding
type GeminiTool struct {
	GoogleSearch *struct{} `json:"googleSearch,omitempty"`
}

// GeminiRequest represents a request to Gemini API
type GeminiRequest struct {
	SystemInstruction *GeminiContent          `json:"systemInstruction,omitempty"`
	Contents          []GeminiContent         `json:"contents"`
	Tools             []GeminiTool            `json:"tools,omitempty"`
	GenerationConfig  *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiGenerationConfig represents generation configuration
type GeminiGenerationConfig struct {
	Temperature      float64                `json:"temperature,omitempty"`
	MaxOutputTokens  int                    `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string                 `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]interface{} `json:"responseSchema,omitempty"`
}

// GeminiResponse represents a response from Gemini API
type GeminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []GeminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason      string `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata,omitempty"`
	} `json:"candidates"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 8192
	}
	if config.Temperature == 0 {
		config.Temperature = 0.4
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if config.ProviderName == "" {
		config.ProviderName = "Gemini"
	}

	timeout := time.Duration(config.Timeout) * time.Second
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}

	return &GeminiProvider{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		config:  config,
		client:  client,
		stream:  newStreamingClient(timeout),
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return p.config.ProviderName
}

// Capabilities implements Transport
func (p *GeminiProvider) Capabilities() Capabilities {
	return Capabilities{SchemaEnforcement: true, SearchTool: true, Streaming: true}
}

// Verify implements Transport
func (p *GeminiProvider) Verify(ctx context.Context, req AnalysisRequest) (*RawReply, error) {
	prompt := BuildPrompt(req, p.Capabilities())

	parts := []GeminiPart{{Text: prompt.UserText}}
	if prompt.Media != nil {
		parts = append(parts, GeminiPart{InlineData: &GeminiInlineData{
			MimeType: prompt.Media.MimeType,
			Data:     base64.StdEncoding.EncodeToString(prompt.Media.Data),
		}})
	}

	gr := GeminiRequest{
		SystemInstruction: &GeminiContent{Parts: []GeminiPart{{Text: prompt.System}}},
		Contents:          []GeminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:     p.config.Temperature,
			MaxOutputTokens: p.config.MaxTokens,
		},
	}
	if prompt.Search {
		gr.Tools = []GeminiTool{{GoogleSearch: &struct{}{}}}
	}
	if prompt.Schema != nil {
		gr.GenerationConfig.ResponseMimeType = "application/json"
		gr.GenerationConfig.ResponseSchema = prompt.Schema
	}

	resp, err := p.post(ctx, "generateContent", gr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var geminiResp GeminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return nil, malformed("decode gemini response: %v", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, malformed("no candidates in response")
	}

	candidate := geminiResp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		if candidate.FinishReason == "SAFETY" {
			return nil, malformed("response blocked by safety filters")
		}
		return nil, malformed("no content in response")
	}

	reply := &RawReply{Text: text.String()}
	if gm := candidate.GroundingMetadata; gm != nil {
		sources := make([]Source, 0, len(gm.GroundingChunks))
		for _, chunk := range gm.GroundingChunks {
			if chunk.Web != nil {
				sources = append(sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
			}
		}
		reply.Grounding = DedupeSources(sources)
	}
	return reply, nil
}

// StreamChat implements Transport. The conversation id is echoed back unchanged
// because Gemini keeps no server-side conversation.
func (p *GeminiProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	contents := make([]GeminiContent, 0, len(req.History)+1)
	for _, msg := range req.History {
		// Gemini uses "model" instead of "assistant"
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, GeminiContent{Role: role, Parts: []GeminiPart{{Text: msg.Content}}})
	}
	contents = append(contents, GeminiContent{Role: "user", Parts: []GeminiPart{{Text: req.Message}}})

	gr := GeminiRequest{
		SystemInstruction: &GeminiContent{Parts: []GeminiPart{{Text: ChatSystemPrompt}}},
		Contents:          contents,
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: p.config.MaxTokens,
		},
	}

	resp, err := p.post(ctx, "streamGenerateContent", gr)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		p.readStream(ctx, resp.Body, req.ConversationID, out)
	}()
	return out, nil
}

// Learn implements Transport
func (p *GeminiProvider) Learn(ctx context.Context, rule Rule) error {
	return ErrLearnUnsupported
}

func (p *GeminiProvider) post(ctx context.Context, method string, body GeminiRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s?key=%s", p.baseURL, p.config.Model, method, p.apiKey)
	if method == "streamGenerateContent" {
		url += "&alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := p.client
	if method == "streamGenerateContent" {
		client = p.stream
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Message: geminiErrorMessage(data)}
	}
	return resp, nil
}

func geminiErrorMessage(data []byte) string {
	var body geminiErrorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Message == "" {
		return strings.TrimSpace(string(data))
	}
	if body.Error.Status != "" {
		return body.Error.Status + ": " + body.Error.Message
	}
	return body.Error.Message
}

// readStream converts Gemini SSE chunks into cumulative StreamEvents
func (p *GeminiProvider) readStream(ctx context.Context, body io.Reader, conversationID string, out chan<- StreamEvent) {
	send := func(ev StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var acc streamAccumulator
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" || data == "[DONE]" {
			continue
		}

		var geminiResp GeminiResponse
		if err := json.Unmarshal([]byte(data), &geminiResp); err != nil {
			// Skip malformed events
			continue
		}
		if len(geminiResp.Candidates) == 0 {
			continue
		}

		candidate := geminiResp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			if part.Text == "" {
				continue
			}
			if !send(acc.add(part.Text)) {
				return
			}
		}
		if candidate.FinishReason == "SAFETY" {
			send(StreamEvent{Text: acc.text(), Err: malformed("response blocked by safety filters")})
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := scanner.Err(); err != nil {
		send(StreamEvent{Text: acc.text(), Err: fmt.Errorf("stream read error: %w", err)})
		return
	}
	send(acc.done(conversationID))
}
