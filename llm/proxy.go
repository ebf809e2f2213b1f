package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// ProxyClient calls the primary backend, which holds the provider credentials
// and builds prompts server side.
type ProxyClient struct {
	baseURL string
	name    string
	client  *http.Client
	// stream has no overall timeout so long replies are not cut off
	stream *http.Client
}

type verifyTextRequest struct {
	Text          string `json:"text"`
	UseSearch     bool   `json:"useSearch"`
	LearningRules []Rule `json:"learningRules,omitempty"`
}

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Stream         bool   `json:"stream"`
}

type learnRequest struct {
	Type            ContentType `json:"type"`
	Pattern         string      `json:"pattern"`
	Verdict         Verdict     `json:"verdict"`
	Confidence      int         `json:"confidence"`
	OriginalVerdict Verdict     `json:"originalVerdict,omitempty"`
	Example         string      `json:"example,omitempty"`
}

type proxyErrorBody struct {
	Error string `json:"error"`
}

// NewProxyClient creates a client for the primary backend rooted at baseURL
// (for example http://localhost:5000/api). timeout bounds whole requests,
// except chat streams where it only bounds the wait for the first byte.
func NewProxyClient(baseURL string, timeout time.Duration) *ProxyClient {
	client := &http.Client{}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    "Veritas API",
		client:  client,
		stream:  newStreamingClient(timeout),
	}
}

// Name returns the transport name
func (c *ProxyClient) Name() string {
	return c.name
}

// BaseURL returns the backend root
func (c *ProxyClient) BaseURL() string {
	return c.baseURL
}

// Capabilities implements Transport. Prompting happens server side.
func (c *ProxyClient) Capabilities() Capabilities {
	return Capabilities{SchemaEnforcement: true, SearchTool: true, Streaming: true}
}

// Health performs the liveness probe. Any non-2xx reply is an error.
func (c *ProxyClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Provider: c.name, StatusCode: resp.StatusCode, Message: "health probe rejected"}
	}
	return nil
}

// Verify implements Transport
func (c *ProxyClient) Verify(ctx context.Context, req AnalysisRequest) (*RawReply, error) {
	var httpReq *http.Request
	var err error
	if req.Content.IsMedia() {
		httpReq, err = c.mediaRequest(ctx, req)
	} else {
		httpReq, err = c.jsonRequest(ctx, "/verify/text", verifyTextRequest{
			Text:          req.Content.Text,
			UseSearch:     req.UseSearch,
			LearningRules: req.LearningRules,
		})
	}
	if err != nil {
		return nil, err
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &RawReply{Text: string(body)}, nil
}

func (c *ProxyClient) mediaRequest(ctx context.Context, req AnalysisRequest) (*http.Request, error) {
	media := req.Content.Media
	contentType := req.ContentType
	if !contentType.Valid() || contentType == ContentText {
		contentType = req.Content.Type()
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := media.Name
	if name == "" {
		name = "upload"
	}
	part, err := w.CreatePart(fileHeader(name, media.MimeType))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(media.Data); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.WriteField("useSearch", strconv.FormatBool(req.UseSearch)); err != nil {
		return nil, fmt.Errorf("failed to write form field: %w", err)
	}
	if len(req.LearningRules) > 0 {
		rules, err := json.Marshal(req.LearningRules)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rules: %w", err)
		}
		if err := w.WriteField("learningRules", string(rules)); err != nil {
			return nil, fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify/"+string(contentType), &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())
	return httpReq, nil
}

// fileHeader is multipart.CreateFormFile with the real mime type instead of octet-stream
func fileHeader(filename, mimeType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	return h
}

// StreamChat implements Transport
func (c *ProxyClient) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	httpReq, err := c.jsonRequest(ctx, "/chat", chatRequest{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		Stream:         true,
	})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(c.stream, httpReq)
	if err != nil {
		return nil, err
	}

	events := DecodeStream(ctx, resp.Body)
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Learn implements Transport
func (c *ProxyClient) Learn(ctx context.Context, rule Rule) error {
	httpReq, err := c.jsonRequest(ctx, "/learn", learnRequest{
		Type:            rule.ContentType,
		Pattern:         rule.Pattern,
		Verdict:         rule.Verdict,
		Confidence:      rule.Confidence,
		OriginalVerdict: rule.OriginalVerdict,
		Example:         rule.Example,
	})
	if err != nil {
		return err
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *ProxyClient) jsonRequest(ctx context.Context, path string, body interface{}) (*http.Request, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (c *ProxyClient) do(req *http.Request) (*http.Response, error) {
	return c.send(c.client, req)
}

// send issues req on client and turns non-2xx replies into APIError
func (c *ProxyClient) send(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(data))
	var body proxyErrorBody
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return nil, &APIError{Provider: c.name, StatusCode: resp.StatusCode, Message: msg}
}
