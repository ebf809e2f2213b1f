package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion API (OpenAI, Groq, ...)
type OpenAIProvider struct {
	client  *openai.Client
	config  Config
	timeout time.Duration
}

// NewOpenAIProvider creates a new OpenAI-compatible provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	// Streams share the client, so the overall timeout is applied per call
	timeout := time.Duration(config.Timeout) * time.Second
	clientConfig.HTTPClient = newStreamingClient(timeout)

	if config.MaxTokens == 0 {
		config.MaxTokens = 2048
	}
	if config.Temperature == 0 {
		config.Temperature = 0.4
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.AudioModel == "" {
		config.AudioModel = openai.Whisper1
	}
	if config.ProviderName == "" {
		config.ProviderName = "OpenAI Compatible"
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		timeout: timeout,
	}, nil
}

// withTimeout bounds a non-streaming call by the configured timeout
func (p *OpenAIProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.config.ProviderName
}

// Capabilities implements Transport. The schema always travels in the prompt.
func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{Streaming: true}
}

// Verify implements Transport
func (p *OpenAIProvider) Verify(ctx context.Context, req AnalysisRequest) (*RawReply, error) {
	prompt := BuildPrompt(req, p.Capabilities())

	user, err := p.userMessage(ctx, prompt)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()
	resp, err := p.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			user,
		},
		MaxTokens:   p.config.MaxTokens,
		Temperature: float32(p.config.Temperature),
	})
	if err != nil {
		return nil, p.wrapError("failed to create chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed("no choices in response")
	}

	return &RawReply{Text: resp.Choices[0].Message.Content}, nil
}

// userMessage converts the prompt's user turn. Images are sent as data URLs,
// audio is transcribed first and video is described by name only.
func (p *OpenAIProvider) userMessage(ctx context.Context, prompt Prompt) (openai.ChatCompletionMessage, error) {
	media := prompt.Media
	if media == nil {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt.UserText}, nil
	}

	switch (Content{Media: media}).Type() {
	case ContentImage:
		b64 := base64.StdEncoding.EncodeToString(media.Data)
		return openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt.UserText},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", media.MimeType, b64),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		}, nil

	case ContentAudio:
		name := media.Name
		if name == "" {
			name = "audio"
		}
		callCtx, cancel := p.withTimeout(ctx)
		defer cancel()
		tr, err := p.client.CreateTranscription(callCtx, openai.AudioRequest{
			Model:    p.config.AudioModel,
			FilePath: name,
			Reader:   bytes.NewReader(media.Data),
		})
		if err != nil {
			return openai.ChatCompletionMessage{}, p.wrapError("failed to transcribe audio", err)
		}
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: "Analyze transcription:\n\n" + tr.Text,
		}, nil

	default:
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf("%s\nFile: %s (%s, %d bytes)", prompt.UserText, media.Name, media.MimeType, media.Size),
		}, nil
	}
}

// StreamChat implements Transport
func (p *OpenAIProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: ChatSystemPrompt})
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   p.config.MaxTokens,
		Temperature: 0.7,
		Stream:      true,
	})
	if err != nil {
		return nil, p.wrapError("failed to create stream", err)
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()

		send := func(ev StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var acc streamAccumulator
		for {
			response, err := stream.Recv()
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				send(acc.done(req.ConversationID))
				return
			}
			if err != nil {
				send(StreamEvent{Text: acc.text(), Err: p.wrapError("stream error", err)})
				return
			}

			if len(response.Choices) > 0 {
				content := response.Choices[0].Delta.Content
				if content != "" && !send(acc.add(content)) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Learn implements Transport
func (p *OpenAIProvider) Learn(ctx context.Context, rule Rule) error {
	return ErrLearnUnsupported
}

// wrapError lifts go-openai errors into APIError so credential failures are recognisable
func (p *OpenAIProvider) wrapError(msg string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", msg, &APIError{
			Provider:   p.Name(),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		})
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%s: %w", msg, &APIError{
			Provider:   p.Name(),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
		})
	}
	return fmt.Errorf("%s: %w", msg, err)
}
