package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenAIProvider(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "llama-test"})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_VerifyEmbedsSchema(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[0].Content, "Respond with ONLY valid JSON")

		resp := map[string]interface{}{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": validReply}}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	reply, err := p.Verify(context.Background(), AnalysisRequest{ContentType: ContentText, Content: TextContent("claim")})
	require.NoError(t, err)
	assert.Equal(t, validReply, reply.Text)
	assert.False(t, p.Capabilities().SchemaEnforcement)
}

func TestOpenAIProvider_AuthError(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})

	_, err := p.Verify(context.Background(), AnalysisRequest{ContentType: ContentText, Content: TextContent("claim")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
}

func TestOpenAIProvider_StreamChat(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Hel", "lo"} {
			data, _ := json.Marshal(map[string]interface{}{
				"id":      "chunk",
				"object":  "chat.completion.chunk",
				"choices": []map[string]interface{}{{"index": 0, "delta": map[string]string{"content": chunk}}},
			})
			_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	})

	ch, err := p.StreamChat(context.Background(), ChatRequest{Message: "hi", ConversationID: "c9"})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello", events[1].Text)
	assert.True(t, events[2].Done)
	assert.Equal(t, "c9", events[2].ConversationID)
}
