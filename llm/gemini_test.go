package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewGeminiProvider(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gemini-test"})
	require.NoError(t, err)
	return p
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	_, err := NewGeminiProvider(Config{})
	assert.Error(t, err)
}

func TestGeminiProvider_VerifySchemaMode(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req GeminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Empty(t, req.Tools)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.NotNil(t, req.GenerationConfig.ResponseSchema)

		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)

		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, validReply)
	})

	reply, err := p.Verify(context.Background(), AnalysisRequest{
		ContentType: ContentImage,
		Content:     MediaContent([]byte{0x89, 'P', 'N', 'G'}, "image/png", "x.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, validReply, reply.Text)
	assert.Nil(t, reply.Grounding)
}

func TestGeminiProvider_VerifySearchGrounding(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		var req GeminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.NotNil(t, req.Tools[0].GoogleSearch)
		assert.Nil(t, req.GenerationConfig.ResponseSchema)
		assert.Contains(t, req.SystemInstruction.Parts[0].Text, "Respond with ONLY valid JSON")

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]},
		  "groundingMetadata":{"groundingChunks":[
		    {"web":{"uri":"https://a.example","title":"A"}},
		    {"web":{"uri":"https://a.example","title":"A again"}},
		    {"retrievedContext":{}},
		    {"web":{"uri":"https://b.example","title":"B"}}]}}]}`))
	})

	reply, err := p.Verify(context.Background(), AnalysisRequest{
		ContentType: ContentText,
		Content:     TextContent("claim"),
		UseSearch:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, []Source{
		{Title: "A again", URI: "https://a.example"},
		{Title: "B", URI: "https://b.example"},
	}, reply.Grounding)
}

func TestGeminiProvider_AuthError(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	})

	_, err := p.Verify(context.Background(), AnalysisRequest{ContentType: ContentText, Content: TextContent("x")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.True(t, strings.HasPrefix(apiErr.Message, "INVALID_ARGUMENT: "))
}

func TestGeminiProvider_EmptyCandidatesMalformed(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := p.Verify(context.Background(), AnalysisRequest{ContentType: ContentText, Content: TextContent("x")})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestGeminiProvider_StreamChat(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		var req GeminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "model", req.Contents[1].Role)

		for _, chunk := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\n\n", chunk)
		}
	})

	ch, err := p.StreamChat(context.Background(), ChatRequest{
		Message:        "and now?",
		ConversationID: "local-1",
		History: []ChatMessage{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	})
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "Hello", events[1].Text)
	assert.True(t, events[2].Done)
	assert.Equal(t, "local-1", events[2].ConversationID)
}

func TestGeminiProvider_LearnUnsupported(t *testing.T) {
	p := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {})
	assert.ErrorIs(t, p.Learn(context.Background(), Rule{}), ErrLearnUnsupported)
}
