package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/utils"
)

const verdictReply = "```json\n" + `{
  "verdict": "Suspicious",
  "confidence": 72,
  "summary": "The quote cannot be traced to any primary source.",
  "reasoning": ["No transcript contains the quote"],
  "technicalDetails": [{"label": "Sources", "value": "0", "status": "warn", "explanation": "Nothing found"}]
}` + "\n```"

// fakeBackend serves the proxy API
type fakeBackend struct {
	mu      sync.Mutex
	learned []map[string]interface{}
	down    bool
}

func (b *fakeBackend) setDown(down bool) {
	b.mu.Lock()
	b.down = down
	b.mu.Unlock()
}

func (b *fakeBackend) learnedRules() []map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]interface{}(nil), b.learned...)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	down := b.down
	b.mu.Unlock()
	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	switch r.URL.Path {
	case "/health":
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case "/verify/text":
		_, _ = w.Write([]byte(verdictReply))
	case "/chat":
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Check ", "the source."} {
			fmt.Fprintf(w, "data: {\"content\":%q}\n\n", chunk)
		}
		fmt.Fprint(w, "data: {\"done\":true,\"conversation_id\":\"conv-1\"}\n\n")
	case "/learn":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.learned = append(b.learned, body)
		b.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	default:
		http.NotFound(w, r)
	}
}

type session struct {
	t          *testing.T
	backend    *fakeBackend
	config     *utils.Config
	configPath string
	store      *db.Store
}

func newSession(t *testing.T) *session {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	config := utils.DefaultConfig()
	config.Backend.URL = srv.URL
	config.Backend.Fallbacks = nil
	config.Analysis.ProgressTickMillis = 5
	config.Data.DBPath = filepath.Join(dir, "veritas.db")
	config.UI.Style = "notty"

	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, utils.SaveConfig(configPath, config))

	database, err := db.New(config.Data.DBPath)
	require.NoError(t, err)
	store := db.NewStore(database)
	t.Cleanup(func() { store.Close() })

	return &session{t: t, backend: backend, config: config, configPath: configPath, store: store}
}

// run executes one command line in a fresh App over the shared session
func (s *session) run(stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	app := NewApp("test",
		WithIO(strings.NewReader(stdin), &out, &errOut),
		WithSession(s.config, s.configPath, s.store, utils.NewNopLogger()),
	)
	defer app.Cleanup()
	err := app.Run(context.Background(), args)
	return out.String(), errOut.String(), err
}

func TestVerifyText(t *testing.T) {
	s := newSession(t)

	out, errOut, err := s.run("", "verify", "--text", "Einstein said the internet is a fad")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "Suspicious")
	assert.Contains(t, out, "72%")
	assert.Contains(t, out, "cannot be traced")
	assert.Contains(t, out, "via Veritas API")
	assert.Contains(t, errOut, "Initializing analysis")

	items, err := s.store.ListHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, llm.ContentText, items[0].ContentType)

	out, _, err = s.run("", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Einstein said the internet is a fad")
	assert.Contains(t, out, "1 item(s)")
}

func TestVerifyCooldownAcrossRuns(t *testing.T) {
	s := newSession(t)

	_, errOut, err := s.run("", "verify", "--text", "first claim")
	require.NoError(t, err, errOut)

	_, errOut, err = s.run("", "verify", "--text", "second claim")
	require.Error(t, err)
	assert.Contains(t, errOut, "cooldown")

	items, err := s.store.ListHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestVerifyJSON(t *testing.T) {
	s := newSession(t)

	out, errOut, err := s.run("", "verify", "--json", "--text", "claim")
	require.NoError(t, err)
	assert.Empty(t, errOut)

	var result llm.VerificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, llm.VerdictSuspicious, result.Verdict)
	assert.Equal(t, 72, result.Confidence)
}

func TestVerifyFile(t *testing.T) {
	s := newSession(t)
	path := filepath.Join(t.TempDir(), "claim.txt")
	require.NoError(t, os.WriteFile(path, []byte("The moon is made of cheese"), 0644))

	out, _, err := s.run("", "verify", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Suspicious")

	_, _, err = s.run("", "verify", path, "--text", "both")
	assert.Error(t, err)
}

func TestVerifyRejectsEmptyText(t *testing.T) {
	s := newSession(t)

	_, _, err := s.run("", "verify", "--text", "   ")
	require.Error(t, err)

	items, err := s.store.ListHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestVerifyBackendDown(t *testing.T) {
	s := newSession(t)
	s.backend.setDown(true)

	_, errOut, err := s.run("", "verify", "--text", "claim")
	require.Error(t, err)
	assert.Contains(t, errOut, "no direct provider is configured")
}

func TestChatOneShot(t *testing.T) {
	s := newSession(t)

	out, errOut, err := s.run("", "chat", "--message", "Is this quote real?")
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "Check the source.")

	conv, err := s.store.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "Is this quote real?", conv.Title)
	require.Len(t, conv.Messages, 2)

	out, _, err = s.run("", "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "conv-1")
	assert.Contains(t, out, "(2 messages)")

	out, _, err = s.run("", "conversations", "show", "conv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Is this quote real?")
}

func TestChatInteractive(t *testing.T) {
	s := newSession(t)
	s.config.Analysis.ChatCooldownSeconds = 0

	out, _, err := s.run("first question\n\n/new\nsecond question\n/exit\n", "chat")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "Check the source."))
	assert.Contains(t, out, "New conversation.")
}

func TestLearnAndRules(t *testing.T) {
	s := newSession(t)

	out, errOut, err := s.run("", "learn",
		"--type", "image",
		"--pattern", "six fingers",
		"--verdict", "Fake/Generated",
		"--confidence", "95",
		"--original", "Authentic",
	)
	require.NoError(t, err, errOut)
	assert.Contains(t, out, "locally and on the backend")
	learned := s.backend.learnedRules()
	require.Len(t, learned, 1)
	assert.Equal(t, "six fingers", learned[0]["pattern"])

	out, _, err = s.run("", "rules", "list", "--type", "image")
	require.NoError(t, err)
	assert.Contains(t, out, "six fingers")
	assert.Contains(t, out, "remote")

	out, _, err = s.run("", "rules", "list", "--type", "audio")
	require.NoError(t, err)
	assert.Contains(t, out, "No learned rules.")

	_, _, err = s.run("", "learn", "--pattern", "x", "--verdict", "Fake")
	assert.Error(t, err)
}

func TestHistoryClearConfirmation(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()
	_, err := s.store.AppendHistory(ctx, db.HistoryItem{ContentType: llm.ContentText, Preview: "x", Result: llm.VerificationResult{Verdict: llm.VerdictAuthentic}})
	require.NoError(t, err)

	out, _, err := s.run("n\n", "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	items, _ := s.store.ListHistory(ctx)
	assert.Len(t, items, 1)

	_, _, err = s.run("", "history", "clear", "--yes")
	require.NoError(t, err)
	items, _ = s.store.ListHistory(ctx)
	assert.Empty(t, items)

	_, _, err = s.run("", "history", "compact")
	assert.NoError(t, err)
}

func TestExportImport(t *testing.T) {
	s := newSession(t)
	_, _, err := s.run("", "chat", "-m", "hello")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "export.json")
	out, _, err := s.run("", "export", "--output", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, _, err = s.run("", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 conversation(s).")

	convs, err := s.store.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestAuthStatsStatusVersion(t *testing.T) {
	s := newSession(t)
	ctx := context.Background()
	require.NoError(t, s.store.ClearReady(ctx))

	out, _, err := s.run("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(live)")
	assert.Contains(t, out, "re-authentication required")

	out, _, err = s.run("", "auth", "--provider", "gemini", "--key", "new-key")
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials marked ready.")
	ready, err := s.store.Ready(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	saved, err := utils.LoadConfig(s.configPath)
	require.NoError(t, err)
	assert.Equal(t, "new-key", saved.LLMProviders["gemini"].APIKey)

	out, _, err = s.run("", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Verifications:  0")

	out, _, err = s.run("", "version")
	require.NoError(t, err)
	assert.Equal(t, "Veritas vtest\n", out)
}
