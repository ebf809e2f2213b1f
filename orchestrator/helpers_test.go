package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"veritas-client/backend"
	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/progress"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const validReply = "Here is my analysis:\n```json\n" + `{
  "verdict": "Authentic",
  "confidence": 87,
  "summary": "Consistent with known reporting.",
  "reasoning": ["Matches sources"],
  "technicalDetails": [{"label": "Claims", "value": "1", "status": "pass", "explanation": "verified"}]
}` + "\n```"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTransport struct {
	name   string
	verify func(ctx context.Context, req llm.AnalysisRequest) (*llm.RawReply, error)
	chat   func(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error)
	learn  func(ctx context.Context, rule llm.Rule) error

	mu       sync.Mutex
	requests []llm.AnalysisRequest
	chats    []llm.ChatRequest
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true}
}

func (f *fakeTransport) Verify(ctx context.Context, req llm.AnalysisRequest) (*llm.RawReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.verify == nil {
		return &llm.RawReply{Text: validReply}, nil
	}
	return f.verify(ctx, req)
}

func (f *fakeTransport) StreamChat(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	f.mu.Lock()
	f.chats = append(f.chats, req)
	f.mu.Unlock()
	return f.chat(ctx, req)
}

func (f *fakeTransport) Learn(ctx context.Context, rule llm.Rule) error {
	if f.learn == nil {
		return llm.ErrLearnUnsupported
	}
	return f.learn(ctx, rule)
}

func (f *fakeTransport) lastRequest() llm.AnalysisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeResolver struct {
	transport *fakeTransport
	err       error

	mu    sync.Mutex
	calls int
}

func (r *fakeResolver) ResolveTransport(ctx context.Context, op backend.Operation) (*backend.Handle, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return &backend.Handle{Transport: r.transport, Primary: true, Operation: op}, nil
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	steps    [][]progress.Step
}

func (r *recorder) onStatus(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *recorder) onProgress(s []progress.Step) {
	r.mu.Lock()
	r.steps = append(r.steps, s)
	r.mu.Unlock()
}

func (r *recorder) phases() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Phase, len(r.statuses))
	for i, s := range r.statuses {
		out[i] = s.Phase
	}
	return out
}

type harness struct {
	orch     *Orchestrator
	store    *db.Store
	clock    *fakeClock
	resolver *fakeResolver
	rec      *recorder
}

func newHarness(t *testing.T, transport *fakeTransport, tweak ...func(*Options)) *harness {
	t.Helper()

	kv, err := db.New(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	store := db.NewStore(kv)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		store:    store,
		clock:    newFakeClock(),
		resolver: &fakeResolver{transport: transport},
		rec:      &recorder{},
	}
	opts := Options{
		Cooldown:     10 * time.Second,
		ChatCooldown: 2 * time.Second,
		TickInterval: time.Millisecond,
		Clock:        h.clock.Now,
		OnStatus:     h.rec.onStatus,
		OnProgress:   h.rec.onProgress,
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	h.orch = New(h.resolver, store, opts)
	return h
}

func textRequest(text string) llm.AnalysisRequest {
	return llm.AnalysisRequest{Content: llm.TextContent(text)}
}
