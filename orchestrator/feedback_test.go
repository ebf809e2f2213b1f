package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas-client/backend"
	"veritas-client/llm"
)

func TestTeachRemote(t *testing.T) {
	var sent llm.Rule
	transport := &fakeTransport{
		name: "primary",
		learn: func(ctx context.Context, rule llm.Rule) error {
			sent = rule
			return nil
		},
	}
	h := newHarness(t, transport)
	ctx := context.Background()

	rule, err := h.orch.Teach(ctx, FeedbackInput{
		ContentType:     llm.ContentImage,
		Pattern:         "  extra fingers on hands ",
		Verdict:         llm.VerdictFakeGenerated,
		Confidence:      95,
		OriginalVerdict: llm.VerdictAuthentic,
		Example:         strings.Repeat("e", 250),
	})
	require.NoError(t, err)

	assert.True(t, rule.Remote)
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, "extra fingers on hands", sent.Pattern)
	assert.Len(t, sent.Example, 200)

	rules, err := h.store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)
	assert.True(t, rules[0].Remote)
}

func TestTeachFallsBackToLocal(t *testing.T) {
	tests := map[string]func(h *harness){
		"no transport": func(h *harness) { h.resolver.err = backend.ErrTransportUnavailable },
		"learn rejected": func(h *harness) {
			h.resolver.transport.learn = func(context.Context, llm.Rule) error {
				return &llm.APIError{Provider: "Veritas API", StatusCode: 500, Message: "db down"}
			}
		},
		"direct transport": func(h *harness) {},
	}
	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, &fakeTransport{name: "primary"})
			setup(h)

			rule, err := h.orch.Teach(context.Background(), FeedbackInput{
				ContentType: llm.ContentText,
				Pattern:     "satire site",
				Verdict:     llm.VerdictSuspicious,
				Confidence:  70,
			})
			require.NoError(t, err)
			assert.False(t, rule.Remote)

			rules, err := h.store.RulesFor(context.Background(), llm.ContentText, 5)
			require.NoError(t, err)
			assert.Len(t, rules, 1)
		})
	}
}

func TestTeachRejectsBadInput(t *testing.T) {
	h := newHarness(t, &fakeTransport{name: "primary"})
	valid := FeedbackInput{ContentType: llm.ContentText, Pattern: "p", Verdict: llm.VerdictAuthentic, Confidence: 50}

	tests := map[string]func(in *FeedbackInput){
		"empty pattern":    func(in *FeedbackInput) { in.Pattern = " " },
		"bad type":         func(in *FeedbackInput) { in.ContentType = "pdf" },
		"bad verdict":      func(in *FeedbackInput) { in.Verdict = "Fake" },
		"bad original":     func(in *FeedbackInput) { in.OriginalVerdict = "Real" },
		"confidence range": func(in *FeedbackInput) { in.Confidence = 101 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := h.orch.Teach(context.Background(), in)
			assert.Equal(t, InputRejected, KindOf(err))
		})
	}
	assert.Zero(t, h.resolver.Calls())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{context.Canceled, Aborted},
		{fmt.Errorf("verify: %w", backend.ErrTransportUnavailable), TransportUnavailable},
		{&llm.APIError{StatusCode: 401}, AuthExpired},
		{&llm.APIError{StatusCode: 404, Message: "Requested entity was not found."}, AuthExpired},
		{&llm.APIError{StatusCode: 429, Message: "quota exceeded"}, Unknown},
		{llm.ErrMalformed, Malformed},
		{fmt.Errorf("decode: %w", llm.ErrInvalidEnum), Malformed},
		{context.DeadlineExceeded, Unknown},
		{errors.New("connection reset"), Unknown},
	}
	for _, tt := range tests {
		got := Classify(tt.err)
		assert.Equal(t, tt.want, got.Kind, "Classify(%v)", tt.err)
		assert.True(t, errors.Is(got, tt.err))
	}

	assert.Nil(t, Classify(nil))
	ae := &AnalysisError{Kind: Malformed}
	assert.Same(t, ae, Classify(fmt.Errorf("wrapped: %w", ae)))
}
