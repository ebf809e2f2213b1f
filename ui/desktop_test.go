package ui

import (
	"context"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas-client/backend"
	"veritas-client/llm"
	"veritas-client/orchestrator"
	"veritas-client/utils"
)

func newDesktop(t *testing.T, s *session) *Desktop {
	t.Helper()
	logger := utils.NewNopLogger()
	return NewDesktop(test.NewTempApp(t), s.config, s.configPath, s.store, backend.NewFromConfig(s.config, logger), logger)
}

func TestDesktopVerifyText(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()

	d.verifyView.textEntry.SetText("Einstein said the internet is a fad")
	out, err := d.verifyView.verify(ctx, d.verifyView.request())
	require.NoError(t, err)
	assert.Equal(t, llm.VerdictSuspicious, out.Result.Verdict)

	assert.Equal(t, "Suspicious", d.verifyView.verdictText.Text)
	assert.InDelta(t, 0.72, d.verifyView.confidence.Value, 0.001)
	assert.Contains(t, d.verifyView.details.String(), "cannot be traced")
	assert.Contains(t, d.verifyView.statusLabel.Text, "via Veritas API")
	assert.False(t, d.verifyView.teachButton.Disabled())

	assert.Equal(t, orchestrator.Completed, d.State().Status.Phase)
	assert.False(t, d.verifyView.submitButton.Disabled())
	require.Len(t, d.sidebar.history, 1)
	assert.Len(t, d.sidebar.historyList.Objects, 1)

	// Second submission inside the cooldown window
	_, err = d.verifyView.verify(ctx, d.verifyView.request())
	require.Error(t, err)
	assert.Contains(t, d.verifyView.statusLabel.Text, "cooldown")
	items, err := s.store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestDesktopTeach(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()

	d.verifyView.textEntry.SetText("claim")
	_, err := d.verifyView.verify(ctx, d.verifyView.request())
	require.NoError(t, err)
	require.NotNil(t, d.verifyView.shown)

	rule, err := d.verifyView.teach(ctx, orchestrator.FeedbackInput{
		ContentType:     d.verifyView.shown.ContentType,
		Pattern:         "misattributed quote",
		Verdict:         llm.VerdictFakeGenerated,
		Confidence:      90,
		OriginalVerdict: d.verifyView.shown.Result.Verdict,
		Example:         d.verifyView.shown.Preview,
	})
	require.NoError(t, err)
	assert.True(t, rule.Remote)
	assert.Contains(t, d.verifyView.statusLabel.Text, "locally and on the backend")
	require.Len(t, s.backend.learnedRules(), 1)
}

func TestDesktopButtonsFollowState(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)

	d.apply(statusMsg(orchestrator.Status{Phase: orchestrator.InFlight, Operation: backend.OpChat}))
	assert.True(t, d.verifyView.submitButton.Disabled())
	assert.True(t, d.chatView.sendButton.Disabled())
	assert.False(t, d.chatView.stopButton.Disabled())

	d.apply(statusMsg(orchestrator.Status{Phase: orchestrator.InFlight, Operation: backend.OpVerify}))
	assert.True(t, d.chatView.stopButton.Disabled())
	assert.Equal(t, "Analyzing...", d.verifyView.statusLabel.Text)

	d.apply(statusMsg(orchestrator.Status{Phase: orchestrator.Completed, Operation: backend.OpVerify}))
	assert.False(t, d.verifyView.submitButton.Disabled())
	assert.False(t, d.chatView.sendButton.Disabled())
	assert.True(t, d.chatView.stopButton.Disabled())
}

func TestDesktopChat(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()

	bubble := d.chatView.addExchange("Is this quote real?")
	reply, err := d.chatView.send(ctx, "", "Is this quote real?", bubble)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ReplyCompleted, reply.Terminal)
	assert.Equal(t, "Check the source.", bubble.String())
	assert.Equal(t, "conv-1", d.chatView.conversationID)

	require.Len(t, d.sidebar.conversations, 1)
	assert.Equal(t, "Is this quote real?", d.sidebar.conversations[0].Title)

	d.chatView.NewConversation()
	assert.Empty(t, d.chatView.messagesContainer.Objects)

	d.showChat("conv-1")
	assert.Equal(t, "conv-1", d.chatView.conversationID)
	assert.Len(t, d.chatView.messagesContainer.Objects, 2)
	assert.Equal(t, "Is this quote real?", d.chatView.titleLabel.Text)

	d.sidebar.deleteConversation(ctx, "conv-1")
	assert.Empty(t, d.chatView.conversationID)
	assert.Empty(t, d.sidebar.conversations)
}

func TestDesktopSidebarFilterAndClear(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()

	d.verifyView.textEntry.SetText("The moon landing was staged")
	_, err := d.verifyView.verify(ctx, d.verifyView.request())
	require.NoError(t, err)

	d.sidebar.searchEntry.SetText("MOON")
	assert.Len(t, d.sidebar.historyList.Objects, 1)
	d.sidebar.searchEntry.SetText("mars")
	assert.Empty(t, d.sidebar.historyList.Objects)
	d.sidebar.searchEntry.SetText("")

	d.sidebar.clearHistory(ctx)
	assert.Empty(t, d.sidebar.history)
	items, err := s.store.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDesktopSettings(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()
	require.NoError(t, s.store.ClearReady(ctx))

	sv := d.settingsView
	sv.Build()
	assert.Equal(t, "re-authentication required", sv.credentialLabel.Text)

	sv.loadProviderConfig("gemini")
	sv.apiKeyEntry.SetText("new-key")
	require.NoError(t, sv.saveProviderConfig(ctx))
	assert.Equal(t, "ready", sv.credentialLabel.Text)

	ready, err := s.store.Ready(ctx)
	require.NoError(t, err)
	assert.True(t, ready)

	sv.applyTheme("Light")
	sv.setFontSize(16)
	saved, err := utils.LoadConfig(s.configPath)
	require.NoError(t, err)
	assert.Equal(t, "new-key", saved.LLMProviders["gemini"].APIKey)
	assert.Equal(t, "Light", saved.UI.Theme)
	assert.Equal(t, 16, saved.UI.FontSize)

	sv.temperatureEntry.SetText("warm")
	assert.Error(t, sv.saveProviderConfig(ctx))
}

func TestDesktopStats(t *testing.T) {
	s := newSession(t)
	d := newDesktop(t, s)
	ctx := context.Background()

	d.verifyView.textEntry.SetText("claim")
	_, err := d.verifyView.verify(ctx, d.verifyView.request())
	require.NoError(t, err)

	usv := NewUsageStatsView(d)
	usv.Build()
	assert.Contains(t, usv.statsLabel.Text, "Verifications: 1")
	assert.Equal(t, "No learned rules", usv.rulesLabel.Text)
	assert.Equal(t, 1, usv.currentStats.VerdictCounts[llm.VerdictSuspicious])
}

func TestResultMarkdown(t *testing.T) {
	md := resultMarkdown(&llm.VerificationResult{
		Verdict:    llm.VerdictAuthentic,
		Confidence: 88,
		Summary:    "Matches the archive.",
		Reasoning:  []string{"Same wording"},
		Sources:    []llm.Source{{Title: "Archive", URI: "https://archive.example"}},
	})
	assert.Contains(t, md, "**Confidence:** 88%")
	assert.Contains(t, md, "* Same wording")
	assert.Contains(t, md, "[Archive](https://archive.example)")
	assert.NotContains(t, md, "Technical details")
}

func TestDecodeDataURL(t *testing.T) {
	data, ok := decodeDataURL("data:image/jpeg;base64,AAEC")
	require.True(t, ok)
	assert.Equal(t, []byte{0, 1, 2}, data)

	for _, url := range []string{"", "https://x/y.png", "data:image/png;base64,!!", "data:image/png,abc"} {
		_, ok := decodeDataURL(url)
		assert.False(t, ok, url)
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,000", formatNumber(1000))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
}
