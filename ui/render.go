package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/progress"
	"veritas-client/utils"
)

// Semantic colors
var (
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Destructive = lipgloss.Color("#e53935")
	Muted       = lipgloss.Color("#808a99")
	Info        = lipgloss.Color("#2196F3")
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(Muted)
	stepStyle  = lipgloss.NewStyle().Foreground(Info)
	errorStyle = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

func verdictColor(v llm.Verdict) lipgloss.Color {
	switch v {
	case llm.VerdictAuthentic:
		return Success
	case llm.VerdictSuspicious:
		return Warning
	case llm.VerdictFakeGenerated:
		return Destructive
	case llm.VerdictInconclusive:
		return Muted
	}
	return Muted
}

func statusMark(s llm.DetailStatus) string {
	switch s {
	case llm.StatusPass:
		return lipgloss.NewStyle().Foreground(Success).Render("✓")
	case llm.StatusWarn:
		return lipgloss.NewStyle().Foreground(Warning).Render("!")
	case llm.StatusFail:
		return lipgloss.NewStyle().Foreground(Destructive).Render("✗")
	}
	return "?"
}

// Renderer draws domain objects on the terminal
type Renderer struct {
	style string
	width int
	md    *glamour.TermRenderer
}

// NewRenderer creates a renderer for the configured style and width
func NewRenderer(cfg utils.UIConfig) *Renderer {
	width := cfg.Width
	if width <= 0 {
		width = 100
	}
	return &Renderer{style: cfg.Style, width: width}
}

// Markdown renders md for the terminal, falling back to the raw text
func (r *Renderer) Markdown(md string) string {
	if r.md == nil {
		styleOpt := glamour.WithAutoStyle()
		if r.style != "" && r.style != "auto" {
			styleOpt = glamour.WithStandardStyle(r.style)
		}
		renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(r.width))
		if err != nil {
			return md
		}
		r.md = renderer
	}
	out, err := r.md.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Verdict renders a verification result
func (r *Renderer) Verdict(w io.Writer, result *llm.VerificationResult, transport string) {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(verdictColor(result.Verdict)).
		Render(fmt.Sprintf("%s  %d%%", result.Verdict, result.Confidence))

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(r.width - 4).Render(result.Summary))
	b.WriteString("\n")

	if len(result.Reasoning) > 0 {
		b.WriteString("\n" + titleStyle.Render("Reasoning") + "\n")
		for _, reason := range result.Reasoning {
			b.WriteString("  • " + reason + "\n")
		}
	}
	if len(result.TechnicalDetails) > 0 {
		b.WriteString("\n" + titleStyle.Render("Technical details") + "\n")
		for _, d := range result.TechnicalDetails {
			b.WriteString(fmt.Sprintf("  %s %s: %s\n", statusMark(d.Status), d.Label, d.Value))
			if d.Explanation != "" {
				b.WriteString("    " + mutedStyle.Render(d.Explanation) + "\n")
			}
		}
	}
	if len(result.Sources) > 0 {
		b.WriteString("\n" + titleStyle.Render("Sources") + "\n")
		for _, src := range result.Sources {
			b.WriteString(fmt.Sprintf("  %s %s\n", src.Title, mutedStyle.Render(src.URI)))
		}
	}
	if transport != "" {
		b.WriteString("\n" + mutedStyle.Render("via "+transport))
	}

	fmt.Fprintln(w, boxStyle.BorderForeground(verdictColor(result.Verdict)).Render(strings.TrimRight(b.String(), "\n")))
}

// Progress prints the steps that started between two snapshots
func (r *Renderer) Progress(w io.Writer, prev, next []progress.Step) {
	for i, step := range next {
		var before progress.StepStatus = -1
		if i < len(prev) {
			before = prev[i].Status
		}
		// Each step is printed once, when it first leaves pending
		shown := before == progress.Processing || before == progress.Completed
		if step.Status == progress.Pending || shown {
			continue
		}
		fmt.Fprintln(w, stepStyle.Render("› "+step.Label+"..."))
	}
}

// Error prints a classified failure
func (r *Renderer) Error(w io.Writer, err error) {
	fmt.Fprintln(w, errorStyle.Render("Error: ")+err.Error())
}

// History renders the verification history
func (r *Renderer) History(w io.Writer, items []db.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No verifications yet.")
		return
	}
	for _, item := range items {
		verdict := lipgloss.NewStyle().Foreground(verdictColor(item.Result.Verdict)).
			Render(fmt.Sprintf("%-15s %3d%%", item.Result.Verdict, item.Result.Confidence))
		fmt.Fprintf(w, "%s  %-5s  %s  %s\n",
			mutedStyle.Render(formatMillis(item.Timestamp)),
			item.ContentType,
			verdict,
			item.Preview,
		)
	}
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d item(s)", len(items))))
}

// Conversations renders conversation summaries
func (r *Renderer) Conversations(w io.Writer, convs []db.ConversationSummary) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	for _, c := range convs {
		fmt.Fprintf(w, "%s  %s  %s %s\n",
			c.ID,
			mutedStyle.Render(formatMillis(c.UpdatedAt)),
			c.Title,
			mutedStyle.Render(fmt.Sprintf("(%d messages)", c.MessageCount)),
		)
	}
}

// Conversation renders a full transcript through glamour
func (r *Renderer) Conversation(w io.Writer, conv db.Conversation) {
	fmt.Fprint(w, r.Markdown(utils.ConversationMarkdown(conv)))
}

// Rules renders learned rules
func (r *Renderer) Rules(w io.Writer, rules []llm.Rule) {
	if len(rules) == 0 {
		fmt.Fprintln(w, "No learned rules.")
		return
	}
	for _, rule := range rules {
		origin := "local"
		if rule.Remote {
			origin = "remote"
		}
		fmt.Fprintf(w, "%-5s  %s  %s %d%%  %s\n",
			rule.ContentType,
			rule.Pattern,
			lipgloss.NewStyle().Foreground(verdictColor(rule.Verdict)).Render(string(rule.Verdict)),
			rule.Confidence,
			mutedStyle.Render(origin),
		)
	}
}

// Stats renders session statistics
func (r *Renderer) Stats(w io.Writer, stats *db.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Session statistics"))
	fmt.Fprintln(w, strings.Repeat("─", 40))
	fmt.Fprintf(w, "Verifications:  %d\n", stats.HistoryCount)
	for _, v := range []llm.Verdict{llm.VerdictAuthentic, llm.VerdictSuspicious, llm.VerdictFakeGenerated, llm.VerdictInconclusive} {
		if n := stats.VerdictCounts[v]; n > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", v, n)
		}
	}
	fmt.Fprintf(w, "Learned rules:  %d\n", stats.RuleCount)
	types := make([]string, 0, len(stats.RulesByType))
	for ct := range stats.RulesByType {
		types = append(types, string(ct))
	}
	sort.Strings(types)
	for _, ct := range types {
		fmt.Fprintf(w, "  %-16s %d\n", ct, stats.RulesByType[llm.ContentType(ct)])
	}
	fmt.Fprintf(w, "Conversations:  %d (%d messages)\n", stats.ConversationCount, stats.MessageCount)
	fmt.Fprintf(w, "Storage:        %s\n", utils.FormatFileSize(stats.SizeBytes))
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}
