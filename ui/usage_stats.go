package ui

import (
	"context"
	"fmt"
	"image/color"
	"sort"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/utils"
)

var chartVerdicts = []llm.Verdict{
	llm.VerdictAuthentic,
	llm.VerdictSuspicious,
	llm.VerdictFakeGenerated,
	llm.VerdictInconclusive,
}

// UsageStatsView shows what the store holds
type UsageStatsView struct {
	d              *Desktop
	statsLabel     *widget.Label
	rulesLabel     *widget.Label
	chartContainer *fyne.Container

	currentStats *db.Stats
}

// NewUsageStatsView creates a statistics view over the store of d
func NewUsageStatsView(d *Desktop) *UsageStatsView {
	return &UsageStatsView{d: d}
}

// Build builds the statistics view UI
func (usv *UsageStatsView) Build() fyne.CanvasObject {
	usv.statsLabel = widget.NewLabel("Loading statistics...")
	usv.statsLabel.Wrapping = fyne.TextWrapWord
	usv.rulesLabel = widget.NewLabel("")
	usv.chartContainer = container.NewStack()

	refreshButton := widget.NewButton("Refresh", func() {
		usv.refreshStats(context.Background())
	})

	mainContent := container.NewVBox(
		container.NewBorder(nil, nil, nil, refreshButton, widget.NewLabel("Statistics")),
		usv.createCard("Overview", usv.statsLabel),
		usv.createCard("Verdicts", usv.chartContainer),
		usv.createCard("Learned rules", usv.rulesLabel),
	)

	usv.refreshStats(context.Background())
	return container.NewVScroll(mainContent)
}

// createCard creates a card-style container
func (usv *UsageStatsView) createCard(title string, content fyne.CanvasObject) *fyne.Container {
	titleLabel := widget.NewLabel(title)
	titleLabel.TextStyle = fyne.TextStyle{Bold: true}

	return container.NewBorder(
		container.NewVBox(titleLabel, widget.NewSeparator()),
		nil, nil, nil,
		content,
	)
}

// refreshStats reloads the statistics from the store
func (usv *UsageStatsView) refreshStats(ctx context.Context) {
	stats, err := usv.d.store.GetStats(ctx)
	if err != nil {
		usv.d.logger.Error("Failed to get stats: %v", err)
		usv.statsLabel.SetText("Failed to load statistics")
		return
	}
	usv.currentStats = stats

	usv.statsLabel.SetText(fmt.Sprintf(
		"Verifications: %s\nConversations: %s (%s messages)\nLearned rules: %s\nStorage: %s",
		formatNumber(int64(stats.HistoryCount)),
		formatNumber(int64(stats.ConversationCount)),
		formatNumber(int64(stats.MessageCount)),
		formatNumber(int64(stats.RuleCount)),
		utils.FormatFileSize(stats.SizeBytes),
	))

	types := make([]string, 0, len(stats.RulesByType))
	for t := range stats.RulesByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	lines := make([]string, 0, len(types))
	for _, t := range types {
		lines = append(lines, fmt.Sprintf("%s: %d", t, stats.RulesByType[llm.ContentType(t)]))
	}
	if len(lines) == 0 {
		lines = append(lines, "No learned rules")
	}
	usv.rulesLabel.SetText(strings.Join(lines, "\n"))

	usv.chartContainer.Objects = []fyne.CanvasObject{usv.createBarChart(stats.VerdictCounts)}
	usv.chartContainer.Refresh()
}

// createBarChart draws one bar per verdict, colored like the verdict card
func (usv *UsageStatsView) createBarChart(counts map[llm.Verdict]int) fyne.CanvasObject {
	maxCount := 0
	for _, v := range chartVerdicts {
		if counts[v] > maxCount {
			maxCount = counts[v]
		}
	}
	if maxCount == 0 {
		return widget.NewLabel("No data available")
	}

	chartHeight := float32(160)
	barWidth := float32(90)
	barSpacing := float32(16)

	bars := container.NewWithoutLayout()
	for i, v := range chartVerdicts {
		x := float32(i) * (barWidth + barSpacing)
		barHeight := float32(counts[v]) / float32(maxCount) * chartHeight
		if barHeight < 1 {
			barHeight = 1
		}

		bar := canvas.NewRectangle(verdictRGBA(v))
		bar.Resize(fyne.NewSize(barWidth, barHeight))
		bar.Move(fyne.NewPos(x, chartHeight-barHeight))
		bars.Add(bar)

		countLabel := widget.NewLabel(formatNumber(int64(counts[v])))
		countLabel.Resize(fyne.NewSize(barWidth, 20))
		countLabel.Move(fyne.NewPos(x, chartHeight-barHeight-24))
		bars.Add(countLabel)

		nameLabel := widget.NewLabel(string(v))
		nameLabel.Resize(fyne.NewSize(barWidth+barSpacing, 20))
		nameLabel.Move(fyne.NewPos(x, chartHeight+5))
		bars.Add(nameLabel)
	}

	totalWidth := float32(len(chartVerdicts))*(barWidth+barSpacing) + barSpacing
	bars.Resize(fyne.NewSize(totalWidth, chartHeight+30))

	// NewWithoutLayout has no min size of its own
	spacer := canvas.NewRectangle(color.Transparent)
	spacer.SetMinSize(fyne.NewSize(totalWidth, chartHeight+30))
	return container.NewHScroll(container.NewStack(spacer, bars))
}

// formatNumber formats a number with thousand separators
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}
