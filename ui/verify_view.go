package ui

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"veritas-client/backend"
	"veritas-client/db"
	"veritas-client/llm"
	"veritas-client/orchestrator"
	"veritas-client/progress"
	"veritas-client/utils"
)

// VerifyView is the submission form with the step list and the verdict card
type VerifyView struct {
	d *Desktop

	textEntry    *widget.Entry
	fileLabel    *widget.Label
	removeButton *widget.Button
	searchCheck  *widget.Check
	submitButton *widget.Button
	statusLabel  *widget.Label
	stepsBox     *fyne.Container

	verdictText *canvas.Text
	confidence  *widget.ProgressBar
	details     *widget.RichText
	thumbnail   *canvas.Image
	teachButton *widget.Button

	media *llm.Content
	shown *db.HistoryItem // result the teach button corrects
}

// NewVerifyView creates the verify tab of d
func NewVerifyView(d *Desktop) *VerifyView {
	return &VerifyView{d: d}
}

// Build creates the tab content
func (v *VerifyView) Build() fyne.CanvasObject {
	v.textEntry = widget.NewMultiLineEntry()
	v.textEntry.Wrapping = fyne.TextWrapWord
	v.textEntry.SetPlaceHolder("Paste a claim or quote to check, or open a file...")
	v.textEntry.SetMinRowsVisible(5)

	openButton := widget.NewButton("Open file...", v.openFile)
	v.fileLabel = widget.NewLabel("")
	v.removeButton = widget.NewButton("Remove", func() {
		v.setMedia(nil)
	})
	v.removeButton.Hide()

	v.searchCheck = widget.NewCheck("Ground with web search", nil)
	v.submitButton = widget.NewButton("Verify", v.submit)
	v.submitButton.Importance = widget.HighImportance

	v.statusLabel = widget.NewLabel("")
	v.statusLabel.Wrapping = fyne.TextWrapWord
	v.stepsBox = container.NewVBox()

	v.verdictText = canvas.NewText("", verdictRGBA(""))
	v.verdictText.TextSize = 22
	v.verdictText.TextStyle = fyne.TextStyle{Bold: true}
	v.confidence = widget.NewProgressBar()
	v.confidence.Hide()
	v.details = widget.NewRichText()
	v.details.Wrapping = fyne.TextWrapWord

	v.thumbnail = canvas.NewImageFromResource(nil)
	v.thumbnail.FillMode = canvas.ImageFillContain
	v.thumbnail.SetMinSize(fyne.NewSize(120, 120))
	v.thumbnail.Hide()

	v.teachButton = widget.NewButton("Correct this verdict...", v.showTeachDialog)
	v.teachButton.Disable()

	controls := container.NewHBox(openButton, v.fileLabel, v.removeButton, layout.NewSpacer(), v.searchCheck, v.submitButton)
	input := container.NewBorder(nil, controls, nil, nil, v.textEntry)

	header := container.NewHBox(v.thumbnail, container.NewVBox(v.verdictText, v.confidence))
	result := container.NewVBox(header, v.details, v.teachButton)

	body := container.NewVBox(v.statusLabel, v.stepsBox, widget.NewSeparator(), result)
	return container.NewBorder(input, nil, nil, nil, container.NewVScroll(body))
}

// update follows the orchestrator state
func (v *VerifyView) update(state State) {
	if v.submitButton == nil {
		return
	}
	if state.Status.Busy() {
		v.submitButton.Disable()
	} else {
		v.submitButton.Enable()
	}
	if state.Status.Operation != backend.OpVerify {
		return
	}
	if state.Status.Phase == orchestrator.InFlight {
		v.statusLabel.SetText("Analyzing...")
	}
	v.setSteps(state.Steps)
}

func (v *VerifyView) setSteps(steps []progress.Step) {
	objects := make([]fyne.CanvasObject, 0, len(steps))
	for _, step := range steps {
		label := widget.NewLabel(stepMark(step.Status) + " " + step.Label)
		if step.Status == progress.Processing {
			label.TextStyle = fyne.TextStyle{Bold: true}
		}
		objects = append(objects, label)
	}
	v.stepsBox.Objects = objects
	v.stepsBox.Refresh()
}

func stepMark(s progress.StepStatus) string {
	switch s {
	case progress.Completed:
		return "✓"
	case progress.Processing:
		return "…"
	}
	return "·"
}

// request builds the analysis request from the form
func (v *VerifyView) request() llm.AnalysisRequest {
	content := llm.TextContent(v.textEntry.Text)
	if v.media != nil {
		content = *v.media
	}
	return llm.AnalysisRequest{Content: content, UseSearch: v.searchCheck.Checked}
}

func (v *VerifyView) submit() {
	req := v.request()
	utils.SafeGo(v.d.logger, "desktop verify", func() {
		v.verify(context.Background(), req)
	})
}

// verify runs one verification and shows its outcome. It blocks until the
// request settles.
func (v *VerifyView) verify(ctx context.Context, req llm.AnalysisRequest) (*orchestrator.VerificationOutcome, error) {
	out, err := v.d.orch.Submit(ctx, req)
	fyne.Do(func() {
		if err != nil {
			v.statusLabel.SetText(err.Error())
			if orchestrator.KindOf(err) != orchestrator.InputRejected {
				v.d.showError(err)
			}
			return
		}
		v.statusLabel.SetText("Done via " + out.Transport)
		item := out.History
		if item == nil {
			// Not persisted; still show and allow correcting it
			item = &db.HistoryItem{ContentType: req.Content.Type(), Preview: req.Content.Text, Result: *out.Result}
		}
		v.showItem(item)
		v.d.sidebar.Refresh()
	})
	return out, err
}

// showHistory displays a stored verification
func (v *VerifyView) showHistory(item db.HistoryItem) {
	v.statusLabel.SetText(fmt.Sprintf("From history, %s", time.UnixMilli(item.Timestamp).Format("2006-01-02 15:04")))
	v.setSteps(nil)
	v.showItem(&item)
}

func (v *VerifyView) showItem(item *db.HistoryItem) {
	v.shown = item
	result := item.Result

	v.verdictText.Text = string(result.Verdict)
	v.verdictText.Color = verdictRGBA(result.Verdict)
	v.verdictText.Refresh()
	v.confidence.SetValue(float64(result.Confidence) / 100)
	v.confidence.Show()
	v.details.ParseMarkdown(resultMarkdown(&result))

	if data, ok := decodeDataURL(item.Thumbnail); ok {
		v.thumbnail.Resource = fyne.NewStaticResource("thumbnail-"+item.ID, data)
		v.thumbnail.Show()
		v.thumbnail.Refresh()
	} else {
		v.thumbnail.Hide()
	}
	v.teachButton.Enable()
}

// resultMarkdown lays a result out the way the terminal verdict box does
func resultMarkdown(result *llm.VerificationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Confidence:** %d%%\n\n%s\n", result.Confidence, result.Summary)

	if len(result.Reasoning) > 0 {
		b.WriteString("\n## Reasoning\n\n")
		for _, reason := range result.Reasoning {
			b.WriteString("* " + reason + "\n")
		}
	}
	if len(result.TechnicalDetails) > 0 {
		b.WriteString("\n## Technical details\n\n")
		for _, d := range result.TechnicalDetails {
			fmt.Fprintf(&b, "* **%s** (%s): %s", d.Label, d.Status, d.Value)
			if d.Explanation != "" {
				b.WriteString(". " + d.Explanation)
			}
			b.WriteString("\n")
		}
	}
	if len(result.Sources) > 0 {
		b.WriteString("\n## Sources\n\n")
		for _, src := range result.Sources {
			fmt.Fprintf(&b, "* [%s](%s)\n", src.Title, src.URI)
		}
	}
	return b.String()
}

// decodeDataURL returns the payload of a base64 data URL
func decodeDataURL(url string) ([]byte, bool) {
	_, payload, found := strings.Cut(url, ";base64,")
	if !strings.HasPrefix(url, "data:") || !found {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (v *VerifyView) openFile() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			v.d.showError(err)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		if err := v.loadFile(path); err != nil {
			v.d.showError(err)
		}
	}, v.d.window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{
		".txt", ".md", ".png", ".jpg", ".jpeg", ".gif", ".webp",
		".mp3", ".wav", ".ogg", ".m4a", ".mp4", ".webm", ".mov",
	}))
	fd.Show()
}

// loadFile puts a file into the form. Text files fill the entry; media is
// attached in its place.
func (v *VerifyView) loadFile(path string) error {
	content, err := utils.NewMediaLoader(v.d.config.Analysis.MaxMediaBytes).Load(path)
	if err != nil {
		return err
	}
	if !content.IsMedia() {
		v.setMedia(nil)
		v.textEntry.SetText(content.Text)
		return nil
	}
	v.setMedia(&content)
	return nil
}

func (v *VerifyView) setMedia(content *llm.Content) {
	v.media = content
	if content == nil {
		v.fileLabel.SetText("")
		v.removeButton.Hide()
		v.textEntry.Enable()
		return
	}
	v.fileLabel.SetText(fmt.Sprintf("%s (%s)", content.Media.Name, utils.FormatFileSize(content.Media.Size)))
	v.removeButton.Show()
	v.textEntry.Disable()
}

func (v *VerifyView) showTeachDialog() {
	if v.shown == nil {
		return
	}
	item := *v.shown

	patternEntry := widget.NewMultiLineEntry()
	patternEntry.SetPlaceHolder("What the model should look for")
	verdicts := []string{
		string(llm.VerdictAuthentic),
		string(llm.VerdictSuspicious),
		string(llm.VerdictFakeGenerated),
		string(llm.VerdictInconclusive),
	}
	verdictSelect := widget.NewSelect(verdicts, nil)
	verdictSelect.SetSelected(string(item.Result.Verdict))
	confidenceEntry := widget.NewEntry()
	confidenceEntry.SetText("90")

	items := []*widget.FormItem{
		widget.NewFormItem("Pattern", patternEntry),
		widget.NewFormItem("Correct verdict", verdictSelect),
		widget.NewFormItem("Confidence", confidenceEntry),
	}
	dialog.ShowForm("Teach a correction", "Save", "Cancel", items, func(ok bool) {
		if !ok {
			return
		}
		confidence, err := strconv.Atoi(strings.TrimSpace(confidenceEntry.Text))
		if err != nil {
			v.d.showError(fmt.Errorf("confidence must be a number: %w", err))
			return
		}
		in := orchestrator.FeedbackInput{
			ContentType:     item.ContentType,
			Pattern:         patternEntry.Text,
			Verdict:         llm.Verdict(verdictSelect.Selected),
			Confidence:      confidence,
			OriginalVerdict: item.Result.Verdict,
			Example:         item.Preview,
		}
		utils.SafeGo(v.d.logger, "desktop teach", func() {
			v.teach(context.Background(), in)
		})
	}, v.d.window)
}

// teach stores a correction and reports where it was kept
func (v *VerifyView) teach(ctx context.Context, in orchestrator.FeedbackInput) (*llm.Rule, error) {
	rule, err := v.d.orch.Teach(ctx, in)
	fyne.Do(func() {
		if err != nil {
			v.d.showError(err)
			return
		}
		where := "locally"
		if rule.Remote {
			where = "locally and on the backend"
		}
		v.statusLabel.SetText(fmt.Sprintf("Learned rule %s, saved %s.", rule.ID, where))
	})
	return rule, err
}
