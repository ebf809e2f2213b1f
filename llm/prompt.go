package llm

import (
	"fmt"
	"strings"
)

// MaxPromptRules caps how many learned rules are folded into one prompt
const MaxPromptRules = 5

var systemPrompts = map[ContentType]string{
	ContentText: `You are Veritas, a fact-checking AI. Analyze for:
- Factual accuracy and claims
- AI-generated content patterns
- Logical consistency
- Misinformation or bias`,

	ContentImage: `You are Veritas, an image forensics AI. Analyze for:
- AI generation artifacts
- Manipulation signs
- Lighting/shadow consistency
- Anatomical anomalies`,

	ContentVideo: `You are Veritas, a deepfake detection AI. Analyze for:
- Face manipulation indicators
- Lip sync accuracy
- Temporal consistency`,

	ContentAudio: `You are Veritas, an audio forensics AI. Analyze for:
- Voice cloning patterns
- Unnatural speech rhythms
- AI speech markers`,
}

// ChatSystemPrompt is sent by direct transports ahead of chat history
const ChatSystemPrompt = `You are Veritas, an assistant specialised in fact-checking, misinformation and synthetic media.
Answer concisely in markdown. When you are unsure, say so instead of guessing.`

const responseFormat = `
Respond with ONLY valid JSON:
{
    "verdict": "Authentic" | "Fake/Generated" | "Inconclusive" | "Suspicious",
    "confidence": 0-100,
    "summary": "...",
    "reasoning": ["..."],
    "technicalDetails": [{"label": "...", "value": "...", "status": "pass|fail|warn", "explanation": "..."}]
}`

// ResponseSchema is the structured-output schema sent to providers that enforce it
func ResponseSchema() map[string]interface{} {
	str := map[string]interface{}{"type": "STRING"}
	return map[string]interface{}{
		"type": "OBJECT",
		"properties": map[string]interface{}{
			"verdict": map[string]interface{}{
				"type": "STRING",
				"enum": []string{
					string(VerdictAuthentic),
					string(VerdictSuspicious),
					string(VerdictFakeGenerated),
					string(VerdictInconclusive),
				},
			},
			"confidence": map[string]interface{}{"type": "INTEGER"},
			"summary":    str,
			"reasoning": map[string]interface{}{
				"type":  "ARRAY",
				"items": str,
			},
			"technicalDetails": map[string]interface{}{
				"type": "ARRAY",
				"items": map[string]interface{}{
					"type": "OBJECT",
					"properties": map[string]interface{}{
						"label": str,
						"value": str,
						"status": map[string]interface{}{
							"type": "STRING",
							"enum": []string{string(StatusPass), string(StatusFail), string(StatusWarn)},
						},
						"explanation": str,
					},
					"required": []string{"label", "value", "status", "explanation"},
				},
			},
		},
		"required": []string{"verdict", "confidence", "summary", "reasoning", "technicalDetails"},
	}
}

// Prompt is the provider-neutral payload produced for a verification request
type Prompt struct {
	System   string
	UserText string
	Media    *Media

	// Schema is set only when the transport enforces structured output for this call
	Schema map[string]interface{}

	// Search asks the transport to attach its web search tool
	Search bool
}

// BuildPrompt assembles the payload for req according to the transport's capabilities.
// Search and schema enforcement are mutually exclusive: with the search tool attached
// the schema travels as instruction text instead.
func BuildPrompt(req AnalysisRequest, caps Capabilities) Prompt {
	contentType := req.ContentType
	if !contentType.Valid() {
		contentType = req.Content.Type()
	}

	base, ok := systemPrompts[contentType]
	if !ok {
		base = systemPrompts[ContentText]
	}

	search := req.UseSearch && caps.SearchTool
	enforce := caps.SchemaEnforcement && !search

	var sb strings.Builder
	sb.WriteString(base)
	if block := FormatRules(req.LearningRules); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}
	if !enforce {
		sb.WriteString("\n")
		sb.WriteString(responseFormat)
	}

	p := Prompt{
		System: sb.String(),
		Search: search,
	}
	if enforce {
		p.Schema = ResponseSchema()
	}

	if req.Content.IsMedia() {
		p.Media = req.Content.Media
		p.UserText = fmt.Sprintf("Analyze this %s for authenticity.", contentType)
	} else {
		p.UserText = "Fact-check this text:\n\n" + req.Content.Text
	}
	return p
}

// FormatRules renders learned rules as a few-shot block. Returns "" for no rules.
func FormatRules(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}
	if len(rules) > MaxPromptRules {
		rules = rules[:MaxPromptRules]
	}

	lines := []string{
		"### LEARNED PATTERNS FROM USER FEEDBACK:",
		"Apply these patterns when analyzing media:\n",
	}
	for i, r := range rules {
		lines = append(lines, fmt.Sprintf("%d. **Pattern**: %q", i+1, r.Pattern))
		lines = append(lines, fmt.Sprintf("   → Verdict: %s (%d%% confidence)", r.Verdict, r.Confidence))
		if r.Example != "" {
			lines = append(lines, fmt.Sprintf("   Example: %q", truncateRunes(r.Example, 50)+"..."))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
