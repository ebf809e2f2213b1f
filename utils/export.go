package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"veritas-client/db"
	"veritas-client/llm"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

// ParseExportFormat accepts json, markdown or md
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// exportBundle is the JSON envelope written by Export
type exportBundle struct {
	Metadata      map[string]string `json:"metadata"`
	History       []db.HistoryItem  `json:"history"`
	Conversations []db.Conversation `json:"conversations"`
}

// Export writes the whole session (history and conversations) to path
func Export(ctx context.Context, store *db.Store, format ExportFormat, path string) error {
	history, err := store.ListHistory(ctx)
	if err != nil {
		return err
	}
	convs, err := store.ListAllConversations(ctx)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case FormatJSON:
		bundle := exportBundle{
			Metadata: map[string]string{
				"export_version": "1.0",
				"export_date":    time.Now().Format(time.RFC3339),
				"app_name":       "Veritas",
			},
			History:       history,
			Conversations: convs,
		}
		if bundle.History == nil {
			bundle.History = []db.HistoryItem{}
		}
		if bundle.Conversations == nil {
			bundle.Conversations = []db.Conversation{}
		}
		data, err = json.MarshalIndent(bundle, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
	case FormatMarkdown:
		data = []byte(HistoryMarkdown(history) + "\n" + ConversationsMarkdown(convs))
	default:
		return fmt.Errorf("unknown export format %q", format)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// HistoryMarkdown renders verification history as Markdown
func HistoryMarkdown(items []db.HistoryItem) string {
	var sb strings.Builder
	sb.WriteString("# Verification history\n\n")
	if len(items) == 0 {
		sb.WriteString("_No verifications yet._\n")
		return sb.String()
	}

	for i, item := range items {
		r := item.Result
		sb.WriteString(fmt.Sprintf("## %s: %s (%d%%)\n\n", strings.ToUpper(string(item.ContentType)), r.Verdict, r.Confidence))
		sb.WriteString(fmt.Sprintf("*%s*\n\n", time.UnixMilli(item.Timestamp).Format("2006-01-02 15:04:05")))
		if item.Preview != "" {
			sb.WriteString(fmt.Sprintf("> %s\n\n", item.Preview))
		}
		sb.WriteString(r.Summary)
		sb.WriteString("\n\n")
		for _, reason := range r.Reasoning {
			sb.WriteString(fmt.Sprintf("- %s\n", reason))
		}
		if len(r.Sources) > 0 {
			sb.WriteString("\n**Sources**\n\n")
			for _, src := range r.Sources {
				sb.WriteString(fmt.Sprintf("- [%s](%s)\n", src.Title, src.URI))
			}
		}
		if i < len(items)-1 {
			sb.WriteString("\n---\n\n")
		}
	}
	return sb.String()
}

// ConversationsMarkdown renders conversations as Markdown
func ConversationsMarkdown(convs []db.Conversation) string {
	var sb strings.Builder
	sb.WriteString("# Conversations\n\n")
	for _, conv := range convs {
		sb.WriteString(ConversationMarkdown(conv))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ConversationMarkdown renders a single conversation
func ConversationMarkdown(conv db.Conversation) string {
	var sb strings.Builder

	title := conv.Title
	if title == "" {
		title = "Untitled"
	}
	sb.WriteString(fmt.Sprintf("## %s\n\n", title))
	sb.WriteString(fmt.Sprintf("**Updated**: %s\n\n", time.UnixMilli(conv.UpdatedAt).Format("2006-01-02 15:04:05")))

	for _, msg := range conv.Messages {
		roleName := "You"
		if msg.Role == llm.RoleAssistant {
			roleName = "Veritas"
		}
		sb.WriteString(fmt.Sprintf("### %s\n\n", roleName))
		sb.WriteString(msg.Content)
		if msg.Stopped {
			sb.WriteString(" *(stopped)*")
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// ImportConversations loads conversations from a JSON export written by
// Export and appends them to store under fresh ids. Returns the number imported.
func ImportConversations(ctx context.Context, store *db.Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read file: %w", err)
	}

	var bundle exportBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	count := 0
	for _, conv := range bundle.Conversations {
		if len(conv.Messages) == 0 {
			continue
		}
		id, err := store.UpsertConversation(ctx, "", conv.Messages...)
		if err != nil {
			return count, err
		}
		if err := store.RenameConversation(ctx, id, conv.Title); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat) string {
	// Sanitize title for filename
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, title)
	sanitized = Truncate(sanitized, 50, "")

	timestamp := time.Now().Format("20060102_150405")
	ext := string(format)
	if format == FormatMarkdown {
		ext = "md"
	}

	return fmt.Sprintf("%s_%s.%s", sanitized, timestamp, ext)
}

// GetDefaultExportPath returns the default export directory, creating it if needed
func GetDefaultExportPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(homeDir, "Documents", "Veritas_Exports")
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}

	return exportDir, nil
}
