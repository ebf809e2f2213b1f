package utils

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"veritas-client/db"
	"veritas-client/llm"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	kv, err := db.New(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatal(err)
	}
	store := db.NewStore(kv)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedStore(t *testing.T, store *db.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := store.AppendHistory(ctx, db.HistoryItem{
		ContentType: llm.ContentText,
		Preview:     "The moon is made of cheese",
		Result: llm.VerificationResult{
			Verdict:    llm.VerdictSuspicious,
			Confidence: 91,
			Summary:    "Not supported by evidence.",
			Reasoning:  []string{"No samples contain dairy"},
			Sources:    []llm.Source{{Title: "NASA", URI: "https://nasa.gov"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	id, err := store.UpsertConversation(ctx, "",
		llm.ChatMessage{Role: llm.RoleUser, Content: "Is it real?"},
		llm.ChatMessage{Role: llm.RoleAssistant, Content: "Prob", Stopped: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RenameConversation(ctx, id, "Is it real?"); err != nil {
		t.Fatal(err)
	}
}

func TestExportJSONRoundTripsConversations(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	seedStore(t, src)

	path := filepath.Join(t.TempDir(), "out.json")
	if err := Export(ctx, src, FormatJSON, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var bundle exportBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(bundle.History) != 1 || bundle.History[0].Result.Verdict != llm.VerdictSuspicious {
		t.Errorf("unexpected history in export: %+v", bundle.History)
	}

	dst := newTestStore(t)
	n, err := ImportConversations(ctx, dst, path)
	if err != nil {
		t.Fatalf("ImportConversations failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 imported conversation, got %d", n)
	}

	list, err := dst.ListAllConversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Title != "Is it real?" || len(list[0].Messages) != 2 || !list[0].Messages[1].Stopped {
		t.Errorf("imported conversation mismatch: %+v", list[0])
	}
}

func TestExportMarkdown(t *testing.T) {
	store := newTestStore(t)
	seedStore(t, store)

	path := filepath.Join(t.TempDir(), "out.md")
	if err := Export(context.Background(), store, FormatMarkdown, path); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	md := string(data)

	for _, want := range []string{
		"# Verification history",
		"TEXT: Suspicious (91%)",
		"- [NASA](https://nasa.gov)",
		"## Is it real?",
		"Prob *(stopped)*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestHistoryMarkdownEmpty(t *testing.T) {
	if md := HistoryMarkdown(nil); !strings.Contains(md, "No verifications yet") {
		t.Errorf("unexpected markdown for empty history: %q", md)
	}
}

func TestParseExportFormat(t *testing.T) {
	tests := map[string]ExportFormat{"": FormatJSON, "JSON": FormatJSON, "md": FormatMarkdown, "markdown": FormatMarkdown}
	for in, want := range tests {
		got, err := ParseExportFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseExportFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseExportFormat("pdf"); err == nil {
		t.Error("expected error for pdf")
	}
}

func TestGenerateExportFilename(t *testing.T) {
	name := GenerateExportFilename("a/b: c", FormatMarkdown)
	if !strings.HasPrefix(name, "a_b__c_") || !strings.HasSuffix(name, ".md") {
		t.Errorf("unexpected filename %q", name)
	}
}
