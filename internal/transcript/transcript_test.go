package transcript

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/theirongolddev/cchat/internal/model"
)

func sampleConversation() *model.Conversation {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.Conversation{
		ID:        "0f8c2a4e-1111-2222-3333-444455556666",
		Title:     "Go generics: a primer!",
		CreatedAt: at,
		UpdatedAt: at.Add(time.Minute),
		Tags:      []string{"code"},
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "Hello", CreatedAt: at, Metadata: model.MessageMetadata{Tokens: 2}},
			{ID: "m2", Role: model.RoleAssistant, Content: "Hi\nthere", CreatedAt: at, Metadata: model.MessageMetadata{
				Tokens: 3, Model: "claude-3-opus-20240229",
				RenderHints: map[string]string{model.HintStopReason: "end_turn"},
			}},
		},
		Metadata: model.ConversationMetadata{Model: "claude-3-opus-20240229", TotalTokens: 5, Favorited: true},
	}
}

func TestWriteRead_PreservesConversation(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleConversation()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 3 {
		t.Fatalf("wrote %d lines, want 3", lines)
	}

	result := Read(&buf)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	got := result.Conversation
	if got.Title != "Go generics: a primer!" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(got.Messages))
	}
	if got.Messages[1].Content != "Hi\nthere" {
		t.Errorf("Content = %q", got.Messages[1].Content)
	}
	if got.Messages[1].Metadata.RenderHints[model.HintStopReason] != "end_turn" {
		t.Errorf("RenderHints = %v", got.Messages[1].Metadata.RenderHints)
	}
	if got.Metadata.TotalTokens != 5 {
		t.Errorf("TotalTokens = %d, want 5", got.Metadata.TotalTokens)
	}
	if !got.Metadata.Favorited {
		t.Error("Favorited lost")
	}
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"conversation","id":"c1","title":"T","metadata":{"totalTokens":999}}`,
		`not json`,
		`{"type":"user","message":{"id":"a","content":"q","metadata":{"tokens":4}}}`,
		`{"type":"user"}`,
		`{"type":"progress","message":{"id":"x"}}`,
		`{"type":"assistant","message":{"id":"b","content":"r","metadata":{"tokens":6}}}`,
	}, "\n")

	result := Read(strings.NewReader(in))
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.ParseErrors != 2 {
		t.Errorf("ParseErrors = %d, want 2", result.ParseErrors)
	}
	conv := result.Conversation
	if len(conv.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[1].Role != model.RoleAssistant {
		t.Errorf("roles = %s, %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.Metadata.TotalTokens != 10 {
		t.Errorf("TotalTokens = %d, want 10 (recomputed)", conv.Metadata.TotalTokens)
	}
}

func TestRead_MissingHeader(t *testing.T) {
	result := Read(strings.NewReader(`{"type":"user","message":{"id":"a","content":"q"}}`))
	if !errors.Is(result.Err, ErrNoHeader) {
		t.Fatalf("Err = %v, want ErrNoHeader", result.Err)
	}
}

func TestExportFile_ReadFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	conv := sampleConversation()

	path, err := ExportFile(dir, conv)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if filepath.Base(path) != "go-generics-a-primer-0f8c2a4e.jsonl" {
		t.Errorf("file name = %q", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	result := ReadFile(path)
	if result.Err != nil {
		t.Fatalf("ReadFile: %v", result.Err)
	}
	if result.Conversation.ID != conv.ID {
		t.Errorf("ID = %q, want %q", result.Conversation.ID, conv.ID)
	}
}

func TestFileName_EmptySlug(t *testing.T) {
	got := FileName(&model.Conversation{ID: "abc", Title: "???"})
	if got != "abc.jsonl" {
		t.Errorf("FileName = %q, want abc.jsonl", got)
	}
}
