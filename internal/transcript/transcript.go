// Package transcript writes and reads conversations as JSONL files: one
// header line followed by one line per message.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theirongolddev/cchat/internal/model"
)

const entryConversation = "conversation"

// ErrNoHeader is returned when a transcript has no conversation line.
var ErrNoHeader = errors.New("transcript: missing conversation header")

// entry is one JSONL line. Type routes it: "conversation" carries the
// header fields, the message roles carry a message.
type entry struct {
	Type      string                      `json:"type"`
	ID        string                      `json:"id,omitempty"`
	Title     string                      `json:"title,omitempty"`
	CreatedAt *time.Time                  `json:"createdAt,omitempty"`
	UpdatedAt *time.Time                  `json:"updatedAt,omitempty"`
	Tags      []string                    `json:"tags,omitempty"`
	Metadata  *model.ConversationMetadata `json:"metadata,omitempty"`
	Message   *model.Message              `json:"message,omitempty"`
}

// ParseResult holds the output of reading a transcript.
type ParseResult struct {
	Conversation *model.Conversation
	ParseErrors  int
	Err          error
}

// Write encodes conv to w.
func Write(w io.Writer, conv *model.Conversation) error {
	enc := json.NewEncoder(w)
	created, updated := conv.CreatedAt, conv.UpdatedAt
	meta := conv.Metadata
	header := entry{
		Type:      entryConversation,
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: &created,
		UpdatedAt: &updated,
		Tags:      conv.Tags,
		Metadata:  &meta,
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("transcript: writing header: %w", err)
	}
	for i := range conv.Messages {
		m := conv.Messages[i]
		if err := enc.Encode(entry{Type: string(m.Role), Message: &m}); err != nil {
			return fmt.Errorf("transcript: writing message %s: %w", m.ID, err)
		}
	}
	return nil
}

// Read decodes a transcript. Malformed lines and unknown entry types are
// skipped; malformed lines are counted in ParseErrors.
func Read(r io.Reader) ParseResult {
	var (
		conv        *model.Conversation
		messages    []model.Message
		parseErrors int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			parseErrors++
			continue
		}

		switch e.Type {
		case entryConversation:
			if conv != nil {
				continue
			}
			conv = &model.Conversation{ID: e.ID, Title: e.Title, Tags: e.Tags}
			if e.CreatedAt != nil {
				conv.CreatedAt = *e.CreatedAt
			}
			if e.UpdatedAt != nil {
				conv.UpdatedAt = *e.UpdatedAt
			}
			if e.Metadata != nil {
				conv.Metadata = *e.Metadata
			}

		case string(model.RoleUser), string(model.RoleAssistant), string(model.RoleSystem):
			if e.Message == nil {
				parseErrors++
				continue
			}
			m := *e.Message
			m.Role = model.Role(e.Type)
			messages = append(messages, m)
		}
	}
	if err := scanner.Err(); err != nil {
		return ParseResult{ParseErrors: parseErrors, Err: fmt.Errorf("transcript: reading: %w", err)}
	}
	if conv == nil {
		return ParseResult{ParseErrors: parseErrors, Err: ErrNoHeader}
	}

	if messages == nil {
		messages = []model.Message{}
	}
	if conv.Tags == nil {
		conv.Tags = []string{}
	}
	conv.Messages = messages
	conv.Metadata.TotalTokens = conv.SumTokens()
	return ParseResult{Conversation: conv, ParseErrors: parseErrors}
}

// ExportFile writes conv to dir/<name>.jsonl and returns the path.
func ExportFile(dir string, conv *model.Conversation) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("transcript: creating export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(conv))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // dir chosen by the user
	if err != nil {
		return "", fmt.Errorf("transcript: creating %s: %w", path, err)
	}
	if err := Write(f, conv); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// ReadFile reads a transcript from path.
func ReadFile(path string) ParseResult {
	f, err := os.Open(path) //nolint:gosec // path chosen by the user
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// FileName derives a filesystem-safe name from the title and ID.
func FileName(conv *model.Conversation) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(conv.Title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('-')
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if len(slug) > 40 {
		slug = strings.TrimRight(slug[:40], "-")
	}
	id := conv.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if slug == "" {
		return id + ".jsonl"
	}
	return slug + "-" + id + ".jsonl"
}
