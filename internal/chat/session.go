// Package chat ties the stores together into the submit/cancel flow the
// UI drives.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/theirongolddev/cchat/internal/conversation"
	"github.com/theirongolddev/cchat/internal/dispatch"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
)

// ErrNotAuthenticated is returned when a prompt is submitted without an
// authenticated profile.
var ErrNotAuthenticated = errors.New("chat: not authenticated; add an API key first")

// Authenticator reports whether a usable credential is active.
type Authenticator interface {
	IsAuthenticated() bool
}

// Conversations is the subset of the conversation store the session uses.
// Writes address the conversation by ID so a reply lands where its prompt
// was sent even if the active conversation changes meanwhile.
type Conversations interface {
	Active() *model.Conversation
	Get(id string) (*model.Conversation, error)
	Create(ctx context.Context, title string) *model.Conversation
	AddMessageTo(ctx context.Context, convID, content string, role model.Role, meta *model.MessageMetadata) (*model.Message, error)
	UpdateMessageIn(ctx context.Context, convID, messageID string, upd conversation.MessageUpdate) error
}

// Sender dispatches a history and can abort it.
type Sender interface {
	Send(ctx context.Context, history []model.Message, overrides *model.ParamOverrides) (*model.Response, error)
	Abort()
}

// Session runs one prompt at a time against the active conversation.
type Session struct {
	auth   Authenticator
	convs  Conversations
	sender Sender
	bus    *event.Bus
	log    *slog.Logger

	mu      sync.RWMutex
	loading bool
	err     string
	// gen identifies the current submission; a cancelled one must not
	// clear the flag of its successor.
	gen uint64
	// done is closed when the latest submission has fully returned.
	done chan struct{}
}

// NewSession wires a session.
func NewSession(auth Authenticator, convs Conversations, sender Sender, bus *event.Bus, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{auth: auth, convs: convs, sender: sender, bus: bus, log: logger}
}

// SubmitPrompt appends text as a user turn, sends the conversation and
// appends the reply. On failure the error is appended as a system note
// and returned. Blank text is ignored.
func (s *Session) SubmitPrompt(ctx context.Context, text string, overrides *model.ParamOverrides) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.auth.IsAuthenticated() {
		s.setErr(ErrNotAuthenticated)
		s.bus.Emit(event.TopicChat, "rejected", "", ErrNotAuthenticated)
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return dispatch.ErrBusy
	}
	s.gen++
	gen := s.gen
	prev := s.done
	done := make(chan struct{})
	s.done = done
	s.loading = true
	s.err = ""
	s.mu.Unlock()
	defer func() {
		close(done)
		s.finish(gen)
	}()

	// A cancelled predecessor may still be writing its note.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return ctx.Err()
		}
		if s.cancelled(gen) {
			return dispatch.ErrAborted
		}
	}

	conv := s.convs.Active()
	if conv == nil {
		conv = s.convs.Create(ctx, "")
	}
	convID := conv.ID

	userMsg, err := s.convs.AddMessageTo(ctx, convID, text, model.RoleUser, nil)
	if err != nil {
		s.setErr(err)
		return err
	}
	s.bus.Emit(event.TopicChat, "submitted", userMsg.ID, nil)

	conv, err = s.convs.Get(convID)
	if err != nil {
		s.setErr(err)
		return err
	}

	resp, err := s.sender.Send(ctx, conv.Messages, overrides)
	if err != nil {
		s.appendError(ctx, convID, err)
		s.setErr(err)
		s.bus.Emit(event.TopicChat, "failed", convID, err)
		return err
	}

	promptTokens := resp.Usage.PromptTokens
	if err := s.convs.UpdateMessageIn(ctx, convID, userMsg.ID, conversation.MessageUpdate{Tokens: &promptTokens}); err != nil {
		s.log.Warn("updating prompt tokens failed", "conversation", convID, "message", userMsg.ID, "error", err)
		s.setErr(err)
		s.bus.Emit(event.TopicChat, "failed", convID, err)
		return err
	}

	hints := map[string]string{}
	if resp.StopReason != "" {
		hints[model.HintStopReason] = resp.StopReason
	}
	if _, err := s.convs.AddMessageTo(ctx, convID, resp.Content, model.RoleAssistant, &model.MessageMetadata{
		Tokens:      resp.Usage.CompletionTokens,
		Model:       resp.Model,
		RenderHints: hints,
	}); err != nil {
		s.setErr(err)
		s.bus.Emit(event.TopicChat, "failed", convID, err)
		return err
	}

	s.bus.Emit(event.TopicChat, "answered", convID, nil)
	return nil
}

func (s *Session) appendError(ctx context.Context, convID string, err error) {
	content := fmt.Sprintf("Error: %v", err)
	if errors.Is(err, dispatch.ErrAborted) {
		content = "Request cancelled."
	}
	if _, addErr := s.convs.AddMessageTo(ctx, convID, content, model.RoleSystem, &model.MessageMetadata{
		RenderHints: map[string]string{model.HintError: "true"},
	}); addErr != nil {
		s.log.Warn("appending error note failed", "conversation", convID, "error", addErr)
	}
}

// CancelRequest aborts the in-flight request and clears the loading flag.
// A prompt submitted right after waits for the cancelled one to finish
// writing its note.
func (s *Session) CancelRequest() {
	s.sender.Abort()
	s.mu.Lock()
	if s.loading {
		s.gen++
		s.loading = false
	}
	s.mu.Unlock()
	s.bus.Emit(event.TopicChat, "cancelled", "", nil)
}

// IsLoading reports whether a prompt is being processed.
func (s *Session) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last user-visible error, or "".
func (s *Session) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// ClearErr dismisses the current error.
func (s *Session) ClearErr() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
}

// cancelled reports whether CancelRequest ran after submission gen began.
func (s *Session) cancelled(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != gen
}

// finish clears the loading flag unless a later submission owns it.
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if s.gen == gen {
		s.loading = false
	}
	s.mu.Unlock()
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err.Error()
	s.mu.Unlock()
}
