// Package conversation owns the conversation collection, the active
// conversation pointer, and write-through persistence of both.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
)

var (
	// ErrNoActiveConversation is returned by message operations when no
	// conversation is active.
	ErrNoActiveConversation = errors.New("conversation: no active conversation")
	// ErrConversationNotFound is returned for unknown conversation IDs.
	ErrConversationNotFound = errors.New("conversation: not found")
	// ErrMessageNotFound is returned for unknown message IDs.
	ErrMessageNotFound = errors.New("conversation: message not found")
	// ErrInvalidRole is returned by AddMessage for unknown roles.
	ErrInvalidRole = errors.New("conversation: invalid role")
)

// titleRunes is how much of the first user message becomes the title.
const titleRunes = 30

// ModelProvider supplies the model name stamped on new conversations.
type ModelProvider interface {
	Model() string
}

// MessageUpdate changes selected fields of a message. Nil fields are kept.
type MessageUpdate struct {
	Content     *string
	Tokens      *int64
	Model       *string
	RenderHints map[string]string
}

// Store holds every conversation in creation order.
type Store struct {
	models ModelProvider
	kv     store.KV
	bus    *event.Bus
	log    *slog.Logger
	now    func() time.Time

	// persistMu orders writes so the last one always carries the newest state.
	persistMu sync.Mutex

	mu       sync.RWMutex
	convs    []*model.Conversation
	activeID string
	allTags  []string
	err      string
}

// New returns an empty store. Call Load to restore persisted state.
func New(models ModelProvider, kv store.KV, bus *event.Bus, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		models: models,
		kv:     kv,
		bus:    bus,
		log:    logger,
		now:    time.Now,
	}
}

// Load restores conversations and the active pointer. Token totals are
// recomputed from the messages so a hand-edited store cannot drift.
func (s *Store) Load(ctx context.Context) error {
	var convs []*model.Conversation
	if _, err := store.GetJSON(ctx, s.kv, store.KeyConversations, &convs); err != nil {
		s.setErr(err)
		return err
	}
	var activeID string
	if _, err := store.GetJSON(ctx, s.kv, store.KeyActiveConversation, &activeID); err != nil {
		s.setErr(err)
		return err
	}

	for _, c := range convs {
		if c.Tags == nil {
			c.Tags = []string{}
		}
		if c.Messages == nil {
			c.Messages = []model.Message{}
		}
		c.Metadata.TotalTokens = c.SumTokens()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = convs
	s.activeID = ""
	if s.indexLocked(activeID) >= 0 {
		s.activeID = activeID
	}
	s.recomputeTagsLocked()
	return nil
}

// Create starts a new conversation and makes it active. An empty title
// gets a numbered placeholder that the first user message replaces.
func (s *Store) Create(ctx context.Context, title string) *model.Conversation {
	now := s.now()
	title = strings.TrimSpace(title)

	s.mu.Lock()
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []model.Message{},
		Tags:      []string{},
		Metadata: model.ConversationMetadata{
			Model:       s.currentModel(),
			TitleLocked: title != "",
		},
	}
	if title == "" {
		conv.Title = fmt.Sprintf("New Conversation %d", len(s.convs)+1)
	}
	s.convs = append(s.convs, conv)
	s.activeID = conv.ID
	out := conv.Clone()
	s.mu.Unlock()

	s.persist(ctx, "created", conv.ID)
	return out
}

// Import adds an existing conversation, assigning fresh IDs when they
// collide, and makes it active.
func (s *Store) Import(ctx context.Context, conv *model.Conversation) *model.Conversation {
	c := conv.Clone()
	if c.Tags == nil {
		c.Tags = []string{}
	}

	s.mu.Lock()
	if c.ID == "" || s.indexLocked(c.ID) >= 0 {
		c.ID = uuid.NewString()
	}
	seen := make(map[string]bool, len(c.Messages))
	for i := range c.Messages {
		if c.Messages[i].ID == "" || seen[c.Messages[i].ID] {
			c.Messages[i].ID = uuid.NewString()
		}
		seen[c.Messages[i].ID] = true
	}
	c.Metadata.TotalTokens = c.SumTokens()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.convs = append(s.convs, c)
	s.activeID = c.ID
	s.recomputeTagsLocked()
	out := c.Clone()
	s.mu.Unlock()

	s.persist(ctx, "imported", c.ID)
	return out
}

// AddMessage appends a message to the active conversation. meta may carry
// initial tokens, model and render hints.
func (s *Store) AddMessage(ctx context.Context, content string, role model.Role, meta *model.MessageMetadata) (*model.Message, error) {
	return s.AddMessageTo(ctx, "", content, role, meta)
}

// AddMessageTo appends a message to the conversation with the given ID, or
// to the active one when convID is empty.
func (s *Store) AddMessageTo(ctx context.Context, convID, content string, role model.Role, meta *model.MessageMetadata) (*model.Message, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.mu.Lock()
	conv, err := s.targetLocked(convID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.now()
	msg := model.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
	if meta != nil {
		msg.Metadata = *meta
		if meta.RenderHints != nil {
			msg.Metadata.RenderHints = make(map[string]string, len(meta.RenderHints))
			for k, v := range meta.RenderHints {
				msg.Metadata.RenderHints[k] = v
			}
		}
	}

	if role == model.RoleUser && !conv.Metadata.TitleLocked && !hasUserMessage(conv) {
		if t := DeriveTitle(content); t != "" {
			conv.Title = t
		}
	}
	conv.Messages = append(conv.Messages, msg)
	conv.Metadata.TotalTokens += msg.Metadata.Tokens
	conv.UpdatedAt = now
	id := conv.ID
	s.mu.Unlock()

	s.persist(ctx, "message_added", id)
	return &msg, nil
}

// UpdateMessage edits a message of the active conversation, keeping the
// token total in step.
func (s *Store) UpdateMessage(ctx context.Context, messageID string, upd MessageUpdate) error {
	return s.UpdateMessageIn(ctx, "", messageID, upd)
}

// UpdateMessageIn edits a message of the conversation with the given ID,
// or of the active one when convID is empty.
func (s *Store) UpdateMessageIn(ctx context.Context, convID, messageID string, upd MessageUpdate) error {
	s.mu.Lock()
	conv, err := s.targetLocked(convID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := messageIndex(conv, messageID)
	if i < 0 {
		s.err = ErrMessageNotFound.Error()
		s.mu.Unlock()
		return ErrMessageNotFound
	}

	msg := &conv.Messages[i]
	if upd.Content != nil {
		msg.Content = *upd.Content
	}
	if upd.Tokens != nil {
		conv.Metadata.TotalTokens += *upd.Tokens - msg.Metadata.Tokens
		msg.Metadata.Tokens = *upd.Tokens
	}
	if upd.Model != nil {
		msg.Metadata.Model = *upd.Model
	}
	if upd.RenderHints != nil {
		if msg.Metadata.RenderHints == nil {
			msg.Metadata.RenderHints = make(map[string]string, len(upd.RenderHints))
		}
		for k, v := range upd.RenderHints {
			msg.Metadata.RenderHints[k] = v
		}
	}
	conv.UpdatedAt = s.now()
	id := conv.ID
	s.mu.Unlock()

	s.persist(ctx, "message_updated", id)
	return nil
}

// DeleteMessage removes a message from the active conversation.
func (s *Store) DeleteMessage(ctx context.Context, messageID string) error {
	s.mu.Lock()
	conv, err := s.targetLocked("")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	i := messageIndex(conv, messageID)
	if i < 0 {
		s.err = ErrMessageNotFound.Error()
		s.mu.Unlock()
		return ErrMessageNotFound
	}

	conv.Metadata.TotalTokens -= conv.Messages[i].Metadata.Tokens
	conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
	conv.UpdatedAt = s.now()
	id := conv.ID
	s.mu.Unlock()

	s.persist(ctx, "message_deleted", id)
	return nil
}

// targetLocked resolves convID, or the active conversation when it is
// empty, recording a miss in s.err.
func (s *Store) targetLocked(convID string) (*model.Conversation, error) {
	if convID == "" {
		conv := s.activeLocked()
		if conv == nil {
			s.err = ErrNoActiveConversation.Error()
			return nil, ErrNoActiveConversation
		}
		return conv, nil
	}
	i := s.indexLocked(convID)
	if i < 0 {
		s.err = ErrConversationNotFound.Error()
		return nil, ErrConversationNotFound
	}
	return s.convs[i], nil
}

// SetActive points the store at an existing conversation.
func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.err = ErrConversationNotFound.Error()
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	s.activeID = id
	s.mu.Unlock()

	s.persist(ctx, "activated", id)
	return nil
}

// Delete removes a conversation. If it was active, the first remaining
// conversation becomes active, or none.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.err = ErrConversationNotFound.Error()
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	s.convs = append(s.convs[:i], s.convs[i+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.convs) > 0 {
			s.activeID = s.convs[0].ID
		}
	}
	s.recomputeTagsLocked()
	s.mu.Unlock()

	s.persist(ctx, "deleted", id)
	return nil
}

// Rename sets an explicit title, which disables title derivation.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	return s.mutate(ctx, id, "renamed", func(c *model.Conversation) {
		c.Title = strings.TrimSpace(title)
		c.Metadata.TitleLocked = true
	})
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (bool, error) {
	var fav bool
	err := s.mutate(ctx, id, "favorite_toggled", func(c *model.Conversation) {
		c.Metadata.Favorited = !c.Metadata.Favorited
		fav = c.Metadata.Favorited
	})
	return fav, err
}

// SetTags replaces a conversation's tags. Blank and duplicate tags are
// dropped.
func (s *Store) SetTags(ctx context.Context, id string, tags []string) error {
	clean := normalizeTags(tags)
	return s.mutate(ctx, id, "tags_updated", func(c *model.Conversation) {
		c.Tags = clean
	})
}

func (s *Store) mutate(ctx context.Context, id, kind string, fn func(*model.Conversation)) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.err = ErrConversationNotFound.Error()
		s.mu.Unlock()
		return ErrConversationNotFound
	}
	fn(s.convs[i])
	s.convs[i].UpdatedAt = s.now()
	s.recomputeTagsLocked()
	s.mu.Unlock()

	s.persist(ctx, kind, id)
	return nil
}

// Active returns a copy of the active conversation, or nil.
func (s *Store) Active() *model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked().Clone()
}

// ActiveID returns the active conversation's ID, or "".
func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Get returns a copy of the conversation with the given ID.
func (s *Store) Get(id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil, ErrConversationNotFound
	}
	return s.convs[i].Clone(), nil
}

// List returns copies of every conversation in store order.
func (s *Store) List() []*model.Conversation {
	return s.Search("", nil)
}

// AllTags returns the sorted set of tags used by any conversation.
func (s *Store) AllTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.allTags...)
}

// Err returns the last error message, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) activeLocked() *model.Conversation {
	if i := s.indexLocked(s.activeID); i >= 0 {
		return s.convs[i]
	}
	return nil
}

func (s *Store) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, c := range s.convs {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) recomputeTagsLocked() {
	set := make(map[string]struct{})
	for _, c := range s.convs {
		for _, t := range c.Tags {
			set[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	s.allTags = tags
}

func (s *Store) currentModel() string {
	if s.models == nil {
		return model.DefaultModel
	}
	return s.models.Model()
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err.Error()
}

// persist writes the whole collection and the active pointer. Failures
// leave memory as is and surface through Err and the bus.
func (s *Store) persist(ctx context.Context, kind, subject string) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	convs := make([]*model.Conversation, len(s.convs))
	for i, c := range s.convs {
		convs[i] = c.Clone()
	}
	activeID := s.activeID
	s.mu.RUnlock()

	err := store.SetJSON(ctx, s.kv, store.KeyConversations, convs)
	if err == nil {
		if activeID == "" {
			err = s.kv.Delete(ctx, store.KeyActiveConversation)
		} else {
			err = store.SetJSON(ctx, s.kv, store.KeyActiveConversation, activeID)
		}
	}
	if err != nil {
		s.log.Warn("persisting conversations failed", "kind", kind, "conversation", subject, "error", err)
		s.setErr(err)
	}
	s.bus.Emit(event.TopicConversation, kind, subject, err)
}

func hasUserMessage(c *model.Conversation) bool {
	return slices.ContainsFunc(c.Messages, func(m model.Message) bool { return m.Role == model.RoleUser })
}

func messageIndex(c *model.Conversation, id string) int {
	return slices.IndexFunc(c.Messages, func(m model.Message) bool { return m.ID == id })
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
