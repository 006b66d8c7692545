package model

import (
	"slices"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Render hint keys attached to message metadata.
const (
	HintError      = "error"
	HintStopReason = "stopReason"
)

// MessageMetadata carries per-message accounting and display hints.
type MessageMetadata struct {
	Tokens      int64             `json:"tokens"`
	Model       string            `json:"model,omitempty"`
	RenderHints map[string]string `json:"renderHints,omitempty"`
}

// Message is one turn of a conversation.
type Message struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	Metadata  MessageMetadata `json:"metadata"`
}

// IsError reports whether the message is an inline error note.
func (m Message) IsError() bool {
	return m.Metadata.RenderHints[HintError] == "true"
}

// ConversationMetadata holds derived and user-toggled conversation state.
type ConversationMetadata struct {
	Model       string `json:"model"`
	TotalTokens int64  `json:"totalTokens"`
	Favorited   bool   `json:"favorited"`
	TitleLocked bool   `json:"titleLocked,omitempty"`
}

// Conversation is an ordered list of messages with a title and tags.
type Conversation struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
	Messages  []Message            `json:"messages"`
	Tags      []string             `json:"tags"`
	Metadata  ConversationMetadata `json:"metadata"`
}

// SumTokens recomputes the token total from the messages.
func (c *Conversation) SumTokens() int64 {
	var n int64
	for _, m := range c.Messages {
		n += m.Metadata.Tokens
	}
	return n
}

// HasTag reports whether the conversation carries tag.
func (c *Conversation) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

// Clone returns a deep copy safe to hand to callers outside the store lock.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Tags = append([]string{}, c.Tags...)
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Metadata.RenderHints != nil {
			hints := make(map[string]string, len(m.Metadata.RenderHints))
			for k, v := range m.Metadata.RenderHints {
				hints[k] = v
			}
			m.Metadata.RenderHints = hints
		}
		out.Messages[i] = m
	}
	return &out
}
