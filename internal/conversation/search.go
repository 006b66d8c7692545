package conversation

import (
	"strings"

	"github.com/theirongolddev/cchat/internal/model"
)

// TagMatch selects how a tag filter combines.
type TagMatch int

const (
	// MatchAll keeps conversations carrying every selected tag.
	MatchAll TagMatch = iota
	// MatchAny keeps conversations carrying at least one selected tag.
	MatchAny
)

// DeriveTitle turns a first user message into a conversation title.
func DeriveTitle(content string) string {
	folded := strings.Join(strings.Fields(content), " ")
	r := []rune(folded)
	if len(r) <= titleRunes {
		return folded
	}
	return strings.TrimSpace(string(r[:titleRunes])) + "..."
}

// Search returns conversations whose title or any message contains query
// (case-insensitive) and that carry all of tags. An empty query with no
// tags returns every conversation in store order.
func (s *Store) Search(query string, tags []string) []*model.Conversation {
	return s.SearchWith(query, tags, MatchAll)
}

// SearchAny is Search with an any-of tag filter.
func (s *Store) SearchAny(query string, tags []string) []*model.Conversation {
	return s.SearchWith(query, tags, MatchAny)
}

// SearchWith is Search with an explicit tag combination mode.
func (s *Store) SearchWith(query string, tags []string, mode TagMatch) []*model.Conversation {
	q := strings.ToLower(strings.TrimSpace(query))
	tags = normalizeTags(tags)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if !matchesTags(c, tags, mode) {
			continue
		}
		if q != "" && !matchesQuery(c, q) {
			continue
		}
		out = append(out, c.Clone())
	}
	return out
}

// Favorites returns favorited conversations in store order.
func (s *Store) Favorites() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.Conversation{}
	for _, c := range s.convs {
		if c.Metadata.Favorited {
			out = append(out, c.Clone())
		}
	}
	return out
}

func matchesTags(c *model.Conversation, tags []string, mode TagMatch) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		has := c.HasTag(t)
		if mode == MatchAny && has {
			return true
		}
		if mode == MatchAll && !has {
			return false
		}
	}
	return mode == MatchAll
}

func matchesQuery(c *model.Conversation, q string) bool {
	if strings.Contains(strings.ToLower(c.Title), q) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), q) {
			return true
		}
	}
	return false
}
