// Package settings holds the request parameter set and the user-tunable
// settings sections, mirrored to settings.<section> keys.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
)

// Section names.
const (
	SectionAPI       = "api"
	SectionTheme     = "theme"
	SectionEditor    = "editor"
	SectionInterface = "interface"
	SectionStorage   = "storage"
)

// Theme selects the TUI palette.
type Theme struct {
	Name string `json:"name"`
}

// Editor controls prompt entry.
type Editor struct {
	SendOnEnter bool `json:"sendOnEnter"`
	InputLines  int  `json:"inputLines"`
}

// Interface controls transcript rendering.
type Interface struct {
	ShowTokenCounts bool `json:"showTokenCounts"`
	ShowTimestamps  bool `json:"showTimestamps"`
	RenderMarkdown  bool `json:"renderMarkdown"`
}

// Storage controls where exports land.
type Storage struct {
	ExportDir string `json:"exportDir,omitempty"`
}

// Sections groups every non-API settings section.
type Sections struct {
	Theme     Theme
	Editor    Editor
	Interface Interface
	Storage   Storage
}

// DefaultSections returns the settings a fresh install starts with.
func DefaultSections() Sections {
	return Sections{
		Theme:     Theme{Name: "flexoki-dark"},
		Editor:    Editor{SendOnEnter: true, InputLines: 3},
		Interface: Interface{ShowTokenCounts: true, RenderMarkdown: true},
	}
}

// Store owns the live RequestParameters and settings sections.
type Store struct {
	kv  store.KV
	bus *event.Bus
	log *slog.Logger

	mu       sync.RWMutex
	params   model.RequestParameters
	sections Sections
	err      string
}

// New returns a store seeded with defaults until Load runs.
func New(kv store.KV, bus *event.Bus, logger *slog.Logger, defaults model.RequestParameters, sections Sections) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		kv:       kv,
		bus:      bus,
		log:      logger,
		params:   defaults,
		sections: sections,
	}
}

// Load replaces the defaults with whatever was persisted. Sections that
// fail to decode keep their defaults and are reported in Err.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	load := func(section string, v any) {
		if _, err := store.GetJSON(ctx, s.kv, store.SettingsKey(section), v); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("settings: loading %s: %w", section, err)
		}
	}

	params := s.params
	load(SectionAPI, &params)
	if err := params.Validate(); err == nil {
		s.params = params
	} else if firstErr == nil {
		firstErr = fmt.Errorf("settings: persisted api section: %w", err)
	}

	sec := s.sections
	load(SectionTheme, &sec.Theme)
	load(SectionEditor, &sec.Editor)
	load(SectionInterface, &sec.Interface)
	load(SectionStorage, &sec.Storage)
	s.sections = sec

	if firstErr != nil {
		s.err = firstErr.Error()
	}
	return firstErr
}

// Params returns a copy of the current request parameters.
func (s *Store) Params() model.RequestParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Merge(nil)
}

// Model returns the currently selected model name.
func (s *Store) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Model
}

// SetParams validates and installs p, then mirrors it to settings.api.
func (s *Store) SetParams(ctx context.Context, p model.RequestParameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p.Merge(nil)
	s.mu.Unlock()

	s.persist(ctx, SectionAPI, p)
	return nil
}

// UpdateParams applies fn to a copy of the current parameters and installs
// the result if it validates.
func (s *Store) UpdateParams(ctx context.Context, fn func(*model.RequestParameters)) error {
	p := s.Params()
	fn(&p)
	return s.SetParams(ctx, p)
}

// Sections returns a copy of the settings sections.
func (s *Store) Sections() Sections {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections
}

// UpdateSections applies fn and persists every section.
func (s *Store) UpdateSections(ctx context.Context, fn func(*Sections)) {
	s.mu.Lock()
	sec := s.sections
	fn(&sec)
	if sec.Editor.InputLines < 1 {
		sec.Editor.InputLines = 1
	}
	s.sections = sec
	s.mu.Unlock()

	s.persist(ctx, SectionTheme, sec.Theme)
	s.persist(ctx, SectionEditor, sec.Editor)
	s.persist(ctx, SectionInterface, sec.Interface)
	s.persist(ctx, SectionStorage, sec.Storage)
}

// Err returns the last persistence error, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) persist(ctx context.Context, section string, v any) {
	err := store.SetJSON(ctx, s.kv, store.SettingsKey(section), v)
	if err != nil {
		s.log.Warn("persisting settings failed", "section", section, "error", err)
		s.mu.Lock()
		s.err = err.Error()
		s.mu.Unlock()
	}
	s.bus.Emit(event.TopicSettings, "updated", section, err)
}
