package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
)

func newStore(kv store.KV) *Store {
	return New(kv, event.NewBus(0), nil, model.DefaultParams(), DefaultSections())
}

func TestSetParams_MirrorsToAPISection(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	s := newStore(kv)

	require.NoError(t, s.UpdateParams(ctx, func(p *model.RequestParameters) {
		p.Model = "claude-3-haiku-20240307"
		p.Temperature = 0.2
	}))

	var persisted model.RequestParameters
	found, err := store.GetJSON(ctx, kv, store.SettingsKey(SectionAPI), &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "claude-3-haiku-20240307", persisted.Model)
	assert.InDelta(t, 0.2, persisted.Temperature, 1e-9)
	assert.Equal(t, "claude-3-haiku-20240307", s.Model())
}

func TestSetParams_RejectsInvalid(t *testing.T) {
	s := newStore(store.NewMemory())
	err := s.UpdateParams(context.Background(), func(p *model.RequestParameters) { p.Temperature = 1.5 })
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	assert.InDelta(t, 0.7, s.Params().Temperature, 1e-9)
}

func TestLoad_RestoresPersisted(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	first := newStore(kv)
	require.NoError(t, first.SetParams(ctx, model.RequestParameters{Model: "m", Temperature: 0, MaxTokens: 10, TopP: 0.9}))
	first.UpdateSections(ctx, func(s *Sections) {
		s.Theme.Name = "catppuccin-mocha"
		s.Editor.InputLines = 0
	})

	second := newStore(kv)
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, "m", second.Params().Model)
	assert.Equal(t, 10, second.Params().MaxTokens)
	assert.Equal(t, "catppuccin-mocha", second.Sections().Theme.Name)
	assert.Equal(t, 1, second.Sections().Editor.InputLines)
}

func TestPersistFailureKeepsMemoryAndSetsErr(t *testing.T) {
	kv := store.NewMemory()
	kv.FailWrites = errors.New("disk full")
	s := newStore(kv)

	require.NoError(t, s.UpdateParams(context.Background(), func(p *model.RequestParameters) { p.MaxTokens = 100 }))
	assert.Equal(t, 100, s.Params().MaxTokens)
	assert.Contains(t, s.Err(), "disk full")
}

func TestParams_ReturnsCopy(t *testing.T) {
	s := newStore(store.NewMemory())
	require.NoError(t, s.UpdateParams(context.Background(), func(p *model.RequestParameters) {
		p.StopSequences = []string{"END"}
	}))

	p := s.Params()
	p.StopSequences[0] = "MUTATED"
	assert.Equal(t, []string{"END"}, s.Params().StopSequences)
}
