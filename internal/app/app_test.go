package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/settings"
	"github.com/theirongolddev/cchat/internal/store"
)

type fakeAPI struct {
	validKey string
}

func (f fakeAPI) ValidateCredential(_ context.Context, secret string) error {
	if secret != f.validKey {
		return anthropic.ErrUnauthorized
	}
	return nil
}

func (f fakeAPI) SendChatRequest(_ context.Context, secret string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if secret != f.validKey {
		return nil, anthropic.ErrUnauthorized
	}
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Type:       "message",
		Role:       "assistant",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: "Hi"}},
		StopReason: "end_turn",
		Usage:      anthropic.Usage{InputTokens: 2, OutputTokens: 3},
	}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.General.DataDir = t.TempDir()
	cfg.API.DefaultModel = "claude-3-opus-20240229"
	budget := 50.0
	cfg.Budget.MonthlyUSD = &budget
	return cfg
}

func openApp(t *testing.T, cfg config.Config, kv store.KV) *App {
	t.Helper()
	a, err := Open(context.Background(), Options{
		Config:    cfg,
		KV:        kv,
		Transport: fakeAPI{validKey: "sk-ant-valid-1234"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpen_EndToEndPrompt(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := openApp(t, cfg, store.NewMemory())

	assert.Equal(t, "claude-3-opus-20240229", a.Settings.Model())
	assert.False(t, a.Credentials.IsAuthenticated())

	_, err := a.Credentials.Login(ctx, "sk-ant-valid-1234", "work")
	require.NoError(t, err)
	require.True(t, a.Credentials.IsAuthenticated())

	require.NoError(t, a.Chat.SubmitPrompt(ctx, "Hello", nil))

	conv := a.Conversations.Active()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi", conv.Messages[1].Content)
	assert.Equal(t, int64(5), conv.Metadata.TotalTokens)

	assert.Len(t, a.Usage.Records(), 1)
	stats := a.Budget()
	require.NotNil(t, stats.CustomBudget)
	assert.InDelta(t, 50.0, *stats.CustomBudget, 1e-9)
	assert.Greater(t, stats.CurrentSpend, 0.0)
}

func TestOpen_RestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	kv := store.NewMemory()

	first := openApp(t, cfg, kv)
	_, err := first.Credentials.Login(ctx, "sk-ant-valid-1234", "work")
	require.NoError(t, err)
	require.NoError(t, first.Chat.SubmitPrompt(ctx, "Hello", nil))
	convID := first.Conversations.ActiveID()
	require.NoError(t, first.Close())

	second := openApp(t, cfg, kv)
	assert.Len(t, second.Credentials.Profiles(), 1)
	assert.Equal(t, convID, second.Conversations.ActiveID())
	assert.Len(t, second.Usage.Records(), 1)

	// The vault key file is reused so the stored secret still opens.
	secret, err := second.Credentials.ActiveSecret(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-valid-1234", secret)
}

func TestOpen_EventsReachBus(t *testing.T) {
	ctx := context.Background()
	a := openApp(t, testConfig(t), store.NewMemory())

	var topics []event.Topic
	cancel := a.Bus.Subscribe(func(ev event.Event) { topics = append(topics, ev.Topic) })
	defer cancel()

	a.Conversations.Create(ctx, "")
	assert.Contains(t, topics, event.TopicConversation)
}

func TestExportDir(t *testing.T) {
	cfg := testConfig(t)
	a := openApp(t, cfg, store.NewMemory())

	assert.Equal(t, filepath.Join(cfg.General.DataDir, "exports"), a.ExportDir())

	a.Settings.UpdateSections(context.Background(), func(s *settings.Sections) {
		s.Storage.ExportDir = "/tmp/transcripts"
	})
	assert.Equal(t, "/tmp/transcripts", a.ExportDir())
}
