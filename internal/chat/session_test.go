package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/conversation"
	"github.com/theirongolddev/cchat/internal/dispatch"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/store"
	"github.com/theirongolddev/cchat/internal/usage"
)

type authFlag bool

func (a authFlag) IsAuthenticated() bool { return bool(a) }

type secretStub struct{}

func (secretStub) ActiveSecret(context.Context) (string, error) { return "sk-test", nil }

type paramsStub struct{}

func (paramsStub) Params() model.RequestParameters {
	p := model.DefaultParams()
	p.Model = "claude-3-opus-20240229"
	return p
}

func (paramsStub) Model() string { return "claude-3-opus-20240229" }

type transportFunc func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)

func (f transportFunc) SendChatRequest(ctx context.Context, _ string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return f(ctx, req)
}

type harness struct {
	session *Session
	convs   *conversation.Store
	ledger  *usage.Ledger
	sends   *atomic.Int32
}

func newHarness(t *testing.T, authed bool, tr transportFunc) *harness {
	t.Helper()
	bus := event.NewBus(0)
	kv := store.NewMemory()
	sends := &atomic.Int32{}
	counted := transportFunc(func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		sends.Add(1)
		return tr(ctx, req)
	})

	convs := conversation.New(paramsStub{}, kv, bus, nil)
	ledger := usage.New(config.NewPriceTable(config.PricingOverrides{}), kv, bus, nil)
	d := dispatch.New(counted, secretStub{}, paramsStub{}, ledger, bus, nil)
	return &harness{
		session: NewSession(authFlag(authed), convs, d, bus, nil),
		convs:   convs,
		ledger:  ledger,
		sends:   sends,
	}
}

func hiReply(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{
		ID:         "msg_1",
		Type:       "message",
		Role:       "assistant",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: "Hi"}},
		Model:      "claude-3-opus-20240229",
		StopReason: "end_turn",
		Usage:      anthropic.Usage{InputTokens: 2, OutputTokens: 3},
	}, nil
}

func TestSubmitPrompt_HelloHi(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, hiReply)
	h.convs.Create(ctx, "")
	before := h.convs.Active().Metadata.TotalTokens

	require.NoError(t, h.session.SubmitPrompt(ctx, "Hello", nil))

	conv := h.convs.Active()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "Hello", conv.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Hi", conv.Messages[1].Content)
	assert.Equal(t, "end_turn", conv.Messages[1].Metadata.RenderHints[model.HintStopReason])
	assert.Equal(t, before+5, conv.Metadata.TotalTokens)
	assert.Equal(t, "Hello", conv.Title)

	records := h.ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].PromptTokens)
	assert.Equal(t, int64(3), records[0].CompletionTokens)
	assert.False(t, h.session.IsLoading())
	assert.Empty(t, h.session.Err())
}

func TestSubmitPrompt_Unauthenticated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, hiReply)

	err := h.session.SubmitPrompt(ctx, "Hello", nil)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Nil(t, h.convs.Active(), "no conversation is created")
	assert.Zero(t, h.sends.Load())
	assert.NotEmpty(t, h.session.Err())
	assert.False(t, h.session.IsLoading())
}

func TestSubmitPrompt_BlankIsNoop(t *testing.T) {
	h := newHarness(t, true, hiReply)
	require.NoError(t, h.session.SubmitPrompt(context.Background(), " \n\t", nil))
	assert.Nil(t, h.convs.Active())
	assert.Zero(t, h.sends.Load())
}

func TestSubmitPrompt_CreatesConversation(t *testing.T) {
	h := newHarness(t, true, hiReply)
	require.NoError(t, h.session.SubmitPrompt(context.Background(), "Hello", nil))
	require.NotNil(t, h.convs.Active())
	assert.Len(t, h.convs.List(), 1)
}

func TestSubmitPrompt_TransportFailureBecomesSystemNote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, func(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, errors.New("dial tcp: connection refused")
	})

	err := h.session.SubmitPrompt(ctx, "Hello", nil)
	require.Error(t, err)

	conv := h.convs.Active()
	require.Len(t, conv.Messages, 2)
	note := conv.Messages[1]
	assert.Equal(t, model.RoleSystem, note.Role)
	assert.True(t, note.IsError())
	assert.Contains(t, note.Content, "connection refused")
	assert.Contains(t, h.session.Err(), "connection refused")
	assert.False(t, h.session.IsLoading())
	assert.Empty(t, h.ledger.Records())
}

func TestSubmitPrompt_FollowUpExcludesErrorNotes(t *testing.T) {
	ctx := context.Background()
	fail := true
	var lastReq anthropic.MessageRequest
	h := newHarness(t, true, func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		lastReq = req
		if fail {
			return nil, errors.New("timeout")
		}
		return hiReply(ctx, req)
	})

	_ = h.session.SubmitPrompt(ctx, "first", nil)
	fail = false
	require.NoError(t, h.session.SubmitPrompt(ctx, "second", nil))

	require.Len(t, lastReq.Messages, 2)
	assert.Equal(t, "first", lastReq.Messages[0].Content)
	assert.Equal(t, "second", lastReq.Messages[1].Content)
}

func TestCancelRequest(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{})
	h := newHarness(t, true, func(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	errCh := make(chan error, 1)
	go func() { errCh <- h.session.SubmitPrompt(ctx, "Hello", nil) }()

	<-started
	assert.True(t, h.session.IsLoading())
	h.session.CancelRequest()
	assert.False(t, h.session.IsLoading())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, dispatch.ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("SubmitPrompt did not return after cancel")
	}

	conv := h.convs.Active()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Request cancelled.", conv.Messages[1].Content)
	assert.Empty(t, h.ledger.Records())
}

func TestSubmitPrompt_ReplyLandsInOriginConversation(t *testing.T) {
	ctx := context.Background()
	var h *harness
	h = newHarness(t, true, func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		h.convs.Create(ctx, "switched mid-request")
		return hiReply(ctx, req)
	})
	origin := h.convs.Create(ctx, "")

	require.NoError(t, h.session.SubmitPrompt(ctx, "Hello", nil))

	got, err := h.convs.Get(origin.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello", got.Messages[0].Content)
	assert.Equal(t, int64(2), got.Messages[0].Metadata.Tokens)
	assert.Equal(t, "Hi", got.Messages[1].Content)
	assert.Equal(t, int64(5), got.Metadata.TotalTokens)

	active := h.convs.Active()
	require.NotNil(t, active)
	assert.NotEqual(t, origin.ID, active.ID)
	assert.Empty(t, active.Messages, "the new conversation gets no stray reply")
	assert.Empty(t, h.session.Err())
}

func TestSubmitPrompt_OriginDeletedSurfacesError(t *testing.T) {
	ctx := context.Background()
	var h *harness
	h = newHarness(t, true, func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		require.NoError(t, h.convs.Delete(ctx, h.convs.ActiveID()))
		return hiReply(ctx, req)
	})
	h.convs.Create(ctx, "")

	err := h.session.SubmitPrompt(ctx, "Hello", nil)
	assert.ErrorIs(t, err, conversation.ErrConversationNotFound)
	assert.NotEmpty(t, h.session.Err())
	assert.False(t, h.session.IsLoading())
}

func TestCancelRequest_ResubmitWaitsForCancelledNote(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, true, func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			<-release
			return nil, ctx.Err()
		}
		return hiReply(ctx, req)
	})
	h.convs.Create(ctx, "")

	firstErr := make(chan error, 1)
	go func() { firstErr <- h.session.SubmitPrompt(ctx, "first", nil) }()
	<-started
	h.session.CancelRequest()
	assert.False(t, h.session.IsLoading())

	secondErr := make(chan error, 1)
	go func() { secondErr <- h.session.SubmitPrompt(ctx, "second", nil) }()

	// The second prompt holds the flag while the first is still unwinding.
	require.Eventually(t, h.session.IsLoading, time.Second, 5*time.Millisecond)
	close(release)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, dispatch.ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled prompt did not return")
	}
	select {
	case err := <-secondErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second prompt did not return")
	}
	assert.False(t, h.session.IsLoading())

	conv := h.convs.Active()
	var contents []string
	for _, m := range conv.Messages {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"first", "Request cancelled.", "second", "Hi"}, contents)
}
