// Package dispatch turns a conversation history and parameter set into a
// Messages API request, and the reply into a normalized response.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
)

var (
	// ErrAborted is returned when Abort cancels an in-flight request.
	ErrAborted = errors.New("dispatch: request aborted")
	// ErrBusy is returned when Send is called while a request is in flight.
	ErrBusy = errors.New("dispatch: a request is already in flight")
	// ErrEmptyHistory is returned when no user or assistant turn is left to send.
	ErrEmptyHistory = errors.New("dispatch: nothing to send")
	// ErrEmptyResponse is returned when the reply carries no text.
	ErrEmptyResponse = errors.New("dispatch: response has no text content")
)

// Transport performs the network call.
type Transport interface {
	SendChatRequest(ctx context.Context, secret string, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

// SecretSource yields the active credential for one request.
type SecretSource interface {
	ActiveSecret(ctx context.Context) (string, error)
}

// ParamsSource yields the current request parameters.
type ParamsSource interface {
	Params() model.RequestParameters
}

// Recorder is told about every completed request.
type Recorder interface {
	Record(ctx context.Context, promptTokens, completionTokens int64, modelName string) model.UsageRecord
}

// Dispatcher sends one request at a time.
type Dispatcher struct {
	transport Transport
	secrets   SecretSource
	params    ParamsSource
	recorder  Recorder
	bus       *event.Bus
	log       *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
	err     string
}

// New returns a dispatcher wired to its collaborators.
func New(transport Transport, secrets SecretSource, params ParamsSource, recorder Recorder, bus *event.Bus, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		secrets:   secrets,
		params:    params,
		recorder:  recorder,
		bus:       bus,
		log:       logger,
		now:       time.Now,
	}
}

// Send merges overrides over the current parameters, sends history and
// returns the normalized reply. Usage is recorded on success. Every
// failure is also kept in Err.
func (d *Dispatcher) Send(ctx context.Context, history []model.Message, overrides *model.ParamOverrides) (*model.Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		cancel()
		return nil, ErrBusy
	}
	d.cancel = cancel
	d.aborted = false
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.cancel = nil
		d.mu.Unlock()
		cancel()
	}()

	resp, err := d.send(ctx, history, overrides)
	if err != nil {
		d.mu.Lock()
		if d.aborted {
			err = ErrAborted
		}
		d.err = err.Error()
		d.mu.Unlock()
		d.log.Info("request failed", "error", err)
		d.bus.Emit(event.TopicDispatch, "failed", "", err)
		return nil, err
	}

	d.mu.Lock()
	d.err = ""
	d.mu.Unlock()
	d.bus.Emit(event.TopicDispatch, "completed", resp.ID, nil)
	return resp, nil
}

func (d *Dispatcher) send(ctx context.Context, history []model.Message, overrides *model.ParamOverrides) (*model.Response, error) {
	params := d.params.Params().Merge(overrides)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	req, err := BuildRequest(history, params)
	if err != nil {
		return nil, err
	}

	secret, err := d.secrets.ActiveSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: loading credential: %w", err)
	}

	d.bus.Emit(event.TopicDispatch, "sent", params.Model, nil)
	raw, err := d.transport.SendChatRequest(ctx, secret, req)
	if err != nil {
		return nil, err
	}

	resp, err := normalize(raw, params.Model, d.now())
	if err != nil {
		return nil, err
	}
	d.recorder.Record(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Model)
	return resp, nil
}

// BuildRequest maps history and params onto the wire request. System
// messages and inline error notes stay local and are not sent.
func BuildRequest(history []model.Message, params model.RequestParameters) (anthropic.MessageRequest, error) {
	msgs := make([]anthropic.Message, 0, len(history))
	for _, m := range history {
		if m.Role == model.RoleSystem || m.IsError() {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}
	if len(msgs) == 0 {
		return anthropic.MessageRequest{}, ErrEmptyHistory
	}

	temp := params.Temperature
	topP := params.TopP
	req := anthropic.MessageRequest{
		Model:         params.Model,
		Messages:      msgs,
		MaxTokens:     params.MaxTokens,
		Temperature:   &temp,
		TopP:          &topP,
		StopSequences: params.StopSequences,
		System:        params.SystemPrompt,
	}
	if params.TopK != nil {
		k := *params.TopK
		req.TopK = &k
	}
	return req, nil
}

func normalize(raw *anthropic.MessageResponse, requested string, at time.Time) (*model.Response, error) {
	if raw == nil {
		return nil, ErrEmptyResponse
	}
	text := raw.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}
	resp := &model.Response{
		ID:         raw.ID,
		Role:       model.RoleAssistant,
		Content:    text,
		Model:      raw.Model,
		StopReason: raw.StopReason,
		Usage: model.TokenUsage{
			PromptTokens:     raw.Usage.InputTokens,
			CompletionTokens: raw.Usage.OutputTokens,
		},
		ReceivedAt: at,
	}
	if resp.Model == "" {
		resp.Model = requested
	}
	if raw.StopSequence != nil {
		resp.StopSequence = *raw.StopSequence
	}
	return resp, nil
}

// Abort cancels the in-flight request, if any. Safe to call repeatedly.
func (d *Dispatcher) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel == nil {
		return
	}
	d.aborted = true
	d.cancel()
}

// IsBusy reports whether a request is in flight.
func (d *Dispatcher) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Err returns the last failure message, or "".
func (d *Dispatcher) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}
