// Package daemon provides the long-running local status service: it
// reloads persisted state on an interval and serves it over HTTP and SSE.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
)

// Config controls the daemon runtime behavior.
type Config struct {
	DataDir      string
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	Budget       *float64
}

// Credentials is the read side of the credential store.
type Credentials interface {
	Load(ctx context.Context) error
	Active() (model.Profile, bool)
}

// Conversations is the read side of the conversation store.
type Conversations interface {
	Load(ctx context.Context) error
	Active() *model.Conversation
	List() []*model.Conversation
}

// Usage is the read side of the usage ledger.
type Usage interface {
	Load(ctx context.Context) error
	Current() model.PeriodUsage
	Estimate() float64
	Budget(budget *float64) model.BudgetStats
}

// Sources are the stores the daemon observes. Other cchat processes write
// to the same database, so every poll reloads them.
type Sources struct {
	Credentials   Credentials
	Conversations Conversations
	Usage         Usage
	Bus           *event.Bus
}

// Snapshot is a compact state summary for status and event payloads.
type Snapshot struct {
	At                 time.Time `json:"at"`
	HasProfile         bool      `json:"has_profile"`
	Profile            string    `json:"profile,omitempty"`
	Conversations      int       `json:"conversations"`
	ActiveConversation string    `json:"active_conversation,omitempty"`
	Period             string    `json:"period"`
	Requests           int       `json:"requests"`
	Tokens             int64     `json:"tokens"`
	CostUSD            float64   `json:"cost_usd"`
	ProjectedUSD       float64   `json:"projected_usd"`
	BudgetUSD          *float64  `json:"budget_usd,omitempty"`
	BudgetUsedPercent  float64   `json:"budget_used_percent,omitempty"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	Conversations int     `json:"conversations"`
	Requests      int     `json:"requests"`
	Tokens        int64   `json:"tokens"`
	CostUSD       float64 `json:"cost_usd"`
}

func (d Delta) isZero() bool {
	return d.Conversations == 0 &&
		d.Requests == 0 &&
		d.Tokens == 0 &&
		d.CostUSD == 0
}

// Event is emitted when a poll observes a change or a store publishes.
type Event struct {
	ID        int64        `json:"id"`
	Type      string       `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Snapshot  *Snapshot    `json:"snapshot,omitempty"`
	Delta     *Delta       `json:"delta,omitempty"`
	Store     *event.Event `json:"store,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	DataDir         string    `json:"data_dir"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg Config
	src Sources
	log *slog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, src Sources, logger *slog.Logger) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:       cfg,
		src:       src,
		log:       logger,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	return mux
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	unsubscribe := s.forwardBus()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce(ctx)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// forwardBus relays store events into the daemon's event stream.
func (s *Service) forwardBus() func() {
	if s.src.Bus == nil {
		return func() {}
	}
	return s.src.Bus.Subscribe(func(ev event.Event) {
		s.mu.Lock()
		s.nextEventID++
		id := s.nextEventID
		s.mu.Unlock()
		s.publishEvent(Event{ID: id, Type: "store", Timestamp: ev.At, Store: &ev})
	})
}

func (s *Service) pollOnce(ctx context.Context) {
	if err := s.reload(ctx); err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		s.log.Warn("daemon poll failed", "error", err)
		return
	}

	now := time.Now()
	snap := s.takeSnapshot(now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, Snapshot: &snap}
		publish = true
	} else {
		delta := diffSnapshots(prev, snap)
		if !delta.isZero() {
			s.nextEventID++
			ev = Event{ID: s.nextEventID, Type: "usage_delta", Timestamp: now, Snapshot: &snap, Delta: &delta}
			publish = true
		}
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func (s *Service) reload(ctx context.Context) error {
	return errors.Join(
		s.src.Credentials.Load(ctx),
		s.src.Conversations.Load(ctx),
		s.src.Usage.Load(ctx),
	)
}

func (s *Service) takeSnapshot(at time.Time) Snapshot {
	current := s.src.Usage.Current()
	budget := s.src.Usage.Budget(s.cfg.Budget)

	snap := Snapshot{
		At:                at,
		Conversations:     len(s.src.Conversations.List()),
		Period:            current.Period,
		Requests:          current.Requests,
		Tokens:            current.PromptTokens + current.CompletionTokens,
		CostUSD:           current.Cost,
		ProjectedUSD:      s.src.Usage.Estimate(),
		BudgetUSD:         s.cfg.Budget,
		BudgetUsedPercent: budget.BudgetUsedPercent,
	}
	if p, ok := s.src.Credentials.Active(); ok {
		snap.HasProfile = true
		snap.Profile = p.Name
	}
	if c := s.src.Conversations.Active(); c != nil {
		snap.ActiveConversation = c.Title
	}
	return snap
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Conversations: curr.Conversations - prev.Conversations,
		Requests:      curr.Requests - prev.Requests,
		Tokens:        curr.Tokens - prev.Tokens,
		CostUSD:       curr.CostUSD - prev.CostUSD,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		DataDir:         s.cfg.DataDir,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	snap := s.snapshotStatus().Summary
	writeSSE(w, Event{Type: "snapshot", Timestamp: time.Now(), Snapshot: &snap})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
