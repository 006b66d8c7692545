// Package app assembles the cchat stores into one runtime shared by the
// CLI commands, the TUI and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/theirongolddev/cchat/internal/anthropic"
	"github.com/theirongolddev/cchat/internal/chat"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/conversation"
	"github.com/theirongolddev/cchat/internal/credential"
	"github.com/theirongolddev/cchat/internal/dispatch"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/host"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/settings"
	"github.com/theirongolddev/cchat/internal/store"
	"github.com/theirongolddev/cchat/internal/usage"
)

// Options control how Open builds the runtime.
type Options struct {
	Config config.Config
	// Console receives warnings and errors. Use io.Discard when the
	// terminal belongs to the TUI.
	Console io.Writer
	// KV overrides the SQLite database, mainly for tests.
	KV store.KV
	// Transport overrides the Anthropic client, mainly for tests.
	Transport Transport
	// EventsBuffer sizes the bus history. Zero uses the bus default.
	EventsBuffer int
}

// Transport is the network surface: credential checks and completions.
type Transport interface {
	credential.Validator
	dispatch.Transport
}

// App owns every store and the resources behind them.
type App struct {
	Config config.Config
	Log    *slog.Logger
	Bus    *event.Bus

	Settings      *settings.Store
	Credentials   *credential.Store
	Usage         *usage.Ledger
	Conversations *conversation.Store
	Dispatcher    *dispatch.Dispatcher
	Chat          *chat.Session

	closers []func() error
}

// Open builds the runtime and restores persisted state. Load failures of
// individual stores are logged and surfaced through their Err; only
// failures to open storage are returned.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	console := opts.Console
	if console == nil {
		console = io.Discard
	}

	logger, closeLog := config.SetupLogger(config.LogPath(cfg), config.LogLevel(cfg), console)
	a := &App{Config: cfg, Log: logger, closers: []func() error{closeLog}}

	kv := opts.KV
	if kv == nil {
		db, err := store.Open(config.DBPath(cfg))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		kv = db
	}

	key, err := store.LoadOrCreateKey(config.KeyPath(cfg))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("loading vault key: %w", err)
	}
	vault, err := store.NewVault(kv, key)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	transport := opts.Transport
	if transport == nil {
		client := anthropic.NewClient(anthropic.Options{
			BaseURL:           cfg.API.BaseURL,
			Timeout:           cfg.API.Timeout(),
			RequestsPerMinute: cfg.API.RequestsPerMinute,
		})
		transport = host.New(vault, client, logger)
	}

	a.Bus = event.NewBus(opts.EventsBuffer)

	defaults := model.DefaultParams()
	if cfg.API.DefaultModel != "" {
		defaults.Model = cfg.API.DefaultModel
	}
	sections := settings.DefaultSections()
	sections.Theme.Name = cfg.Appearance.Theme

	a.Settings = settings.New(kv, a.Bus, logger.With("component", "settings"), defaults, sections)
	a.Credentials = credential.New(vault, transport, kv, a.Bus, logger.With("component", "credential"))
	a.Usage = usage.New(config.NewPriceTable(cfg.Pricing), kv, a.Bus, logger.With("component", "usage"))
	a.Conversations = conversation.New(a.Settings, kv, a.Bus, logger.With("component", "conversation"))
	a.Dispatcher = dispatch.New(transport, a.Credentials, a.Settings, a.Usage, a.Bus, logger.With("component", "dispatch"))
	a.Chat = chat.NewSession(a.Credentials, a.Conversations, a.Dispatcher, a.Bus, logger.With("component", "chat"))

	a.load(ctx)
	return a, nil
}

func (a *App) load(ctx context.Context) {
	loaders := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"settings", a.Settings.Load},
		{"credentials", a.Credentials.Load},
		{"usage", a.Usage.Load},
		{"conversations", a.Conversations.Load},
	}
	for _, l := range loaders {
		if err := l.fn(ctx); err != nil {
			a.Log.Warn("restoring state failed", "store", l.name, "error", err)
		}
	}
}

// Budget returns budget statistics against the configured monthly budget.
func (a *App) Budget() model.BudgetStats {
	return a.Usage.Budget(a.Config.Budget.MonthlyUSD)
}

// ExportDir is where transcript exports are written: the storage setting
// when set, otherwise an exports directory beside the database.
func (a *App) ExportDir() string {
	if dir := a.Settings.Sections().Storage.ExportDir; dir != "" {
		return dir
	}
	return filepath.Join(config.DataDir(a.Config), "exports")
}

// Close releases the database and log file.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
