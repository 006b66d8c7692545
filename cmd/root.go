// Package cmd implements the cchat CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/theirongolddev/cchat/internal/app"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/model"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagDataDir    string
	flagLogLevel   string
	flagQuiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "cchat",
	Short: "Terminal chat client for the Anthropic Messages API",
	Long: "Chat with Claude from the terminal: named API-key profiles, persistent\n" +
		"conversations, tunable request parameters and usage tracking.\n\n" +
		"Run without a subcommand to open the interactive TUI.",
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", "", "Directory holding the database, key file and logs")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	path := flagConfigPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return cfg, err
	}
	if flagDataDir != "" {
		cfg.General.DataDir = flagDataDir
	}
	if flagLogLevel != "" {
		cfg.General.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// openApp loads config and opens the runtime. console receives log
// warnings; pass io.Discard when the terminal belongs to the TUI.
func openApp(ctx context.Context, console io.Writer) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{Config: cfg, Console: console})
}

// requireSession validates the active profile so prompts can be sent.
func requireSession(ctx context.Context, rt *app.App) error {
	if _, ok := rt.Credentials.Active(); !ok {
		return errors.New("no API key stored; run `cchat login` first")
	}
	progress("  Checking API key...\n")
	if !rt.Credentials.CheckSession(ctx) {
		if msg := rt.Credentials.Err(); msg != "" {
			return fmt.Errorf("%s (run `cchat login` to add a new key)", msg)
		}
		return errors.New("API key check failed; run `cchat login` to add a new key")
	}
	return nil
}

// progress writes to stderr unless --quiet is set.
func progress(format string, args ...any) {
	if flagQuiet {
		return
	}
	fmt.Fprintf(os.Stderr, format, args...)
}

// shortID shortens a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveProfile finds a profile by ID, ID prefix or case-insensitive name.
func resolveProfile(profiles []model.Profile, arg string) (model.Profile, error) {
	var matches []model.Profile
	for _, p := range profiles {
		if p.ID == arg {
			return p, nil
		}
		if strings.EqualFold(p.Name, arg) || strings.HasPrefix(p.ID, arg) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return model.Profile{}, fmt.Errorf("no profile matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return model.Profile{}, fmt.Errorf("%q matches %d profiles; use the ID", arg, len(matches))
	}
}

// resolveConversation finds a conversation by ID or unique ID prefix.
func resolveConversation(convs []*model.Conversation, arg string) (*model.Conversation, error) {
	var matches []*model.Conversation
	for _, c := range convs {
		if c.ID == arg {
			return c, nil
		}
		if strings.HasPrefix(c.ID, arg) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no conversation matches %q", arg)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q matches %d conversations; use more of the ID", arg, len(matches))
	}
}
