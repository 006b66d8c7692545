package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/theirongolddev/cchat/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive chat TUI",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	// The TUI owns the terminal, so log warnings only go to the log file.
	rt, err := openApp(context.Background(), io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	a := tui.NewApp(rt)
	defer a.Close()

	p := tea.NewProgram(a, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Don't leave a request running against a closed database.
	if rt.Chat.IsLoading() {
		rt.Chat.CancelRequest()
	}
	return nil
}
