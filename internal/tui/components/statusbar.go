package components

import (
	"strings"

	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo is what the status bar shows on its right side.
type StatusInfo struct {
	Profile string
	Model   string
	Spend   string
	Busy    bool
	Spinner string
	Err     string
}

// RenderStatusBar renders the bottom status bar: key hints on the left,
// profile, model and month spend on the right.
func RenderStatusBar(width int, hints string, info StatusInfo) string {
	t := theme.Active

	base := lipgloss.NewStyle().Background(t.Surface)
	hintStyle := base.Foreground(t.TextDim)
	mutedStyle := base.Foreground(t.TextMuted)
	accentStyle := base.Foreground(t.Accent).Bold(true)
	errStyle := base.Foreground(t.Red)

	left := hintStyle.Render(" " + hints)
	if info.Err != "" {
		left = errStyle.Render(" " + info.Err)
	}

	right := ""
	if info.Busy {
		right += accentStyle.Render(info.Spinner+" thinking") + mutedStyle.Render("  ")
	}
	profile := info.Profile
	if profile == "" {
		profile = "no profile"
	}
	right += mutedStyle.Render(profile) +
		hintStyle.Render(" · ") +
		mutedStyle.Render(info.Model) +
		hintStyle.Render(" · ") +
		accentStyle.Render(info.Spend) +
		mutedStyle.Render(" ")

	// Pad middle
	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		// Drop the hints before the right side gets clipped.
		left = ""
		padding = width - lipgloss.Width(right)
		if padding < 0 {
			padding = 0
		}
	}

	return left + base.Render(strings.Repeat(" ", padding)) + right
}

