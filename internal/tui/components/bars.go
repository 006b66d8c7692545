package components

import (
	"strings"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Bar is one labeled row of a horizontal bar chart.
type Bar struct {
	Label string
	Value float64
	Text  string // shown after the bar, e.g. a formatted cost
}

// HBars renders rows of horizontal bars scaled to the largest value.
// Labels are truncated to a shared column; zero rows render a dim dot so
// gaps stay visible.
func HBars(rows []Bar, color lipgloss.Color, width int) string {
	if len(rows) == 0 {
		return ""
	}
	t := theme.Active

	labelW := 0
	textW := 0
	peak := 0.0
	for _, r := range rows {
		labelW = max(labelW, lipgloss.Width(r.Label))
		textW = max(textW, lipgloss.Width(r.Text))
		peak = max(peak, r.Value)
	}
	labelW = min(labelW, width/3)
	if peak == 0 {
		peak = 1
	}

	barMax := width - labelW - textW - 3
	if barMax < 4 {
		barMax = 4
	}

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	barStyle := lipgloss.NewStyle().Foreground(color).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	textStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	var b strings.Builder
	for i, r := range rows {
		n := int(r.Value / peak * float64(barMax))
		bar := dimStyle.Render("·")
		pad := barMax - 1
		if n > 0 {
			bar = barStyle.Render(strings.Repeat("█", n))
			pad = barMax - n
		}
		b.WriteString(labelStyle.Render(cli.Pad(cli.Truncate(r.Label, labelW), labelW)))
		b.WriteString(spaceStyle.Render(" "))
		b.WriteString(bar)
		b.WriteString(spaceStyle.Render(strings.Repeat(" ", pad+1)))
		b.WriteString(textStyle.Render(r.Text))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
