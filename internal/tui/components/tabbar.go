package components

import (
	"strings"

	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Tab represents a single tab in the tab bar.
type Tab struct {
	Name string
	Key  string // shortcut shown after the name, e.g. "F1"
}

// Tabs defines all available tabs. Function keys switch tabs so that
// letters always reach the prompt input.
var Tabs = []Tab{
	{Name: "Chat", Key: "F1"},
	{Name: "Conversations", Key: "F2"},
	{Name: "Usage", Key: "F3"},
	{Name: "Settings", Key: "F4"},
}

// TabVisualWidth returns the rendered width of a tab label.
func TabVisualWidth(tab Tab, active bool) int {
	w := lipgloss.Width(tab.Name) + 2 // horizontal padding
	if !active {
		w += lipgloss.Width(tab.Key) + 1 // " F1"
	}
	return w
}

// RenderTabBar renders the tab bar with the given active index.
func RenderTabBar(activeIdx int, width int) string {
	t := theme.Active

	activeStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.SurfaceHover).
		Bold(true).
		Padding(0, 1)

	inactiveStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Padding(0, 1)

	keyStyle := lipgloss.NewStyle().
		Foreground(t.TextDim).
		Background(t.Surface)

	sepStyle := lipgloss.NewStyle().
		Foreground(t.Border).
		Background(t.Surface)

	parts := make([]string, 0, len(Tabs))
	for i, tab := range Tabs {
		if i == activeIdx {
			parts = append(parts, activeStyle.Render(tab.Name))
			continue
		}
		// The key hint sits inside the right padding: "Name F1 ".
		parts = append(parts, inactiveStyle.PaddingRight(0).Render(tab.Name)+
			keyStyle.Render(" "+tab.Key+" "))
	}

	row := strings.Join(parts, sepStyle.Render("│"))
	return lipgloss.NewStyle().Background(t.Surface).Width(width).Render(row)
}

// TabIdxByKey returns the tab index for a key name such as "f2", or -1.
func TabIdxByKey(key string) int {
	for i, tab := range Tabs {
		if strings.EqualFold(tab.Key, key) {
			return i
		}
	}
	return -1
}
