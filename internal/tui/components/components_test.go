package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/theirongolddev/cchat/internal/tui/theme"
)

func init() {
	// Force TrueColor output so ANSI codes are generated in tests
	lipgloss.SetColorProfile(termenv.TrueColor)
}

func TestLayoutRowSumsToTotal(t *testing.T) {
	for _, total := range []int{10, 79, 120} {
		for n := 1; n <= 5; n++ {
			sum := 0
			for _, w := range LayoutRow(total, n) {
				sum += w
			}
			if sum != total {
				t.Errorf("LayoutRow(%d, %d) sums to %d", total, n, sum)
			}
		}
	}
	if LayoutRow(10, 0) != nil {
		t.Error("LayoutRow with n=0 should be nil")
	}
}

func TestCardRowPadsShorterCards(t *testing.T) {
	theme.SetActive("flexoki-dark")

	shortCard := ContentCard("Short", "Content", 22)
	tallCard := ContentCard("Tall", "Line 1\nLine 2\nLine 3\nLine 4\nLine 5", 22)

	shortLines := len(strings.Split(shortCard, "\n"))
	tallLines := len(strings.Split(tallCard, "\n"))
	if shortLines >= tallLines {
		t.Fatal("Test setup error: short card should be shorter than tall card")
	}

	joined := CardRow([]string{tallCard, shortCard})
	lines := strings.Split(joined, "\n")
	if len(lines) != tallLines {
		t.Fatalf("Joined height should match tallest card: got %d, want %d", len(lines), tallLines)
	}

	want := lipgloss.Width(lines[0])
	for i, line := range lines {
		if w := lipgloss.Width(line); w != want {
			t.Errorf("line %d width = %d, want %d", i, w, want)
		}
		if i >= shortLines && !strings.Contains(line, "\x1b[") {
			t.Errorf("padding line %d has no background styling", i)
		}
	}
}

func TestTabVisualWidthMatchesRender(t *testing.T) {
	for active := range Tabs {
		bar := RenderTabBar(active, 200)
		want := 0
		for i, tab := range Tabs {
			want += TabVisualWidth(tab, i == active)
		}
		want += len(Tabs) - 1 // separators

		got := lipgloss.Width(strings.TrimRight(stripANSI(bar), " "))
		if got != want {
			t.Errorf("active=%d rendered width %d, want %d", active, got, want)
		}
	}
}

func TestTabIdxByKey(t *testing.T) {
	if got := TabIdxByKey("f3"); got != 2 {
		t.Errorf("TabIdxByKey(f3) = %d, want 2", got)
	}
	if got := TabIdxByKey("x"); got != -1 {
		t.Errorf("TabIdxByKey(x) = %d, want -1", got)
	}
}

func TestHBars(t *testing.T) {
	out := HBars([]Bar{
		{Label: "2024-03-02", Value: 2, Text: "$2.00"},
		{Label: "2024-03-01", Value: 0, Text: "$0.00"},
	}, theme.Active.Accent, 40)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "█") {
		t.Error("non-zero row has no bar")
	}
	if strings.Contains(lines[1], "█") {
		t.Error("zero row should not draw a bar")
	}
	if HBars(nil, theme.Active.Accent, 40) != "" {
		t.Error("empty rows should render nothing")
	}
}

func TestBudgetBarShowsOverspend(t *testing.T) {
	out := BudgetBar("Budget", 1.25, 8, 20)
	if !strings.Contains(stripANSI(out), "125%") {
		t.Errorf("BudgetBar = %q, want 125%%", stripANSI(out))
	}
}

func TestStatusBarFitsWidth(t *testing.T) {
	bar := RenderStatusBar(60, "? help", StatusInfo{Profile: "work", Model: "claude-3-opus", Spend: "$1.20"})
	if w := lipgloss.Width(bar); w != 60 {
		t.Errorf("status bar width = %d, want 60", w)
	}
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'):
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return b.String()
}
