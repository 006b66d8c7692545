package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/config"
	"github.com/theirongolddev/cchat/internal/settings"
	"github.com/theirongolddev/cchat/internal/tui/components"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// settingsState tracks the settings tab state. The cursor moves over
// profiles; every other setting has its own key.
type settingsState struct {
	cursor        int
	confirmRemove bool
}

// toggles maps number keys to the boolean settings they flip.
var toggles = []struct {
	key   string
	label string
	get   func(settings.Sections) bool
	flip  func(*settings.Sections)
}{
	{"1", "Send on Enter",
		func(s settings.Sections) bool { return s.Editor.SendOnEnter },
		func(s *settings.Sections) { s.Editor.SendOnEnter = !s.Editor.SendOnEnter }},
	{"2", "Show token counts",
		func(s settings.Sections) bool { return s.Interface.ShowTokenCounts },
		func(s *settings.Sections) { s.Interface.ShowTokenCounts = !s.Interface.ShowTokenCounts }},
	{"3", "Show timestamps",
		func(s settings.Sections) bool { return s.Interface.ShowTimestamps },
		func(s *settings.Sections) { s.Interface.ShowTimestamps = !s.Interface.ShowTimestamps }},
	{"4", "Render markdown",
		func(s settings.Sections) bool { return s.Interface.RenderMarkdown },
		func(s *settings.Sections) { s.Interface.RenderMarkdown = !s.Interface.RenderMarkdown }},
}

func (a App) updateSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	ctx := context.Background()
	profiles := a.rt.Credentials.Profiles()

	if a.settings.confirmRemove {
		a.settings.confirmRemove = false
		if key == "y" && a.settings.cursor < len(profiles) {
			p := profiles[a.settings.cursor]
			if err := a.rt.Credentials.Remove(ctx, p.ID); err != nil {
				a.flash = flashMsg{text: err.Error(), err: true}
			} else {
				a.flash = flashMsg{text: fmt.Sprintf("Removed profile %q", p.Name)}
			}
			if a.settings.cursor >= len(profiles)-1 && a.settings.cursor > 0 {
				a.settings.cursor--
			}
		}
		return a, nil
	}

	for _, tg := range toggles {
		if key == tg.key {
			a.rt.Settings.UpdateSections(ctx, tg.flip)
			return a, nil
		}
	}

	switch key {
	case "q":
		return a, tea.Quit
	case "?":
		a.showHelp = true
	case "j", "down":
		if a.settings.cursor < len(profiles)-1 {
			a.settings.cursor++
		}
	case "k", "up":
		if a.settings.cursor > 0 {
			a.settings.cursor--
		}
	case "p":
		return a.openForm(newParamsForm(a.rt.Settings.Params()))
	case "a":
		return a.openForm(newLoginForm(false))
	case "enter":
		if a.settings.cursor < len(profiles) {
			if err := a.rt.Credentials.Activate(ctx, profiles[a.settings.cursor].ID); err != nil {
				a.flash = flashMsg{text: err.Error(), err: true}
			}
		}
	case "x":
		if a.settings.cursor < len(profiles) {
			a.settings.confirmRemove = true
		}
	case "c":
		if _, ok := a.rt.Credentials.Active(); ok {
			a.flash = flashMsg{text: "Checking API key..."}
			return a, checkSessionCmd(a.rt, true)
		}
	case "T":
		next := nextTheme(a.rt.Settings.Sections().Theme.Name)
		a.rt.Settings.UpdateSections(ctx, func(s *settings.Sections) { s.Theme.Name = next })
	case "+", "=":
		a.rt.Settings.UpdateSections(ctx, func(s *settings.Sections) { s.Editor.InputLines = min(s.Editor.InputLines+1, 10) })
	case "-":
		a.rt.Settings.UpdateSections(ctx, func(s *settings.Sections) { s.Editor.InputLines-- })
	}
	return a, nil
}

// nextTheme cycles through the built-in themes.
func nextTheme(current string) string {
	names := theme.Names()
	for i, n := range names {
		if n == current {
			return names[(i+1)%len(names)]
		}
	}
	return names[0]
}

func (a App) renderSettingsTab(cw int) string {
	t := theme.Active

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	accentStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.Surface)
	greenStyle := lipgloss.NewStyle().Foreground(t.GreenBright).Background(t.Surface)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface).Bold(true)
	selectedStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceBright).Bold(true)
	markerStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceBright)

	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-18s ", label)) + valueStyle.Render(value) + "\n"
	}

	widths := components.LayoutRow(cw, 2)
	if a.isCompactLayout() {
		widths = []int{cw, cw}
	}

	// Request parameters
	p := a.rt.Settings.Params()
	topK := "(default)"
	if p.TopK != nil {
		topK = strconv.Itoa(*p.TopK)
	}
	stop := "(none)"
	if len(p.StopSequences) > 0 {
		stop = `"` + strings.Join(p.StopSequences, `", "`) + `"`
	}
	system := "(none)"
	if p.SystemPrompt != "" {
		system = strings.Join(strings.Fields(p.SystemPrompt), " ")
	}
	paramsInner := components.CardInnerWidth(widths[0])
	var params strings.Builder
	params.WriteString(row("Model", p.Model))
	params.WriteString(row("Temperature", strconv.FormatFloat(p.Temperature, 'f', -1, 64)))
	params.WriteString(row("Max tokens", cli.FormatNumber(int64(p.MaxTokens))))
	params.WriteString(row("Top P", strconv.FormatFloat(p.TopP, 'f', -1, 64)))
	params.WriteString(row("Top K", topK))
	params.WriteString(row("Stop sequences", cli.Truncate(stop, paramsInner-19)))
	params.WriteString(row("System prompt", cli.Truncate(system, paramsInner-19)))
	params.WriteString("\n")
	params.WriteString(dimStyle.Render("[p] edit parameters"))

	// Profiles
	profInner := components.CardInnerWidth(widths[1])
	var prof strings.Builder
	profiles := a.rt.Credentials.Profiles()
	active, hasActive := a.rt.Credentials.Active()
	if len(profiles) == 0 {
		prof.WriteString(labelStyle.Render("No API keys stored yet.") + "\n")
	}
	now := time.Now()
	for i, pr := range profiles {
		mark := "  "
		if hasActive && pr.ID == active.ID {
			mark = "● "
		}
		line := fmt.Sprintf("%-16s …%s  %s", cli.Truncate(pr.Name, 16), pr.KeySuffix, cli.FormatAgo(pr.LastUsedAt, now))
		line = cli.Truncate(line, profInner-2)
		if i == a.settings.cursor {
			prof.WriteString(markerStyle.Render(mark))
			prof.WriteString(selectedStyle.Render(cli.Pad(line, profInner-2)))
		} else {
			prof.WriteString(accentStyle.Render(mark))
			prof.WriteString(valueStyle.Render(line))
		}
		prof.WriteString("\n")
	}
	switch {
	case a.settings.confirmRemove:
		prof.WriteString(warnStyle.Render("Remove selected profile and its key? y/N"))
	case a.rt.Credentials.IsAuthenticating():
		prof.WriteString(accentStyle.Render("Validating..."))
	case a.rt.Credentials.IsAuthenticated():
		prof.WriteString(greenStyle.Render("Authenticated"))
	case hasActive:
		prof.WriteString(warnStyle.Render("Not verified this session, press c"))
	}
	prof.WriteString("\n")
	prof.WriteString(dimStyle.Render("[enter] use  [a] add  [x] remove  [c] check"))

	// Preferences
	sec := a.rt.Settings.Sections()
	var prefs strings.Builder
	prefs.WriteString(row("Theme [T]", sec.Theme.Name))
	prefs.WriteString(row("Input lines [+/-]", strconv.Itoa(sec.Editor.InputLines)))
	for _, tg := range toggles {
		state := dimStyle.Render("off")
		if tg.get(sec) {
			state = greenStyle.Render("on")
		}
		prefs.WriteString(labelStyle.Render(fmt.Sprintf("%-18s ", tg.label+" ["+tg.key+"]")) + state + "\n")
	}

	// Storage
	cfg := a.rt.Config
	var storage strings.Builder
	storage.WriteString(row("Database", config.DBPath(cfg)))
	storage.WriteString(row("Exports", a.rt.ExportDir()))
	storage.WriteString(row("Log file", config.LogPath(cfg)))
	storage.WriteString(row("Config file", config.ConfigPath()))
	budget := "(not set)"
	if cfg.Budget.MonthlyUSD != nil {
		budget = cli.FormatCost(*cfg.Budget.MonthlyUSD)
	}
	storage.WriteString(strings.TrimSuffix(row("Monthly budget", budget), "\n"))

	paramsCard := components.ContentCard("Request Parameters", params.String(), widths[0])
	profCard := components.ContentCard("Profiles", prof.String(), widths[1])
	prefsCard := components.ContentCard("Preferences", strings.TrimSuffix(prefs.String(), "\n"), widths[0])
	storageCard := components.ContentCard("Storage", storage.String(), widths[1])

	if a.isCompactLayout() {
		return strings.Join([]string{paramsCard, profCard, prefsCard, storageCard}, "\n")
	}
	return components.CardRow([]string{paramsCard, profCard}) + "\n" +
		components.CardRow([]string{prefsCard, storageCard})
}
