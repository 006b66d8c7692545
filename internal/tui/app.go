// Package tui provides the interactive Bubble Tea chat client for cchat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/cchat/internal/app"
	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/event"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/tui/components"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Tab indexes, matching components.Tabs.
const (
	tabChat = iota
	tabConversations
	tabUsage
	tabSettings
)

const (
	minTerminalWidth = 60
	compactWidth     = 100
	maxContentWidth  = 160

	minContentHeight = 5 // minimum content area height
	busBuffer        = 64
)

// busMsg carries one store event into the update loop.
type busMsg struct {
	ev event.Event
}

// promptDoneMsg is sent when a submitted prompt finishes, successfully or not.
type promptDoneMsg struct {
	err error
}

// sessionCheckedMsg reports a credential check. Startup checks only
// report failures.
type sessionCheckedMsg struct {
	ok     bool
	manual bool
}

// flashMsg shows a one-line notice in the status bar.
type flashMsg struct {
	text string
	err  bool
}

// App is the root Bubble Tea model.
type App struct {
	rt *app.App

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool

	// Per-tab state
	chat     chatState
	convs    convsState
	settings settingsState

	// Modal huh form (login or parameters)
	form *activeForm

	spinner spinner.Model
	flash   flashMsg

	events      chan event.Event
	unsubscribe func()
}

// NewApp creates the TUI over an opened runtime. Call Close when the
// program exits.
func NewApp(rt *app.App) App {
	theme.SetActive(rt.Settings.Sections().Theme.Name)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	events := make(chan event.Event, busBuffer)
	unsubscribe := rt.Bus.Subscribe(func(ev event.Event) {
		// Drop rather than block the publishing store; the next event
		// triggers a full re-render anyway.
		select {
		case events <- ev:
		default:
		}
	})

	a := App{
		rt:          rt,
		spinner:     sp,
		events:      events,
		unsubscribe: unsubscribe,
		chat:        newChatState(rt.Settings.Sections()),
		convs:       newConvsState(),
	}
	a.chat.input.Focus()

	if len(rt.Credentials.Profiles()) == 0 {
		a.form = newLoginForm(true)
	}
	return a
}

// Close detaches the app from the event bus.
func (a App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnableMouseCellMotion,
		waitForEvent(a.events),
		textarea.Blink,
	}
	if a.form != nil {
		cmds = append(cmds, a.form.form.Init())
	} else if _, ok := a.rt.Credentials.Active(); ok {
		cmds = append(cmds, checkSessionCmd(a.rt, false))
	}
	return tea.Batch(cmds...)
}

// waitForEvent blocks until the next bus event arrives.
func waitForEvent(ch chan event.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return busMsg{ev: ev}
	}
}

func checkSessionCmd(rt *app.App, manual bool) tea.Cmd {
	return func() tea.Msg {
		return sessionCheckedMsg{ok: rt.Credentials.CheckSession(context.Background()), manual: manual}
	}
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		if a.form != nil {
			a.form.form = a.form.form.WithWidth(a.formWidth())
		}
		return a, nil

	case busMsg:
		a.onEvent(msg.ev)
		return a, waitForEvent(a.events)

	case promptDoneMsg:
		a.refreshChat()
		if msg.err != nil {
			a.flash = flashMsg{text: msg.err.Error(), err: true}
		}
		return a, nil

	case sessionCheckedMsg:
		switch {
		case !msg.ok && a.rt.Credentials.Err() != "":
			a.flash = flashMsg{text: a.rt.Credentials.Err() + "; add a new key in Settings (F4)", err: true}
		case !msg.ok:
			a.flash = flashMsg{text: "API key check failed; add a new key in Settings (F4)", err: true}
		case msg.manual:
			a.flash = flashMsg{text: "API key accepted"}
		}
		return a, nil

	case flashMsg:
		a.flash = msg
		return a, nil

	case formDoneMsg:
		return a.onFormDone(msg)

	case spinner.TickMsg:
		if a.rt.Chat.IsLoading() {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tea.MouseMsg:
		if a.form != nil || a.showHelp {
			return a, nil
		}
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && msg.Y == 0 {
			if tab := a.tabAtX(msg.X); tab >= 0 {
				return a.switchTab(tab)
			}
			return a, nil
		}
		if a.activeTab == tabChat {
			var cmd tea.Cmd
			a.chat.vp, cmd = a.chat.vp.Update(msg)
			return a, cmd
		}
		return a, nil

	case tea.KeyMsg:
		return a.updateKey(msg)
	}

	// Forward unhandled messages (cursor blinks, form internals).
	if a.form != nil {
		return a.updateForm(msg)
	}
	if a.activeTab == tabChat {
		var cmd tea.Cmd
		a.chat.input, cmd = a.chat.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a App) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	// Global: quit
	if key == "ctrl+c" {
		return a, tea.Quit
	}

	// Modal form intercepts all keys
	if a.form != nil {
		return a.updateForm(msg)
	}

	// Dismiss help
	if a.showHelp {
		a.showHelp = false
		return a, nil
	}

	if tab := components.TabIdxByKey(key); tab >= 0 {
		return a.switchTab(tab)
	}
	switch key {
	case "ctrl+right":
		return a.switchTab((a.activeTab + 1) % len(components.Tabs))
	case "ctrl+left":
		return a.switchTab((a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs))
	}

	a.flash = flashMsg{}

	switch a.activeTab {
	case tabChat:
		return a.updateChatKey(msg)
	case tabConversations:
		return a.updateConvsKey(msg)
	case tabSettings:
		return a.updateSettingsKey(msg)
	}

	// Usage tab has no inputs of its own.
	switch key {
	case "?":
		a.showHelp = true
	case "q":
		return a, tea.Quit
	}
	return a, nil
}

func (a App) switchTab(tab int) (tea.Model, tea.Cmd) {
	a.activeTab = tab
	a.flash = flashMsg{}
	if tab == tabChat {
		a.refreshChat()
		cmd := a.chat.input.Focus()
		return a, cmd
	}
	a.chat.input.Blur()
	return a, nil
}

// onEvent reacts to store changes made by this or a background command.
func (a *App) onEvent(ev event.Event) {
	switch ev.Topic {
	case event.TopicConversation, event.TopicChat:
		a.refreshChat()
		a.convs.clamp(len(a.filteredConversations()))
	case event.TopicSettings:
		sec := a.rt.Settings.Sections()
		theme.SetActive(sec.Theme.Name)
		a.chat.applySections(sec)
		a.layout()
	}
	if ev.Err != "" && ev.Topic != event.TopicChat {
		a.flash = flashMsg{text: fmt.Sprintf("%s: %s", ev.Topic, ev.Err), err: true}
	}
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

func (a App) contentHeight() int {
	h := a.height - 2 // tab bar + status bar
	if h < minContentHeight {
		h = minContentHeight
	}
	return h
}

func (a App) isCompactLayout() bool {
	return a.contentWidth() < compactWidth
}

func (a App) formWidth() int {
	w := a.contentWidth() - 8
	if w > 72 {
		w = 72
	}
	return w
}

// layout resizes the chat widgets to the current window.
func (a *App) layout() {
	if a.width == 0 {
		return
	}
	a.chat.resize(a.contentWidth(), a.contentHeight())
	a.refreshChat()
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}

	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}

	if a.form != nil {
		return a.viewForm()
	}

	if a.showHelp {
		return a.viewHelp()
	}

	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}

	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  cchat needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)

	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewForm() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Padding(1, 2)

	body := a.form.form.View()
	if a.flash.err {
		body += "\n" + lipgloss.NewStyle().Foreground(t.Red).Render(a.flash.text)
	}

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center,
		cardStyle.Render(body),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)

	titleStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.Surface).
		Bold(true)

	sectionStyle := lipgloss.NewStyle().
		Foreground(t.Accent).
		Background(t.Surface).
		Bold(true)

	keyStyle := lipgloss.NewStyle().
		Foreground(t.Cyan).
		Background(t.Surface).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface)

	dimStyle := lipgloss.NewStyle().
		Foreground(t.TextDim).
		Background(t.Surface)

	sections := []struct {
		title    string
		bindings []struct{ key, desc string }
	}{
		{"Navigation", []struct{ key, desc string }{
			{"F1-F4", "Jump to tab"},
			{"^← ^→", "Previous / Next tab"},
			{"j k", "Navigate lists"},
			{"PgUp PgDn", "Scroll transcript"},
		}},
		{"Chat", []struct{ key, desc string }{
			{"Enter", "Send (Alt+Enter for newline)"},
			{"Esc", "Cancel running request"},
			{"^n", "New conversation"},
		}},
		{"Conversations", []struct{ key, desc string }{
			{"/", "Search, #tag filters by tag"},
			{"Enter", "Open in chat"},
			{"f r t", "Favorite / Rename / Tags"},
			{"e d", "Export / Delete"},
		}},
		{"Settings", []struct{ key, desc string }{
			{"p", "Edit request parameters"},
			{"a x c", "Add / Remove / Check profile"},
			{"T 1-4", "Theme / Toggle options"},
		}},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n")
	for _, sec := range sections {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(sec.title))
		b.WriteString("\n")
		for _, bind := range sec.bindings {
			fmt.Fprintf(&b, "  %s  %s\n",
				keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
				descStyle.Render(bind.desc))
		}
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	header := components.RenderTabBar(a.activeTab, w)
	statusBar := components.RenderStatusBar(w, a.hints(), a.statusInfo())

	contentH := h - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	var content string
	switch a.activeTab {
	case tabChat:
		content = a.renderChatTab(cw)
	case tabConversations:
		content = a.renderConvsTab(cw, contentH)
	case tabUsage:
		content = a.renderUsageTab(cw)
	case tabSettings:
		content = a.renderSettingsTab(cw)
	}

	// Truncate + pad to exactly contentH lines
	content = padHeight(truncateHeight(content, contentH), contentH)

	// Fill each line to full width with background (fixes gaps between cards)
	content = fillLinesWithBackground(content, cw, t.Background)

	// Place content with background fill (handles centering when w > cw)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)

	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) hints() string {
	if a.flash.text != "" && !a.flash.err {
		return a.flash.text
	}
	switch a.activeTab {
	case tabChat:
		if a.rt.Chat.IsLoading() {
			return "esc cancel"
		}
		return "enter send · ^n new · F2 history"
	case tabConversations:
		if a.convs.searching || a.convs.editing != editNone {
			return "enter apply · esc cancel"
		}
		return "/ search · enter open · ? help"
	case tabSettings:
		return "p params · a add profile · ? help"
	}
	return "? help · q quit"
}

func (a App) statusInfo() components.StatusInfo {
	info := components.StatusInfo{
		Model:   shortModel(a.rt.Settings.Model()),
		Spend:   cli.FormatCost(a.rt.Usage.Current().Cost),
		Busy:    a.rt.Chat.IsLoading(),
		Spinner: a.spinner.View(),
	}
	if p, ok := a.rt.Credentials.Active(); ok {
		info.Profile = p.Name
		if !a.rt.Credentials.IsAuthenticated() {
			info.Profile += " (unchecked)"
		}
	}
	switch {
	case a.flash.err:
		info.Err = a.flash.text
	case a.rt.Chat.Err() != "":
		info.Err = a.rt.Chat.Err()
	}
	return info
}

// ─── Mouse Support ──────────────────────────────────────────────

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)

		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW

		// Separator is one column between tabs.
		if i < len(components.Tabs)-1 {
			pos++
		}
	}
	return -1
}

// ─── Helpers ────────────────────────────────────────────────────

func shortModel(name string) string {
	if len(name) > 7 && name[:7] == "claude-" {
		return name[7:]
	}
	return name
}

func roleLabel(m model.Message) string {
	switch {
	case m.IsError():
		return "Error"
	case m.Role == model.RoleUser:
		return "You"
	case m.Role == model.RoleAssistant:
		return "Claude"
	default:
		return "System"
	}
}

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	padding := strings.Repeat("\n", h-len(lines))
	return s + padding
}

// fillLinesWithBackground pads each line to width w with background color.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")

	var result strings.Builder
	for i, line := range lines {
		placed := lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
		result.WriteString(placed)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}
