package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/settings"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// chatState holds the transcript viewport and the prompt editor.
type chatState struct {
	vp       viewport.Model
	input    textarea.Model
	md       *mdCache
	sections settings.Sections

	// conversation and message count last rendered, to decide when to
	// jump to the bottom
	convID   string
	msgCount int
}

func newChatState(sec settings.Sections) chatState {
	ta := textarea.New()
	ta.Placeholder = "Ask Claude anything..."
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 0

	cs := chatState{
		vp:    viewport.New(80, 10),
		input: ta,
		md:    &mdCache{out: make(map[string]string)},
	}
	cs.applySections(sec)
	return cs
}

// applySections updates the editor bindings and transcript options.
func (c *chatState) applySections(sec settings.Sections) {
	c.sections = sec
	c.input.SetHeight(sec.Editor.InputLines)
	if sec.Editor.SendOnEnter {
		c.input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	} else {
		c.input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("enter", "ctrl+j"))
	}
	c.md.reset()
}

func (c chatState) sendKeys() []string {
	if c.sections.Editor.SendOnEnter {
		return []string{"enter", "ctrl+s"}
	}
	return []string{"ctrl+s"}
}

func (c *chatState) resize(w, h int) {
	inputH := c.sections.Editor.InputLines
	c.input.SetWidth(w - 2)
	c.vp.Width = w
	c.vp.Height = h - inputH - 2 // title + separator lines
	if c.vp.Height < 1 {
		c.vp.Height = 1
	}
}

// refreshChat re-renders the active conversation into the viewport.
func (a *App) refreshChat() {
	conv := a.rt.Conversations.Active()
	w := a.chat.vp.Width
	if w < 20 {
		w = 20
	}

	content := renderTranscript(conv, a.chat.sections.Interface, a.chat.md, w)
	a.chat.vp.SetContent(content)

	id, n := "", 0
	if conv != nil {
		id, n = conv.ID, len(conv.Messages)
	}
	if id != a.chat.convID || n != a.chat.msgCount {
		a.chat.vp.GotoBottom()
	}
	a.chat.convID, a.chat.msgCount = id, n
}

func (a App) updateChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()

	switch k {
	case "esc":
		if a.rt.Chat.IsLoading() {
			a.rt.Chat.CancelRequest()
			return a, nil
		}
		a.rt.Chat.ClearErr()
		return a, nil
	case "ctrl+n":
		a.rt.Conversations.Create(context.Background(), "")
		a.refreshChat()
		return a, nil
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		a.chat.vp, cmd = a.chat.vp.Update(msg)
		return a, cmd
	}

	for _, send := range a.chat.sendKeys() {
		if k == send {
			return a.submitPrompt()
		}
	}

	var cmd tea.Cmd
	a.chat.input, cmd = a.chat.input.Update(msg)
	return a, cmd
}

func (a App) submitPrompt() (tea.Model, tea.Cmd) {
	text := a.chat.input.Value()
	if strings.TrimSpace(text) == "" || a.rt.Chat.IsLoading() {
		return a, nil
	}
	a.chat.input.Reset()
	a.flash = flashMsg{}

	rt := a.rt
	send := func() tea.Msg {
		return promptDoneMsg{err: rt.Chat.SubmitPrompt(context.Background(), text, nil)}
	}
	return a, tea.Batch(send, a.spinner.Tick)
}

func (a App) renderChatTab(cw int) string {
	t := theme.Active

	sep := lipgloss.NewStyle().
		Foreground(t.Border).
		Background(t.Background).
		Render(strings.Repeat("─", cw))

	conv := a.rt.Conversations.Active()
	title := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Background).Bold(true).
		Render(cli.Truncate(chatTitle(conv), cw))

	body := a.chat.vp.View()
	if conv == nil || len(conv.Messages) == 0 {
		empty := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Background).
			Render("  No messages yet. Type a prompt below to start.")
		body = padHeight(empty, a.chat.vp.Height)
	}

	return title + "\n" + body + "\n" + sep + "\n" + a.chat.input.View()
}

// renderTranscript formats every message of conv with a role header.
func renderTranscript(conv *model.Conversation, opts settings.Interface, md *mdCache, width int) string {
	if conv == nil {
		return ""
	}
	t := theme.Active

	mutedStyle := lipgloss.NewStyle().Foreground(t.TextDim)
	textStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Width(width - 2).PaddingLeft(2)

	var b strings.Builder
	for i, m := range conv.Messages {
		role := string(m.Role)
		if m.IsError() {
			role = "error"
		}
		header := lipgloss.NewStyle().Foreground(t.RoleColor(role)).Bold(true).Render(roleLabel(m))

		var meta []string
		if opts.ShowTokenCounts && m.Metadata.Tokens > 0 {
			meta = append(meta, cli.FormatTokens(m.Metadata.Tokens)+" tok")
		}
		if opts.ShowTimestamps && !m.CreatedAt.IsZero() {
			meta = append(meta, m.CreatedAt.Local().Format("15:04"))
		}
		if len(meta) > 0 {
			header += mutedStyle.Render("  " + strings.Join(meta, " · "))
		}
		b.WriteString(header)
		b.WriteString("\n")

		switch {
		case m.Role == model.RoleAssistant && opts.RenderMarkdown:
			b.WriteString(md.render(m.ID, m.Content, width))
		case m.IsError():
			b.WriteString(textStyle.Foreground(t.RoleColor("error")).Render(m.Content))
		default:
			b.WriteString(textStyle.Render(m.Content))
		}
		if i < len(conv.Messages)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// mdCache memoizes glamour output per message. Rendering is slow enough
// that redoing the whole transcript on every keypress is noticeable.
type mdCache struct {
	renderer *glamour.TermRenderer
	width    int
	style    string
	out      map[string]string
}

func (c *mdCache) reset() {
	c.renderer = nil
	c.out = make(map[string]string)
}

func (c *mdCache) render(id, content string, width int) string {
	style := theme.Active.Markdown
	if c.renderer == nil || c.width != width || c.style != style {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width-4),
		)
		if err != nil {
			return content
		}
		c.renderer, c.width, c.style = r, width, style
		c.out = make(map[string]string)
	}

	if s, ok := c.out[id]; ok {
		return s
	}
	s, err := c.renderer.Render(content)
	if err != nil {
		return content
	}
	s = strings.Trim(s, "\n")
	c.out[id] = s
	return s
}

// chatTitle is the line above the transcript.
func chatTitle(conv *model.Conversation) string {
	if conv == nil {
		return "New conversation"
	}
	return fmt.Sprintf("%s · %s", conv.Title, conv.Metadata.Model)
}
