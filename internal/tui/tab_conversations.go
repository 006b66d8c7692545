package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/cchat/internal/cli"
	"github.com/theirongolddev/cchat/internal/model"
	"github.com/theirongolddev/cchat/internal/transcript"
	"github.com/theirongolddev/cchat/internal/tui/components"
	"github.com/theirongolddev/cchat/internal/tui/theme"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type editKind int

const (
	editNone editKind = iota
	editRename
	editTags
)

// convsState holds the conversations tab state.
type convsState struct {
	cursor int
	offset int // scroll offset for the list

	searching bool
	search    textinput.Model
	query     string
	favOnly   bool

	editing editKind
	edit    textinput.Model

	confirmDelete bool
}

func newConvsState() convsState {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = "search text, #tag to filter"
	search.CharLimit = 200

	edit := textinput.New()
	edit.CharLimit = 200

	return convsState{search: search, edit: edit}
}

func (c *convsState) clamp(n int) {
	if c.cursor >= n {
		c.cursor = n - 1
	}
	if c.cursor < 0 {
		c.cursor = 0
	}
}

// parseQuery splits a search string into free text and #tags.
func parseQuery(q string) (text string, tags []string) {
	var words []string
	for _, f := range strings.Fields(q) {
		if strings.HasPrefix(f, "#") && len(f) > 1 {
			tags = append(tags, strings.TrimPrefix(f, "#"))
			continue
		}
		words = append(words, f)
	}
	return strings.Join(words, " "), tags
}

// filteredConversations applies the search and favorites filter and
// orders the result most recently updated first.
func (a App) filteredConversations() []*model.Conversation {
	text, tags := parseQuery(a.convs.query)
	list := a.rt.Conversations.Search(text, tags)

	if a.convs.favOnly {
		favs := list[:0]
		for _, c := range list {
			if c.Metadata.Favorited {
				favs = append(favs, c)
			}
		}
		list = favs
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list
}

func (a App) selectedConversation() *model.Conversation {
	list := a.filteredConversations()
	if a.convs.cursor < 0 || a.convs.cursor >= len(list) {
		return nil
	}
	return list[a.convs.cursor]
}

func (a App) updateConvsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cs := &a.convs
	key := msg.String()
	ctx := context.Background()

	if cs.searching {
		switch key {
		case "enter":
			cs.searching = false
			cs.search.Blur()
		case "esc":
			cs.searching = false
			cs.search.Blur()
			cs.query = ""
			cs.search.SetValue("")
		default:
			var cmd tea.Cmd
			cs.search, cmd = cs.search.Update(msg)
			cs.query = cs.search.Value()
			cs.cursor = 0
			return a, cmd
		}
		cs.clamp(len(a.filteredConversations()))
		return a, nil
	}

	if cs.editing != editNone {
		switch key {
		case "enter":
			a.applyEdit()
			cs.editing = editNone
			cs.edit.Blur()
		case "esc":
			cs.editing = editNone
			cs.edit.Blur()
		default:
			var cmd tea.Cmd
			cs.edit, cmd = cs.edit.Update(msg)
			return a, cmd
		}
		return a, nil
	}

	if cs.confirmDelete {
		cs.confirmDelete = false
		if key == "y" {
			if sel := a.selectedConversation(); sel != nil {
				if err := a.rt.Conversations.Delete(ctx, sel.ID); err != nil {
					a.flash = flashMsg{text: err.Error(), err: true}
				} else {
					a.flash = flashMsg{text: fmt.Sprintf("Deleted %q", sel.Title)}
				}
			}
			cs.clamp(len(a.filteredConversations()))
		}
		return a, nil
	}

	n := len(a.filteredConversations())
	sel := a.selectedConversation()

	switch key {
	case "q":
		return a, tea.Quit
	case "?":
		a.showHelp = true
	case "j", "down":
		if cs.cursor < n-1 {
			cs.cursor++
		}
	case "k", "up":
		if cs.cursor > 0 {
			cs.cursor--
		}
	case "g", "home":
		cs.cursor = 0
	case "G", "end":
		cs.cursor = max(n-1, 0)
	case "/":
		cs.searching = true
		cs.search.SetValue(cs.query)
		cs.search.CursorEnd()
		cmd := cs.search.Focus()
		return a, cmd
	case "esc":
		cs.query = ""
		cs.search.SetValue("")
		cs.clamp(len(a.filteredConversations()))
	case "F":
		cs.favOnly = !cs.favOnly
		cs.cursor = 0
	case "n":
		a.rt.Conversations.Create(ctx, "")
		return a.switchTab(tabChat)
	case "enter":
		if sel == nil {
			return a, nil
		}
		if err := a.rt.Conversations.SetActive(ctx, sel.ID); err != nil {
			a.flash = flashMsg{text: err.Error(), err: true}
			return a, nil
		}
		return a.switchTab(tabChat)
	case "f":
		if sel != nil {
			if _, err := a.rt.Conversations.ToggleFavorite(ctx, sel.ID); err != nil {
				a.flash = flashMsg{text: err.Error(), err: true}
			}
		}
	case "r":
		if sel != nil {
			return a.startEdit(editRename, sel.Title, "title")
		}
	case "t":
		if sel != nil {
			return a.startEdit(editTags, strings.Join(sel.Tags, ", "), "tag1, tag2")
		}
	case "d":
		if sel != nil {
			cs.confirmDelete = true
		}
	case "e":
		if sel != nil {
			return a, exportCmd(a.rt.ExportDir(), sel)
		}
	}
	return a, nil
}

func (a App) startEdit(kind editKind, value, placeholder string) (tea.Model, tea.Cmd) {
	a.convs.editing = kind
	a.convs.edit.SetValue(value)
	a.convs.edit.Placeholder = placeholder
	a.convs.edit.CursorEnd()
	cmd := a.convs.edit.Focus()
	return a, cmd
}

func (a *App) applyEdit() {
	sel := a.selectedConversation()
	if sel == nil {
		return
	}
	ctx := context.Background()
	value := a.convs.edit.Value()

	var err error
	switch a.convs.editing {
	case editRename:
		err = a.rt.Conversations.Rename(ctx, sel.ID, value)
	case editTags:
		err = a.rt.Conversations.SetTags(ctx, sel.ID, splitTags(value))
	}
	if err != nil {
		a.flash = flashMsg{text: err.Error(), err: true}
	}
}

// splitTags accepts comma or space separated tags, with or without '#'.
func splitTags(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	tags := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimPrefix(f, "#"); f != "" {
			tags = append(tags, f)
		}
	}
	return tags
}

func exportCmd(dir string, conv *model.Conversation) tea.Cmd {
	return func() tea.Msg {
		path, err := transcript.ExportFile(dir, conv)
		if err != nil {
			return flashMsg{text: "export failed: " + err.Error(), err: true}
		}
		return flashMsg{text: "Exported to " + path}
	}
}

func (a App) renderConvsTab(cw, h int) string {
	t := theme.Active
	cs := a.convs
	list := a.filteredConversations()

	leftW := cw * 2 / 5
	if leftW < 34 {
		leftW = 34
	}
	if a.isCompactLayout() {
		leftW = cw
	}
	rightW := cw - leftW

	leftInner := components.CardInnerWidth(leftW)

	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	selectedStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Background(t.SurfaceHover).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	favStyle := lipgloss.NewStyle().Foreground(t.Yellow).Background(t.Surface)
	warnStyle := lipgloss.NewStyle().Foreground(t.Orange).Background(t.Surface).Bold(true)

	var body strings.Builder

	// Search / edit line
	switch {
	case cs.searching:
		body.WriteString(cs.search.View())
		body.WriteString("\n")
	case cs.editing == editRename:
		body.WriteString(mutedStyle.Render("Rename: ") + cs.edit.View())
		body.WriteString("\n")
	case cs.editing == editTags:
		body.WriteString(mutedStyle.Render("Tags: ") + cs.edit.View())
		body.WriteString("\n")
	case cs.confirmDelete:
		body.WriteString(warnStyle.Render("Delete selected conversation? y/N"))
		body.WriteString("\n")
	case cs.query != "":
		body.WriteString(mutedStyle.Render("/ " + cs.query))
		body.WriteString("\n")
	}

	if len(list) == 0 {
		msg := "No conversations yet. Press n to start one."
		if cs.query != "" || cs.favOnly {
			msg = "No conversations match."
		}
		body.WriteString(mutedStyle.Render(msg))
	}

	visible := h - 5 // card border (2) + title (1) + search line (1) + slack
	if visible < 3 {
		visible = 3
	}
	offset := cs.offset
	if cs.cursor < offset {
		offset = cs.cursor
	}
	if cs.cursor >= offset+visible {
		offset = cs.cursor - visible + 1
	}
	end := min(offset+visible, len(list))

	now := time.Now()
	activeID := a.rt.Conversations.ActiveID()
	for i := offset; i < end; i++ {
		c := list[i]

		mark := " "
		if c.Metadata.Favorited {
			mark = "★"
		}
		if c.ID == activeID {
			mark = "●"
		}
		ago := cli.FormatAgo(c.UpdatedAt, now)
		titleW := leftInner - 2 - lipgloss.Width(ago) - 1
		line := cli.Pad(cli.Truncate(c.Title, titleW), titleW) + " " + ago

		style := rowStyle
		if i == cs.cursor {
			style = selectedStyle
		}
		if c.Metadata.Favorited && i != cs.cursor {
			body.WriteString(favStyle.Render(mark + " "))
		} else {
			body.WriteString(style.Render(mark + " "))
		}
		body.WriteString(style.Render(line))
		if i < end-1 {
			body.WriteString("\n")
		}
	}

	title := fmt.Sprintf("Conversations [%d]", len(list))
	if cs.favOnly {
		title += " ★"
	}
	leftCard := components.ContentCard(title, body.String(), leftW)

	if rightW < 20 || a.convs.cursor >= len(list) {
		return leftCard
	}

	sel := list[cs.cursor]
	rightCard := components.ContentCard(cli.Truncate(sel.Title, components.CardInnerWidth(rightW)),
		renderConversationPreview(sel, components.CardInnerWidth(rightW), h-4), rightW)

	return components.CardRow([]string{leftCard, rightCard})
}

// renderConversationPreview shows metadata and the tail of a conversation.
func renderConversationPreview(c *model.Conversation, w, h int) string {
	t := theme.Active

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Surface)
	tagStyle := lipgloss.NewStyle().Foreground(t.Cyan).Background(t.Surface)

	tags := "none"
	if len(c.Tags) > 0 {
		tags = "#" + strings.Join(c.Tags, " #")
	}

	rows := []struct{ label, value string }{
		{"Model", c.Metadata.Model},
		{"Messages", cli.FormatNumber(int64(len(c.Messages)))},
		{"Tokens", cli.FormatTokens(c.Metadata.TotalTokens)},
		{"Created", c.CreatedAt.Local().Format("Jan 2, 2006 15:04")},
		{"Updated", cli.FormatAgo(c.UpdatedAt, time.Now())},
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", r.label)))
		b.WriteString(valueStyle.Render(r.value))
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Tags")))
	b.WriteString(tagStyle.Render(cli.Truncate(tags, w-10)))
	b.WriteString("\n\n")

	// Most recent messages that fit, one line each.
	room := h - len(rows) - 3
	start := max(len(c.Messages)-room, 0)
	for i := start; i < len(c.Messages); i++ {
		m := c.Messages[i]
		role := string(m.Role)
		if m.IsError() {
			role = "error"
		}
		label := roleLabel(m)
		content := strings.Join(strings.Fields(m.Content), " ")
		b.WriteString(lipgloss.NewStyle().Foreground(t.RoleColor(role)).Background(t.Surface).Bold(true).Render(label + ": "))
		b.WriteString(valueStyle.Render(cli.Truncate(content, w-lipgloss.Width(label)-2)))
		if i < len(c.Messages)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
