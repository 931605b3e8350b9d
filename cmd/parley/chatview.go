package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
)

// chatViewModel renders the open conversation in a scrollable viewport.
type chatViewModel struct {
	viewport viewport.Model
	me       identity.Identity
	partner  *identity.Identity
	online   bool
	loading  bool
	messages []message.Message
	width    int
}

func newChatView() chatViewModel {
	return chatViewModel{viewport: viewport.New(0, 0)}
}

func (m chatViewModel) Update(msg tea.Msg) (chatViewModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *chatViewModel) setSize(w, h int) {
	m.width = w
	m.viewport.Width = w
	m.viewport.Height = max(h-2, 1) // header + rule
	m.refresh()
}

func (m *chatViewModel) setConversation(partner *identity.Identity, msgs []message.Message, loading bool) {
	atBottom := m.viewport.AtBottom()
	m.partner = partner
	m.messages = msgs
	m.loading = loading
	m.refresh()
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *chatViewModel) refresh() {
	m.viewport.SetContent(m.renderMessages())
}

func (m chatViewModel) View() string {
	return m.header() + "\n" + dimStyle.Render(strings.Repeat("─", max(m.width, 1))) + "\n" + m.viewport.View()
}

func (m chatViewModel) header() string {
	if m.partner == nil {
		return headerStyle.Render("parley")
	}

	status := "Offline"
	if m.online {
		status = "Online"
	}

	return headerStyle.Render(m.partner.DisplayName()) + " " + dimStyle.Render(status)
}

func (m chatViewModel) renderMessages() string {
	switch {
	case m.partner == nil:
		return dimStyle.Render("Select a contact to start chatting (Tab to focus the list).")
	case m.loading && len(m.messages) == 0:
		return dimStyle.Render("Loading messages...")
	case len(m.messages) == 0:
		return dimStyle.Render("No messages yet. Say hi!")
	}

	blocks := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		blocks = append(blocks, m.renderMessage(msg))
	}

	return strings.Join(blocks, "\n\n")
}

func (m chatViewModel) renderMessage(msg message.Message) string {
	name := theirsStyle.Render(m.partner.DisplayName())
	if msg.From(m.me.ID) {
		name = mineStyle.Render("you")
	}

	var body []string
	if msg.HasAttachment() {
		body = append(body, imageStyle.Render("[image]"))
	}
	if msg.Text != "" {
		body = append(body, renderMarkdown(msg.Text))
	}

	return fmt.Sprintf("%s %s\n%s", name, dimStyle.Render(formatClock(msg.CreatedAt)), messageBlock.Render(strings.Join(body, "\n")))
}

// formatClock renders a message timestamp as 24h HH:MM in local time.
func formatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}

// mdRenderer renders message text as markdown.
var mdRenderer *glamour.TermRenderer

func initMarkdownRenderer(width int) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
}

func renderMarkdown(text string) string {
	if mdRenderer == nil {
		return text
	}
	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
