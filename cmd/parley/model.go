package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/germanamz/parley/pkg/attachment"
	"github.com/germanamz/parley/pkg/chats/identity"
	"github.com/germanamz/parley/pkg/chats/message"
	"github.com/germanamz/parley/pkg/client"
	"github.com/germanamz/parley/pkg/gateway"
	"github.com/germanamz/parley/pkg/notify"
)

const noticeTTL = 4 * time.Second

// focus is the pane receiving key presses.
type focus int

const (
	focusInput focus = iota
	focusRoster
)

// appModel is the root bubbletea model.
type appModel struct {
	ctx          context.Context
	client       *client.Client
	buffer       int
	me           identity.Identity
	roster       rosterModel
	chatView     chatViewModel
	input        textinput.Model
	focus        focus
	showHelp     bool
	notice       *notify.Note
	noticeSeq    int
	cancelBridge context.CancelFunc
	width        int
	height       int
}

func newAppModel(ctx context.Context, c *client.Client, buffer int) appModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message... (/help for commands)"
	ti.Prompt = ""
	ti.CharLimit = 0
	ti.Focus()

	m := appModel{
		ctx:      ctx,
		client:   c,
		buffer:   buffer,
		chatView: newChatView(),
		input:    ti,
		focus:    focusInput,
	}
	m.sync()

	return m
}

func (m appModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case programReadyMsg:
		m.cancelBridge = startBridge(m.ctx, msg.program, m.client.Events(), m.buffer)
		// Catch up on anything published before the bridge subscribed.
		m.sync()
		return m, nil

	case storeChangedMsg:
		m.sync()
		return m, nil

	case noticeMsg:
		return m, m.showNotice(msg.note)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = nil
		}
		return m, nil

	case opDoneMsg:
		m.sync()
		return m, nil

	case loggedOutMsg:
		return m, m.quit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	right := m.chatView.View()
	if m.showHelp {
		right = helpText()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.roster.View(m.focus == focusRoster),
		" ",
		lipgloss.NewStyle().Width(m.chatView.width).Render(right),
	)

	border := focusedBorder
	if m.focus != focusInput {
		border = disabledBorder
	}
	inputBox := border.Width(max(m.width-2, 10)).Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, body, inputBox, m.statusLine())
}

func (m *appModel) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	rosterW := min(max(m.width/4, 20), 32)
	chatW := max(m.width-rosterW-1, 10)
	bodyH := max(m.height-4, 3) // input box (3) + status (1)

	m.roster.width = rosterW
	m.roster.height = bodyH
	m.chatView.setSize(chatW, bodyH)
	m.input.Width = max(m.width-6, 10)

	initMarkdownRenderer(chatW - 4)
	m.chatView.refresh()
}

// sync copies the store snapshots into the view models.
func (m *appModel) sync() {
	sess := m.client.Session.Snapshot()
	conv := m.client.Conversation.Snapshot()

	if sess.AuthUser != nil {
		m.me = *sess.AuthUser
	}

	m.roster.setUsers(conv.Users, conv.IsUsersLoading)
	m.roster.setOnline(sess.OnlineUsers)
	m.roster.selectedID = ""
	if conv.Selected != nil {
		m.roster.selectedID = conv.Selected.ID
	}

	m.chatView.me = m.me
	m.chatView.online = conv.Selected != nil && m.roster.isOnline(conv.Selected.ID)
	m.chatView.setConversation(conv.Selected, conv.Messages, conv.IsMessagesLoading)
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, m.quit()
	case "tab":
		m.setFocus(1 - m.focus)
		return m, nil
	case "ctrl+o":
		m.roster.toggleOnlineOnly()
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}

	if m.focus == focusRoster {
		switch msg.String() {
		case "up", "k":
			m.roster.move(-1)
		case "down", "j":
			m.roster.move(1)
		case "esc":
			m.setFocus(focusInput)
			return m, m.run("close", func(context.Context) error {
				m.client.CloseConversation()
				return nil
			})
		case "enter":
			p, ok := m.roster.current()
			if !ok {
				return m, nil
			}
			m.showHelp = false
			m.setFocus(focusInput)
			return m, m.run("open", func(ctx context.Context) error {
				return m.client.OpenConversation(ctx, &p)
			})
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEnter:
		text := m.input.Value()
		m.input.Reset()
		return m.submit(text)
	case tea.KeyEsc:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		m.setFocus(focusRoster)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) submit(text string) (tea.Model, tea.Cmd) {
	name, arg := parseCommand(text)

	switch name {
	case "":
		if arg == "" {
			return m, nil
		}
		return m, m.send(message.Draft{Text: arg})
	case "quit", "exit":
		return m, m.quit()
	case "help":
		m.showHelp = !m.showHelp
		return m, nil
	case "close":
		return m, m.run("close", func(context.Context) error {
			m.client.CloseConversation()
			return nil
		})
	case "logout":
		c := m.client
		ctx := m.ctx
		return m, func() tea.Msg {
			_ = c.Logout(ctx)
			return loggedOutMsg{}
		}
	case "image":
		a, err := attachment.FromFile(arg, attachment.DefaultMaxSize)
		if err != nil {
			return m, m.showNotice(localError(err))
		}
		return m, m.send(message.Draft{Image: a.DataURL})
	case "avatar":
		a, err := attachment.FromFile(arg, attachment.DefaultMaxSize)
		if err != nil {
			return m, m.showNotice(localError(err))
		}
		return m, m.run("update-profile", func(ctx context.Context) error {
			return m.client.Session.UpdateProfile(ctx, gateway.ProfileUpdate{ProfilePic: a.DataURL})
		})
	case "name":
		return m, m.run("update-profile", func(ctx context.Context) error {
			return m.client.Session.UpdateProfile(ctx, gateway.ProfileUpdate{FullName: arg})
		})
	}

	return m, m.showNotice(notify.Note{Level: notify.LevelError, Text: "Unknown command /" + name + " (try /help)"})
}

func (m appModel) send(d message.Draft) tea.Cmd {
	return m.run("send", func(ctx context.Context) error {
		_, err := m.client.Send(ctx, d)
		return err
	})
}

// run executes fn off the UI goroutine.
func (m appModel) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *appModel) setFocus(f focus) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func (m *appModel) showNotice(n notify.Note) tea.Cmd {
	m.noticeSeq++
	m.notice = &n
	seq := m.noticeSeq
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg{seq: seq} })
}

func (m *appModel) quit() tea.Cmd {
	if m.cancelBridge != nil {
		m.cancelBridge()
		m.cancelBridge = nil
	}
	return tea.Quit
}

func (m appModel) statusLine() string {
	if m.notice != nil {
		if m.notice.Level == notify.LevelError {
			return errorStyle.Render(" " + m.notice.Text)
		}
		return successStyle.Render(" " + m.notice.Text)
	}

	return statusStyle.Render(" " + m.me.DisplayName() + " · Tab switch pane · Ctrl+O online filter · /help")
}

// parseCommand splits "/name arg" input. Plain text returns an empty name
// and the trimmed text as arg.
func parseCommand(text string) (name, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	name, arg, _ = strings.Cut(text[1:], " ")

	return strings.ToLower(name), strings.TrimSpace(arg)
}

func localError(err error) notify.Note {
	return notify.Note{Level: notify.LevelError, Text: err.Error(), At: time.Now()}
}

func helpText() string {
	return dimStyle.Render(
		"Commands:\n" +
			"  /image <path>   Send an image\n" +
			"  /avatar <path>  Change your profile picture\n" +
			"  /name <name>    Change your display name\n" +
			"  /close          Close the conversation\n" +
			"  /logout         Log out and exit\n" +
			"  /help           Toggle this help\n" +
			"  /quit           Exit (stay logged in)\n\n" +
			"Shortcuts:\n" +
			"  Tab             Switch between contacts and input\n" +
			"  ↑/↓ Enter       Pick a contact (contacts pane)\n" +
			"  Ctrl+O          Show online contacts only\n" +
			"  PgUp/PgDn       Scroll the conversation\n" +
			"  Esc             Close help / focus contacts\n" +
			"  Ctrl+C          Exit",
	)
}
