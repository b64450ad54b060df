package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/chatrelay/src/client"
	"github.com/orchestra-mcp/chatrelay/src/types"
)

const (
	attachCommand = "/attach"
	saveCommand   = "/save"
)

// Chat is the part of client.Session the terminal UI drives.
type Chat interface {
	Input(text string)
	Submit(text string, attachments []types.Attachment) ([]client.Item, error)
	Updates() <-chan client.Update
}

type updateMsg client.Update

type closedMsg struct{}

// Model is the bubbletea model of the chat screen.
type Model struct {
	chat    Chat
	load    func(path string) (types.Attachment, error)
	input   textinput.Model
	items   []client.Item
	pending []types.Attachment
	typing  string
	status  string
	width   int
	height  int
	closed  bool
}

// New builds the chat screen on top of chat.
func New(chat Chat) Model {
	in := textinput.New()
	in.Placeholder = "Type a message, /attach <path> or /save <n> <path>"
	in.Prompt = "> "
	in.CharLimit = 0
	in.Focus()

	return Model{
		chat:  chat,
		load:  client.LoadAttachment,
		input: in,
		width: 80,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForUpdate(m.chat.Updates()))
}

// waitForUpdate turns the next session update into a message.
func waitForUpdate(updates <-chan client.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 10)
		return m, nil

	case updateMsg:
		if msg.Outcome == client.Rendered && msg.Item != nil {
			m.items = append(m.items, *msg.Item)
		}
		m.typing = msg.Typing
		return m, waitForUpdate(m.chat.Updates())

	case closedMsg:
		m.closed = true
		m.status = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit(), nil
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.chat.Input(value)
	}
	return m, cmd
}

// submit handles the enter key. On failure the input is kept so the user
// can retry.
func (m Model) submit() Model {
	value := m.input.Value()

	if args, ok := commandArgs(value, saveCommand); ok {
		saved, err := m.save(args)
		if err != nil {
			m.status = describeError(err)
			return m
		}
		m.status = saved
		m.clearInput()
		return m
	}

	if path, ok := commandArgs(value, attachCommand); ok {
		if path == "" {
			m.status = "usage: /attach <path>"
			return m
		}
		att, err := m.load(path)
		if err != nil {
			m.status = describeError(err)
			return m
		}
		m.pending = append(m.pending, att)
		m.status = ""
		m.clearInput()
		return m
	}

	items, err := m.chat.Submit(value, m.pending)
	m.items = append(m.items, items...)
	if err != nil {
		// Attachments already on the wire are not sent twice.
		m.pending = m.pending[sentAttachments(items):]
		if !errors.Is(err, client.ErrEmptyMessage) {
			m.status = describeError(err)
		}
		return m
	}

	m.pending = nil
	m.status = ""
	m.clearInput()
	return m
}

func (m *Model) clearInput() {
	m.input.Reset()
	m.chat.Input("")
}

// commandArgs reports whether value invokes cmd and returns what follows it.
func commandArgs(value, cmd string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed != cmd && !strings.HasPrefix(trimmed, cmd+" ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, cmd)), true
}

var errSaveUsage = errors.New("usage: /save <n> <path>")

// save writes attachment number n of the conversation to disk.
func (m Model) save(args string) (string, error) {
	num, path, _ := strings.Cut(args, " ")
	path = strings.TrimSpace(path)
	n, err := strconv.Atoi(num)
	if err != nil || path == "" {
		return "", errSaveUsage
	}

	att, ok := m.attachment(n)
	if !ok {
		return "", fmt.Errorf("no attachment #%d", n)
	}
	written, err := client.SaveAttachment(att, path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("saved %s to %s", att.Name, written), nil
}

// attachment returns the n-th attachment of the conversation, counting
// from 1.
func (m Model) attachment(n int) (types.Attachment, bool) {
	seen := 0
	for _, item := range m.items {
		if item.Attachment == nil {
			continue
		}
		seen++
		if seen == n {
			return *item.Attachment, true
		}
	}
	return types.Attachment{}, false
}

func sentAttachments(items []client.Item) int {
	n := 0
	for _, item := range items {
		if item.Attachment != nil {
			n++
		}
	}
	return n
}

func describeError(err error) string {
	switch {
	case errors.Is(err, client.ErrIdentityPending):
		return "still connecting, try again in a moment"
	case client.IsTooLarge(err):
		return "too large to send"
	default:
		return err.Error()
	}
}

func (m Model) View() string {
	var footer []string
	if m.typing != "" {
		footer = append(footer, typingLine.Render(m.typing))
	}
	for _, att := range m.pending {
		footer = append(footer, fmt.Sprintf("  + %s", describeAttachment(att)))
	}
	if m.status != "" {
		footer = append(footer, statusLine.Render(m.status))
	}
	footer = append(footer, m.input.View())

	lines := make([]string, 0, len(m.items))
	attachments := 0
	for _, item := range m.items {
		if item.Attachment != nil {
			attachments++
		}
		lines = append(lines, renderItem(item, attachments, m.width))
	}
	if m.height > 0 {
		room := max(m.height-len(footer), 0)
		if len(lines) > room {
			lines = lines[len(lines)-room:]
		}
	}

	return strings.Join(append(lines, footer...), "\n")
}

// Closed reports whether the session ended.
func (m Model) Closed() bool { return m.closed }
