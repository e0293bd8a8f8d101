package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/flmcompanion/flmcompanion/core"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
)

// ChatModel is an interactive chat with one model.
type ChatModel struct {
	chat     *core.ChatSession
	events   <-chan core.Event
	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer
	width    int
	message  string
	stopping bool
}

// chatChrome is the number of rows around the transcript.
const chatChrome = 5

func NewChatModel(chat *core.ChatSession, bus *core.EventBus, width, height int) *ChatModel {
	m := &ChatModel{
		chat:     chat,
		events:   bus.Subscribe(core.EventAll),
		input:    newTextInput("you> ", "Send a message"),
		viewport: viewport.New(width, max(height-chatChrome, 3)),
	}
	m.resize(width)
	return m
}

func (m *ChatModel) resize(width int) {
	m.width = width
	m.input.Width = max(width-8, 10)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-4, 20)),
	)
	if err != nil {
		logging.WarnLogger.Warn().Msgf("Markdown rendering unavailable: %v", err)
		renderer = nil
	}
	m.renderer = renderer
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chatChrome, 3)
		m.resize(msg.Width)
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.chat.State() == core.ChatIdle {
				return m, tea.Quit
			}
			m.stopping = true
			m.message = "Stopping chat..."
			return m, func() tea.Msg {
				m.chat.Stop()
				return nil
			}
		case "enter":
			text := m.input.Value()
			if err := m.chat.Send(text); err != nil {
				m.message = styles.ErrorStyle().Render(err.Error())
				return m, nil
			}
			m.message = ""
			m.input.Reset()
			return m, nil
		}

	case eventMsg:
		ev := core.Event(msg)
		if ev.Type == core.EventChatEntry || ev.Type == core.EventChatState {
			m.refresh()
		}
		if ev.Type == core.EventChatState && ev.Data == core.ChatIdle && m.stopping {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

// transcript renders every entry; assistant turns are rendered as markdown.
func (m *ChatModel) transcript() string {
	var b strings.Builder
	for _, e := range m.chat.Entries() {
		b.WriteString(styles.ChatRoleStyle(string(e.Role)).Render(string(e.Role)))
		b.WriteString("\n")
		content := e.Content
		if e.Role == core.RoleAssistant {
			content = m.renderMarkdown(content)
		}
		b.WriteString(strings.TrimRight(content, "\n"))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m *ChatModel) renderMarkdown(content string) string {
	if m.renderer == nil || strings.TrimSpace(content) == "" {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func (m *ChatModel) View() string {
	state := string(m.chat.State())
	header := styles.HeaderStyle().Render("Chat: "+m.chat.Model()) + "  " + styles.StatusStyle(state).Render(state)
	footer := m.input.View()
	if m.message != "" {
		footer = m.message + "\n" + footer
	}
	return header + "\n" + m.viewport.View() + "\n" + footer + "\n" +
		styles.HelpTextStyle().Render("enter to send, esc to stop")
}
