package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/flmcompanion/flmcompanion/core"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
)

// AppModel is the dashboard: server status, selection, options and the
// tail of the session log.
type AppModel struct {
	svc     *core.Service
	ctx     context.Context
	events  <-chan core.Event
	keys    KeyMap
	help    help.Model
	top     *TopModel
	showTop bool
	width   int
	height  int
	message string
}

type eventMsg core.Event

type genericMsg struct {
	message string
}

type errMsg struct {
	err error
}

// headerLines is the number of rows the dashboard uses above the log tail.
const headerLines = 8

func NewAppModel(ctx context.Context, svc *core.Service, width, height int) *AppModel {
	return &AppModel{
		svc:    svc,
		ctx:    ctx,
		events: svc.GetEventBus().Subscribe(core.EventAll),
		keys:   *NewKeyMap(),
		help:   help.New(),
		top:    NewTopModel(svc.Stats, false),
		width:  width,
		height: height,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.refreshModels())
}

// waitForEvent delivers the next bus event to the program.
func waitForEvent(ch <-chan core.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.top.Update(msg)

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case eventMsg:
		m.handleEvent(core.Event(msg))
		return m, waitForEvent(m.events)

	case genericMsg:
		m.message = msg.message

	case errMsg:
		m.message = styles.ErrorStyle().Render(msg.err.Error())

	case statsMsg:
		if m.showTop {
			_, cmd := m.top.Update(msg)
			return m, cmd
		}
	}
	return m, nil
}

func (m *AppModel) handleKey(msg tea.KeyMsg) tea.Cmd {
	server := m.svc.Server()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.StartStop):
		return m.run(func() (string, error) {
			return "", server.Toggle()
		})
	case key.Matches(msg, m.keys.ToggleASR):
		return m.run(func() (string, error) {
			server.ToggleASR()
			return "ASR " + onOff(server.Options().ASR), nil
		})
	case key.Matches(msg, m.keys.ToggleEmbed):
		return m.run(func() (string, error) {
			server.ToggleEmbed()
			return "Embeddings " + onOff(server.Options().Embed), nil
		})
	case key.Matches(msg, m.keys.NextModel):
		next := nextModel(server.InstalledModels(), server.Selection())
		if next == "" {
			m.message = styles.WarningStyle().Render("No models installed")
			return nil
		}
		return m.selectCmd(next)
	case key.Matches(msg, m.keys.NextPreset):
		return m.selectCmd(nextPreset(server.Presets(), server.Selection()))
	case key.Matches(msg, m.keys.Refresh):
		m.message = "Refreshing models..."
		return m.refreshModels()
	case key.Matches(msg, m.keys.ClearLogs):
		server.History().Clear()
	case key.Matches(msg, m.keys.Top):
		m.showTop = !m.showTop
		if m.showTop {
			return m.top.Init()
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return nil
}

// run executes a coordinator intent off the UI goroutine; stops can block
// for several seconds.
func (m *AppModel) run(fn func() (string, error)) tea.Cmd {
	return func() tea.Msg {
		message, err := fn()
		if err != nil {
			logging.ErrorLogger.Error().Msgf("Dashboard action failed: %v", err)
			return errMsg{err}
		}
		return genericMsg{message}
	}
}

func (m *AppModel) selectCmd(id string) tea.Cmd {
	presets := m.svc.Server().Presets()
	return m.run(func() (string, error) {
		if err := m.svc.Server().Select(id); err != nil {
			return "", err
		}
		return "Selected " + selectionLabel(id, presets), nil
	})
}

func (m *AppModel) refreshModels() tea.Cmd {
	return m.run(func() (string, error) {
		models := m.svc.RefreshModels(m.ctx, true)
		return fmt.Sprintf("%d models installed", len(models)), nil
	})
}

func (m *AppModel) handleEvent(ev core.Event) {
	switch ev.Type {
	case core.EventNotification:
		if n, ok := ev.Data.(core.Notification); ok {
			m.message = n.Title + ": " + n.Body
		}
	case core.EventError:
		if err, ok := ev.Data.(error); ok {
			m.message = styles.ErrorStyle().Render(err.Error())
		}
	}
}

func (m *AppModel) View() string {
	server := m.svc.Server()
	status := string(server.Status())
	presets := server.Presets()

	var b strings.Builder
	b.WriteString(styles.HeaderStyle().Render("FLM Companion"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Server:    %s\n", styles.StatusStyle(status).Render(status))
	fmt.Fprintf(&b, "Selection: %s\n", styles.SelectedItemStyle().Render(selectionLabel(server.Selection(), presets)))
	fmt.Fprintf(&b, "Model:     %s\n", orDash(server.SpawnModel()))
	fmt.Fprintf(&b, "Options:   %s\n", describeOptions(server.Options()))
	b.WriteString(styles.HeaderBorderStyle().Render(strings.Repeat("─", max(m.width, 10))))
	b.WriteString("\n")

	if m.showTop {
		b.WriteString(m.top.View())
		b.WriteString("\n")
	} else {
		for _, line := range tail(server.Logs(), m.logHeight()) {
			b.WriteString(styles.LogLineStyle(line).Render(truncate(line, m.width)))
			b.WriteString("\n")
		}
	}

	if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return lipgloss.NewStyle().MaxHeight(max(m.height, 1)).Render(b.String())
}

func (m *AppModel) logHeight() int {
	h := m.height - headerLines - 2
	if m.help.ShowAll {
		h -= 3
	}
	return max(h, 3)
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
