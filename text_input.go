package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/flmcompanion/flmcompanion/logging"
	"github.com/flmcompanion/flmcompanion/styles"
)

type textInputModel struct {
	textInput textinput.Model
	label     string
	cancelled bool
	quitting  bool
}

func newTextInput(prompt, placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Focus()
	ti.Prompt = prompt
	ti.CharLimit = 156
	ti.Width = 40
	ti.PromptStyle = styles.PromptStyle()
	ti.TextStyle = styles.InputTextStyle()
	ti.PlaceholderStyle = styles.PlaceholderStyle()
	ti.Cursor.Style = styles.CursorStyle()
	return ti
}

// promptForText asks for one line of input. It returns "" when the user
// cancels or enters nothing.
func promptForText(label, placeholder string) string {
	m := textInputModel{
		textInput: newTextInput("> ", placeholder),
		label:     label,
	}

	p := tea.NewProgram(&m)
	if _, err := p.Run(); err != nil {
		logging.ErrorLogger.Error().Msgf("Error starting text input program: %v", err)
		return ""
	}
	if m.cancelled {
		return ""
	}
	return strings.TrimSpace(m.textInput.Value())
}

func (m *textInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			m.quitting = true
			return m, tea.Quit
		case "enter":
			m.quitting = true
			return m, tea.Quit
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *textInputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *textInputModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf(
		"%s\n%s\n\n%s",
		m.label,
		m.textInput.View(),
		styles.HelpTextStyle().Render("(esc to cancel)"),
	)
}
