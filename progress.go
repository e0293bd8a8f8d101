package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/flmcompanion/flmcompanion/styles"
)

const (
	padding  = 2
	maxWidth = 80
)

type downloadProgressMsg int

type downloadDoneMsg struct {
	result string
	err    error
}

type progressModel struct {
	progress progress.Model
	title    string
	result   string
	err      error
	done     bool
}

func (m progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - padding*2 - 4
		if m.progress.Width > maxWidth {
			m.progress.Width = maxWidth
		}
		return m, nil

	case downloadProgressMsg:
		return m, m.progress.SetPercent(float64(msg) / 100)

	case downloadDoneMsg:
		m.result, m.err, m.done = msg.result, msg.err, true
		return m, tea.Quit

	// FrameMsg is sent when the progress bar wants to animate itself
	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	default:
		return m, nil
	}
}

func (m progressModel) View() string {
	pad := strings.Repeat(" ", padding)
	return "\n" +
		pad + styles.InfoStyle().Render(m.title) + "\n\n" +
		pad + m.progress.View() + "\n\n" +
		pad + styles.HelpTextStyle().Render("ctrl+c to cancel")
}

// runWithProgress runs work while showing its percentage. Without a
// terminal the percentage is printed every ten points instead.
func runWithProgress(out io.Writer, title string, work func(onProgress func(int)) (string, error)) (string, error) {
	if !isTerminal() {
		fmt.Fprintln(out, title)
		last := -10
		return work(func(pct int) {
			if pct >= last+10 || pct == 100 {
				last = pct
				fmt.Fprintf(out, "%d%%\n", pct)
			}
		})
	}

	m := progressModel{progress: progress.New(progress.WithDefaultGradient()), title: title}
	p := tea.NewProgram(m, tea.WithOutput(out))
	go func() {
		result, err := work(func(pct int) { p.Send(downloadProgressMsg(pct)) })
		p.Send(downloadDoneMsg{result: result, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return "", err
	}
	fm := final.(progressModel)
	if !fm.done {
		return "", fmt.Errorf("cancelled")
	}
	return fm.result, fm.err
}
