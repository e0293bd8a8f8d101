// top_view.go contains the TopModel struct which renders live hardware utilisation.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/flmcompanion/flmcompanion/hardware"
	"github.com/flmcompanion/flmcompanion/styles"
)

const statsInterval = 2 * time.Second

type statsMsg hardware.Stats

type TopModel struct {
	stats      func(context.Context) hardware.Stats
	table      table.Model
	standalone bool
	quitting   bool
}

// NewTopModel builds the stats view. A standalone view quits on q or esc.
func NewTopModel(stats func(context.Context) hardware.Stats, standalone bool) *TopModel {
	columns := []table.Column{
		{Title: "Metric", Width: 20},
		{Title: "Value", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(8),
	)
	t.KeyMap.LineUp.SetKeys("up")
	t.KeyMap.LineDown.SetKeys("down")

	return &TopModel{
		stats:      stats,
		table:      t,
		standalone: standalone,
	}
}

func (m *TopModel) Init() tea.Cmd {
	return m.sample(0)
}

func (m *TopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.standalone {
			switch msg.String() {
			case "q", "esc", "ctrl+c":
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)

	case statsMsg:
		m.table.SetRows(statsRows(hardware.Stats(msg)))
		return m, m.sample(statsInterval)
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *TopModel) View() string {
	if m.quitting {
		return ""
	}
	view := lipgloss.NewStyle().Render(m.table.View())
	if m.standalone {
		view = styles.HeaderStyle().Render("FLM Companion stats") + "\n" + view + "\n" +
			styles.HelpTextStyle().Render("q to quit")
	}
	return view
}

// sample reads utilisation after delay.
func (m *TopModel) sample(delay time.Duration) tea.Cmd {
	read := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), statsInterval)
		defer cancel()
		return statsMsg(m.stats(ctx))
	}
	if delay == 0 {
		return read
	}
	return tea.Tick(delay, func(time.Time) tea.Msg { return read() })
}

func statsRows(s hardware.Stats) []table.Row {
	return []table.Row{
		{"CPU usage", fmt.Sprintf("%.1f%%", s.CPU.Usage)},
		{"Memory used", fmt.Sprintf("%.0f / %.0f MB", s.Memory.Used, s.Memory.Total)},
		{"Memory usage", fmt.Sprintf("%.1f%%", s.Memory.Percentage)},
		{"NPU usage", fmt.Sprintf("%.1f%%", s.NPU.Usage)},
		{"NPU temperature", fmt.Sprintf("%.1f C", s.NPU.Temperature)},
		{"NPU power", fmt.Sprintf("%.1f W", s.NPU.Power)},
	}
}
