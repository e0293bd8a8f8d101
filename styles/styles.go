package styles

import (
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/flmcompanion/flmcompanion/config"
)

var (
	currentTheme *config.Theme
	themeMutex   sync.RWMutex
)

// InitTheme initialises the current theme
func InitTheme(theme *config.Theme) {
	themeMutex.Lock()
	defer themeMutex.Unlock()
	currentTheme = theme
}

// GetTheme returns the current theme, the dark theme until one is set
func GetTheme() *config.Theme {
	themeMutex.RLock()
	defer themeMutex.RUnlock()
	if currentTheme == nil {
		return &config.DarkTheme
	}
	return currentTheme
}

func colour(c string) lipgloss.Color {
	return GetTheme().GetColour(c)
}

// Header styles
func HeaderStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Foreground(colour(theme.Colours.HeaderForeground)).
		Bold(true).
		MarginBottom(1)
}

// HeaderBorderStyle colours the rule drawn under a header.
func HeaderBorderStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colour(GetTheme().Colours.HeaderBorder))
}

func SelectedItemStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Background(colour(theme.Colours.SelectedBg)).
		Foreground(colour(theme.Colours.Selected)).
		Bold(true)
}

// StatusStyle colours a server or chat status badge.
func StatusStyle(status string) lipgloss.Style {
	theme := GetTheme()
	c := theme.Colours.StatusStopped
	switch status {
	case "starting", "loading", "thinking":
		c = theme.Colours.StatusStarting
	case "running", "ready":
		c = theme.Colours.StatusRunning
	}
	return lipgloss.NewStyle().Foreground(colour(c)).Bold(true)
}

// LogKind classifies a session log line by the tag after its timestamp.
func LogKind(line string) string {
	if i := strings.Index(line, "] "); strings.HasPrefix(line, "[") && i > 0 {
		line = line[i+2:]
	}
	switch {
	case strings.HasPrefix(line, "[FLM ERR]"), strings.HasPrefix(line, "[ERROR]"):
		return "stderr"
	case strings.HasPrefix(line, "[FLM]"):
		return "stdout"
	}
	return "system"
}

func LogLineStyle(line string) lipgloss.Style {
	theme := GetTheme()
	switch LogKind(line) {
	case "stderr":
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.LogStderr))
	case "stdout":
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.LogStdout))
	}
	return lipgloss.NewStyle().Foreground(colour(theme.Colours.LogSystem))
}

// ChatRoleStyle colours the role label of a transcript entry.
func ChatRoleStyle(role string) lipgloss.Style {
	theme := GetTheme()
	c := theme.Colours.ChatSystem
	switch role {
	case "user":
		c = theme.Colours.ChatUser
	case "assistant":
		c = theme.Colours.ChatAssistant
	}
	return lipgloss.NewStyle().Foreground(colour(c)).Bold(true)
}

// Size styles, by model size in GB
func SizeStyle(size float64) lipgloss.Style {
	theme := GetTheme()
	switch {
	case size > 20:
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Error))
	case size > 8:
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Warning))
	case size > 2:
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Info))
	default:
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Success))
	}
}

// Quantization styles
func QuantStyle(level string) lipgloss.Style {
	theme := GetTheme()
	level = strings.ToUpper(level)
	switch {
	case strings.Contains(level, "Q2"), strings.Contains(level, "Q3"):
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Warning))
	case strings.Contains(level, "Q4"):
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Info))
	case strings.Contains(level, "Q5"), strings.Contains(level, "Q6"), strings.Contains(level, "Q8"):
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.Success))
	default:
		return lipgloss.NewStyle().Foreground(colour(theme.Colours.PlaceholderText))
	}
}

// Text input styles
func PromptStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Foreground(colour(theme.Colours.PromptText))
}

func InputTextStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Foreground(colour(theme.Colours.InputText))
}

func PlaceholderStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Foreground(colour(theme.Colours.PlaceholderText))
}

func CursorStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Background(colour(theme.Colours.CursorBg))
}

// Message styles
func ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colour(GetTheme().Colours.Error))
}

func SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colour(GetTheme().Colours.Success))
}

func InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colour(GetTheme().Colours.Info))
}

func WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(colour(GetTheme().Colours.Warning))
}

// Help styles
func HelpTextStyle() lipgloss.Style {
	theme := GetTheme()
	return lipgloss.NewStyle().
		Foreground(colour(theme.Colours.HelpText)).
		Background(colour(theme.Colours.HelpBg))
}
