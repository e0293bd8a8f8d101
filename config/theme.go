package config

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme represents a colour scheme for the TUI
type Theme struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Colours     ThemeColours `json:"colours"`
}

// ThemeColours contains all the colour definitions for the TUI
type ThemeColours struct {
	// General UI elements
	HeaderForeground string `json:"header_foreground"`
	HeaderBorder     string `json:"header_border"`
	Selected         string `json:"selected"`
	SelectedBg       string `json:"selected_bg"`

	// Text input elements
	PromptText      string `json:"prompt_text"`
	InputText       string `json:"input_text"`
	PlaceholderText string `json:"placeholder_text"`
	CursorBg        string `json:"cursor_bg"`

	// Status message colours
	Error   string `json:"error"`
	Success string `json:"success"`
	Info    string `json:"info"`
	Warning string `json:"warning"`

	// Server status badge
	StatusStopped  string `json:"status_stopped"`
	StatusStarting string `json:"status_starting"`
	StatusRunning  string `json:"status_running"`

	// Log pane
	LogSystem string `json:"log_system"`
	LogStdout string `json:"log_stdout"`
	LogStderr string `json:"log_stderr"`

	// Chat transcript
	ChatUser      string `json:"chat_user"`
	ChatAssistant string `json:"chat_assistant"`
	ChatSystem    string `json:"chat_system"`

	HelpText string `json:"help_text"`
	HelpBg   string `json:"help_bg"`
}

// DarkTheme is the default theme.
var DarkTheme = Theme{
	Name:        "dark",
	Description: "Dark theme with neon accents",
	Colours: ThemeColours{
		HeaderForeground: "#AA00FF",
		HeaderBorder:     "#5500AA",
		Selected:         "#FFFFFF",
		SelectedBg:       "#7B00FF",

		PromptText:      "#FF00FF",
		InputText:       "#FFFFFF",
		PlaceholderText: "#B3B3B3",
		CursorBg:        "#FFFFFF",

		Error:   "#FF0055",
		Success: "#00FF88",
		Info:    "#00AAFF",
		Warning: "#FFAA00",

		StatusStopped:  "#FF0055",
		StatusStarting: "#FFAA00",
		StatusRunning:  "#00FF88",

		LogSystem: "#00AAFF",
		LogStdout: "#DDDDDD",
		LogStderr: "#FF5599",

		ChatUser:      "#FF00FF",
		ChatAssistant: "#FFFFFF",
		ChatSystem:    "#888888",

		HelpText: "#AAAAAA",
		HelpBg:   "#000000",
	},
}

// LightTheme is used for light terminals.
var LightTheme = Theme{
	Name:        "light",
	Description: "Light theme with neon accents",
	Colours: ThemeColours{
		HeaderForeground: "#6A0DAD",
		HeaderBorder:     "#CCCCCC",
		Selected:         "#FFE5FF",
		SelectedBg:       "#4F0082",

		PromptText:      "#8B00FF",
		InputText:       "#4B0082",
		PlaceholderText: "#6600CC",
		CursorBg:        "#4B0082",

		Error:   "#CC0000",
		Success: "#006400",
		Info:    "#0000CD",
		Warning: "#8B4513",

		StatusStopped:  "#CC0000",
		StatusStarting: "#8B4513",
		StatusRunning:  "#006400",

		LogSystem: "#0000CD",
		LogStdout: "#222222",
		LogStderr: "#8B0000",

		ChatUser:      "#8B008B",
		ChatAssistant: "#000000",
		ChatSystem:    "#666666",

		HelpText: "#444444",
		HelpBg:   "#FFFFFF",
	},
}

// BuiltinThemes maps every concrete theme choice to its palette.
var BuiltinThemes = map[ThemeChoice]Theme{
	ThemeDark:  DarkTheme,
	ThemeLight: LightTheme,
}

// ResolveTheme returns the palette for a theme choice. The system choice
// follows the terminal background.
func ResolveTheme(choice ThemeChoice) *Theme {
	return resolveTheme(choice, lipgloss.HasDarkBackground)
}

func resolveTheme(choice ThemeChoice, darkBackground func() bool) *Theme {
	if choice == ThemeSystem {
		if darkBackground() {
			choice = ThemeDark
		} else {
			choice = ThemeLight
		}
	}
	theme, ok := BuiltinThemes[choice]
	if !ok {
		theme = DarkTheme
	}
	return &theme
}

// GetColour returns a lipgloss.Colour from a theme colour string
func (t *Theme) GetColour(colour string) lipgloss.Color {
	return lipgloss.Color(colour)
}
