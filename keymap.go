package main

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	StartStop   key.Binding
	ToggleASR   key.Binding
	ToggleEmbed key.Binding
	NextModel   key.Binding
	NextPreset  key.Binding
	Refresh     key.Binding
	ClearLogs   key.Binding
	Top         key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func NewKeyMap() *KeyMap {
	return &KeyMap{
		StartStop:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start/stop")),
		ToggleASR:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle ASR")),
		ToggleEmbed: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "toggle embeddings")),
		NextModel:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "next model")),
		NextPreset:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "next preset")),
		Refresh:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh models")),
		ClearLogs:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear logs")),
		Top:         key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "stats")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.StartStop, k.ToggleASR, k.ToggleEmbed, k.NextModel, k.NextPreset, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.StartStop, k.ToggleASR, k.ToggleEmbed},
		{k.NextModel, k.NextPreset, k.Refresh},
		{k.ClearLogs, k.Top, k.Help, k.Quit},
	}
}
