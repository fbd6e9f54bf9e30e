package app

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Flash  key.Binding
	Rescan key.Binding
	Help   key.Binding
	Quit   key.Binding
}

var GlobalKeys = KeyMap{
	Flash: key.NewBinding(
		key.WithKeys("f", "enter"),
		key.WithHelp("f", "flash"),
	),
	Rescan: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rescan"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Flash, k.Rescan, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Flash, k.Rescan}, {k.Help, k.Quit}}
}
