package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// KeyMap defines the key bindings of the control panel.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	NextInst key.Binding
	PrevInst key.Binding
	NextDiff key.Binding
	PrevDiff key.Binding
	StartNow key.Binding
	Cancel   key.Binding
	History  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Select, k.NextInst, k.NextDiff, k.Cancel, k.History, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Select},
		{k.NextInst, k.PrevInst, k.NextDiff, k.PrevDiff},
		{k.StartNow, k.Cancel, k.History},
		{k.Help, k.Quit},
	}
}

// DefaultKeyMap returns default key bindings.
// Letters stay free for the search box and the lane keys.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("up", "prev result"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("down", "next result"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "arm song"),
		),
		NextInst: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "instrument"),
		),
		PrevInst: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "prev instrument"),
		),
		NextDiff: key.NewBinding(
			key.WithKeys("right", "ctrl+right"),
			key.WithHelp("right", "difficulty"),
		),
		PrevDiff: key.NewBinding(
			key.WithKeys("left", "ctrl+left"),
			key.WithHelp("left", "prev difficulty"),
		),
		StartNow: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "start now"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
		History: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "history"),
		),
		Help: key.NewBinding(
			key.WithKeys("f1"),
			key.WithHelp("f1", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// LaneKey translates a Bubble Tea key message to the key name the trigger
// listener expects. Returns "" for keys that cannot be lane keys.
func LaneKey(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeySpace:
		return "space"
	case tea.KeyEnter:
		return "enter"
	case tea.KeyTab:
		return "tab"
	case tea.KeyRunes:
		if len(msg.Runes) != 1 || msg.Alt {
			return ""
		}
		return strings.ToLower(string(msg.Runes))
	}
	return ""
}
