package cli

import "github.com/charmbracelet/bubbles/key"

// SelectorKeyMap defines the key bindings of an option selector.
type SelectorKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// DefaultSelectorKeyMap returns the default selector bindings.
func DefaultSelectorKeyMap() SelectorKeyMap {
	return SelectorKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j", "tab"),
			key.WithHelp("↓/j", "next"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "select"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "deny"),
		),
	}
}

// ShortHelp renders the bindings as a one-line hint.
func (k SelectorKeyMap) ShortHelp() string {
	var out string
	for i, b := range []key.Binding{k.Up, k.Down, k.Confirm, k.Cancel} {
		if i > 0 {
			out += " · "
		}
		h := b.Help()
		out += h.Key + " " + h.Desc
	}
	return out
}
