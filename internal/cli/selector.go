package cli

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// SelectorOption is one selectable line.
type SelectorOption struct {
	Label       string // "Yes, run it"
	Shortcut    string // hint shown after the label
	ShortcutKey rune   // matched case-insensitively against key presses
}

// SelectorModel is a bubbletea sub-model for choosing one of a few
// options with arrow keys, number keys or shortcuts.
type SelectorModel struct {
	options   []SelectorOption
	cursor    int
	keys      SelectorKeyMap
	styles    Styles
	confirmed bool
	cancelled bool
}

// NewSelectorModel creates a selector with the cursor on the first option.
func NewSelectorModel(options []SelectorOption, styles Styles) *SelectorModel {
	return &SelectorModel{
		options: options,
		keys:    DefaultSelectorKeyMap(),
		styles:  styles,
	}
}

// Update handles one key press and reports whether the selector is done.
func (s *SelectorModel) Update(msg tea.KeyMsg) bool {
	switch {
	case key.Matches(msg, s.keys.Cancel):
		s.cancelled = true
		return true
	case key.Matches(msg, s.keys.Confirm):
		s.confirmed = true
		return true
	case key.Matches(msg, s.keys.Up):
		s.move(-1)
		return false
	case key.Matches(msg, s.keys.Down):
		s.move(1)
		return false
	}

	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return false
	}
	r := msg.Runes[0]
	if r >= '1' && r <= '9' {
		idx := int(r - '1')
		if idx >= len(s.options) {
			return false
		}
		s.cursor = idx
		s.confirmed = true
		return true
	}
	lower := unicode.ToLower(r)
	for i, opt := range s.options {
		if opt.ShortcutKey != 0 && unicode.ToLower(opt.ShortcutKey) == lower {
			s.cursor = i
			s.confirmed = true
			return true
		}
	}
	return false
}

// View renders the options, one per line.
func (s *SelectorModel) View() string {
	var b strings.Builder
	for i, opt := range s.options {
		if i > 0 {
			b.WriteString("\n")
		}
		label := fmt.Sprintf("%d. %s", i+1, opt.Label)
		if i == s.cursor {
			b.WriteString(s.styles.SelectorChevron.Render(" > "))
			b.WriteString(s.styles.SelectorSelected.Render(label))
		} else {
			b.WriteString("   " + label)
		}
		if opt.Shortcut != "" {
			b.WriteString(" " + s.styles.SelectorShortcut.Render("("+opt.Shortcut+")"))
		}
	}
	return b.String()
}

// Help returns the key hint line.
func (s *SelectorModel) Help() string {
	return s.keys.ShortHelp()
}

// Selected returns the index under the cursor.
func (s *SelectorModel) Selected() int { return s.cursor }

// Confirmed reports whether an option was chosen.
func (s *SelectorModel) Confirmed() bool { return s.confirmed }

// Cancelled reports whether the selector was dismissed.
func (s *SelectorModel) Cancelled() bool { return s.cancelled }

func (s *SelectorModel) move(delta int) {
	if len(s.options) == 0 {
		return
	}
	s.cursor = (s.cursor + delta + len(s.options)) % len(s.options)
}
