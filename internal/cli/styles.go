package cli

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by the renderer and prompts.
type Styles struct {
	TurnSeparator lipgloss.Style
	UserMessage   lipgloss.Style

	// Tool call lines: "• Ran ls -la"
	ToolBullet lipgloss.Style
	ToolVerb   lipgloss.Style

	// Tool output below a call, prefixed with └
	OutputDim     lipgloss.Style
	OutputPrefix  lipgloss.Style
	OutputFailure lipgloss.Style

	// Summary and truncation markers in stored history
	Marker lipgloss.Style

	StatusLine lipgloss.Style
	ErrorText  lipgloss.Style

	ApprovalTool   lipgloss.Style
	ApprovalReason lipgloss.Style
	RiskHigh       lipgloss.Style
	PreviewBox     lipgloss.Style

	SpinnerMessage lipgloss.Style

	SelectorChevron  lipgloss.Style
	SelectorSelected lipgloss.Style
	SelectorShortcut lipgloss.Style
}

// DefaultStyles returns styles with colors enabled.
func DefaultStyles() Styles {
	return Styles{
		TurnSeparator:    lipgloss.NewStyle().Faint(true),
		UserMessage:      lipgloss.NewStyle().Bold(true),
		ToolBullet:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")), // green
		ToolVerb:         lipgloss.NewStyle().Bold(true),
		OutputDim:        lipgloss.NewStyle().Faint(true),
		OutputPrefix:     lipgloss.NewStyle().Faint(true),
		OutputFailure:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")), // red
		Marker:           lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Italic(true),
		StatusLine:       lipgloss.NewStyle().Faint(true),
		ErrorText:        lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		ApprovalTool:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")), // yellow
		ApprovalReason:   lipgloss.NewStyle().Faint(true),
		RiskHigh:         lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		PreviewBox:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1),
		SpinnerMessage:   lipgloss.NewStyle().Faint(true),
		SelectorChevron:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		SelectorSelected: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		SelectorShortcut: lipgloss.NewStyle().Faint(true),
	}
}

// NoColorStyles returns unstyled output, for pipes and tests.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		TurnSeparator:    plain,
		UserMessage:      plain,
		ToolBullet:       plain,
		ToolVerb:         plain,
		OutputDim:        plain,
		OutputPrefix:     plain,
		OutputFailure:    plain,
		Marker:           plain,
		StatusLine:       plain,
		ErrorText:        plain,
		ApprovalTool:     plain,
		ApprovalReason:   plain,
		RiskHigh:         plain,
		PreviewBox:       plain,
		SpinnerMessage:   plain,
		SelectorChevron:  plain,
		SelectorSelected: plain,
		SelectorShortcut: plain,
	}
}
