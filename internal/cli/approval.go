package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidwall/gjson"

	"github.com/mfateev/temporal-agent-loop/internal/approval"
)

const previewLines = 5

// Approval choices, in selector order.
const (
	choiceApprove = iota
	choiceApproveTool
	choiceDeny
)

// approvalInfo is what the prompt shows about a pending call.
type approvalInfo struct {
	Title   string   // "Shell: rm -rf build"
	Preview []string // extra lines, nil for none
}

// formatApprovalInfo extracts a title and an optional preview from the
// call's input.
func formatApprovalInfo(tool string, input json.RawMessage) approvalInfo {
	if len(input) > 0 && gjson.ValidBytes(input) {
		switch tool {
		case "shell":
			if cmd := gjson.GetBytes(input, "command").String(); cmd != "" {
				lines := strings.Split(strings.TrimRight(cmd, "\n"), "\n")
				if len(lines) == 1 {
					return approvalInfo{Title: "Shell: " + cmd}
				}
				preview, _ := truncateMiddle(lines, previewLines)
				return approvalInfo{Title: fmt.Sprintf("Shell: %d-line script", len(lines)), Preview: preview}
			}
		case "read_file":
			if path := gjson.GetBytes(input, "path").String(); path != "" {
				return approvalInfo{Title: "Read: " + path}
			}
		case "list_dir":
			if path := gjson.GetBytes(input, "path").String(); path != "" {
				return approvalInfo{Title: "List: " + path}
			}
		}
	}
	display := string(input)
	if len(display) > 300 {
		display = display[:300] + "..."
	}
	return approvalInfo{Title: tool + ": " + display}
}

// ApprovalModel is the bubbletea model of one approval prompt.
type ApprovalModel struct {
	req      approval.Request
	risk     approval.RiskLevel
	reason   string
	styles   Styles
	selector *SelectorModel
	done     bool
}

// NewApprovalModel creates the prompt for req.
func NewApprovalModel(req approval.Request, risk approval.RiskLevel, reason string, styles Styles) *ApprovalModel {
	return &ApprovalModel{
		req:    req,
		risk:   risk,
		reason: reason,
		styles: styles,
		selector: NewSelectorModel([]SelectorOption{
			{Label: "Yes, run it", Shortcut: "y", ShortcutKey: 'y'},
			{Label: fmt.Sprintf("Yes, and don't ask again for %s", req.ToolName), Shortcut: "a", ShortcutKey: 'a'},
			{Label: "No, tell the model to do something else", Shortcut: "n", ShortcutKey: 'n'},
		}, styles),
	}
}

func (m *ApprovalModel) Init() tea.Cmd { return nil }

func (m *ApprovalModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.done {
		return m, nil
	}
	if m.selector.Update(keyMsg) {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *ApprovalModel) View() string {
	if m.done {
		return ""
	}
	info := formatApprovalInfo(m.req.ToolName, m.req.Input)

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.styles.ApprovalTool.Render(info.Title) + "\n")
	if len(info.Preview) > 0 {
		b.WriteString(m.styles.PreviewBox.Render(strings.Join(info.Preview, "\n")) + "\n")
	}
	risk := "risk: " + string(m.risk)
	if m.risk == approval.RiskHigh {
		risk = m.styles.RiskHigh.Render(risk)
	} else {
		risk = m.styles.ApprovalReason.Render(risk)
	}
	b.WriteString("  " + risk)
	if m.reason != "" {
		b.WriteString(m.styles.ApprovalReason.Render(" · " + m.reason))
	}
	b.WriteString("\n\n")
	b.WriteString(m.selector.View() + "\n\n")
	b.WriteString(m.styles.SelectorShortcut.Render(m.selector.Help()) + "\n")
	return b.String()
}

// Choice returns the chosen option. A dismissed prompt denies.
func (m *ApprovalModel) Choice() int {
	if !m.selector.Confirmed() {
		return choiceDeny
	}
	return m.selector.Selected()
}

// ApprovalPrompt asks the user in the terminal whether a consequential
// call may run. Prompts are serialized; tools approved with "don't ask
// again" are remembered for the life of the prompt.
type ApprovalPrompt struct {
	in     io.Reader
	out    io.Writer
	styles Styles

	// BeforeAsk runs before each prompt, e.g. to stop a spinner.
	BeforeAsk func()

	mu     sync.Mutex
	always map[string]bool
	run    func(ctx context.Context, m tea.Model) (tea.Model, error)
}

var _ approval.Asker = (*ApprovalPrompt)(nil)

// NewApprovalPrompt creates a prompt reading keys from in.
func NewApprovalPrompt(in io.Reader, out io.Writer, styles Styles) *ApprovalPrompt {
	p := &ApprovalPrompt{in: in, out: out, styles: styles, always: make(map[string]bool)}
	p.run = p.runProgram
	return p
}

// Ask implements approval.Asker.
func (p *ApprovalPrompt) Ask(ctx context.Context, req approval.Request, risk approval.RiskLevel, reason string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.always[req.ToolName] {
		return true, nil
	}
	if p.BeforeAsk != nil {
		p.BeforeAsk()
	}

	final, err := p.run(ctx, NewApprovalModel(req, risk, reason, p.styles))
	if err != nil {
		return false, fmt.Errorf("approval prompt: %w", err)
	}
	m, ok := final.(*ApprovalModel)
	if !ok {
		return false, fmt.Errorf("approval prompt: unexpected model %T", final)
	}

	switch m.Choice() {
	case choiceApproveTool:
		p.always[req.ToolName] = true
		return true, nil
	case choiceApprove:
		return true, nil
	default:
		return false, nil
	}
}

func (p *ApprovalPrompt) runProgram(ctx context.Context, m tea.Model) (tea.Model, error) {
	prog := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	return prog.Run()
}
