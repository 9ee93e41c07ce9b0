// Package cli renders agent runs and stored sessions in the terminal and
// asks the user before consequential tool calls run.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/tidwall/gjson"
	"golang.org/x/term"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/workflow"
)

const (
	defaultWidth      = 80
	outputLineLimit   = 5
	commandDetailSize = 120
)

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Width wraps markdown; 0 uses the terminal width of stdout.
	Width      int
	NoColor    bool
	NoMarkdown bool
}

// Renderer writes agent events to a terminal. Model text is streamed as it
// arrives, or rendered as markdown once the text of a round is complete.
type Renderer struct {
	out     io.Writer
	styles  Styles
	md      *glamour.TermRenderer
	spinner *Spinner

	mu       sync.Mutex
	text     strings.Builder
	streamed bool
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer, opts RendererOptions) *Renderer {
	r := &Renderer{out: out, styles: DefaultStyles()}
	if opts.NoColor {
		r.styles = NoColorStyles()
	}
	if !opts.NoMarkdown {
		width := opts.Width
		if width <= 0 {
			width = TerminalWidth(os.Stdout)
		}
		style := "dark"
		if opts.NoColor {
			style = "notty"
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(width),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// WithSpinner shows sp between events. The renderer stops it before every
// write.
func (r *Renderer) WithSpinner(sp *Spinner) *Renderer {
	r.spinner = sp
	return r
}

// Styles returns the renderer's styles, for prompts sharing the terminal.
func (r *Renderer) Styles() Styles {
	return r.styles
}

// Render writes one event.
func (r *Renderer) Render(ev agent.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spinner != nil {
		r.spinner.Stop()
	}

	switch ev.Type {
	case agent.EventTextDelta:
		if r.md == nil {
			io.WriteString(r.out, ev.Text)
			r.streamed = true
		} else {
			r.text.WriteString(ev.Text)
		}
	case agent.EventToolUseStart, agent.EventToolUseEnd:
	case agent.EventRoundStart:
		r.flushText()
	case agent.EventRoundEnd:
		r.flushText()
	case agent.EventToolExecuting:
		r.flushText()
		if ev.Call != nil {
			io.WriteString(r.out, r.toolLine(*ev.Call))
		}
	case agent.EventToolExecuted, agent.EventToolError:
		if ev.Result != nil {
			io.WriteString(r.out, r.toolOutput(*ev.Result))
		}
	case agent.EventAgentComplete:
		r.flushText()
		io.WriteString(r.out, r.completionLine(ev))
	case agent.EventError:
		r.flushText()
		io.WriteString(r.out, r.styles.ErrorText.Render("error: "+ev.Message)+"\n")
	}

	if r.spinner != nil && !r.streamed {
		if msg := PhaseMessage(ev); msg != "" {
			r.spinner.Start(msg)
		}
	}
}

// flushText ends the text of the current round.
func (r *Renderer) flushText() {
	if r.streamed {
		io.WriteString(r.out, "\n")
		r.streamed = false
	}
	if r.text.Len() > 0 {
		io.WriteString(r.out, r.markdown(r.text.String()))
		r.text.Reset()
	}
}

func (r *Renderer) markdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			return out
		}
	}
	return strings.TrimRight(text, "\n") + "\n"
}

// toolLine renders "• Ran ls -la".
func (r *Renderer) toolLine(call models.ToolCall) string {
	verb, detail := formatToolCall(call)
	line := r.styles.ToolBullet.Render("•") + " " + r.styles.ToolVerb.Render(verb)
	if detail != "" {
		line += " " + detail
	}
	return line + "\n"
}

// toolOutput renders a result below its call, middle-truncated.
func (r *Renderer) toolOutput(res models.ToolResult) string {
	content := strings.TrimRight(res.Content, "\n")
	if content == "" {
		return r.styles.OutputPrefix.Render("  └ ") + r.styles.OutputDim.Render("(no output)") + "\n"
	}

	lines, _ := truncateMiddle(strings.Split(content, "\n"), outputLineLimit)
	var b strings.Builder
	for i, line := range lines {
		prefix := "    "
		if i == 0 {
			prefix = "  └ "
		}
		b.WriteString(r.styles.OutputPrefix.Render(prefix))
		if res.IsError {
			b.WriteString(r.styles.OutputFailure.Render(line))
		} else {
			b.WriteString(r.styles.OutputDim.Render(line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) completionLine(ev agent.Event) string {
	line := fmt.Sprintf("[%s · %s]", ev.Reason, plural(ev.RoundCount, "round"))
	if ev.Reason != models.ReasonTaskComplete && ev.Message != "" {
		line += " " + ev.Message
	}
	return r.styles.StatusLine.Render(line) + "\n"
}

// RenderMessages renders stored history, including summary and truncation
// markers.
func (r *Renderer) RenderMessages(msgs []models.Message) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, m := range msgs {
		switch {
		case m.IsSummary:
			b.WriteString(r.styles.Marker.Render("── summary of earlier conversation ──") + "\n")
			b.WriteString(r.markdown(m.Content))
		case m.IsTruncationMarker:
			b.WriteString(r.styles.Marker.Render("── "+m.Content+" ──") + "\n")
		case m.Role == models.RoleUser:
			b.WriteString(r.styles.UserMessage.Render("> "+m.Content) + "\n")
		case m.Role == models.RoleSystem:
			b.WriteString(r.styles.Marker.Render("note: "+m.Content) + "\n")
		case m.Role == models.RoleAssistant:
			b.WriteString(r.markdown(m.Content))
			for _, call := range m.ToolCalls {
				b.WriteString(r.toolLine(call))
			}
		case m.Role == models.RoleTool:
			for _, res := range m.ToolResults {
				b.WriteString(r.toolOutput(res))
			}
		}
	}
	return b.String()
}

// RenderTurn renders the result of one durable session turn.
func (r *Renderer) RenderTurn(res workflow.TurnResult) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString(r.markdown(res.Text))
	if res.Error != "" {
		b.WriteString(r.styles.ErrorText.Render("error: "+res.Error) + "\n")
	}
	parts := []string{fmt.Sprintf("turn %d", res.Turn)}
	if res.Reason != "" {
		parts = append(parts, string(res.Reason))
	}
	parts = append(parts, plural(res.Rounds, "round"), plural(res.ToolCalls, "tool call"))
	if res.ToolErrors > 0 {
		parts = append(parts, plural(res.ToolErrors, "tool error"))
	}
	if res.ContextManaged {
		parts = append(parts, fmt.Sprintf("context %.0f%% → %.0f%%", res.UsageBefore*100, res.UsageAfter*100))
	}
	b.WriteString(r.styles.StatusLine.Render("["+strings.Join(parts, " · ")+"]") + "\n")
	if res.SummaryError != "" {
		b.WriteString(r.styles.StatusLine.Render("summary failed: "+res.SummaryError) + "\n")
	}
	return b.String()
}

// RenderStatus renders a one-line session status.
func (r *Renderer) RenderStatus(st workflow.SessionStatus) string {
	line := fmt.Sprintf("%s · %s · %s/%s · %s · %d pending",
		st.SessionID, st.Phase, st.Model.Provider, st.Model.Model, plural(st.TurnCount, "turn"), st.Pending)
	if st.Shutdown {
		line += " · shutting down"
	}
	return r.styles.StatusLine.Render(line) + "\n"
}

// formatToolCall returns the verb and detail of a tool line:
//
//	shell          → ("Ran", "echo hello")
//	read_file      → ("Read", "/tmp/a.txt")
//	list_dir       → ("Listed", "/tmp")
//	task_complete  → ("Finished", "")
//	mcp__fs__stat  → ("Called", "fs/stat")
func formatToolCall(call models.ToolCall) (verb, detail string) {
	field := func(name string) string {
		if len(call.Input) == 0 || !gjson.ValidBytes(call.Input) {
			return ""
		}
		return gjson.GetBytes(call.Input, name).String()
	}

	switch call.Name {
	case "shell":
		return "Ran", truncateString(field("command"), commandDetailSize)
	case "read_file":
		return "Read", field("path")
	case "list_dir":
		return "Listed", field("path")
	case "task_complete":
		return "Finished", ""
	}
	if rest, ok := strings.CutPrefix(call.Name, "mcp__"); ok {
		if server, tool, ok := strings.Cut(rest, "__"); ok {
			return "Called", server + "/" + tool
		}
	}
	return "Ran", call.Name + "(" + truncateString(string(call.Input), 80) + ")"
}

// truncateMiddle returns at most limit lines, keeping the first and last
// two around a "… +N lines" placeholder.
func truncateMiddle(lines []string, limit int) (result []string, omitted int) {
	if len(lines) <= limit {
		return lines, 0
	}
	const head, tail = 2, 2
	omitted = len(lines) - head - tail
	result = make([]string, 0, head+1+tail)
	result = append(result, lines[:head]...)
	result = append(result, fmt.Sprintf("… +%d lines", omitted))
	result = append(result, lines[len(lines)-tail:]...)
	return result, omitted
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "…"
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of the terminal on f, or 80.
func TerminalWidth(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}
