// Package instructions assembles the system prompt sent on every round:
// the fixed tool-use preamble, environment context, project docs and the
// model profile's prompt suffix.
package instructions

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Preamble is always the first part of the system prompt.
const Preamble = `You are an autonomous agent working in the user's workspace through tools.

When you need to act, call the tool directly. Never describe a tool call in
text, never write tool call markup such as <tool_call> or <invoke>, and never
ask the user to run a command for you. If a tool fails, read the error and
adapt instead of repeating the same call.

When the task is finished, call task_complete with a short summary of what
you did. If you cannot make progress, say so plainly.`

// Input collects the sources for one system prompt.
type Input struct {
	// Base replaces the default agent guidance when non-empty. The preamble
	// is kept either way.
	Base string

	// Cwd is reported in the environment context when non-empty.
	Cwd string

	// ProjectDocs is the output of LoadProjectDocs.
	ProjectDocs string

	// PromptSuffix comes from the resolved model profile.
	PromptSuffix string

	// Now stamps the environment context. Zero omits the date.
	Now time.Time
}

const defaultGuidance = `# How you work

- Inspect before you change: read files and list directories before editing.
- Prefer small, verifiable steps. Check the result of each command.
- Keep replies short. The user sees your text but not raw tool output, so
  relay the parts of command output that matter.`

// Compose builds the system prompt. Empty sections are skipped.
func Compose(in Input) string {
	base := in.Base
	if base == "" {
		base = defaultGuidance
	}
	parts := []string{Preamble, base}
	if env := environmentContext(in.Cwd, in.Now); env != "" {
		parts = append(parts, env)
	}
	if in.ProjectDocs != "" {
		parts = append(parts, "# Project instructions\n\n"+in.ProjectDocs)
	}
	if in.PromptSuffix != "" {
		parts = append(parts, in.PromptSuffix)
	}
	return strings.Join(parts, "\n\n")
}

// EnsurePreamble returns system with the preamble in front, unless it
// already starts with it.
func EnsurePreamble(system string) string {
	switch {
	case system == "":
		return Preamble
	case strings.HasPrefix(system, Preamble):
		return system
	default:
		return Preamble + "\n\n" + system
	}
}

func environmentContext(cwd string, now time.Time) string {
	if cwd == "" && now.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("<environment_context>\n")
	if cwd != "" {
		fmt.Fprintf(&b, "  <cwd>%s</cwd>\n", cwd)
	}
	fmt.Fprintf(&b, "  <os>%s</os>\n", runtime.GOOS)
	if !now.IsZero() {
		fmt.Fprintf(&b, "  <date>%s</date>\n", now.Format("2006-01-02"))
	}
	b.WriteString("</environment_context>")
	return b.String()
}
