// Package handlers contains the built-in tool handlers.
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/command_safety"
	"github.com/mfateev/temporal-agent-loop/internal/exec"
	"github.com/mfateev/temporal-agent-loop/internal/sandbox"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// ShellTool executes shell commands with bash -c.
type ShellTool struct {
	maxOutputBytes int
	env            []string
	wrapper        sandbox.Wrapper
	policy         sandbox.Policy
}

// ShellOption configures a ShellTool.
type ShellOption func(*ShellTool)

// WithMaxOutputBytes caps the output returned to the model.
func WithMaxOutputBytes(n int) ShellOption {
	return func(t *ShellTool) { t.maxOutputBytes = n }
}

// WithEnv sets the environment for spawned commands.
func WithEnv(env []string) ShellOption {
	return func(t *ShellTool) { t.env = env }
}

// WithSandbox runs commands through w under policy p.
func WithSandbox(w sandbox.Wrapper, p sandbox.Policy) ShellOption {
	return func(t *ShellTool) {
		t.wrapper = w
		t.policy = p
	}
}

// NewShellTool creates a new shell tool handler.
func NewShellTool(opts ...ShellOption) *ShellTool {
	t := &ShellTool{maxOutputBytes: exec.MaxOutputBytes}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the tool's name.
func (t *ShellTool) Name() string {
	return "shell"
}

// Kind returns ToolKindFunction.
func (t *ShellTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns false only for scripts made entirely of known
// read-only commands.
func (t *ShellTool) IsMutating(invocation *tools.ToolInvocation) bool {
	command, ok := invocation.Arguments["command"].(string)
	if !ok || command == "" {
		return true
	}
	return !command_safety.IsKnownSafeScript(command)
}

// Handle runs the command. A non-zero exit is a failed output, not an error;
// the context deadline set by the executor bounds execution time.
func (t *ShellTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	command, err := invocation.StringArg("command")
	if err != nil {
		return nil, err
	}

	argv := exec.ShellArgv(command)
	if t.wrapper != nil {
		argv, err = t.wrapper.Wrap(argv, invocation.Cwd, t.policy)
		if err != nil {
			return nil, fmt.Errorf("sandbox %s: %w", t.wrapper.Name(), err)
		}
	}

	res, err := exec.Run(ctx, exec.Request{
		Argv:     argv,
		Cwd:      invocation.Cwd,
		Env:      t.env,
		TTY:      invocation.BoolArg("tty"),
		MaxBytes: t.maxOutputBytes,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tools.NewTransientError(err)
	}

	var b strings.Builder
	b.Write(res.Aggregated)
	if res.Truncated {
		b.WriteString("\n[output truncated]")
	}
	if res.ExitCode != 0 {
		fmt.Fprintf(&b, "\n[exit code %d]", res.ExitCode)
	}
	return tools.NewOutput(b.String(), res.ExitCode == 0), nil
}
