package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// Executor dispatches model tool calls to registered handlers and converts
// every outcome, including failures, into a models.ToolResult.
type Executor struct {
	registry *ToolRegistry
	cwd      string
	logger   log.Logger
	now      func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCwd sets the working directory passed to handlers.
func WithCwd(cwd string) ExecutorOption {
	return func(e *Executor) { e.cwd = cwd }
}

// WithLogger sets the executor's logger.
func WithLogger(l log.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logging.OrNop(l) }
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *ToolRegistry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		logger:   logging.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the underlying registry.
func (e *Executor) Registry() *ToolRegistry {
	return e.registry
}

// Specs returns the specs to advertise to the model, sorted by name.
func (e *Executor) Specs() []ToolSpec {
	return e.registry.Specs()
}

// Names returns the registered tool names.
func (e *Executor) Names() []string {
	return e.registry.Names()
}

// IsConsequential reports whether the call must pass the validation gate.
// Unknown tools and unparseable arguments are treated as consequential.
func (e *Executor) IsConsequential(call models.ToolCall) bool {
	handler, err := e.registry.GetHandler(call.Name)
	if err != nil {
		return true
	}
	args, err := call.Arguments()
	if err != nil {
		return true
	}
	return handler.IsMutating(&ToolInvocation{
		CallID:    call.ID,
		ToolName:  call.Name,
		Arguments: args,
		RawInput:  call.Input,
		Cwd:       e.cwd,
	})
}

// Execute runs one tool call to completion. It never returns an error:
// unknown tools, malformed arguments, handler errors and timeouts all come
// back as a result with IsError set, so the model can see what went wrong.
// A panicking handler is reported the same way.
func (e *Executor) Execute(ctx context.Context, call models.ToolCall) (res models.ToolResult) {
	started := e.now()
	result := models.ToolResult{
		ToolUseID: call.ID,
		Name:      call.Name,
		StartedAt: started,
	}
	finish := func(content string, isError bool) models.ToolResult {
		result.Content = content
		result.IsError = isError
		result.FinishedAt = e.now()
		result.Duration = result.FinishedAt.Sub(started)
		return result
	}
	defer func() {
		if p := recover(); p != nil {
			e.logger.Error("Tool panicked", "tool", call.Name, "call_id", call.ID, "panic", p)
			res = finish(fmt.Sprintf("Error: %s panicked: %v", call.Name, p), true)
		}
	}()

	handler, err := e.registry.GetHandler(call.Name)
	if err != nil {
		e.logger.Warn("Unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return finish(fmt.Sprintf("Error: unknown tool %q", call.Name), true)
	}

	args, err := call.Arguments()
	if err != nil {
		return finish(fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err), true)
	}
	if missing := e.missingRequired(call.Name, args); missing != "" {
		return finish(fmt.Sprintf("Error: missing required argument: %s", missing), true)
	}

	timeout := e.timeoutFor(call.Name, args)
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := &ToolInvocation{
		CallID:    call.ID,
		ToolName:  call.Name,
		Arguments: args,
		RawInput:  call.Input,
		Cwd:       e.cwd,
	}

	e.logger.Debug("Executing tool", "tool", call.Name, "call_id", call.ID, "timeout", timeout)
	out, err := handler.Handle(execCtx, inv)
	if err != nil {
		switch {
		case errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			return finish(fmt.Sprintf("Error: %s timed out after %s", call.Name, timeout), true)
		case IsValidationError(err):
			return finish("Error: "+err.Error(), true)
		default:
			e.logger.Warn("Tool failed", "tool", call.Name, "call_id", call.ID, "error", err)
			return finish("Error: "+err.Error(), true)
		}
	}
	if out == nil {
		return finish("", false)
	}

	result.TaskComplete = out.TaskComplete
	return finish(out.Content, out.Failed())
}

func (e *Executor) missingRequired(name string, args map[string]interface{}) string {
	spec, ok := e.registry.Spec(name)
	if !ok {
		return ""
	}
	for _, req := range spec.RequiredParams() {
		if _, present := args[req]; !present {
			return req
		}
	}
	return ""
}

func (e *Executor) timeoutFor(name string, args map[string]interface{}) time.Duration {
	if v, ok := args["timeout_ms"].(float64); ok && v > 0 {
		return time.Duration(v) * time.Millisecond
	}
	if spec, ok := e.registry.Spec(name); ok && spec.DefaultTimeoutMs > 0 {
		return time.Duration(spec.DefaultTimeoutMs) * time.Millisecond
	}
	return DefaultToolTimeoutMs * time.Millisecond
}
