package handlers

import (
	"context"

	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// TaskCompleteTool lets the model declare the task finished. Its output
// carries TaskComplete, which ends the loop after the round.
type TaskCompleteTool struct{}

func NewTaskCompleteTool() *TaskCompleteTool {
	return &TaskCompleteTool{}
}

func (t *TaskCompleteTool) Name() string {
	return "task_complete"
}

func (t *TaskCompleteTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

func (t *TaskCompleteTool) IsMutating(*tools.ToolInvocation) bool {
	return false
}

func (t *TaskCompleteTool) Handle(_ context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	summary, _ := invocation.Arguments["summary"].(string)
	if summary == "" {
		summary = "Task complete."
	}
	out := tools.NewOutput(summary, true)
	out.TaskComplete = true
	return out, nil
}
