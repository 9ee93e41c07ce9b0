package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// RunAgentLoopInput is the input for RunAgentLoop.
type RunAgentLoopInput struct {
	// Messages is the effective history, ending with the new user message.
	Messages []models.Message `json:"messages"`
	Config   models.LoopConfig `json:"config"`
}

// RunAgentLoopOutput summarizes one agent loop invocation.
type RunAgentLoopOutput struct {
	// NewMessages are the messages the loop appended after the input.
	NewMessages []models.Message         `json:"new_messages"`
	Text        string                   `json:"text"`
	Reason      models.TerminationReason `json:"reason,omitempty"`
	Message     string                   `json:"message,omitempty"`
	Rounds      int                      `json:"rounds"`
	ToolCalls   int                      `json:"tool_calls"`
	ToolErrors  int                      `json:"tool_errors"`

	// Error is set when the loop ended on an error event.
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// RunAgentLoop drives one agent loop to completion, heartbeating at every
// round start. A loop error that struck before anything was appended fails
// the activity, so the retry policy decides whether to try again. Later
// errors are reported in the output together with the partial messages.
func (a *SessionActivities) RunAgentLoop(ctx context.Context, in RunAgentLoopInput) (RunAgentLoopOutput, error) {
	logger := activity.GetLogger(ctx)
	ag := agent.New(a.deps.Client, a.deps.Tools,
		agent.WithGate(a.deps.Gate),
		agent.WithLogger(logger),
	)

	started := time.Now()
	run := ag.Run(ctx, in.Messages, in.Config)
	summary := agent.CollectWith(run.Events(), func(ev agent.Event) {
		switch ev.Type {
		case agent.EventRoundStart:
			activity.RecordHeartbeat(ctx, ev.Round)
		case agent.EventToolError:
			if ev.Result != nil {
				logger.Info("Tool call failed", "round", ev.Round, "tool", ev.Result.Name)
			}
		}
	})
	all := run.Messages()

	out := RunAgentLoopOutput{
		NewMessages: all[len(in.Messages):],
		Text:        summary.Text,
		Reason:      summary.Reason,
		Message:     summary.Message,
		Rounds:      summary.Rounds,
		ToolCalls:   len(summary.ToolResults),
	}
	for _, r := range summary.ToolResults {
		if r.IsError {
			out.ToolErrors++
		}
	}

	if summary.Err != nil {
		if len(out.NewMessages) == 0 {
			return RunAgentLoopOutput{}, applicationError(summary.Err)
		}
		out.Error = summary.Err.Error()
		var le *models.LoopError
		if errors.As(summary.Err, &le) {
			out.ErrorType = le.Type.String()
		}
		logger.Warn("Agent loop failed", "rounds", out.Rounds, "error", summary.Err)
		return out, nil
	}

	logger.Info("Agent loop finished",
		"reason", out.Reason,
		"rounds", out.Rounds,
		"tool_calls", out.ToolCalls,
		"elapsed", time.Since(started).String())
	return out, nil
}

// String renders a one-line outcome for logs and the CLI.
func (o RunAgentLoopOutput) String() string {
	if o.Error != "" {
		return fmt.Sprintf("error after %d rounds: %s", o.Rounds, o.Error)
	}
	return fmt.Sprintf("%s after %d rounds", o.Reason, o.Rounds)
}
