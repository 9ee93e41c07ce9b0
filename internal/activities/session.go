// Package activities contains the Temporal activities behind the session
// workflow: session store access, context management and the agent loop.
package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/contextmgr"
	"github.com/mfateev/temporal-agent-loop/internal/history"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/summarizer"
	"github.com/mfateev/temporal-agent-loop/internal/tokens"
)

// Deps are the worker-side collaborators shared by every activity call.
type Deps struct {
	Store     history.Store
	Client    llm.Client
	Tools     agent.ToolRunner
	Gate      approval.Gate
	Profiles  *models.ProfileRegistry
	Estimator tokens.Estimator

	// Cwd is the workspace the tools operate on. It feeds the environment
	// context and project doc discovery.
	Cwd string
}

// SessionActivities implements the per-turn activities.
type SessionActivities struct {
	deps Deps
}

// New creates SessionActivities. A missing profile registry, estimator or
// gate falls back to the built-in registry, chars/4 and rejecting every
// consequential call.
func New(deps Deps) *SessionActivities {
	if deps.Profiles == nil {
		deps.Profiles = models.NewDefaultRegistry()
	}
	if deps.Estimator == nil {
		deps.Estimator = tokens.CharEstimator{}
	}
	if deps.Gate == nil {
		deps.Gate = approval.DenyAll{Reason: "no validation gate configured"}
	}
	return &SessionActivities{deps: deps}
}

// LoadHistoryInput is the input for LoadHistory.
type LoadHistoryInput struct {
	SessionID string `json:"session_id"`
}

// LoadHistoryOutput carries the stored messages. A new session has none.
type LoadHistoryOutput struct {
	Messages []models.Message `json:"messages"`
}

// LoadHistory reads the full stored message set of a session.
func (a *SessionActivities) LoadHistory(ctx context.Context, in LoadHistoryInput) (LoadHistoryOutput, error) {
	msgs, err := history.LoadOrEmpty(ctx, a.deps.Store, in.SessionID)
	if err != nil {
		return LoadHistoryOutput{}, fmt.Errorf("load history: %w", err)
	}
	activity.GetLogger(ctx).Debug("History loaded", "session_id", in.SessionID, "messages", len(msgs))
	return LoadHistoryOutput{Messages: msgs}, nil
}

// SaveHistoryInput is the input for SaveHistory.
type SaveHistoryInput struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

// SaveHistory replaces the stored message set of a session.
func (a *SessionActivities) SaveHistory(ctx context.Context, in SaveHistoryInput) error {
	if err := a.deps.Store.Save(ctx, in.SessionID, in.Messages); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	activity.GetLogger(ctx).Debug("History saved", "session_id", in.SessionID, "messages", len(in.Messages))
	return nil
}

// ManageContextInput is the input for ManageContext.
type ManageContextInput struct {
	Messages []models.Message   `json:"messages"`
	Model    models.ModelConfig `json:"model"`

	// Context carries thresholds only; MaxContextTokens is resolved from the
	// model profile on every call.
	Context models.ContextConfig `json:"context"`
}

// ManageContextOutput is the result of ManageContext.
type ManageContextOutput struct {
	// Messages is the stored set after management (the input when nothing
	// ran or summarization failed).
	Messages []models.Message `json:"messages"`

	// Effective is what the next agent loop should receive.
	Effective []models.Message `json:"effective"`

	Managed      bool                       `json:"managed"`
	UsageBefore  float64                    `json:"usage_before"`
	UsageAfter   float64                    `json:"usage_after"`
	Prune        *contextmgr.PruneResult    `json:"prune,omitempty"`
	Compact      *contextmgr.CompactResult  `json:"compact,omitempty"`
	Truncate     *contextmgr.TruncateResult `json:"truncate,omitempty"`
	SummaryError string                     `json:"summary_error,omitempty"`
}

// ManageContext runs the budget check and, when it fires, the
// prune/compact/truncate pipeline. Summary failures are reported in the
// output, never as an activity failure.
func (a *SessionActivities) ManageContext(ctx context.Context, in ManageContextInput) (ManageContextOutput, error) {
	logger := activity.GetLogger(ctx)
	cfg := a.deps.Profiles.ContextConfigFor(in.Model, in.Context)
	mgr := contextmgr.New(
		summarizer.New(a.deps.Client, in.Model, logger),
		contextmgr.WithEstimator(a.deps.Estimator),
		contextmgr.WithLogger(logger),
	)

	out := ManageContextOutput{Messages: in.Messages}
	out.UsageBefore = mgr.UsageRate(in.Messages, cfg)
	out.UsageAfter = out.UsageBefore
	if mgr.ShouldManage(in.Messages, cfg) {
		res := mgr.Manage(ctx, in.Messages, cfg)
		out.Managed = true
		out.Messages = res.Messages
		out.UsageAfter = res.UsageAfter
		out.Prune, out.Compact, out.Truncate = res.Prune, res.Compact, res.Truncate
		if res.SummaryFailed {
			out.SummaryError = res.SummaryErr.Error()
			logger.Warn("Compaction failed, continuing with unmanaged history", "error", res.SummaryErr)
		}
	}
	out.Effective = contextmgr.EffectiveHistory(out.Messages, cfg.MessagesToKeep)
	logger.Info("Context checked",
		"managed", out.Managed,
		"usage_before", out.UsageBefore,
		"usage_after", out.UsageAfter,
		"stored", len(out.Messages),
		"effective", len(out.Effective))
	return out, nil
}

// applicationError converts a LoopError into a Temporal application error
// so the retry policy honors its Retryable flag. Other errors pass through.
func applicationError(err error) error {
	var le *models.LoopError
	if !errors.As(err, &le) {
		return err
	}
	var details []interface{}
	if len(le.Details) > 0 {
		details = append(details, le.Details)
	}
	return temporal.NewApplicationErrorWithOptions(le.Message, le.Type.String(), temporal.ApplicationErrorOptions{
		NonRetryable: !le.Retryable,
		Cause:        le,
		Details:      details,
	})
}
