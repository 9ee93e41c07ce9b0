package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/mfateev/temporal-agent-loop/internal/activities"
	"github.com/mfateev/temporal-agent-loop/internal/contextmgr"
	"github.com/mfateev/temporal-agent-loop/internal/instructions"
	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// Activity method references resolve to activity names; the receiver is
// never dereferenced.
var acts *activities.SessionActivities

var storeActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 30 * time.Second,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
		MaximumAttempts:    3,
	},
}

var contextActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 5 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
	},
}

// loopHeartbeatTimeout bounds a single round: one model stream plus the
// round's tool calls.
const loopHeartbeatTimeout = 10 * time.Minute

func loopActivityOptions(cfg models.LoopConfig) workflow.ActivityOptions {
	budget := time.Hour
	if cfg.Termination.Timeout > 0 {
		budget = cfg.Termination.Timeout + loopHeartbeatTimeout
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: budget,
		HeartbeatTimeout:    loopHeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
}

// AgentSessionWorkflow runs user turns as they arrive through the
// user_input update. It ends after a shutdown update once the queue is
// empty, or after IdleTimeout without input.
func AgentSessionWorkflow(ctx workflow.Context, in SessionInput) (SessionResult, error) {
	logger := workflow.GetLogger(ctx)
	s := newSession(in)
	if err := s.registerHandlers(ctx); err != nil {
		return SessionResult{}, err
	}
	logger.Info("Session started", "session_id", s.id, "model", s.model.Model, "pending", len(s.pending))

	for {
		s.phase = PhaseWaitingForInput
		ok, err := workflow.AwaitWithTimeout(ctx, s.idle, func() bool {
			return len(s.pending) > 0 || s.shutdown
		})
		if err != nil {
			return SessionResult{}, err
		}
		if !ok {
			return s.finish(ctx, EndIdle)
		}
		if len(s.pending) == 0 {
			return s.finish(ctx, EndShutdown)
		}

		prompt := s.pending[0]
		s.pending = s.pending[1:]
		s.runTurn(ctx, prompt)

		if workflow.GetInfo(ctx).GetContinueAsNewSuggested() && !s.shutdown {
			if err := workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) }); err != nil {
				return SessionResult{}, err
			}
			logger.Info("Continuing as new", "turns", s.turnCount, "pending", len(s.pending))
			return SessionResult{}, workflow.NewContinueAsNewError(ctx, AgentSessionWorkflow, s.continueInput())
		}
	}
}

func (s *session) finish(ctx workflow.Context, reason string) (SessionResult, error) {
	if err := workflow.Await(ctx, func() bool { return workflow.AllHandlersFinished(ctx) }); err != nil {
		return SessionResult{}, err
	}
	workflow.GetLogger(ctx).Info("Session ended", "session_id", s.id, "reason", reason, "turns", s.turnCount)
	return SessionResult{
		SessionID: s.id,
		Turns:     s.turnCount,
		EndReason: reason,
		LastTurn:  s.lastTurn,
	}, nil
}

// runTurn performs load → manage → run → save for one user message. Failures
// are recorded on the turn result; the session keeps accepting input.
func (s *session) runTurn(ctx workflow.Context, prompt string) TurnResult {
	logger := workflow.GetLogger(ctx)
	s.turnCount++
	res := TurnResult{Turn: s.turnCount, Prompt: prompt}
	defer func() { s.lastTurn = &res }()

	storeCtx := workflow.WithActivityOptions(ctx, storeActivityOptions)

	s.phase = PhaseLoadingHistory
	var loaded activities.LoadHistoryOutput
	if err := workflow.ExecuteActivity(storeCtx, acts.LoadHistory,
		activities.LoadHistoryInput{SessionID: s.id}).Get(ctx, &loaded); err != nil {
		logger.Error("Loading history failed", "turn", res.Turn, "error", err)
		res.Error = err.Error()
		return res
	}
	stored := append(loaded.Messages, models.Message{
		Role:         models.RoleUser,
		Content:      prompt,
		SequenceTime: workflow.Now(ctx),
	})

	s.phase = PhaseManagingContext
	managed := s.manageContext(ctx, stored)
	stored = managed.Messages
	res.ContextManaged = managed.Managed
	res.UsageBefore, res.UsageAfter = managed.UsageBefore, managed.UsageAfter
	res.SummaryError = managed.SummaryError

	s.phase = PhaseRunningLoop
	cfg := s.loop
	cfg.Model = s.model
	cfg.SystemPrompt = s.ensureSystemPrompt(ctx)
	var out activities.RunAgentLoopOutput
	loopCtx := workflow.WithActivityOptions(ctx, loopActivityOptions(cfg))
	err := workflow.ExecuteActivity(loopCtx, acts.RunAgentLoop,
		activities.RunAgentLoopInput{Messages: managed.Effective, Config: cfg}).Get(ctx, &out)
	if err != nil {
		logger.Error("Agent loop failed", "turn", res.Turn, "error", err)
		res.Error = err.Error()
	} else {
		stored = append(stored, out.NewMessages...)
		res.Text, res.Reason, res.Message = out.Text, out.Reason, out.Message
		res.Rounds, res.ToolCalls, res.ToolErrors = out.Rounds, out.ToolCalls, out.ToolErrors
		res.Error = out.Error
	}

	s.phase = PhaseSavingHistory
	if err := workflow.ExecuteActivity(storeCtx, acts.SaveHistory,
		activities.SaveHistoryInput{SessionID: s.id, Messages: stored}).Get(ctx, nil); err != nil {
		logger.Error("Saving history failed", "turn", res.Turn, "error", err)
		if res.Error == "" {
			res.Error = err.Error()
		}
	}

	logger.Info("Turn finished",
		"turn", res.Turn,
		"reason", res.Reason,
		"rounds", res.Rounds,
		"stored", len(stored),
		"error", res.Error)
	return res
}

// manageContext runs the ManageContext activity. If the activity itself
// fails the turn proceeds with the unmanaged history.
func (s *session) manageContext(ctx workflow.Context, stored []models.Message) activities.ManageContextOutput {
	var out activities.ManageContextOutput
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, contextActivityOptions),
		acts.ManageContext,
		activities.ManageContextInput{Messages: stored, Model: s.model, Context: s.context},
	).Get(ctx, &out)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Context management failed, using stored history", "error", err)
		return activities.ManageContextOutput{
			Messages:  stored,
			Effective: contextmgr.EffectiveHistory(stored, s.context.MessagesToKeep),
		}
	}
	return out
}

// ensureSystemPrompt builds the prompt on the worker the first time it is
// needed, falling back to one composed without project docs.
func (s *session) ensureSystemPrompt(ctx workflow.Context) string {
	if s.systemPrompt != "" {
		return s.systemPrompt
	}
	var out activities.BuildSystemPromptOutput
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, storeActivityOptions),
		acts.BuildSystemPrompt,
		activities.BuildSystemPromptInput{Model: s.model, Base: s.basePrompt},
	).Get(ctx, &out)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Building system prompt failed", "error", err)
		return instructions.Compose(instructions.Input{Base: s.basePrompt})
	}
	s.systemPrompt = out.SystemPrompt
	return s.systemPrompt
}
