// Package session runs user turns in-process. A turn performs the same
// sequence as the durable session workflow: load the stored history, keep
// it inside the model's budget, run one agent loop over the effective
// history, and save what the loop appended.
package session

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/agent"
	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/contextmgr"
	"github.com/mfateev/temporal-agent-loop/internal/history"
	"github.com/mfateev/temporal-agent-loop/internal/instructions"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/summarizer"
	"github.com/mfateev/temporal-agent-loop/internal/tokens"
)

// Runner holds the collaborators of local turns.
type Runner struct {
	Store     history.Store
	Client    llm.Client
	Tools     agent.ToolRunner
	Gate      approval.Gate
	Profiles  *models.ProfileRegistry
	Estimator tokens.Estimator
	Logger    log.Logger
	Cwd       string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Turn is one user message to run against a session.
type Turn struct {
	SessionID string
	Prompt    string
	Model     models.ModelConfig
	Loop      models.LoopConfig

	// Context carries the thresholds; the window comes from the model
	// profile.
	Context models.ContextConfig

	// SystemPrompt replaces the default guidance when non-empty.
	SystemPrompt string
}

// Result describes a finished turn.
type Result struct {
	Summary agent.RunSummary

	Managed     bool
	UsageBefore float64
	UsageAfter  float64
	SummaryErr  error

	// Stored is the number of messages saved for the session.
	Stored int
}

// RunTurn runs t and saves the session. Events are passed to onEvent as
// they arrive. Closing cancel asks the loop to stop at the next round
// boundary; cancelling ctx aborts it. Loop failures are reported in
// Result.Summary.Err; the returned error is set only when the session
// could not be loaded or saved.
func (r *Runner) RunTurn(ctx context.Context, t Turn, cancel <-chan struct{}, onEvent func(agent.Event)) (Result, error) {
	logger := logging.OrNop(r.Logger)
	profiles := r.Profiles
	if profiles == nil {
		profiles = models.NewDefaultRegistry()
	}
	estimator := r.Estimator
	if estimator == nil {
		estimator = tokens.CharEstimator{}
	}
	gate := r.Gate
	if gate == nil {
		gate = approval.DenyAll{Reason: "no validation gate configured"}
	}

	msgs, err := history.LoadOrEmpty(ctx, r.Store, t.SessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session %s: %w", t.SessionID, err)
	}
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: t.Prompt, SequenceTime: r.now()})

	var res Result
	cfg := profiles.ContextConfigFor(t.Model, t.Context)
	mgr := contextmgr.New(
		summarizer.New(r.Client, t.Model, logger),
		contextmgr.WithEstimator(estimator),
		contextmgr.WithLogger(logger),
	)
	res.UsageBefore = mgr.UsageRate(msgs, cfg)
	res.UsageAfter = res.UsageBefore
	if mgr.ShouldManage(msgs, cfg) {
		managed := mgr.Manage(ctx, msgs, cfg)
		msgs = managed.Messages
		res.Managed = true
		res.UsageAfter = managed.UsageAfter
		res.SummaryErr = managed.SummaryErr
	}
	effective := contextmgr.EffectiveHistory(msgs, cfg.MessagesToKeep)

	loopCfg := t.Loop
	loopCfg.Model = t.Model
	loopCfg.SystemPrompt = r.systemPrompt(t, profiles.Resolve(t.Model.Provider, t.Model.Model), logger)

	ag := agent.New(r.Client, r.Tools, agent.WithGate(gate), agent.WithLogger(logger))
	run := ag.Run(ctx, effective, loopCfg)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-cancel:
			run.Cancel()
		case <-stop:
		}
	}()

	res.Summary = agent.CollectWith(run.Events(), onEvent)
	all := run.Messages()
	msgs = append(msgs, all[len(effective):]...)

	// the turn is saved even when ctx was cancelled mid-loop
	if err := r.Store.Save(context.WithoutCancel(ctx), t.SessionID, msgs); err != nil {
		return res, fmt.Errorf("save session %s: %w", t.SessionID, err)
	}
	res.Stored = len(msgs)
	logger.Info("Turn saved",
		"session_id", t.SessionID,
		"stored", res.Stored,
		"effective", len(effective),
		"rounds", res.Summary.Rounds)
	return res, nil
}

func (r *Runner) systemPrompt(t Turn, profile models.ResolvedProfile, logger log.Logger) string {
	var docs string
	if r.Cwd != "" {
		var err error
		docs, err = instructions.ForWorkspace(r.Cwd, profile.ProjectDocNames)
		if err != nil {
			logger.Warn("Project docs not loaded", "cwd", r.Cwd, "error", err)
			docs = ""
		}
	}
	return instructions.Compose(instructions.Input{
		Base:         t.SystemPrompt,
		Cwd:          r.Cwd,
		ProjectDocs:  docs,
		PromptSuffix: profile.PromptSuffix,
		Now:          r.now(),
	})
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
