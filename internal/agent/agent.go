// Package agent runs the agent loop: stream a model round, execute the
// requested tools one at a time, ask the termination detector whether to
// stop, and repeat. Progress is reported on a typed event channel.
package agent

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"github.com/mfateev/temporal-agent-loop/internal/approval"
	"github.com/mfateev/temporal-agent-loop/internal/instructions"
	"github.com/mfateev/temporal-agent-loop/internal/llm"
	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/models"
	"github.com/mfateev/temporal-agent-loop/internal/termination"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// correctionMessage is injected when the model writes tool call markup
// instead of calling the tool.
const correctionMessage = "Your last reply described a tool call in text instead of making it. " +
	"Do not write tool call markup. Call the tool directly using the tool interface."

const defaultEventBuffer = 64

// ToolRunner is the tool surface the loop needs. *tools.Executor
// implements it.
type ToolRunner interface {
	Specs() []tools.ToolSpec
	Names() []string
	IsConsequential(call models.ToolCall) bool
	Execute(ctx context.Context, call models.ToolCall) models.ToolResult
}

// Agent holds the collaborators shared by every run. It is safe to start
// several runs from one Agent.
type Agent struct {
	client   llm.Client
	tools    ToolRunner
	gate     approval.Gate
	detector *termination.Detector
	logger   log.Logger
	now      func() time.Time
	buffer   int
}

// Option configures an Agent.
type Option func(*Agent)

// WithGate sets the validation gate for consequential tool calls. Without
// one every consequential call is rejected.
func WithGate(g approval.Gate) Option {
	return func(a *Agent) { a.gate = g }
}

// WithDetector replaces the default termination rule table.
func WithDetector(d *termination.Detector) Option {
	return func(a *Agent) { a.detector = d }
}

func WithLogger(l log.Logger) Option {
	return func(a *Agent) { a.logger = logging.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithEventBuffer sets the capacity of each run's event channel.
func WithEventBuffer(n int) Option {
	return func(a *Agent) { a.buffer = n }
}

// New creates an Agent.
func New(client llm.Client, runner ToolRunner, opts ...Option) *Agent {
	a := &Agent{
		client:   client,
		tools:    runner,
		gate:     approval.DenyAll{Reason: "no validation gate configured"},
		detector: termination.NewDetector(),
		logger:   logging.Nop(),
		now:      time.Now,
		buffer:   defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the loop over a copy of initial and returns immediately. The
// caller must drain Events until it is closed.
func (a *Agent) Run(ctx context.Context, initial []models.Message, cfg models.LoopConfig) *Run {
	r := &Run{
		agent:    a,
		cfg:      cfg,
		system:   instructions.EnsurePreamble(cfg.SystemPrompt),
		events:   make(chan Event, a.buffer),
		done:     make(chan struct{}),
		messages: append([]models.Message(nil), initial...),
	}
	go r.loop(ctx)
	return r
}

// Run is one invocation of the loop.
type Run struct {
	agent  *Agent
	cfg    models.LoopConfig
	system string
	events chan Event
	done   chan struct{}

	cancelled atomic.Bool

	// Owned by the loop goroutine until done is closed.
	messages       []models.Message
	state          models.AgentState
	hallucinations int
	pending        []models.ToolCall
	results        []models.ToolResult
	outcome        Outcome
}

// Outcome is how a run ended.
type Outcome struct {
	Reason     models.TerminationReason
	Message    string
	RoundCount int
	Err        error
}

// Events returns the event stream. It is closed exactly once, after the
// final agent_complete or error event.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Cancel asks the loop to stop. The request is observed at the next round
// boundary; an in-flight model call or tool execution finishes first.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Done is closed when the loop has stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Messages returns the conversation including every message the run
// appended. It blocks until the loop has stopped.
func (r *Run) Messages() []models.Message {
	<-r.done
	return append([]models.Message(nil), r.messages...)
}

// Outcome blocks until the loop has stopped and reports how it ended.
func (r *Run) Outcome() Outcome {
	<-r.done
	return r.outcome
}

type step int

const (
	stepRound step = iota
	stepExecute
	stepDecide
	stepComplete
)

func (s step) String() string {
	switch s {
	case stepRound:
		return "round"
	case stepExecute:
		return "execute"
	case stepDecide:
		return "decide"
	default:
		return "complete"
	}
}

func (r *Run) loop(ctx context.Context) {
	defer func() {
		r.state.IsActive = false
		close(r.done)
		close(r.events)
	}()

	r.state = models.AgentState{StartTime: r.agent.now(), IsActive: true}
	next := stepRound
	for next != stepComplete {
		r.agent.logger.Debug("Agent loop transition", "step", next.String(), "round", r.state.CurrentRound)
		switch next {
		case stepRound:
			next = r.round(ctx)
		case stepExecute:
			next = r.execute(ctx)
		case stepDecide:
			next = r.decide()
		}
	}
}

// round streams one model response and appends it to the conversation.
func (r *Run) round(ctx context.Context) step {
	if r.cancelled.Load() {
		return r.complete(models.ReasonUserCancel, "run cancelled")
	}
	if err := ctx.Err(); err != nil {
		return r.fail(err)
	}

	r.state.CurrentRound++
	round := r.state.CurrentRound
	r.pending, r.results = nil, nil
	r.emit(Event{Type: EventRoundStart})
	r.agent.logger.Info("Starting round", "round", round, "messages", len(r.messages))

	req := llm.Request{
		Messages: r.messages,
		Tools:    r.agent.tools.Specs(),
		System:   r.system,
		Model:    r.cfg.Model,
	}
	var text strings.Builder
	var calls []models.ToolCall
	// ids of started calls in stream order; an end without an id takes the
	// id of the start it closes
	var started []string
	_, err := r.agent.client.Stream(ctx, req, func(ev llm.StreamEvent) {
		switch ev.Type {
		case llm.EventTextDelta:
			text.WriteString(ev.Text)
			r.emit(Event{Type: EventTextDelta, Text: ev.Text})
		case llm.EventToolUseStart:
			call := ev.Call
			if call.ID == "" {
				call.ID = newCallID()
			}
			started = append(started, call.ID)
			r.emit(Event{Type: EventToolUseStart, Call: &call})
		case llm.EventToolUseEnd:
			call := ev.Call
			if call.ID == "" {
				if i := len(calls); i < len(started) {
					call.ID = started[i]
				} else {
					call.ID = newCallID()
				}
			}
			calls = append(calls, call)
			r.emit(Event{Type: EventToolUseEnd, Call: &call})
		}
	})
	if err != nil {
		return r.fail(err)
	}

	roundText := text.String()
	r.messages = append(r.messages, models.Message{
		Role:         models.RoleAssistant,
		Content:      roundText,
		ToolCalls:    calls,
		SequenceTime: r.agent.now(),
	})
	r.state.LastModelText = roundText
	r.pending = calls

	if len(calls) == 0 && termination.LooksLikeToolInvocation(roundText) && r.mayRetryHallucination() {
		r.hallucinations++
		r.agent.logger.Warn("Model described a tool call instead of making one",
			"round", round, "retry", r.hallucinations)
		r.messages = append(r.messages, models.Message{
			Role:         models.RoleSystem,
			Content:      correctionMessage,
			SequenceTime: r.agent.now(),
		})
		r.endRound(roundText)
		return stepRound
	}

	verdict := r.check(termination.PhaseAfterAIResponse)
	if verdict.ShouldTerminate {
		if len(calls) > 0 {
			r.skipPending(verdict)
		}
		r.endRound(roundText)
		return r.complete(verdict.Reason, verdict.Message)
	}
	if len(calls) > 0 {
		return stepExecute
	}

	r.agent.logger.Info("Continuing without tool calls", "round", round, "reason", string(verdict.Reason))
	r.endRound(roundText)
	return r.continueOrCap()
}

// execute runs the round's tool calls strictly one after another and
// appends a single tool message answering all of them.
func (r *Run) execute(ctx context.Context) step {
	results := make([]models.ToolResult, 0, len(r.pending))
	for _, call := range r.pending {
		r.emit(Event{Type: EventToolExecuting, Call: &call})

		res := r.runTool(ctx, call)
		r.state.Record(models.ToolCallRecord{
			Name:      call.Name,
			InputHash: termination.HashInput(call.Input),
			Success:   !res.IsError,
			Timestamp: res.FinishedAt,
			Round:     r.state.CurrentRound,
		})
		r.agent.logger.Info("Tool executed",
			"tool", call.Name, "call_id", call.ID, "duration", res.Duration, "is_error", res.IsError)

		typ := EventToolExecuted
		if res.IsError {
			typ = EventToolError
		}
		result := res
		r.emit(Event{Type: typ, Call: &call, Result: &result})
		results = append(results, res)
	}

	r.results = results
	r.messages = append(r.messages, models.Message{
		Role:         models.RoleTool,
		Content:      resultSummary(results),
		ToolResults:  results,
		SequenceTime: r.agent.now(),
	})
	return stepDecide
}

// decide consults the detector after tools ran and observes cancellation.
func (r *Run) decide() step {
	verdict := r.check(termination.PhaseAfterToolExecution)
	r.endRound(r.state.LastModelText)
	if verdict.ShouldTerminate {
		return r.complete(verdict.Reason, verdict.Message)
	}
	if r.cancelled.Load() {
		return r.complete(models.ReasonUserCancel, "run cancelled")
	}
	return r.continueOrCap()
}

// runTool validates a consequential call and then executes it. A rejected
// call never reaches the executor.
func (r *Run) runTool(ctx context.Context, call models.ToolCall) models.ToolResult {
	if r.agent.tools.IsConsequential(call) {
		decision, err := r.agent.gate.Validate(ctx, approval.NewRequest(call))
		switch {
		case err != nil:
			r.agent.logger.Warn("Validation failed", "tool", call.Name, "call_id", call.ID, "error", err)
			return r.errorResult(call, fmt.Sprintf("Error: could not validate %s: %v", call.Name, err))
		case !decision.Approved:
			r.agent.logger.Info("Tool call rejected",
				"tool", call.Name, "call_id", call.ID, "reason", decision.Reason, "risk", string(decision.RiskLevel))
			return r.errorResult(call, fmt.Sprintf("Rejected: %s was not run: %s", call.Name, decision.Reason))
		}
	}
	return r.agent.tools.Execute(ctx, call)
}

func (r *Run) errorResult(call models.ToolCall, content string) models.ToolResult {
	now := r.agent.now()
	return models.ToolResult{
		ToolUseID:  call.ID,
		Name:       call.Name,
		Content:    content,
		IsError:    true,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// skipPending answers calls that will not run because the loop is stopping,
// so the assistant message still has its tool message.
func (r *Run) skipPending(verdict models.TerminationResult) {
	results := make([]models.ToolResult, 0, len(r.pending))
	for _, call := range r.pending {
		results = append(results, r.errorResult(call,
			fmt.Sprintf("Not run: the loop stopped (%s).", verdict.Reason)))
	}
	r.results = results
	r.messages = append(r.messages, models.Message{
		Role:         models.RoleTool,
		Content:      resultSummary(results),
		ToolResults:  results,
		SequenceTime: r.agent.now(),
	})
}

func (r *Run) mayRetryHallucination() bool {
	if limit := r.cfg.MaxHallucinationRetries; limit > 0 && r.hallucinations >= limit {
		return false
	}
	return !r.atRoundCap()
}

func (r *Run) atRoundCap() bool {
	return r.cfg.Termination.MaxRounds > 0 && r.state.CurrentRound >= r.cfg.Termination.MaxRounds
}

// continueOrCap starts another round unless the round cap is reached. The
// detector's text rules can ask to continue without reaching its own cap
// rule, so the cap is enforced here as well.
func (r *Run) continueOrCap() step {
	if r.atRoundCap() {
		return r.complete(models.ReasonMaxRounds,
			fmt.Sprintf("reached the maximum of %d rounds", r.cfg.Termination.MaxRounds))
	}
	return stepRound
}

func (r *Run) check(phase termination.Phase) models.TerminationResult {
	return r.agent.detector.Check(termination.Input{
		State:     &r.state,
		ToolCalls: r.pending,
		Results:   r.results,
		Config:    r.cfg.Termination,
		Phase:     phase,
		ToolNames: r.agent.tools.Names(),
		Now:       r.agent.now(),
	})
}

func (r *Run) endRound(text string) {
	r.agent.logger.Info("Round finished",
		"round", r.state.CurrentRound, "text_length", len(text), "tool_calls", len(r.pending))
	r.emit(Event{Type: EventRoundEnd, Text: text})
}

func (r *Run) complete(reason models.TerminationReason, message string) step {
	r.outcome = Outcome{Reason: reason, Message: message, RoundCount: r.state.CurrentRound}
	r.agent.logger.Info("Agent loop complete",
		"reason", string(reason), "round", r.state.CurrentRound, "message", message)
	r.emit(Event{
		Type:       EventAgentComplete,
		Reason:     reason,
		RoundCount: r.state.CurrentRound,
		Message:    message,
	})
	return stepComplete
}

func (r *Run) fail(err error) step {
	r.outcome = Outcome{RoundCount: r.state.CurrentRound, Err: err}
	r.agent.logger.Error("Agent loop failed", "round", r.state.CurrentRound, "error", err)
	r.emit(Event{Type: EventError, Err: err, Message: err.Error()})
	return stepComplete
}

func (r *Run) emit(ev Event) {
	ev.Round = r.state.CurrentRound
	r.events <- ev
}

// resultSummary is the tool message's own text, e.g. "shell: ok; read_file: error".
func resultSummary(results []models.ToolResult) string {
	parts := make([]string, len(results))
	for i, res := range results {
		status := "ok"
		if res.IsError {
			status = "error"
		}
		parts[i] = res.Name + ": " + status
	}
	return strings.Join(parts, "; ")
}

func newCallID() string {
	return "call_" + uuid.NewString()
}
