// Package workflow contains the durable session workflow. Each user turn
// loads the stored history, lets the context manager keep it inside the
// model's budget, runs one agent loop over the effective history and saves
// the result.
package workflow

import (
	"time"

	"github.com/mfateev/temporal-agent-loop/internal/models"
)

// Handler name constants for Temporal query and update handlers.
const (
	// QueryGetStatus returns the session phase and the last turn result.
	QueryGetStatus = "get_status"

	// UpdateUserInput queues a user message as a new turn.
	UpdateUserInput = "user_input"

	// UpdateShutdown ends the session once queued turns have run.
	UpdateShutdown = "shutdown"

	// UpdateModel switches the model used from the next turn on.
	UpdateModel = "update_model"
)

// DefaultIdleTimeout ends a session that receives no input.
const DefaultIdleTimeout = 24 * time.Hour

// EndReason values reported in SessionResult.
const (
	EndShutdown = "shutdown"
	EndIdle     = "idle"
)

// TurnPhase is what the session is doing right now.
type TurnPhase string

const (
	PhaseWaitingForInput TurnPhase = "waiting_for_input"
	PhaseLoadingHistory  TurnPhase = "loading_history"
	PhaseManagingContext TurnPhase = "managing_context"
	PhaseRunningLoop     TurnPhase = "running_loop"
	PhaseSavingHistory   TurnPhase = "saving_history"
)

// SessionInput starts (or continues) a session.
type SessionInput struct {
	SessionID string             `json:"session_id"`
	Model     models.ModelConfig `json:"model"`
	Loop      models.LoopConfig  `json:"loop"`

	// Context holds the thresholds; the window is resolved per turn from the
	// active model.
	Context models.ContextConfig `json:"context"`

	// SystemPrompt replaces the default guidance when non-empty.
	SystemPrompt  string        `json:"system_prompt,omitempty"`
	InitialPrompt string        `json:"initial_prompt,omitempty"`
	IdleTimeout   time.Duration `json:"idle_timeout,omitempty"`

	// Carried across continue-as-new.
	Pending   []string    `json:"pending,omitempty"`
	TurnCount int         `json:"turn_count,omitempty"`
	LastTurn  *TurnResult `json:"last_turn,omitempty"`
}

// SessionResult is returned when the session ends.
type SessionResult struct {
	SessionID string      `json:"session_id"`
	Turns     int         `json:"turns"`
	EndReason string      `json:"end_reason"`
	LastTurn  *TurnResult `json:"last_turn,omitempty"`
}

// TurnResult describes one completed user turn.
type TurnResult struct {
	Turn       int                      `json:"turn"`
	Prompt     string                   `json:"prompt"`
	Text       string                   `json:"text,omitempty"`
	Reason     models.TerminationReason `json:"reason,omitempty"`
	Message    string                   `json:"message,omitempty"`
	Rounds     int                      `json:"rounds"`
	ToolCalls  int                      `json:"tool_calls"`
	ToolErrors int                      `json:"tool_errors"`

	ContextManaged bool    `json:"context_managed,omitempty"`
	UsageBefore    float64 `json:"usage_before"`
	UsageAfter     float64 `json:"usage_after"`
	SummaryError   string  `json:"summary_error,omitempty"`

	// Error is set when the turn could not run to a verdict.
	Error string `json:"error,omitempty"`
}

// SessionStatus is the response of the get_status query.
type SessionStatus struct {
	SessionID string             `json:"session_id"`
	Phase     TurnPhase          `json:"phase"`
	Model     models.ModelConfig `json:"model"`
	TurnCount int                `json:"turn_count"`
	Pending   int                `json:"pending"`
	Shutdown  bool               `json:"shutdown"`
	LastTurn  *TurnResult        `json:"last_turn,omitempty"`
}

// UserInput is the payload of the user_input update.
type UserInput struct {
	Content string `json:"content"`
}

// UserInputAccepted is returned by the user_input update.
type UserInputAccepted struct {
	// Turn is the number the queued message will run as.
	Turn int `json:"turn"`
}

// ShutdownRequest is the payload of the shutdown update.
type ShutdownRequest struct{}

// ShutdownResponse is returned by the shutdown update.
type ShutdownResponse struct {
	Pending int `json:"pending"`
}

// UpdateModelRequest is the payload of the update_model update.
type UpdateModelRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// UpdateModelResponse is returned by the update_model update.
type UpdateModelResponse struct {
	Previous models.ModelConfig `json:"previous"`
}

// session is the workflow's in-memory state for one run.
type session struct {
	id         string
	model      models.ModelConfig
	loop       models.LoopConfig
	context    models.ContextConfig
	basePrompt string
	idle       time.Duration

	// systemPrompt is built on the worker once per run and per model.
	systemPrompt string

	phase     TurnPhase
	pending   []string
	turnCount int
	shutdown  bool
	lastTurn  *TurnResult
}

func newSession(in SessionInput) *session {
	idle := in.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	s := &session{
		id:         in.SessionID,
		model:      in.Model,
		loop:       in.Loop,
		context:    in.Context,
		basePrompt: in.SystemPrompt,
		idle:       idle,
		phase:      PhaseWaitingForInput,
		pending:    append([]string(nil), in.Pending...),
		turnCount:  in.TurnCount,
		lastTurn:   in.LastTurn,
	}
	if in.InitialPrompt != "" {
		s.pending = append(s.pending, in.InitialPrompt)
	}
	return s
}

func (s *session) status() SessionStatus {
	return SessionStatus{
		SessionID: s.id,
		Phase:     s.phase,
		Model:     s.model,
		TurnCount: s.turnCount,
		Pending:   len(s.pending),
		Shutdown:  s.shutdown,
		LastTurn:  s.lastTurn,
	}
}

// continueInput carries the session into a fresh run.
func (s *session) continueInput() SessionInput {
	return SessionInput{
		SessionID:    s.id,
		Model:        s.model,
		Loop:         s.loop,
		Context:      s.context,
		SystemPrompt: s.basePrompt,
		IdleTimeout:  s.idle,
		Pending:      s.pending,
		TurnCount:    s.turnCount,
		LastTurn:     s.lastTurn,
	}
}
