package agent

import "github.com/mfateev/temporal-agent-loop/internal/models"

// EventType names an event on a run's event stream.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolUseStart  EventType = "tool_use_start"
	EventToolUseEnd    EventType = "tool_use_end"
	EventToolExecuting EventType = "tool_executing"
	EventToolExecuted  EventType = "tool_executed"
	EventToolError     EventType = "tool_error"
	EventRoundStart    EventType = "round_start"
	EventRoundEnd      EventType = "round_end"
	EventAgentComplete EventType = "agent_complete"
	EventError         EventType = "error"
)

// Event is one entry of the event stream. Which fields are set depends on
// Type:
//
//	text_delta                         Text
//	tool_use_start, tool_use_end       Call (Input is empty on start)
//	tool_executing                     Call
//	tool_executed, tool_error          Call, Result
//	round_end                          Text (the round's full text)
//	agent_complete                     Reason, RoundCount, Message
//	error                              Err, Message
//
// Round is set on every event.
type Event struct {
	Type  EventType
	Round int

	Text   string
	Call   *models.ToolCall
	Result *models.ToolResult

	Reason     models.TerminationReason
	RoundCount int
	Message    string
	Err        error
}
