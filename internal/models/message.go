// Package models contains the shared data model for the agent loop: messages,
// tool calls and results, token accounting, and immutable configuration values.
package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry of a session's conversation history.
//
// Compaction tags:
//   - IsSummary/CondenseID mark a summary produced by compaction.
//   - CondenseParent points at the summary that subsumed this message. A
//     message with CondenseParent set is never sent to the model again.
//   - IsTruncationMarker/TruncationID mark the marker produced by truncation.
//   - TruncationParent points at the marker that replaced this message.
type Message struct {
	Role         Role      `json:"role"`
	Content      string    `json:"content"`
	SequenceTime time.Time `json:"sequence_time"`

	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults is set on the single synthetic tool message of a round.
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	IsSummary          bool   `json:"is_summary,omitempty"`
	CondenseID         string `json:"condense_id,omitempty"`
	CondenseParent     string `json:"condense_parent,omitempty"`
	IsTruncationMarker bool   `json:"is_truncation_marker,omitempty"`
	TruncationID       string `json:"truncation_id,omitempty"`
	TruncationParent   string `json:"truncation_parent,omitempty"`
}

// Subsumed reports whether the message was replaced by a summary or a
// truncation marker.
func (m Message) Subsumed() bool {
	return m.CondenseParent != "" || m.TruncationParent != ""
}

// IsMarker reports whether the message is a summary or truncation marker.
func (m Message) IsMarker() bool {
	return m.IsSummary || m.IsTruncationMarker
}

// CallIDs returns the ids of the tool calls carried by an assistant message.
func (m Message) CallIDs() []string {
	ids := make([]string, 0, len(m.ToolCalls))
	for _, c := range m.ToolCalls {
		ids = append(ids, c.ID)
	}
	return ids
}

// ResultIDs returns the tool_use ids answered by a tool message.
func (m Message) ResultIDs() []string {
	ids := make([]string, 0, len(m.ToolResults))
	for _, r := range m.ToolResults {
		ids = append(ids, r.ToolUseID)
	}
	return ids
}

// ToolCall is a tool invocation requested by the model during one round.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Arguments decodes Input into a generic argument map. Empty input decodes to
// an empty map.
func (c ToolCall) Arguments() (map[string]interface{}, error) {
	args := make(map[string]interface{})
	if len(c.Input) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(c.Input, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	ToolUseID string        `json:"tool_use_id"`
	Name      string        `json:"name"`
	Content   string        `json:"content"`
	IsError   bool          `json:"is_error"`
	Duration  time.Duration `json:"duration"`

	// TaskComplete is set by tools that signal the task is finished.
	TaskComplete bool `json:"task_complete,omitempty"`

	// StartedAt and FinishedAt bracket the execution.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// TokenUsage is a point-in-time token estimate for a message set. It is
// always recomputed from the full set; never updated incrementally.
type TokenUsage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read"`
	CacheWrite int `json:"cache_write"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.Input + u.Output
}
