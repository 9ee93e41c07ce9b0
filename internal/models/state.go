package models

import "time"

// ToolCallRecord is an append-only entry of the tool call history, used for
// repeat and failure pattern detection.
type ToolCallRecord struct {
	Name      string    `json:"name"`
	InputHash string    `json:"input_hash"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Round     int       `json:"round"`
}

// AgentState is the per-invocation state of the agent loop. It lives only as
// long as one Run and is discarded when the loop completes, errors, or is
// cancelled.
type AgentState struct {
	CurrentRound    int              `json:"current_round"`
	StartTime       time.Time        `json:"start_time"`
	ToolCallHistory []ToolCallRecord `json:"tool_call_history"`
	LastModelText   string           `json:"last_model_text"`
	IsActive        bool             `json:"is_active"`
}

// Record appends a tool call record. Existing records are never modified.
func (s *AgentState) Record(r ToolCallRecord) {
	s.ToolCallHistory = append(s.ToolCallHistory, r)
}

// RecentRecords returns up to n of the most recent records.
func (s *AgentState) RecentRecords(n int) []ToolCallRecord {
	return lastN(s.ToolCallHistory, n)
}

// RecordsBefore returns up to n of the most recent records created before
// the given round.
func (s *AgentState) RecordsBefore(round, n int) []ToolCallRecord {
	end := len(s.ToolCallHistory)
	for end > 0 && s.ToolCallHistory[end-1].Round >= round {
		end--
	}
	return lastN(s.ToolCallHistory[:end], n)
}

func lastN(records []ToolCallRecord, n int) []ToolCallRecord {
	if n <= 0 {
		return nil
	}
	if len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}
