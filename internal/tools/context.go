package tools

import "encoding/json"

// ToolKind classifies the type of tool handler.
type ToolKind int

const (
	ToolKindFunction ToolKind = iota // Built-in function tool
	ToolKindMcp                      // Tool served by an MCP server
)

// ToolOutput represents the result of tool execution.
type ToolOutput struct {
	Content string `json:"content"`
	Success *bool  `json:"success,omitempty"`

	// TaskComplete marks the output as the "task is finished" signal.
	TaskComplete bool `json:"task_complete,omitempty"`
}

// Failed reports whether the output is marked unsuccessful.
func (o *ToolOutput) Failed() bool {
	return o.Success != nil && !*o.Success
}

// NewOutput builds a ToolOutput with an explicit success flag.
func NewOutput(content string, success bool) *ToolOutput {
	return &ToolOutput{Content: content, Success: &success}
}

// ToolInvocation provides context for tool execution.
type ToolInvocation struct {
	CallID    string                 `json:"call_id"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`
	RawInput  json.RawMessage        `json:"raw_input,omitempty"`
	Cwd       string                 `json:"cwd,omitempty"`
}

// StringArg returns a required non-empty string argument.
func (inv *ToolInvocation) StringArg(name string) (string, error) {
	v, ok := inv.Arguments[name]
	if !ok {
		return "", NewValidationErrorf("missing required argument: %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", NewValidationErrorf("%s must be a string", name)
	}
	if s == "" {
		return "", NewValidationErrorf("%s cannot be empty", name)
	}
	return s, nil
}

// IntArg returns an optional integer argument, or def when absent.
func (inv *ToolInvocation) IntArg(name string, def int) (int, error) {
	v, ok := inv.Arguments[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, NewValidationErrorf("%s must be an integer", name)
	}
}

// BoolArg returns an optional boolean argument, or false when absent.
func (inv *ToolInvocation) BoolArg(name string) bool {
	b, _ := inv.Arguments[name].(bool)
	return b
}
