// Package tools provides tool specifications, the handler registry, and the
// executor that turns a model's tool call into a ToolResult.
package tools

// Default timeouts in milliseconds.
const (
	DefaultShellTimeoutMs    = 10_000  // 10s
	DefaultReadFileTimeoutMs = 30_000  // 30s
	DefaultToolTimeoutMs     = 120_000 // 2min, fallback for tools without a default
)

// ToolSpec defines the specification for a tool (sent to the model).
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`

	// RawSchema, if set, is sent instead of the schema built from Parameters.
	// MCP tools carry their server-provided JSON schema here.
	RawSchema map[string]interface{} `json:"raw_schema,omitempty"`

	// DefaultTimeoutMs bounds execution when the call carries no timeout_ms.
	DefaultTimeoutMs int64 `json:"-"`
}

// ToolParameter defines a parameter for a tool.
type ToolParameter struct {
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Required    bool                   `json:"required"`
	Items       map[string]interface{} `json:"items,omitempty"` // element schema for array parameters
}

// JSONSchema returns the object schema describing the tool's input.
func (s ToolSpec) JSONSchema() map[string]interface{} {
	if s.RawSchema != nil {
		return s.RawSchema
	}
	properties := make(map[string]interface{}, len(s.Parameters))
	required := make([]string, 0)
	for _, p := range s.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Items != nil {
			prop["items"] = p.Items
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Properties returns the "properties" member of the schema.
func (s ToolSpec) Properties() map[string]interface{} {
	props, _ := s.JSONSchema()["properties"].(map[string]interface{})
	return props
}

// RequiredParams returns the "required" member of the schema.
func (s ToolSpec) RequiredParams() []string {
	switch v := s.JSONSchema()["required"].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// NewShellToolSpec creates the specification for the shell tool.
func NewShellToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "shell",
		Description: "Execute a shell command with bash -c and return its combined output.",
		Parameters: []ToolParameter{
			{Name: "command", Type: "string", Description: "The shell command to execute", Required: true},
			{Name: "timeout_ms", Type: "number", Description: "Timeout in milliseconds. Defaults to 10000 (10s). Use longer timeouts for builds and test suites."},
			{Name: "tty", Type: "boolean", Description: "Run the command attached to a pseudo-terminal (for programs that require one)."},
		},
		DefaultTimeoutMs: DefaultShellTimeoutMs,
	}
}

// NewReadFileToolSpec creates the specification for the read_file tool.
func NewReadFileToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "read_file",
		Description: "Read the contents of a file. Returns the file content with line numbers.",
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "The path to the file to read", Required: true},
			{Name: "offset", Type: "integer", Description: "Number of lines to skip before reading (optional)"},
			{Name: "limit", Type: "integer", Description: "Maximum number of lines to read (optional)"},
		},
		DefaultTimeoutMs: DefaultReadFileTimeoutMs,
	}
}

// NewListDirToolSpec creates the specification for the list_dir tool.
func NewListDirToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "list_dir",
		Description: "List the entries of a directory, recursing up to the given depth.",
		Parameters: []ToolParameter{
			{Name: "path", Type: "string", Description: "The directory to list", Required: true},
			{Name: "depth", Type: "integer", Description: "How many levels to descend (default 1)"},
			{Name: "limit", Type: "integer", Description: "Maximum number of entries to return (default 200)"},
		},
		DefaultTimeoutMs: DefaultReadFileTimeoutMs,
	}
}

// NewTaskCompleteToolSpec creates the specification for the task_complete tool.
func NewTaskCompleteToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "task_complete",
		Description: "Call this when the task is fully done. Provide a short summary of what was accomplished.",
		Parameters: []ToolParameter{
			{Name: "summary", Type: "string", Description: "Summary of the completed work", Required: true},
		},
		DefaultTimeoutMs: 1000,
	}
}
