package handlers

import (
	"context"

	"github.com/mfateev/temporal-agent-loop/internal/mcp"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

// MCPTool forwards calls for one MCP tool to its server.
type MCPTool struct {
	manager *mcp.Manager
	tool    mcp.Tool
}

// NewMCPTool creates a handler for a discovered MCP tool.
func NewMCPTool(manager *mcp.Manager, tool mcp.Tool) *MCPTool {
	return &MCPTool{manager: manager, tool: tool}
}

func (h *MCPTool) Name() string {
	return h.tool.QualifiedName
}

func (h *MCPTool) Kind() tools.ToolKind {
	return tools.ToolKindMcp
}

// IsMutating trusts the server's read-only annotation and assumes
// everything else mutates.
func (h *MCPTool) IsMutating(*tools.ToolInvocation) bool {
	return !h.tool.ReadOnly
}

func (h *MCPTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	res, err := h.manager.Call(ctx, h.tool.Server, h.tool.Name, invocation.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tools.NewTransientError(err)
	}
	return tools.NewOutput(res.Text, !res.IsError), nil
}

// MCPToolSpec converts a discovered tool into a spec carrying its raw schema.
func MCPToolSpec(t mcp.Tool) tools.ToolSpec {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return tools.ToolSpec{
		Name:        t.QualifiedName,
		Description: t.Description,
		RawSchema:   schema,
	}
}

// RegisterMCPTools registers every tool the manager discovered.
func RegisterMCPTools(reg *tools.ToolRegistry, manager *mcp.Manager) int {
	n := 0
	for _, t := range manager.Tools() {
		reg.Register(NewMCPTool(manager, t), MCPToolSpec(t))
		n++
	}
	return n
}
