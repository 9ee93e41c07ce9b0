package handlers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfateev/temporal-agent-loop/internal/mcp"
	"github.com/mfateev/temporal-agent-loop/internal/sandbox"
	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

func invocation(args map[string]interface{}) *tools.ToolInvocation {
	return &tools.ToolInvocation{CallID: "call-1", Arguments: args}
}

func TestShellTool_IsMutating(t *testing.T) {
	tool := NewShellTool()
	cases := map[string]bool{
		"ls -la":            false,
		"git status":        false,
		"rm -rf /tmp/test":  true,
		"git push --force":  true,
		"make build":        true,
		"cat a.txt | wc -l": false,
		"echo hi > out.txt": true,
	}
	for command, want := range cases {
		assert.Equal(t, want, tool.IsMutating(invocation(map[string]interface{}{"command": command})), command)
	}
	assert.True(t, tool.IsMutating(invocation(map[string]interface{}{})), "missing command is mutating")
}

func TestShellTool_Handle_Success(t *testing.T) {
	out, err := NewShellTool().Handle(context.Background(), invocation(map[string]interface{}{"command": "echo hello"}))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.Content)
	assert.False(t, out.Failed())
}

func TestShellTool_Handle_NonZeroExit(t *testing.T) {
	out, err := NewShellTool().Handle(context.Background(), invocation(map[string]interface{}{"command": "echo bad >&2; exit 2"}))
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Content, "bad")
	assert.Contains(t, out.Content, "[exit code 2]")
}

func TestShellTool_Handle_Truncates(t *testing.T) {
	tool := NewShellTool(WithMaxOutputBytes(10))
	out, err := tool.Handle(context.Background(), invocation(map[string]interface{}{"command": "printf '%0100d' 0"}))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Content, "0000000000"))
	assert.Contains(t, out.Content, "[output truncated]")
}

func TestShellTool_Handle_UsesCwd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644))
	inv := invocation(map[string]interface{}{"command": "ls"})
	inv.Cwd = dir
	out, err := NewShellTool().Handle(context.Background(), inv)
	require.NoError(t, err)
	assert.Contains(t, out.Content, "marker.txt")
}

func TestShellTool_Handle_ValidationErrors(t *testing.T) {
	_, err := NewShellTool().Handle(context.Background(), invocation(map[string]interface{}{}))
	assert.True(t, tools.IsValidationError(err))

	_, err = NewShellTool().Handle(context.Background(), invocation(map[string]interface{}{"command": 5}))
	assert.True(t, tools.IsValidationError(err))
}

func TestShellTool_Handle_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := NewShellTool().Handle(ctx, invocation(map[string]interface{}{"command": "sleep 5"}))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// echoWrapper replaces the command with one that prints what it was given.
type echoWrapper struct{}

func (echoWrapper) Name() string { return "echo" }

func (echoWrapper) Wrap(argv []string, cwd string, p sandbox.Policy) ([]string, error) {
	return []string{"echo", string(p.Mode), strings.Join(argv, " ")}, nil
}

func TestShellTool_Sandbox(t *testing.T) {
	tool := NewShellTool(WithSandbox(echoWrapper{}, sandbox.Policy{Mode: sandbox.ModeReadOnly}))
	out, err := tool.Handle(context.Background(), invocation(map[string]interface{}{"command": "rm -rf build"}))
	require.NoError(t, err)
	assert.Equal(t, "read-only bash -c rm -rf build\n", out.Content)
}

func TestShellTool_SandboxUnavailable(t *testing.T) {
	tool := NewShellTool(WithSandbox(sandbox.Passthrough{}, sandbox.Policy{Mode: sandbox.ModeWorkspaceWrite}))
	_, err := tool.Handle(context.Background(), invocation(map[string]interface{}{"command": "ls"}))
	assert.ErrorIs(t, err, sandbox.ErrUnavailable)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadFile_NumbersLines(t *testing.T) {
	path := writeTempFile(t, "alpha\nbeta\ngamma\n")
	out, err := NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.Equal(t, "File: "+path+"\n     1\talpha\n     2\tbeta\n     3\tgamma\n", out.Content)
}

func TestReadFile_OffsetAndLimit(t *testing.T) {
	path := writeTempFile(t, "1\n2\n3\n4\n5\n")
	out, err := NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{
		"path": path, "offset": float64(1), "limit": float64(2),
	}))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "     2\t2\n")
	assert.Contains(t, out.Content, "     3\t3\n")
	assert.NotContains(t, out.Content, "\t4\n")
}

func TestReadFile_EmptyAndShort(t *testing.T) {
	path := writeTempFile(t, "")
	out, err := NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{"path": path}))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "(empty file)")

	path = writeTempFile(t, "one\n")
	out, err = NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{"path": path, "offset": float64(5)}))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "(file has fewer than 5 lines)")
}

func TestReadFile_Errors(t *testing.T) {
	_, err := NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{}))
	assert.True(t, tools.IsValidationError(err))

	_, err = NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{"path": "x", "offset": "a"}))
	assert.True(t, tools.IsValidationError(err))

	out, err := NewReadFileTool().Handle(context.Background(), invocation(map[string]interface{}{"path": "/nonexistent/file.txt"}))
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Content, "Failed to open file")
}

func TestReadFile_RelativeToCwd(t *testing.T) {
	path := writeTempFile(t, "hi\n")
	inv := invocation(map[string]interface{}{"path": filepath.Base(path)})
	inv.Cwd = filepath.Dir(path)
	out, err := NewReadFileTool().Handle(context.Background(), inv)
	require.NoError(t, err)
	assert.False(t, out.Failed())
	assert.Contains(t, out.Content, "\thi\n")
}

func TestListDir_Depth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "deeper"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "deeper", "c.txt"), nil, 0o644))

	out, err := NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": dir}))
	require.NoError(t, err)
	lines := strings.Split(out.Content, "\n")
	assert.Equal(t, []string{"Absolute path: " + dir, "a.txt", "sub/"}, lines)

	out, err = NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": dir, "depth": float64(2)}))
	require.NoError(t, err)
	lines = strings.Split(out.Content, "\n")
	assert.Equal(t, []string{"Absolute path: " + dir, "a.txt", "sub/", "  b.txt", "  deeper/"}, lines)
}

func TestListDir_Limit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	out, err := NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": dir, "limit": float64(2)}))
	require.NoError(t, err)
	assert.Contains(t, out.Content, "More than 2 entries found")
	assert.NotContains(t, out.Content, "\nc")
}

func TestListDir_Errors(t *testing.T) {
	_, err := NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": "/tmp", "depth": float64(0)}))
	assert.True(t, tools.IsValidationError(err))

	out, err := NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": "/definitely/not/here"}))
	require.NoError(t, err)
	assert.True(t, out.Failed())

	file := writeTempFile(t, "x")
	out, err = NewListDirTool().Handle(context.Background(), invocation(map[string]interface{}{"path": file}))
	require.NoError(t, err)
	assert.True(t, out.Failed())
	assert.Contains(t, out.Content, "Not a directory")
}

func TestTaskComplete(t *testing.T) {
	out, err := NewTaskCompleteTool().Handle(context.Background(), invocation(map[string]interface{}{"summary": "done it"}))
	require.NoError(t, err)
	assert.True(t, out.TaskComplete)
	assert.Equal(t, "done it", out.Content)
	assert.False(t, NewTaskCompleteTool().IsMutating(nil))
}

func TestRegisterBuiltins(t *testing.T) {
	reg := tools.NewToolRegistry()
	RegisterBuiltins(reg)
	assert.Equal(t, []string{"list_dir", "read_file", "shell", "task_complete"}, reg.Names())
}

func TestMCPTool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := gomcp.NewServer(&gomcp.Implementation{Name: "srv", Version: "1.0.0"}, nil)
	server.AddTool(&gomcp.Tool{
		Name:        "lookup",
		Description: "Look something up",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{"q": map[string]any{"type": "string"}}},
		Annotations: &gomcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: "found"}}}, nil
	})
	serverTransport, clientTransport := gomcp.NewInMemoryTransports()
	go func() { _ = server.Run(ctx, serverTransport) }()

	session, err := gomcp.NewClient(&gomcp.Implementation{Name: "c", Version: "1.0.0"}, nil).Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	listed, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	mgr := mcp.NewManager(nil)
	defer mgr.Close()
	mgr.AddSession("kb", session, mcp.ServerConfig{}, listed.Tools)

	reg := tools.NewToolRegistry()
	require.Equal(t, 1, RegisterMCPTools(reg, mgr))

	spec, ok := reg.Spec("mcp__kb__lookup")
	require.True(t, ok)
	assert.Equal(t, "Look something up", spec.Description)
	assert.Contains(t, spec.Properties(), "q")

	handler, err := reg.GetHandler("mcp__kb__lookup")
	require.NoError(t, err)
	assert.Equal(t, tools.ToolKindMcp, handler.Kind())
	assert.False(t, handler.IsMutating(nil))

	out, err := handler.Handle(ctx, invocation(map[string]interface{}{"q": "x"}))
	require.NoError(t, err)
	assert.Equal(t, "found", out.Content)
	assert.False(t, out.Failed())
}
