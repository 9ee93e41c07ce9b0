package handlers

import "github.com/mfateev/temporal-agent-loop/internal/tools"

// RegisterBuiltins registers shell, read_file, list_dir and task_complete.
func RegisterBuiltins(reg *tools.ToolRegistry, shellOpts ...ShellOption) {
	reg.Register(NewShellTool(shellOpts...), tools.NewShellToolSpec())
	reg.Register(NewReadFileTool(), tools.NewReadFileToolSpec())
	reg.Register(NewListDirTool(), tools.NewListDirToolSpec())
	reg.Register(NewTaskCompleteTool(), tools.NewTaskCompleteToolSpec())
}
