package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

const (
	listDirDefaultDepth = 1
	listDirDefaultLimit = 200
)

// ListDirTool lists directory entries down to a given depth.
type ListDirTool struct{}

// NewListDirTool creates a new list_dir tool handler.
func NewListDirTool() *ListDirTool {
	return &ListDirTool{}
}

// Name returns the tool's name.
func (t *ListDirTool) Name() string {
	return "list_dir"
}

// Kind returns ToolKindFunction.
func (t *ListDirTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns false - listing directories doesn't modify the environment.
func (t *ListDirTool) IsMutating(*tools.ToolInvocation) bool {
	return false
}

// Handle walks the directory and prints one entry per line, indented by
// depth. Directories end in "/" and symlinks in "@".
func (t *ListDirTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	root, err := invocation.StringArg("path")
	if err != nil {
		return nil, err
	}
	depth, err := invocation.IntArg("depth", listDirDefaultDepth)
	if err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, tools.NewValidationError("depth must be greater than zero")
	}
	limit, err := invocation.IntArg("limit", listDirDefaultLimit)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, tools.NewValidationError("limit must be greater than zero")
	}
	root = resolvePath(invocation.Cwd, root)

	info, err := os.Stat(root)
	if err != nil {
		return tools.NewOutput(fmt.Sprintf("Failed to list directory: %v", err), false), nil
	}
	if !info.IsDir() {
		return tools.NewOutput(fmt.Sprintf("Not a directory: %s", root), false), nil
	}

	var lines []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		level := strings.Count(rel, string(filepath.Separator))
		if level >= depth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		lines = append(lines, rel+"\x00"+strings.Repeat("  ", level)+d.Name()+entrySuffix(d))
		if d.IsDir() && level+1 >= depth {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(lines)
	out := []string{fmt.Sprintf("Absolute path: %s", absOrSelf(root))}
	for i, l := range lines {
		if i >= limit {
			out = append(out, fmt.Sprintf("More than %d entries found", limit))
			break
		}
		out = append(out, l[strings.IndexByte(l, 0)+1:])
	}
	return tools.NewOutput(strings.Join(out, "\n"), true), nil
}

func entrySuffix(d fs.DirEntry) string {
	switch {
	case d.Type()&fs.ModeSymlink != 0:
		return "@"
	case d.IsDir():
		return "/"
	default:
		return ""
	}
}

func absOrSelf(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
