package handlers

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mfateev/temporal-agent-loop/internal/tools"
)

const maxLineLength = 2000

// ReadFileTool reads file contents with optional offset/limit.
type ReadFileTool struct{}

// NewReadFileTool creates a new read file tool handler.
func NewReadFileTool() *ReadFileTool {
	return &ReadFileTool{}
}

// Name returns the tool's name.
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Kind returns ToolKindFunction.
func (t *ReadFileTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns false - reading files doesn't modify the environment.
func (t *ReadFileTool) IsMutating(*tools.ToolInvocation) bool {
	return false
}

// Handle reads a file and returns its contents with line numbers.
func (t *ReadFileTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	path, err := invocation.StringArg("path")
	if err != nil {
		return nil, err
	}
	offset, err := invocation.IntArg("offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := invocation.IntArg("limit", -1)
	if err != nil {
		return nil, err
	}
	path = resolvePath(invocation.Cwd, path)

	file, err := os.Open(path)
	if err != nil {
		return tools.NewOutput(fmt.Sprintf("Failed to open file: %v", err), false), nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var result strings.Builder
	lineNum, linesRead := 0, 0

	for lineNum < offset && scanner.Scan() {
		lineNum++
	}
	for scanner.Scan() {
		if limit > 0 && linesRead >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Text()
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "... (truncated)"
		}
		fmt.Fprintf(&result, "%6d\t%s\n", lineNum+1, line)
		lineNum++
		linesRead++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	content := result.String()
	if content == "" {
		if offset > 0 {
			content = fmt.Sprintf("(file has fewer than %d lines)", offset)
		} else {
			content = "(empty file)"
		}
	}

	// The path header keeps the model oriented when several reads share a round.
	return tools.NewOutput(fmt.Sprintf("File: %s\n%s", path, content), true), nil
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) || cwd == "" {
		return path
	}
	return filepath.Join(cwd, path)
}
