package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ToolHandler is the interface for tool implementations.
type ToolHandler interface {
	// Name returns the tool's name.
	Name() string

	// Kind returns the tool handler kind (Function, Mcp).
	Kind() ToolKind

	// IsMutating returns whether this invocation may have externally
	// consequential effects. Mutating invocations pass the validation gate
	// before they run.
	IsMutating(invocation *ToolInvocation) bool

	// Handle executes the tool with the given invocation context.
	Handle(ctx context.Context, invocation *ToolInvocation) (*ToolOutput, error)
}

type registryEntry struct {
	handler ToolHandler
	spec    ToolSpec
}

// ToolRegistry stores tool handlers and their specs by name.
type ToolRegistry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{entries: make(map[string]registryEntry)}
}

// Register registers a handler together with the spec advertised to the
// model. The spec name wins over the handler name when they differ.
func (r *ToolRegistry) Register(handler ToolHandler, spec ToolSpec) {
	if spec.Name == "" {
		spec.Name = handler.Name()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[spec.Name] = registryEntry{handler: handler, spec: spec}
}

// Unregister removes a tool.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// GetHandler returns a tool handler by name.
func (r *ToolRegistry) GetHandler(name string) (ToolHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return e.handler, nil
}

// Spec returns the spec registered under name.
func (r *ToolRegistry) Spec(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.spec, ok
}

// HasTool checks if a tool is registered.
func (r *ToolRegistry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// ToolCount returns the number of registered tools.
func (r *ToolRegistry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names returns the registered tool names in sorted order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns all registered specs sorted by name.
func (r *ToolRegistry) Specs() []ToolSpec {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.entries[name].spec)
	}
	return specs
}
