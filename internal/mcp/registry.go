package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ToolHandler executes a tool with its raw JSON arguments.
type ToolHandler func(ctx context.Context, args json.RawMessage) (CallToolResult, error)

// RegisteredTool pairs a tool definition with its handler.
type RegisteredTool struct {
	Definition Tool
	Handler    ToolHandler
}

// Registry holds tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]RegisteredTool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]RegisteredTool)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(tool RegisteredTool) error {
	if tool.Definition.Name == "" || tool.Handler == nil {
		return fmt.Errorf("tool requires a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Definition.Name]; exists {
		return fmt.Errorf("tool %q already registered", tool.Definition.Name)
	}
	r.tools[tool.Definition.Name] = tool
	r.order = append(r.order, tool.Definition.Name)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns every tool definition in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Definition)
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
