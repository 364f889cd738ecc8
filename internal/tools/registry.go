package tools

import (
	"context"
	"fmt"
	"sync"
)

// Kind is the category a tool belongs to. The split drives the per-turn
// tool-usage classification and the authentication gate.
type Kind string

const (
	KindRetrieval     Kind = "retrieval"
	KindTransactional Kind = "transactional"
)

// Handler executes one tool call. rawArgs is the model-provided JSON blob;
// handlers decode it into their own argument struct and reject malformed input.
type Handler func(ctx context.Context, turn *TurnContext, rawArgs string) (string, error)

// Tool is one entry in the closed registry
type Tool struct {
	Name        string
	Kind        Kind
	Description string
	Parameters  map[string]interface{} // JSON schema for the model
	Handler     Handler
}

// Registry is the closed set of tools the model may invoke. Unknown names
// are a turn-level error, never silently ignored.
type Registry struct {
	tools map[string]*Tool
	order []string // registration order, kept stable for the model spec list
	mutex sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s must have a handler", tool.Name)
	}
	if tool.Kind != KindRetrieval && tool.Kind != KindTransactional {
		return fmt.Errorf("tool %s has unknown kind %q", tool.Name, tool.Kind)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}

	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// Specs returns all tools in OpenAI tool format, in registration order
func (r *Registry) Specs() []map[string]interface{} {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	specs := make([]map[string]interface{}, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		specs = append(specs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return specs
}

// Dispatch runs a tool by name and reports its kind alongside the result.
// An unknown tool name fails the call.
func (r *Registry) Dispatch(ctx context.Context, turn *TurnContext, name, rawArgs string) (string, Kind, error) {
	tool, exists := r.Get(name)
	if !exists {
		return "", "", fmt.Errorf("unknown tool %q", name)
	}

	result, err := tool.Handler(ctx, turn, rawArgs)
	if err != nil {
		return "", tool.Kind, fmt.Errorf("tool %s failed: %w", name, err)
	}
	return result, tool.Kind, nil
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.tools)
}
