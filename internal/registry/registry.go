// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry is the catalog of callable research tools. Each tool
// carries an argument schema, a timeout, and a retry policy; the orchestrator
// and the decision engine both consult the same registry so a proposed action
// is always checked against one source of truth.
// See docs/ARCHITECTURE.md § Tool Registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

var (
	ErrToolUnregistered = errors.New("tool is not registered")
	ErrNilHandler       = errors.New("tool handler is nil")
	ErrToolNameEmpty    = errors.New("tool name is empty")
)

// Handler executes one tool call. Long-running handlers must call beat()
// periodically when the tool declares a heartbeat interval; the executor
// treats a silent window as a stall.
type Handler func(ctx context.Context, args map[string]any, beat func()) (types.ToolOutput, error)

// ArgSpec describes one argument in a tool's input schema.
type ArgSpec struct {
	// Description explains the argument to the decision engine.
	Description string

	// Required marks arguments that must be present for a call to validate.
	Required bool
}

// Tool is one registered tool: schema, execution policy, and handler.
type Tool struct {
	Name        string
	Description string

	// Args is the input schema keyed by argument name.
	Args map[string]ArgSpec

	// Timeout bounds a single attempt. Zero means no per-attempt timeout.
	Timeout time.Duration

	// Heartbeat is the liveness interval for long-running tools. Zero
	// disables stall detection.
	Heartbeat time.Duration

	// Retry controls transient-failure retries for this tool.
	Retry types.RetryPolicy

	Handler Handler
}

// Registry stores tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: %q", ErrNilHandler, t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool for name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return Tool{}, fmt.Errorf("%w: %q", ErrToolUnregistered, name)
	}
	return t, nil
}

// IsRegistered reports whether name is a known tool.
func (r *Registry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns all registered tools ordered by name.
func (r *Registry) Tools() []Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(names))
	for _, name := range names {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// ValidateCall checks that name is registered and that all required
// arguments are present. It does not execute anything.
func (r *Registry) ValidateCall(name string, args map[string]any) error {
	t, err := r.Lookup(name)
	if err != nil {
		return err
	}

	var missing []string
	for argName, spec := range t.Args {
		if !spec.Required {
			continue
		}
		if v, ok := args[argName]; !ok || v == nil || v == "" {
			missing = append(missing, argName)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("tool %q missing required arguments: %v", name, missing)
	}
	return nil
}
