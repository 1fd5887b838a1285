package chat

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bigduu/chatengine/llm"
)

// Permission is a coarse capability class used for role gating.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionExecute Permission = "execute"
)

// Capability is one tool the engine can offer to the model. New tools are
// new registry entries, not new types.
type Capability interface {
	// Name returns the tool name the model invokes.
	Name() string

	// Description explains the tool to the model.
	Description() string

	// Parameters returns the JSON Schema for the tool's arguments.
	Parameters() map[string]any

	// Permissions returns the tool's declared permission set.
	Permissions() []Permission

	// RequiresApproval reports whether every invocation must pass the
	// approval gate.
	RequiresApproval() bool

	// Execute runs the tool with parsed arguments.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry is a lookup from tool name to capability. The agent loop only
// reads it; registration happens at wiring time.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds or replaces a capability.
func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Name()] = c
}

// Unregister removes a capability.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, name)
}

// Get returns a capability by name, or nil.
func (r *Registry) Get(name string) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Names returns the names of all registered capabilities.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// Definitions returns provider tool definitions for the named tools.
func (r *Registry) Definitions(names []string) []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		c, ok := r.caps[name]
		if !ok {
			continue
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			Parameters:  c.Parameters(),
		})
	}
	return defs
}

// FuncCapability adapts plain values and an execute function into a
// Capability, for wiring and tests.
type FuncCapability struct {
	CapName        string
	CapDescription string
	CapParameters  map[string]any
	CapPermissions []Permission
	NeedsApproval  bool
	Fn             func(ctx context.Context, args json.RawMessage) (string, error)
}

func (f *FuncCapability) Name() string               { return f.CapName }
func (f *FuncCapability) Description() string        { return f.CapDescription }
func (f *FuncCapability) Parameters() map[string]any { return f.CapParameters }
func (f *FuncCapability) Permissions() []Permission  { return f.CapPermissions }
func (f *FuncCapability) RequiresApproval() bool     { return f.NeedsApproval }

func (f *FuncCapability) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return f.Fn(ctx, args)
}
