package tools

import (
	"sort"
	"sync"
)

// Descriptor is the read-only tool listing served to clients. The
// orchestrator itself never consumes it.
type Descriptor struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ParameterSchema map[string]any `json:"parameter_schema"`
}

// Registry maps tool names to handlers. Tools can be disabled by name via
// configuration without unregistering them; a disabled tool is invisible
// to selection and listing.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	disabled map[string]bool
}

// NewRegistry creates an empty registry with the given disable list.
func NewRegistry(disabledNames []string) *Registry {
	disabled := make(map[string]bool, len(disabledNames))
	for _, name := range disabledNames {
		disabled[name] = true
	}
	return &Registry{
		tools:    make(map[string]Tool),
		disabled: disabled,
	}
}

// Register adds a tool. Re-registering a name replaces the handler.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns the named tool, or nil if unknown or disabled.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.disabled[name] {
		return nil
	}
	return r.tools[name]
}

// Enabled filters the given names down to registered, enabled tools,
// preserving order.
func (r *Registry) Enabled(names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range names {
		if _, ok := r.tools[name]; ok && !r.disabled[name] {
			out = append(out, name)
		}
	}
	return out
}

// List returns descriptors for all enabled tools, sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for name, tool := range r.tools {
		if r.disabled[name] {
			continue
		}
		out = append(out, Descriptor{
			Name:            tool.Name(),
			Description:     tool.Description(),
			ParameterSchema: tool.ParameterSchema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
