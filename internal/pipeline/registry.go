package pipeline

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"triage/internal/queue"
)

// Registration describes a module available to pipeline configurations.
type Registration struct {
	Name        string
	Description string
	// Kinds lists the pipelines the module may be placed in. Empty means any.
	Kinds []queue.Kind
	New   Constructor
}

// Supports reports whether the module may run in a pipeline of kind.
func (r Registration) Supports(kind queue.Kind) bool {
	return len(r.Kinds) == 0 || slices.Contains(r.Kinds, kind)
}

// Registry maps module names to constructors.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Registration)}
}

// Register adds a module. Names are case-insensitive and must be unique.
func (r *Registry) Register(reg Registration) error {
	name := strings.ToLower(strings.TrimSpace(reg.Name))
	if name == "" {
		return fmt.Errorf("module name is required")
	}
	if reg.New == nil {
		return fmt.Errorf("module %s: constructor is required", name)
	}
	reg.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[name]; exists {
		return fmt.Errorf("module %s already registered", name)
	}
	r.modules[name] = reg
	return nil
}

// Lookup finds a module by name.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.modules[strings.ToLower(strings.TrimSpace(name))]
	return reg, ok
}

// Modules lists registrations sorted by name.
func (r *Registry) Modules() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.modules))
	for _, reg := range r.modules {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
