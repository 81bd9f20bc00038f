package tool

import (
	"sort"
	"strings"
	"sync"

	"github.com/pptgirl/pptgirl/internal/provider"
)

// Registry manages tool registration and lookup. Registries are injected
// into their callers; there is no process-wide default.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. Later registrations with the same
// name replace earlier ones.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[strings.ToLower(tool.Name())] = tool
}

// Get retrieves a tool by name (case-insensitive).
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[strings.ToLower(name)]
	return tool, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for _, t := range r.tools {
		names = append(names, t.Name())
	}
	sort.Strings(names)
	return names
}

// Schemas returns provider tool definitions for the registered tools.
// When enabled is non-empty it acts as an allow-list; names not present in
// the registry are silently skipped.
func (r *Registry) Schemas(enabled []string) []provider.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allowed map[string]bool
	if len(enabled) > 0 {
		allowed = make(map[string]bool, len(enabled))
		for _, name := range enabled {
			allowed[strings.ToLower(name)] = true
		}
	}

	names := make([]string, 0, len(r.tools))
	for key := range r.tools {
		if allowed != nil && !allowed[key] {
			continue
		}
		names = append(names, key)
	}
	sort.Strings(names)

	schemas := make([]provider.Tool, 0, len(names))
	for _, key := range names {
		t := r.tools[key]
		schemas = append(schemas, provider.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return schemas
}
