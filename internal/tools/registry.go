package tools

import (
	"sort"
	"sync"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"conductor/internal/metrics"
)

// Handler is the function signature for tool implementations.
type Handler func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error)

// Definition describes a tool's metadata for registration and discovery.
type Definition struct {
	Name        string
	Description string
	Category    string
}

// Registry stores tools by name for lookup during workflow compilation.
// Registering an existing name replaces the previous tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.Tool
	defs  map[string]Definition
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]tool.Tool),
		defs:  make(map[string]Definition),
	}
}

// Register adds or replaces a tool under the provided name.
func (r *Registry) Register(name string, t tool.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = t
	if _, ok := r.defs[name]; !ok {
		r.defs[name] = Definition{Name: name}
	}
}

// RegisterFunc wraps fn as an ADK function tool and registers it. Every
// invocation is timed and recorded in the tool metrics.
func (r *Registry) RegisterFunc(def Definition, fn Handler) error {
	instrumented := func(ctx tool.Context, args map[string]interface{}) (map[string]interface{}, error) {
		start := time.Now()
		out, err := fn(ctx, args)
		metrics.RecordToolExecution(def.Name, time.Since(start), err)
		return out, err
	}

	t, err := functiontool.New(functiontool.Config{
		Name:        def.Name,
		Description: def.Description,
	}, instrumented)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = t
	r.defs[def.Name] = def
	return nil
}

// Get retrieves a tool by name if registered.
func (r *Registry) Get(name string) (tool.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns the names of all registered tools, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Definitions returns metadata for all registered tools, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	return defs
}
