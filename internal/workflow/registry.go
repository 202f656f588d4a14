package workflow

import (
	"sort"
	"sync"

	"google.golang.org/adk/agent"
)

// Registry stores built workflow configurations by name.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]*Config
}

// NewRegistry constructs an empty workflow registry.
func NewRegistry() *Registry {
	return &Registry{
		workflows: make(map[string]*Config),
	}
}

// Register adds or replaces a workflow under its own name.
func (r *Registry) Register(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[cfg.Name] = cfg
}

// Get retrieves a workflow by name if registered.
func (r *Registry) Get(name string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.workflows[name]
	return cfg, ok
}

// Exists reports whether a workflow is registered under name.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflows[name]
	return ok
}

// List returns the names of all registered workflows, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// AgentRegistry stores prebuilt agents that workflows reference through
// custom agent configurations.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]agent.Agent
}

// NewAgentRegistry constructs an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]agent.Agent),
	}
}

// Register adds or replaces an agent under the provided name.
func (r *AgentRegistry) Register(name string, ag agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = ag
}

// Get retrieves an agent by name if registered.
func (r *AgentRegistry) Get(name string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ag, ok := r.agents[name]
	return ag, ok
}

// List returns the names of all registered agents, sorted.
func (r *AgentRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
