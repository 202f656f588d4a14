package workflow

// AgentKind enumerates the closed set of agent categories a workflow can
// declare. Behavior varies by kind through exhaustive switches, not
// subclassing.
type AgentKind string

const (
	KindLLM        AgentKind = "llm"
	KindSequential AgentKind = "sequential"
	KindParallel   AgentKind = "parallel"
	KindLoop       AgentKind = "loop"
	KindCustom     AgentKind = "custom"
)

// Defaults applied by the builder when a caller leaves a field zero.
const (
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 1024
	DefaultMaxIterations   = 5
)

// AgentConfig describes one agent in a workflow. It is a tagged union over
// AgentKind: the LLM fields are meaningful only for KindLLM, SubAgents only
// for the composite kinds, MaxIterations only for KindLoop. Configs are
// immutable once appended to a builder.
type AgentConfig struct {
	Kind        AgentKind
	Name        string
	Description string

	// LLM
	Model           string
	Instruction     string
	Tools           []string // ordered references into the tool registry
	OutputKey       string   // destination slot in shared run-state, optional
	Temperature     float64  // 0.0 to 2.0
	MaxOutputTokens int

	// Sequential, Parallel, Loop
	SubAgents []string // ordered references to other agents in the same workflow

	// Loop
	MaxIterations int
}

// Config is a validated workflow: a named graph of agent configurations
// with one designated entry point. Produced once by Builder.Build and never
// mutated afterwards.
type Config struct {
	Name        string
	Description string
	Agents      []AgentConfig // declaration order, not execution order
	EntryPoint  string
}

// Agent returns the configuration declared under name.
func (c *Config) Agent(name string) (*AgentConfig, bool) {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i], true
		}
	}
	return nil, false
}

// AgentNames returns the declared agent names in declaration order.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for i := range c.Agents {
		names = append(names, c.Agents[i].Name)
	}
	return names
}

// WithDefaultModel returns a copy of the config where LLM agents that
// declare no model use fallback.
func (c *Config) WithDefaultModel(fallback string) *Config {
	out := &Config{
		Name:        c.Name,
		Description: c.Description,
		Agents:      make([]AgentConfig, len(c.Agents)),
		EntryPoint:  c.EntryPoint,
	}
	copy(out.Agents, c.Agents)
	for i := range out.Agents {
		if out.Agents[i].Kind == KindLLM && out.Agents[i].Model == "" {
			out.Agents[i].Model = fallback
		}
	}
	return out
}

// SubAgent references a child of a composite agent: either an agent
// declared elsewhere in the workflow (by name) or an inline nested
// configuration that the builder normalizes into the same collection.
type SubAgent struct {
	name   string
	inline *AgentConfig
}

// Ref references an agent declared (or to be declared) under name.
func Ref(name string) SubAgent {
	return SubAgent{name: name}
}

// Inline embeds a nested agent configuration. Unnamed inline configs are
// auto-named after the enclosing composite.
func Inline(cfg AgentConfig) SubAgent {
	return SubAgent{inline: &cfg}
}

// Refs is shorthand for a list of name references.
func Refs(names ...string) []SubAgent {
	subs := make([]SubAgent, 0, len(names))
	for _, name := range names {
		subs = append(subs, Ref(name))
	}
	return subs
}
