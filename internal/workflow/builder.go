package workflow

import (
	"fmt"

	"conductor/pkg/errors"
)

// ToolSource answers whether a tool name is registered. Supplying one to a
// builder moves tool reference checks from compile time to build time.
type ToolSource interface {
	Has(name string) bool
}

// Builder assembles a workflow configuration through chained calls and
// validates the whole graph once in Build. Declaration order is free: an
// agent may be referenced before it is declared as long as the name
// resolves by Build time.
//
// Build may be called more than once; the returned configurations are
// independent snapshots. A Builder is not safe for concurrent use.
type Builder struct {
	name        string
	description string
	agents      []AgentConfig
	names       map[string]struct{}
	entryPoint  string
	entrySet    bool
	tools       ToolSource
	errs        []error
}

// NewBuilder creates a builder for a workflow with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:  name,
		names: map[string]struct{}{},
	}
}

// ValidateToolsWith makes Build check tool references against src. Without
// a source, tool resolution is deferred to compilation.
func (b *Builder) ValidateToolsWith(src ToolSource) *Builder {
	b.tools = src
	return b
}

// SetDescription sets the workflow description.
func (b *Builder) SetDescription(description string) *Builder {
	b.description = description
	return b
}

// SetEntryPoint records the agent the workflow starts from. The reference
// is resolved at Build, so the entry agent may be declared later.
func (b *Builder) SetEntryPoint(name string) *Builder {
	b.entryPoint = name
	b.entrySet = true
	return b
}

// AddLLMAgent declares a model-backed agent.
func (b *Builder) AddLLMAgent(cfg AgentConfig) *Builder {
	cfg.Kind = KindLLM
	cfg.SubAgents = nil
	cfg.MaxIterations = 0
	b.add(cfg)
	return b
}

// AddSequentialAgent declares a composite that runs its children in order,
// each seeing the accumulated session state of its predecessors.
func (b *Builder) AddSequentialAgent(name, description string, subAgents ...SubAgent) *Builder {
	b.addComposite(KindSequential, name, description, 0, subAgents)
	return b
}

// AddParallelAgent declares a composite that runs its children
// concurrently.
func (b *Builder) AddParallelAgent(name, description string, subAgents ...SubAgent) *Builder {
	b.addComposite(KindParallel, name, description, 0, subAgents)
	return b
}

// AddLoopAgent declares a composite that repeats its children up to
// maxIterations times or until a child escalates. maxIterations <= 0 takes
// the default.
func (b *Builder) AddLoopAgent(name, description string, maxIterations int, subAgents ...SubAgent) *Builder {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	b.addComposite(KindLoop, name, description, maxIterations, subAgents)
	return b
}

// AddCustomAgent declares a reference to a prebuilt agent registered under
// name in the agent registry. The registry lookup happens at compile time.
func (b *Builder) AddCustomAgent(name, description string) *Builder {
	b.add(AgentConfig{Kind: KindCustom, Name: name, Description: description})
	return b
}

// Err returns the first problem detected so far, or nil. It lets callers
// fail fast between chained calls; Build reports the full batch regardless.
func (b *Builder) Err() error {
	if len(b.errs) > 0 {
		return b.errs[0]
	}
	if b.entrySet {
		if _, ok := b.names[b.entryPoint]; !ok {
			return &UnknownAgentError{Name: b.entryPoint}
		}
	}
	return nil
}

func (b *Builder) addComposite(kind AgentKind, name, description string, maxIterations int, subAgents []SubAgent) {
	cfg := AgentConfig{
		Kind:          kind,
		Name:          name,
		Description:   description,
		MaxIterations: maxIterations,
		SubAgents:     make([]string, 0, len(subAgents)),
	}

	// Inline children are hoisted into the workflow under their own (or an
	// auto-generated) name; the composite keeps only name references.
	inlineSeq := 0
	for _, sub := range subAgents {
		if sub.inline == nil {
			cfg.SubAgents = append(cfg.SubAgents, sub.name)
			continue
		}
		child := *sub.inline
		if child.Name == "" {
			inlineSeq++
			child.Name = fmt.Sprintf("%s_sub_%d", name, inlineSeq)
		}
		if child.Kind == "" {
			child.Kind = KindLLM
		}
		cfg.SubAgents = append(cfg.SubAgents, child.Name)
		b.add(child)
	}

	b.add(cfg)
}

func (b *Builder) add(cfg AgentConfig) {
	if _, dup := b.names[cfg.Name]; dup {
		b.errs = append(b.errs, &DuplicateNameError{Name: cfg.Name})
		return
	}

	applyDefaults(&cfg)

	b.names[cfg.Name] = struct{}{}
	b.agents = append(b.agents, cfg)
}

func applyDefaults(cfg *AgentConfig) {
	if cfg.Kind != KindLLM {
		return
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
}

// Build validates the accumulated graph and returns an immutable workflow
// configuration. Every violation found is reported in one batch.
func (b *Builder) Build() (*Config, error) {
	batch := &errors.MultiError{}

	for _, err := range b.errs {
		batch.Add(err)
	}

	if b.name == "" {
		batch.Add(errors.New("workflow name must not be empty"))
	}
	if len(b.agents) == 0 {
		batch.Add(errors.New("workflow declares no agents"))
	}

	if !b.entrySet {
		batch.Add(errors.New("workflow entry point is not set"))
	} else if _, ok := b.names[b.entryPoint]; !ok {
		batch.Add(&UnknownAgentError{Name: b.entryPoint})
	}

	for i := range b.agents {
		b.validateAgent(&b.agents[i], batch)
	}

	b.detectCycles(batch)

	if err := batch.ToError(); err != nil {
		return nil, err
	}

	agents := make([]AgentConfig, len(b.agents))
	copy(agents, b.agents)
	for i := range agents {
		agents[i].Tools = append([]string(nil), agents[i].Tools...)
		agents[i].SubAgents = append([]string(nil), agents[i].SubAgents...)
	}

	return &Config{
		Name:        b.name,
		Description: b.description,
		Agents:      agents,
		EntryPoint:  b.entryPoint,
	}, nil
}

func (b *Builder) validateAgent(cfg *AgentConfig, batch *errors.MultiError) {
	if cfg.Name == "" {
		batch.Add(&FieldError{Agent: "(unnamed)", Field: "name", Reason: "must not be empty"})
	}

	switch cfg.Kind {
	case KindLLM:
		if cfg.Instruction == "" {
			batch.Add(&FieldError{Agent: cfg.Name, Field: "instruction", Reason: "must not be empty"})
		}
		if cfg.Temperature < 0 || cfg.Temperature > 2 {
			batch.Add(&FieldError{
				Agent:  cfg.Name,
				Field:  "temperature",
				Reason: fmt.Sprintf("%.2f is outside [0.0, 2.0]", cfg.Temperature),
			})
		}
		if cfg.MaxOutputTokens <= 0 {
			batch.Add(&FieldError{Agent: cfg.Name, Field: "max_output_tokens", Reason: "must be positive"})
		}
		if b.tools != nil {
			for _, toolName := range cfg.Tools {
				if !b.tools.Has(toolName) {
					batch.Add(&UnknownToolError{Name: toolName, Agent: cfg.Name})
				}
			}
		}

	case KindSequential, KindParallel, KindLoop:
		if len(cfg.SubAgents) == 0 {
			batch.Add(&FieldError{Agent: cfg.Name, Field: "sub_agents", Reason: "composite requires at least one child"})
		}
		for _, sub := range cfg.SubAgents {
			if _, ok := b.names[sub]; !ok {
				batch.Add(&UnknownAgentError{Name: sub, ReferencedBy: cfg.Name})
			}
		}
		if cfg.Kind == KindLoop && cfg.MaxIterations <= 0 {
			batch.Add(&FieldError{Agent: cfg.Name, Field: "max_iterations", Reason: "must be positive"})
		}

	case KindCustom:
		// Resolved against the prebuilt agent registry at compile time.

	default:
		batch.Add(&FieldError{Agent: cfg.Name, Field: "kind", Reason: fmt.Sprintf("unknown kind %q", cfg.Kind)})
	}
}

// detectCycles walks the sub-agent graph depth-first with three-color
// marking and reports each cycle once.
func (b *Builder) detectCycles(batch *errors.MultiError) {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(b.agents))
	byName := make(map[string]*AgentConfig, len(b.agents))
	for i := range b.agents {
		byName[b.agents[i].Name] = &b.agents[i]
	}

	var stack []string

	var visit func(name string)
	visit = func(name string) {
		cfg, ok := byName[name]
		if !ok {
			// Dangling references are reported by validateAgent.
			return
		}

		color[name] = gray
		stack = append(stack, name)

		for _, sub := range cfg.SubAgents {
			switch color[sub] {
			case white:
				visit(sub)
			case gray:
				// Back edge: slice the current path from the repeated name.
				start := 0
				for i, n := range stack {
					if n == sub {
						start = i
						break
					}
				}
				path := append(append([]string(nil), stack[start:]...), sub)
				batch.Add(&CyclicReferenceError{Path: path})
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
	}

	for i := range b.agents {
		if color[b.agents[i].Name] == white {
			visit(b.agents[i].Name)
		}
	}
}
