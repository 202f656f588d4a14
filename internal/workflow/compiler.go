package workflow

import (
	"context"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/agent/workflowagents/loopagent"
	"google.golang.org/adk/agent/workflowagents/parallelagent"
	"google.golang.org/adk/agent/workflowagents/sequentialagent"
	adktool "google.golang.org/adk/tool"

	"conductor/pkg/errors"
	"conductor/pkg/logger"
)

// ToolResolver looks up registered tools by name.
type ToolResolver interface {
	Get(name string) (adktool.Tool, bool)
}

// AgentResolver looks up prebuilt agents referenced by custom agent
// configurations.
type AgentResolver interface {
	Get(name string) (agent.Agent, bool)
}

// CompilerDeps gathers the external dependencies a Compiler needs.
type CompilerDeps struct {
	Tools  ToolResolver
	Agents AgentResolver // optional, required only for custom agents
	Models ModelResolver // nil defaults to BasicResolver
}

// Compiler turns validated workflow configurations into executable agent
// trees. Compilation walks the graph depth-first, building leaves before
// the composites that contain them, and memoizes by agent name so an agent
// referenced by several composites compiles once and is shared.
type Compiler struct {
	tools  ToolResolver
	agents AgentResolver
	models ModelResolver
	log    *logger.Logger
}

// NewCompiler builds a compiler with the given dependencies.
func NewCompiler(deps CompilerDeps) (*Compiler, error) {
	if deps.Tools == nil {
		return nil, errors.New("tool resolver is required")
	}
	if deps.Models == nil {
		deps.Models = BasicResolver{}
	}
	return &Compiler{
		tools:  deps.Tools,
		agents: deps.Agents,
		models: deps.Models,
		log:    logger.Get().With("component", "compiler"),
	}, nil
}

type compilation struct {
	cfg      *Config
	compiled map[string]agent.Agent
	visiting map[string]bool
}

// Compile builds the agent tree for cfg and returns its entry point.
// cfg must come from Builder.Build; compiling an unvalidated configuration
// may surface InvariantError instead of a validation batch.
func (c *Compiler) Compile(ctx context.Context, cfg *Config) (agent.Agent, error) {
	run := &compilation{
		cfg:      cfg,
		compiled: make(map[string]agent.Agent, len(cfg.Agents)),
		visiting: map[string]bool{},
	}

	entry, err := c.compileAgent(ctx, run, cfg.EntryPoint)
	if err != nil {
		return nil, err
	}

	c.log.Infow("Workflow compiled",
		"workflow", cfg.Name,
		"entry_point", cfg.EntryPoint,
		"agents", len(run.compiled),
	)

	return entry, nil
}

func (c *Compiler) compileAgent(ctx context.Context, run *compilation, name string) (agent.Agent, error) {
	if compiled, ok := run.compiled[name]; ok {
		return compiled, nil
	}
	if run.visiting[name] {
		// Build-time cycle detection makes this unreachable for validated
		// configs.
		return nil, &InvariantError{Stage: "graph walk", Detail: "cycle through agent " + name}
	}

	cfg, ok := run.cfg.Agent(name)
	if !ok {
		return nil, &InvariantError{Stage: "graph walk", Detail: "agent " + name + " not declared"}
	}

	run.visiting[name] = true
	defer delete(run.visiting, name)

	var (
		compiled agent.Agent
		err      error
	)

	switch cfg.Kind {
	case KindLLM:
		compiled, err = c.compileLLM(ctx, cfg)
	case KindSequential, KindParallel, KindLoop:
		compiled, err = c.compileComposite(ctx, run, cfg)
	case KindCustom:
		compiled, err = c.resolveCustom(cfg)
	default:
		err = &InvariantError{Stage: "dispatch", Detail: "unknown agent kind " + string(cfg.Kind)}
	}
	if err != nil {
		return nil, err
	}

	run.compiled[name] = compiled
	return compiled, nil
}

func (c *Compiler) compileLLM(ctx context.Context, cfg *AgentConfig) (agent.Agent, error) {
	llmModel, err := c.models.Resolve(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve model for agent %s", cfg.Name)
	}

	agentTools := make([]adktool.Tool, 0, len(cfg.Tools))
	for _, toolName := range cfg.Tools {
		t, ok := c.tools.Get(toolName)
		if !ok {
			return nil, &UnknownToolError{Name: toolName, Agent: cfg.Name}
		}
		agentTools = append(agentTools, t)
	}

	return llmagent.New(llmagent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Model:       llmModel,
		Instruction: cfg.Instruction,
		Tools:       agentTools,
		OutputKey:   cfg.OutputKey,
	})
}

func (c *Compiler) compileComposite(ctx context.Context, run *compilation, cfg *AgentConfig) (agent.Agent, error) {
	children := make([]agent.Agent, 0, len(cfg.SubAgents))
	for _, sub := range cfg.SubAgents {
		child, err := c.compileAgent(ctx, run, sub)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	agentCfg := agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   children,
	}

	switch cfg.Kind {
	case KindSequential:
		return sequentialagent.New(sequentialagent.Config{AgentConfig: agentCfg})
	case KindParallel:
		return parallelagent.New(parallelagent.Config{AgentConfig: agentCfg})
	case KindLoop:
		return loopagent.New(loopagent.Config{
			AgentConfig:   agentCfg,
			MaxIterations: uint(cfg.MaxIterations),
		})
	default:
		return nil, &InvariantError{Stage: "composite dispatch", Detail: "unexpected kind " + string(cfg.Kind)}
	}
}

func (c *Compiler) resolveCustom(cfg *AgentConfig) (agent.Agent, error) {
	if c.agents == nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "custom agent %s requires an agent registry", cfg.Name)
	}
	ag, ok := c.agents.Get(cfg.Name)
	if !ok {
		return nil, &UnknownAgentError{Name: cfg.Name}
	}
	return ag, nil
}
