// Package orchestrator coordinates workflow compilation, sessions and the
// runtime's execution loop behind one manager facade.
package orchestrator

import (
	"context"
	"time"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	adksession "google.golang.org/adk/session"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/genai"

	"conductor/internal/adapters/config"
	"conductor/internal/metrics"
	"conductor/internal/tools"
	"conductor/internal/workflow"
	"conductor/pkg/errors"
	"conductor/pkg/logger"
)

// streamBuffer bounds how far event production may run ahead of a slow
// stream consumer.
const streamBuffer = 64

// ManagerDeps gathers the external dependencies of a Manager.
type ManagerDeps struct {
	AppName string
	Agents  config.AgentsConfig

	Tools         *tools.Registry         // nil creates an empty registry
	AgentRegistry *workflow.AgentRegistry // nil creates an empty registry
	Models        workflow.ModelResolver  // nil defaults to BasicResolver
	Sessions      adksession.Service      // nil defaults to the in-memory service
}

// Manager is the top-level coordinator: it owns the registries, compiles
// workflows on demand and drives the runtime's runner.
type Manager struct {
	appName   string
	cfg       config.AgentsConfig
	tools     *tools.Registry
	agents    *workflow.AgentRegistry
	workflows *workflow.Registry
	compiler  *workflow.Compiler
	sessions  adksession.Service
	log       *logger.Logger
}

// TokenUsage aggregates token counts reported by model responses.
type TokenUsage struct {
	Input  int
	Output int
	Total  int
}

// RunResult is the outcome of a completed workflow run.
type RunResult struct {
	Workflow    string
	SessionID   string
	UserID      string
	FinalOutput string
	Events      []Event
	State       map[string]interface{}
	Usage       TokenUsage
	Duration    time.Duration
}

// NewManager builds a manager from its dependencies.
func NewManager(deps ManagerDeps) (*Manager, error) {
	if deps.AppName == "" {
		deps.AppName = "conductor"
	}
	if deps.Tools == nil {
		deps.Tools = tools.NewRegistry()
	}
	if deps.AgentRegistry == nil {
		deps.AgentRegistry = workflow.NewAgentRegistry()
	}
	if deps.Sessions == nil {
		deps.Sessions = adksession.InMemoryService()
	}

	compiler, err := workflow.NewCompiler(workflow.CompilerDeps{
		Tools:  deps.Tools,
		Agents: deps.AgentRegistry,
		Models: deps.Models,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		appName:   deps.AppName,
		cfg:       deps.Agents,
		tools:     deps.Tools,
		agents:    deps.AgentRegistry,
		workflows: workflow.NewRegistry(),
		compiler:  compiler,
		sessions:  deps.Sessions,
		log:       logger.Get().With("component", "orchestrator"),
	}, nil
}

// RegisterTool adds a prebuilt tool to the tool registry.
func (m *Manager) RegisterTool(name string, t adktool.Tool) {
	m.tools.Register(name, t)
}

// RegisterToolFunc wraps fn as a function tool and registers it.
func (m *Manager) RegisterToolFunc(def tools.Definition, fn tools.Handler) error {
	return m.tools.RegisterFunc(def, fn)
}

// HasTool reports whether a tool name is registered.
func (m *Manager) HasTool(name string) bool {
	return m.tools.Has(name)
}

// RegisterAgent adds a prebuilt agent for use by custom workflow entries.
func (m *Manager) RegisterAgent(name string, ag agent.Agent) {
	m.agents.Register(name, ag)
}

// RegisterWorkflow stores a built workflow, filling in the configured
// default model for LLM agents that declare none.
func (m *Manager) RegisterWorkflow(cfg *workflow.Config) {
	m.workflows.Register(cfg.WithDefaultModel(m.cfg.DefaultModel))
	m.log.Infow("Workflow registered", "workflow", cfg.Name, "agents", len(cfg.Agents))
}

// Workflow returns a registered workflow by name.
func (m *Manager) Workflow(name string) (*workflow.Config, bool) {
	return m.workflows.Get(name)
}

// Workflows lists registered workflow names.
func (m *Manager) Workflows() []string {
	return m.workflows.List()
}

// NewWorkflowBuilder returns a builder whose tool references are checked
// against this manager's registry at build time.
func (m *Manager) NewWorkflowBuilder(name string) *workflow.Builder {
	return workflow.NewBuilder(name).ValidateToolsWith(m.tools)
}

// RunWorkflow executes a registered workflow to completion and returns
// the aggregated result. An empty sessionID starts a fresh session.
func (m *Manager) RunWorkflow(ctx context.Context, name, input, userID, sessionID string) (*RunResult, error) {
	start := time.Now()

	result, err := m.run(ctx, name, input, userID, sessionID, nil)

	metrics.RecordWorkflowExecution(name, time.Since(start), err)
	if err != nil {
		m.log.ErrorWithContext(ctx, err, map[string]string{"workflow": name, "user_id": userID})
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// StreamWorkflow executes a workflow and emits its events on the returned
// channel as they happen. The channel closes when the run completes, the
// context is cancelled, or an error event is emitted.
func (m *Manager) StreamWorkflow(ctx context.Context, name, input, userID, sessionID string) (<-chan Event, error) {
	// Resolve everything that can fail synchronously before spawning the
	// producer, so configuration errors surface as plain errors.
	prepared, err := m.prepare(ctx, name, userID, sessionID)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, streamBuffer)

	go func() {
		defer close(out)

		send := func(ev Event) bool {
			metrics.RecordStreamEvent(name, string(ev.Type))
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for event, err := range prepared.run(ctx, input) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				env := m.Envelope(err)
				m.log.ErrorWithContext(ctx, err, map[string]string{"workflow": name})
				send(Event{Type: EventError, Envelope: &env})
				return
			}
			for _, ev := range flatten(event) {
				if !send(ev) {
					return
				}
			}
		}
	}()

	return out, nil
}

// Envelope renders an error as the structured boundary envelope.
func (m *Manager) Envelope(err error) errors.Envelope {
	return mapEnvelope(err)
}

// preparedRun bundles a compiled workflow with its session and runner.
type preparedRun struct {
	sessionID string
	userID    string
	runner    *runner.Runner
	timeout   time.Duration
}

func (p *preparedRun) run(ctx context.Context, input string) func(func(*adksession.Event, error) bool) {
	content := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: input}},
	}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeSSE}

	return func(yield func(*adksession.Event, error) bool) {
		runCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}

		for event, err := range p.runner.Run(runCtx, p.userID, p.sessionID, content, runConfig) {
			if !yield(event, err) {
				return
			}
		}
	}
}

// prepare compiles the named workflow, ensures the session and builds a
// runner for the run.
func (m *Manager) prepare(ctx context.Context, name, userID, sessionID string) (*preparedRun, error) {
	cfg, ok := m.workflows.Get(name)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "workflow %q is not registered", name)
	}

	compiled, err := m.compiler.Compile(ctx, cfg)
	metrics.RecordCompilation(name, err)
	if err != nil {
		return nil, errors.Wrapf(err, "compile workflow %s", name)
	}

	sess, err := ensureSession(ctx, m.sessions, m.appName, userID, sessionID)
	if err != nil {
		return nil, err
	}

	r, err := runner.New(runner.Config{
		AppName:        m.appName,
		Agent:          compiled,
		SessionService: m.sessions,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create runner")
	}

	return &preparedRun{
		sessionID: sess.ID(),
		userID:    userID,
		runner:    r,
		timeout:   m.cfg.ExecutionTimeout,
	}, nil
}

// run drives a workflow to completion, draining the event stream.
func (m *Manager) run(ctx context.Context, name, input, userID, sessionID string, onEvent func(Event)) (*RunResult, error) {
	prepared, err := m.prepare(ctx, name, userID, sessionID)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Workflow:  name,
		SessionID: prepared.sessionID,
		UserID:    userID,
	}

	for event, err := range prepared.run(ctx, input) {
		if err != nil {
			return nil, errors.Wrapf(err, "run workflow %s", name)
		}
		if event == nil {
			continue
		}

		// Streaming fragments are repeated by their closing chunk; the
		// aggregate keeps only complete events, and counting tokens here
		// too would double them.
		if event.LLMResponse.Partial {
			continue
		}

		if event.UsageMetadata != nil {
			result.Usage.Input += int(event.UsageMetadata.PromptTokenCount)
			result.Usage.Output += int(event.UsageMetadata.CandidatesTokenCount)
			result.Usage.Total += int(event.UsageMetadata.TotalTokenCount)
		}

		for _, ev := range flatten(event) {
			result.Events = append(result.Events, ev)
			if ev.Type == EventFinal {
				result.FinalOutput = ev.Text
			}
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}

	metrics.RecordTokens(name, result.Usage.Input, result.Usage.Output)

	// Re-read the session to capture state written during the run
	// (output keys, tool side effects).
	resp, err := m.sessions.Get(ctx, &adksession.GetRequest{
		AppName:   m.appName,
		UserID:    userID,
		SessionID: prepared.sessionID,
	})
	if err != nil {
		m.log.Warnw("Failed to load final session state", "workflow", name, "error", err)
	} else {
		result.State = snapshotState(resp.Session)
	}

	m.log.Infow("Workflow run complete",
		"workflow", name,
		"session_id", prepared.sessionID,
		"events", len(result.Events),
		"tokens", result.Usage.Total,
	)

	return result, nil
}
