package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"conductor/internal/adapters/config"
	"conductor/internal/adapters/errors/noop"
	"conductor/internal/adapters/errors/sentry"
	"conductor/internal/adapters/redis"
	"conductor/internal/console"
	"conductor/internal/memory"
	"conductor/internal/memory/mem0"
	"conductor/internal/memory/redisstore"
	"conductor/internal/metrics"
	"conductor/internal/orchestrator"
	"conductor/internal/tools"
	memorytools "conductor/internal/tools/memory"
	"conductor/internal/tools/scraper"
	"conductor/internal/workflow"
	"conductor/pkg/errors"
	"conductor/pkg/logger"
)

func main() {
	workflowName := flag.String("workflow", "research", "workflow to run")
	input := flag.String("input", "", "user input for the run")
	userID := flag.String("user", "local", "user id owning the session")
	sessionID := flag.String("session", "", "session id to resume (empty starts a new one)")
	list := flag.Bool("list", false, "list registered workflows and exit")
	verbose := flag.Bool("verbose", false, "print tool payloads and final session state")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	// Cancel the run on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cancelOnSignal(cancel, log)

	if cfg.Metrics.Enabled {
		startMetricsServer(cfg, log)
	}

	manager, err := initManager(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}

	if err := registerWorkflows(manager); err != nil {
		log.Fatalf("Failed to register workflows: %v", err)
	}

	var opts []console.Option
	if *verbose {
		opts = append(opts, console.WithVerbose())
	}
	out := console.New(opts...)

	if *list {
		out.Workflows(manager.Workflows())
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := runWorkflow(ctx, cfg, manager, out, *workflowName, *input, *userID, *sessionID); err != nil {
		out.Error(manager.Envelope(err))
		_ = errorTracker.Flush(context.Background())
		os.Exit(1)
	}

	_ = errorTracker.Flush(ctx)
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initManager wires integrations into a tool registry and builds the
// orchestration manager around it.
func initManager(ctx context.Context, cfg *config.Config, log *logger.Logger) (*orchestrator.Manager, error) {
	toolRegistry := tools.NewRegistry()

	if store := initMemoryStore(ctx, cfg, log); store != nil {
		if err := memorytools.Register(toolRegistry, store); err != nil {
			return nil, err
		}
		log.Info("Memory tools registered")
	}

	if cfg.Firecrawl.Enabled() {
		client, err := scraper.NewClient(cfg.Firecrawl)
		if err != nil {
			return nil, err
		}
		if err := scraper.Register(toolRegistry, client); err != nil {
			return nil, err
		}
		log.Info("Scraper tools registered")
	}

	var models workflow.ModelResolver
	if cfg.Agents.GeminiAPIKey != "" {
		resolver, err := workflow.NewGeminiResolver(cfg.Agents.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		models = resolver
	} else {
		log.Warn("GOOGLE_API_KEY is not set, model calls will fail until it is provided")
	}

	return orchestrator.NewManager(orchestrator.ManagerDeps{
		AppName: cfg.App.Name,
		Agents:  cfg.Agents,
		Tools:   toolRegistry,
		Models:  models,
	})
}

// initMemoryStore selects the memory backend: the managed Mem0 service
// when configured, Redis as the local fallback, none otherwise.
func initMemoryStore(ctx context.Context, cfg *config.Config, log *logger.Logger) memory.Store {
	if cfg.Mem0.Enabled() {
		store, err := mem0.New(cfg.Mem0)
		if err != nil {
			log.Warnf("Failed to initialize Mem0: %v", err)
			return nil
		}
		log.Info("Memory backed by Mem0")
		return store
	}

	client, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warnf("Memory disabled, Redis unavailable: %v", err)
		return nil
	}
	log.Info("Memory backed by Redis")
	return redisstore.New(client)
}

// registerWorkflows declares the built-in workflows. Tool references are
// filtered against the live registry so the pipeline still builds when an
// integration is not configured.
func registerWorkflows(m *orchestrator.Manager) error {
	researcher := workflow.AgentConfig{
		Name:        "researcher",
		Description: "Gathers source material for the request",
		Instruction: "Research the user's request. Use the available tools to find current information and cite the sources you used.",
		Tools:       availableTools(m, "web_search", "scrape_url", "search_memory"),
		OutputKey:   "research_notes",
	}
	writer := workflow.AgentConfig{
		Name:        "writer",
		Description: "Writes the final answer",
		Instruction: "Write a concise, well-structured answer to the user's request based on {research_notes}.",
	}

	wf, err := m.NewWorkflowBuilder("research").
		SetDescription("Research the request, then write the answer").
		AddLLMAgent(researcher).
		AddLLMAgent(writer).
		AddSequentialAgent("research_pipeline", "Researcher followed by writer",
			workflow.Ref("researcher"), workflow.Ref("writer")).
		SetEntryPoint("research_pipeline").
		Build()
	if err != nil {
		return err
	}

	m.RegisterWorkflow(wf)
	return nil
}

func availableTools(m *orchestrator.Manager, candidates ...string) []string {
	var names []string
	for _, name := range candidates {
		if m.HasTool(name) {
			names = append(names, name)
		}
	}
	return names
}

// runWorkflow executes one run, streaming events when enabled.
func runWorkflow(ctx context.Context, cfg *config.Config, m *orchestrator.Manager, out *console.Renderer, name, input, userID, sessionID string) error {
	if cfg.Agents.Streaming {
		events, err := m.StreamWorkflow(ctx, name, input, userID, sessionID)
		if err != nil {
			return err
		}

		out.Banner(name, sessionLabel(sessionID))
		for ev := range events {
			out.Event(ev)
		}
		return ctx.Err()
	}

	result, err := m.RunWorkflow(ctx, name, input, userID, sessionID)
	if err != nil {
		return err
	}

	out.Banner(name, result.SessionID)
	for _, ev := range result.Events {
		out.Event(ev)
	}
	out.Result(result)
	return nil
}

func sessionLabel(sessionID string) string {
	if sessionID == "" {
		return "new"
	}
	return sessionID
}

// startMetricsServer exposes Prometheus metrics on a side port.
func startMetricsServer(cfg *config.Config, log *logger.Logger) {
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	go func() {
		log.Infof("Metrics server listening on %s", cfg.Metrics.Addr)
		if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
			log.Warnf("Metrics server stopped: %v", err)
		}
	}()
}

// cancelOnSignal cancels the run context on the first shutdown signal.
func cancelOnSignal(cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")
	cancel()
}
