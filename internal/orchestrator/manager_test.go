package orchestrator

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/session"
	adktool "google.golang.org/adk/tool"
	"google.golang.org/genai"

	"conductor/internal/adapters/config"
	"conductor/internal/tools"
	"conductor/internal/workflow"
	"conductor/pkg/errors"
)

// echoAgent is a runtime agent that emits a fixed final response.
func echoAgent(t *testing.T, name, response string) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name:        name,
		Description: "test agent",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {
				yield(&session.Event{
					Author: name,
					LLMResponse: model.LLMResponse{
						TurnComplete: true,
						Content:      genai.NewContentFromText(response, genai.RoleModel),
					},
				}, nil)
			}
		},
	})
	require.NoError(t, err)
	return ag
}

func failingAgent(t *testing.T, name string, failure error) agent.Agent {
	t.Helper()
	ag, err := agent.New(agent.Config{
		Name: name,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(yield func(*session.Event, error) bool) {
				yield(nil, failure)
			}
		},
	})
	require.NoError(t, err)
	return ag
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(ManagerDeps{
		AppName: "conductor_test",
		Agents: config.AgentsConfig{
			DefaultModel:     "gemini-2.0-flash",
			ExecutionTimeout: 30 * time.Second,
		},
	})
	require.NoError(t, err)
	return m
}

func registerEchoWorkflow(t *testing.T, m *Manager, workflowName, agentName, response string) {
	t.Helper()
	m.RegisterAgent(agentName, echoAgent(t, agentName, response))

	cfg, err := m.NewWorkflowBuilder(workflowName).
		AddCustomAgent(agentName, "echo").
		SetEntryPoint(agentName).
		Build()
	require.NoError(t, err)
	m.RegisterWorkflow(cfg)
}

func TestManager_RunWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("runs to completion and captures final output", func(t *testing.T) {
		m := newTestManager(t)
		registerEchoWorkflow(t, m, "echo_flow", "echoer", "hello from the agent")

		result, err := m.RunWorkflow(ctx, "echo_flow", "say hello", "user-1", "")
		require.NoError(t, err)

		assert.Equal(t, "echo_flow", result.Workflow)
		assert.Equal(t, "user-1", result.UserID)
		assert.NotEmpty(t, result.SessionID)
		assert.Equal(t, "hello from the agent", result.FinalOutput)
		require.NotEmpty(t, result.Events)
		assert.Equal(t, EventFinal, result.Events[len(result.Events)-1].Type)
	})

	t.Run("reuses an explicit session id", func(t *testing.T) {
		m := newTestManager(t)
		registerEchoWorkflow(t, m, "echo_flow", "echoer", "ok")

		first, err := m.RunWorkflow(ctx, "echo_flow", "one", "user-2", "pinned-session")
		require.NoError(t, err)
		assert.Equal(t, "pinned-session", first.SessionID)

		second, err := m.RunWorkflow(ctx, "echo_flow", "two", "user-2", "pinned-session")
		require.NoError(t, err)
		assert.Equal(t, "pinned-session", second.SessionID)
	})

	t.Run("unregistered workflow", func(t *testing.T) {
		m := newTestManager(t)
		_, err := m.RunWorkflow(ctx, "ghost", "input", "user-1", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("missing user id", func(t *testing.T) {
		m := newTestManager(t)
		registerEchoWorkflow(t, m, "echo_flow", "echoer", "ok")

		_, err := m.RunWorkflow(ctx, "echo_flow", "input", "", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("partial chunks do not double count tokens", func(t *testing.T) {
		m := newTestManager(t)

		// The closing complete chunk repeats the cumulative usage reported
		// on the streaming fragment; only one of them may be counted.
		usage := &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		}
		ag, err := agent.New(agent.Config{
			Name: "streamy",
			Run: func(ctx agent.InvocationContext) iter.Seq2[*session.Event, error] {
				return func(yield func(*session.Event, error) bool) {
					if !yield(&session.Event{
						Author: "streamy",
						LLMResponse: model.LLMResponse{
							Partial:       true,
							Content:       genai.NewContentFromText("chunk ", genai.RoleModel),
							UsageMetadata: usage,
						},
					}, nil) {
						return
					}
					yield(&session.Event{
						Author: "streamy",
						LLMResponse: model.LLMResponse{
							TurnComplete:  true,
							Content:       genai.NewContentFromText("chunk done", genai.RoleModel),
							UsageMetadata: usage,
						},
					}, nil)
				}
			},
		})
		require.NoError(t, err)
		m.RegisterAgent("streamy", ag)

		cfg, err := m.NewWorkflowBuilder("stream_tokens").
			AddCustomAgent("streamy", "").
			SetEntryPoint("streamy").
			Build()
		require.NoError(t, err)
		m.RegisterWorkflow(cfg)

		result, err := m.RunWorkflow(ctx, "stream_tokens", "go", "user-1", "")
		require.NoError(t, err)
		assert.Equal(t, TokenUsage{Input: 10, Output: 5, Total: 15}, result.Usage)
	})

	t.Run("agent failure propagates", func(t *testing.T) {
		m := newTestManager(t)
		m.RegisterAgent("broken", failingAgent(t, "broken", errors.Wrap(errors.ErrUnavailable, "model backend down")))

		cfg, err := m.NewWorkflowBuilder("broken_flow").
			AddCustomAgent("broken", "").
			SetEntryPoint("broken").
			Build()
		require.NoError(t, err)
		m.RegisterWorkflow(cfg)

		_, err = m.RunWorkflow(ctx, "broken_flow", "input", "user-1", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrUnavailable)
	})
}

func TestManager_StreamWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("streams events and closes the channel", func(t *testing.T) {
		m := newTestManager(t)
		registerEchoWorkflow(t, m, "stream_flow", "streamer", "streamed response")

		events, err := m.StreamWorkflow(ctx, "stream_flow", "go", "user-1", "")
		require.NoError(t, err)

		var collected []Event
		for ev := range events {
			collected = append(collected, ev)
		}

		require.NotEmpty(t, collected)
		last := collected[len(collected)-1]
		assert.Equal(t, EventFinal, last.Type)
		assert.Equal(t, "streamed response", last.Text)
	})

	t.Run("configuration errors fail synchronously", func(t *testing.T) {
		m := newTestManager(t)
		_, err := m.StreamWorkflow(ctx, "ghost", "go", "user-1", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("agent failure ends the stream with an error envelope", func(t *testing.T) {
		m := newTestManager(t)
		m.RegisterAgent("flaky", failingAgent(t, "flaky", errors.Wrap(errors.ErrRateLimited, "quota")))

		cfg, err := m.NewWorkflowBuilder("flaky_flow").
			AddCustomAgent("flaky", "").
			SetEntryPoint("flaky").
			Build()
		require.NoError(t, err)
		m.RegisterWorkflow(cfg)

		events, err := m.StreamWorkflow(ctx, "flaky_flow", "go", "user-1", "")
		require.NoError(t, err)

		var last Event
		for ev := range events {
			last = ev
		}

		require.Equal(t, EventError, last.Type)
		require.NotNil(t, last.Envelope)
		assert.False(t, last.Envelope.OK)
		assert.Equal(t, errors.KindNetwork, last.Envelope.Kind)
		assert.Equal(t, "rate_limited", last.Envelope.Code)
		require.NotNil(t, last.Envelope.RetryInMs)
	})
}

func TestManager_Registries(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.RegisterToolFunc(tools.Definition{Name: "noop", Description: "does nothing"},
		func(ctx adktool.Context, args map[string]interface{}) (map[string]interface{}, error) {
			return map[string]interface{}{}, nil
		}))

	t.Run("builder validates against manager tools", func(t *testing.T) {
		llm := workflow.AgentConfig{
			Name:        "helper",
			Instruction: "help",
			Tools:       []string{"noop", "missing"},
		}

		_, err := m.NewWorkflowBuilder("wf").
			AddLLMAgent(llm).
			SetEntryPoint("helper").
			Build()
		require.Error(t, err)

		var unknown *workflow.UnknownToolError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "missing", unknown.Name)
	})

	t.Run("workflow listing", func(t *testing.T) {
		registerEchoWorkflow(t, m, "b_flow", "b_agent", "b")
		registerEchoWorkflow(t, m, "a_flow", "a_agent", "a")

		assert.Equal(t, []string{"a_flow", "b_flow"}, m.Workflows())

		cfg, ok := m.Workflow("a_flow")
		require.True(t, ok)
		assert.Equal(t, "a_flow", cfg.Name)

		_, ok = m.Workflow("zzz")
		assert.False(t, ok)
	})

	t.Run("default model applied at registration", func(t *testing.T) {
		llm := workflow.AgentConfig{Name: "modeless", Instruction: "work"}
		cfg, err := m.NewWorkflowBuilder("defaults_flow").
			AddLLMAgent(llm).
			SetEntryPoint("modeless").
			Build()
		require.NoError(t, err)
		m.RegisterWorkflow(cfg)

		stored, ok := m.Workflow("defaults_flow")
		require.True(t, ok)
		ac, ok := stored.Agent("modeless")
		require.True(t, ok)
		assert.Equal(t, "gemini-2.0-flash", ac.Model)
	})
}

func TestMapEnvelope(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		kind  errors.Kind
		code  string
		retry bool
	}{
		{"unauthorized", errors.Wrap(errors.ErrUnauthorized, "bad token"), errors.KindPolicy, "unauthorized", false},
		{"not found", errors.Wrap(errors.ErrNotFound, "gone"), errors.KindUser, "not_found", false},
		{"invalid input", errors.Wrap(errors.ErrInvalidInput, "bad"), errors.KindUser, "invalid_input", false},
		{"rate limited", errors.Wrap(errors.ErrRateLimited, "slow down"), errors.KindNetwork, "rate_limited", true},
		{"timeout", errors.Wrap(errors.ErrTimeout, "deadline"), errors.KindNetwork, "timeout", true},
		{"unavailable", errors.Wrap(errors.ErrUnavailable, "down"), errors.KindNetwork, "unavailable", true},
		{"validation", &workflow.CyclicReferenceError{Path: []string{"a", "a"}}, errors.KindUser, "invalid_config", false},
		{"unknown", errors.New("boom"), errors.KindTool, "execution_failed", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := mapEnvelope(tc.err)
			assert.False(t, env.OK)
			assert.Equal(t, tc.kind, env.Kind)
			assert.Equal(t, tc.code, env.Code)
			if tc.retry {
				assert.NotNil(t, env.RetryInMs)
			} else {
				assert.Nil(t, env.RetryInMs)
			}
		})
	}
}
