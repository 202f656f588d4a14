package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/errors"
)

type stubToolSource map[string]bool

func (s stubToolSource) Has(name string) bool { return s[name] }

func llmCfg(name string) AgentConfig {
	return AgentConfig{
		Name:        name,
		Model:       "gemini-2.0-flash",
		Instruction: "You are " + name,
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Run("valid pipeline builds with defaults applied", func(t *testing.T) {
		cfg, err := NewBuilder("research").
			SetDescription("two stage research pipeline").
			AddLLMAgent(llmCfg("planner")).
			AddLLMAgent(llmCfg("writer")).
			AddSequentialAgent("pipeline", "plan then write", Refs("planner", "writer")...).
			SetEntryPoint("pipeline").
			Build()
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "research", cfg.Name)
		assert.Equal(t, "pipeline", cfg.EntryPoint)
		assert.Equal(t, []string{"planner", "writer", "pipeline"}, cfg.AgentNames())

		planner, ok := cfg.Agent("planner")
		require.True(t, ok)
		assert.Equal(t, KindLLM, planner.Kind)
		assert.Equal(t, DefaultTemperature, planner.Temperature)
		assert.Equal(t, DefaultMaxOutputTokens, planner.MaxOutputTokens)
	})

	t.Run("entry point may be set before agents are declared", func(t *testing.T) {
		b := NewBuilder("late").SetEntryPoint("solo")
		assert.Error(t, b.Err())

		cfg, err := b.AddLLMAgent(llmCfg("solo")).Build()
		require.NoError(t, err)
		assert.NoError(t, b.Err())
		assert.Equal(t, "solo", cfg.EntryPoint)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		b := NewBuilder("dup").
			AddLLMAgent(llmCfg("worker")).
			AddLLMAgent(llmCfg("worker")).
			SetEntryPoint("worker")

		var dup *DuplicateNameError
		require.ErrorAs(t, b.Err(), &dup)
		assert.Equal(t, "worker", dup.Name)

		_, err := b.Build()
		require.ErrorAs(t, err, &dup)
	})

	t.Run("all violations are reported in one batch", func(t *testing.T) {
		bad := llmCfg("analyst")
		bad.Temperature = 3.5
		bad.Instruction = ""

		_, err := NewBuilder("broken").
			AddLLMAgent(bad).
			AddSequentialAgent("pipeline", "", Refs("analyst", "ghost")...).
			SetEntryPoint("missing").
			Build()
		require.Error(t, err)

		var batch *errors.MultiError
		require.ErrorAs(t, err, &batch)
		assert.Len(t, batch.Errors, 4)

		var unknown *UnknownAgentError
		require.ErrorAs(t, err, &unknown)
		var field *FieldError
		require.ErrorAs(t, err, &field)
	})

	t.Run("missing entry point fails", func(t *testing.T) {
		_, err := NewBuilder("no-entry").AddLLMAgent(llmCfg("a")).Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "entry point")
	})

	t.Run("composite requires children", func(t *testing.T) {
		_, err := NewBuilder("empty").
			AddSequentialAgent("pipeline", "").
			SetEntryPoint("pipeline").
			Build()
		require.Error(t, err)

		var field *FieldError
		require.ErrorAs(t, err, &field)
		assert.Equal(t, "sub_agents", field.Field)
	})

	t.Run("self reference is a cycle", func(t *testing.T) {
		_, err := NewBuilder("selfref").
			AddSequentialAgent("loop", "", Ref("loop")).
			SetEntryPoint("loop").
			Build()
		require.Error(t, err)

		var cyc *CyclicReferenceError
		require.ErrorAs(t, err, &cyc)
		assert.Equal(t, []string{"loop", "loop"}, cyc.Path)
	})

	t.Run("indirect cycle is detected", func(t *testing.T) {
		_, err := NewBuilder("cycle").
			AddLLMAgent(llmCfg("leaf")).
			AddSequentialAgent("a", "", Refs("b", "leaf")...).
			AddSequentialAgent("b", "", Ref("a")).
			SetEntryPoint("a").
			Build()
		require.Error(t, err)

		var cyc *CyclicReferenceError
		require.ErrorAs(t, err, &cyc)
		assert.GreaterOrEqual(t, len(cyc.Path), 3)
		assert.Equal(t, cyc.Path[0], cyc.Path[len(cyc.Path)-1])
	})

	t.Run("shared sub-agent is not a cycle", func(t *testing.T) {
		_, err := NewBuilder("diamond").
			AddLLMAgent(llmCfg("shared")).
			AddSequentialAgent("left", "", Ref("shared")).
			AddSequentialAgent("right", "", Ref("shared")).
			AddParallelAgent("top", "", Refs("left", "right")...).
			SetEntryPoint("top").
			Build()
		assert.NoError(t, err)
	})

	t.Run("loop iterations default and validate", func(t *testing.T) {
		cfg, err := NewBuilder("loops").
			AddLLMAgent(llmCfg("critic")).
			AddLoopAgent("refine", "", 0, Ref("critic")).
			SetEntryPoint("refine").
			Build()
		require.NoError(t, err)

		loop, ok := cfg.Agent("refine")
		require.True(t, ok)
		assert.Equal(t, DefaultMaxIterations, loop.MaxIterations)
	})

	t.Run("tool references validated against source", func(t *testing.T) {
		withTools := llmCfg("scout")
		withTools.Tools = []string{"scrape_url", "nonexistent"}

		_, err := NewBuilder("tooled").
			ValidateToolsWith(stubToolSource{"scrape_url": true}).
			AddLLMAgent(withTools).
			SetEntryPoint("scout").
			Build()
		require.Error(t, err)

		var unknownTool *UnknownToolError
		require.ErrorAs(t, err, &unknownTool)
		assert.Equal(t, "nonexistent", unknownTool.Name)
		assert.Equal(t, "scout", unknownTool.Agent)
	})

	t.Run("tool references skipped without source", func(t *testing.T) {
		withTools := llmCfg("scout")
		withTools.Tools = []string{"anything"}

		_, err := NewBuilder("untooled").
			AddLLMAgent(withTools).
			SetEntryPoint("scout").
			Build()
		assert.NoError(t, err)
	})
}

func TestBuilder_InlineSubAgents(t *testing.T) {
	t.Run("inline children are hoisted and auto-named", func(t *testing.T) {
		cfg, err := NewBuilder("inline").
			AddParallelAgent("fanout", "run both",
				Inline(llmCfg("named_child")),
				Inline(AgentConfig{Model: "gemini-2.0-flash", Instruction: "anonymous"}),
			).
			SetEntryPoint("fanout").
			Build()
		require.NoError(t, err)

		fanout, ok := cfg.Agent("fanout")
		require.True(t, ok)
		assert.Equal(t, []string{"named_child", "fanout_sub_1"}, fanout.SubAgents)

		auto, ok := cfg.Agent("fanout_sub_1")
		require.True(t, ok)
		assert.Equal(t, KindLLM, auto.Kind)
		assert.Equal(t, DefaultTemperature, auto.Temperature)
	})

	t.Run("inline child colliding with declared name is a duplicate", func(t *testing.T) {
		_, err := NewBuilder("collide").
			AddLLMAgent(llmCfg("worker")).
			AddSequentialAgent("pipeline", "", Inline(llmCfg("worker"))).
			SetEntryPoint("pipeline").
			Build()
		require.Error(t, err)

		var dup *DuplicateNameError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "worker", dup.Name)
	})
}

func TestConfig_Immutable(t *testing.T) {
	b := NewBuilder("frozen").
		AddLLMAgent(llmCfg("a")).
		AddSequentialAgent("root", "", Ref("a")).
		SetEntryPoint("root")

	cfg, err := b.Build()
	require.NoError(t, err)

	// Mutating the returned slices must not affect a second build.
	cfg.Agents[0].Name = "mutated"
	root, ok := cfg.Agent("root")
	require.True(t, ok)
	root.SubAgents[0] = "mutated"

	cfg2, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, "a", cfg2.Agents[0].Name)
	root2, _ := cfg2.Agent("root")
	assert.Equal(t, []string{"a"}, root2.SubAgents)
}
