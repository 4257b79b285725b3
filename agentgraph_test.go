package agentgraph

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/artifact"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/strategy"
	"github.com/hupe1980/agentgraph/tool"
)

func weatherTool() tool.Tool {
	return tool.NewFunctionTool("get_weather", "Get the current weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return "sunny, 22C in " + args["city"].(string), nil
		},
	)
}

func agentGraph(t *testing.T) *graph.Graph {
	t.Helper()
	return graph.NewBuilder("agent").
		AddNode("llm", graph.LLMRequest()).
		AddNode("tools", graph.ToolExecute()).
		AddNode("finish", graph.Transform(func(_ *graph.RunContext, in graph.Output) (graph.Output, error) {
			return in, nil
		})).
		AddEdge("llm", graph.Edge{To: "tools", Condition: graph.OnToolCall()}).
		AddEdge("llm", graph.Edge{To: "finish", Condition: graph.OnAssistantMessage()}).
		AddEdge("tools", graph.Edge{To: "llm"}).
		Start("llm").Finish("finish").
		MustBuild()
}

func TestRunnerToolLoop(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCalls("weather in Berlin?",
		core.ToolCall{ID: "w1", Name: "get_weather", Arguments: `{"city":"Berlin"}`})
	m.AddResponse("sunny, 22C in Berlin", "It is sunny and 22C in Berlin.")

	runner := New(func(o *Options) {
		o.Model = m
		o.SystemPrompt = "You are a weather assistant."
		o.Tools = []tool.Tool{weatherTool()}
	})

	out, err := runner.RunGraph(context.Background(), agentGraph(t), "weather in Berlin?")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "It is sunny and 22C in Berlin.", out[0].Text)

	// system prompt, user input, tool call, tool result, final answer
	history := runner.Store().AcquireRead().Messages()
	require.Len(t, history, 5)
	assert.Equal(t, core.KindSystem, history[0].Kind)
	assert.True(t, history[2].IsToolCall())
	assert.True(t, history[3].IsToolResult())
}

func TestRunnerLifecycleEvents(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCalls("weather in Oslo?",
		core.ToolCall{ID: "w1", Name: "get_weather", Arguments: `{"city":"Oslo"}`})
	m.AddResponse("sunny, 22C in Oslo", "Sunny in Oslo.")

	runner := New(func(o *Options) {
		o.Model = m
		o.Tools = []tool.Tool{weatherTool()}
	})

	var seen []event.Point
	for _, point := range []event.Point{
		event.PointInit, event.PointBeforeToolCall, event.PointAfterToolCall, event.PointResult,
	} {
		p := point
		runner.RegisterListener(event.NewFuncListener(p, func(_ context.Context, _ *event.Notification) error {
			seen = append(seen, p)
			return nil
		}))
	}

	_, err := runner.RunGraph(context.Background(), agentGraph(t), "weather in Oslo?")
	require.NoError(t, err)

	assert.Equal(t, []event.Point{
		event.PointInit, event.PointBeforeToolCall, event.PointAfterToolCall, event.PointResult,
	}, seen)
}

func TestRunnerRegisteredToolVisibleToDynamicStage(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCalls("weather in Riga?",
		core.ToolCall{ID: "w1", Name: "get_weather", Arguments: `{"city":"Riga"}`})
	m.AddResponse("sunny, 22C in Riga", "Sunny in Riga.")

	runner := New(func(o *Options) { o.Model = m })
	runner.RegisterTool(weatherTool())

	out, err := runner.RunGraph(context.Background(), agentGraph(t), "weather in Riga?")
	require.NoError(t, err)
	assert.Equal(t, "Sunny in Riga.", out[0].Text)
}

func TestRunnerErrorHandlerRecoversRun(t *testing.T) {
	failing := tool.NewFunctionTool("get_weather", "always fails",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(_ context.Context, _ map[string]any) (any, error) {
			return nil, assert.AnError
		},
	)

	m := model.NewMockModel("mock")
	m.AddToolCalls("weather?", core.ToolCall{ID: "w1", Name: "get_weather", Arguments: `{}`})

	runner := New(func(o *Options) {
		o.Model = m
		o.Tools = []tool.Tool{failing}
	})

	var handled atomic.Bool
	runner.RegisterErrorHandler(func(_ context.Context, _ *event.Notification) (bool, error) {
		handled.Store(true)
		return true, nil
	})

	g := graph.NewBuilder("recover").
		AddNode("llm", graph.LLMRequest()).
		AddNode("tools", graph.ToolExecute()).
		AddNode("fallback", graph.Transform(func(_ *graph.RunContext, _ graph.Output) (graph.Output, error) {
			return graph.Output{Messages: []core.Message{core.NewAssistantMessage("degraded answer")}}, nil
		})).
		AddEdge("llm", graph.Edge{To: "tools", Condition: graph.OnToolCall()}).
		AddEdge("llm", graph.Edge{To: "fallback", Condition: graph.OnAssistantMessage()}).
		AddEdge("tools", graph.Edge{To: "fallback", Condition: graph.OnError()}).
		AddEdge("tools", graph.Edge{To: "llm"}).
		Start("llm").Finish("fallback").
		MustBuild()

	out, err := runner.RunGraph(context.Background(), g, "weather?")
	require.NoError(t, err)
	assert.True(t, handled.Load())
	require.Len(t, out, 1)
	assert.Equal(t, "degraded answer", out[0].Text)
}

// capturingStore remembers the run IDs it saw so tests can look up artifacts
// without knowing the generated run ID up front.
type capturingStore struct {
	*artifact.InMemoryStore
	lastRunID string
}

func (s *capturingStore) Save(runID, name string, data []byte) error {
	s.lastRunID = runID
	return s.InMemoryStore.Save(runID, name, data)
}

func TestRunnerRecordsTranscriptArtifact(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("hello", "hi there")

	store := &capturingStore{InMemoryStore: artifact.NewInMemoryStore()}
	runner := New(func(o *Options) {
		o.Model = m
		o.Artifacts = store
	})

	g := graph.NewBuilder("chat").
		AddNode("llm", graph.LLMRequest()).
		AddNode("finish", graph.Transform(func(_ *graph.RunContext, in graph.Output) (graph.Output, error) {
			return in, nil
		})).
		AddEdge("llm", graph.Edge{To: "finish"}).
		Start("llm").Finish("finish").
		MustBuild()

	_, err := runner.RunGraph(context.Background(), g, "hello")
	require.NoError(t, err)
	require.NotEmpty(t, store.lastRunID)

	data, err := store.Get(store.lastRunID, artifact.TranscriptName)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hi there")
}

func TestRunnerMultiStageClearPolicy(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("draft the report", "draft done")
	m.AddResponse("draft done", "review done")

	runner := New(func(o *Options) {
		o.Model = m
		o.SystemPrompt = "You are concise."
	})

	oneShot := func(name string) *graph.Graph {
		return graph.NewBuilder(name).
			AddNode("llm", graph.LLMRequest()).
			AddNode("finish", graph.Transform(func(_ *graph.RunContext, in graph.Output) (graph.Output, error) {
				return in, nil
			})).
			AddEdge("llm", graph.Edge{To: "finish"}).
			Start("llm").Finish("finish").
			MustBuild()
	}

	s, err := strategy.NewStrategy("report", []strategy.Stage{
		strategy.DynamicStage("draft", oneShot("draft")),
		strategy.DynamicStage("review", oneShot("review")),
	}, func(o *strategy.StrategyOptions) { o.Policy = strategy.Clear })
	require.NoError(t, err)

	out, err := runner.Run(context.Background(), s, "draft the report")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "review done", out[0].Text)

	// Clear drops stage one's turn; stage two re-seeds from its handed-over
	// input, so the user message never comes back.
	history := runner.Store().AcquireRead().Messages()
	require.NotEmpty(t, history)
	assert.Equal(t, core.KindSystem, history[0].Kind)
	for _, msg := range history {
		assert.NotEqual(t, "draft the report", msg.Text, "stage one user turn should be cleared")
	}
}
