package strategy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

func passthroughGraph(t *testing.T, name string) *graph.Graph {
	t.Helper()
	return graph.NewBuilder(name).
		AddNode("start", graph.Transform(func(_ *graph.RunContext, in graph.Output) (graph.Output, error) {
			return in, nil
		})).
		Start("start").Finish("start").
		MustBuild()
}

// appendGraph commits n messages to the session when run.
func appendGraph(t *testing.T, name string, n int) *graph.Graph {
	t.Helper()
	return graph.NewBuilder(name).
		AddNode("start", graph.Transform(func(rc *graph.RunContext, in graph.Output) (graph.Output, error) {
			ws, err := rc.Store.AcquireWrite(rc.Context)
			if err != nil {
				return graph.Output{}, err
			}
			defer ws.Rollback()
			for i := 0; i < n; i++ {
				ws.Append(core.NewUserMessage(fmt.Sprintf("filler %d", i)))
			}
			if err := ws.Commit(); err != nil {
				return graph.Output{}, err
			}
			return in, nil
		})).
		Start("start").Finish("start").
		MustBuild()
}

func noopTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "does nothing", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) { return nil, nil })
}

func newOrchestrator(store *session.Store, c *compress.Compressor) *Orchestrator {
	return NewOrchestrator(
		store,
		model.NewMockModel("test"),
		tool.NewDispatcher(tool.NewRegistry()),
		func(o *OrchestratorOptions) {
			o.Compressor = c
			o.Logger = logging.NoOpLogger{}
		},
	)
}

func TestNewStrategyValidation(t *testing.T) {
	_, err := NewStrategy("empty", nil)
	assert.Error(t, err)

	_, err = NewStrategy("nograph", []Stage{{Name: "a", Mode: Dynamic}})
	assert.Error(t, err)
}

func TestStaticToolValidationAtConstruction(t *testing.T) {
	g := graph.NewBuilder("needs-tools").
		AddNode("start", graph.ToolExecute(func(o *graph.ToolExecuteOptions) {
			o.Tools = []string{"present", "absent"}
		})).
		Start("start").Finish("start").
		MustBuild()

	_, err := NewStrategy("s", []Stage{StaticStage("a", g, noopTool("present"))})
	var notFound *core.ToolNotFoundError
	require.ErrorAs(t, err, &notFound, "missing static tool must fail at construction, not at run time")

	_, err = NewStrategy("s", []Stage{StaticStage("a", g, noopTool("present"), noopTool("absent"))})
	assert.NoError(t, err)
}

func TestPersistPolicyCarriesHistoryForward(t *testing.T) {
	store := session.NewStore(core.NewPrompt(), nil)
	o := newOrchestrator(store, nil)

	s, err := NewStrategy("persist", []Stage{
		DynamicStage("a", appendGraph(t, "a", 3)),
		DynamicStage("b", passthroughGraph(t, "b")),
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Len(t, store.AcquireRead().Messages(), 3, "persist must not touch the prompt between stages")
}

func TestClearPolicyRestoresSystemMessages(t *testing.T) {
	store := session.NewStore(core.NewPrompt(core.NewSystemMessage("sys")), nil)
	o := newOrchestrator(store, nil)

	s, err := NewStrategy("clear", []Stage{
		DynamicStage("a", appendGraph(t, "a", 5)),
		DynamicStage("b", passthroughGraph(t, "b")),
	}, func(opts *StrategyOptions) { opts.Policy = Clear })
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	require.NoError(t, err)

	msgs := store.AcquireRead().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "sys", msgs[0].Text)
	assert.Equal(t, core.KindSystem, msgs[0].Kind)
}

// Spec-style scenario: two stages with the Compress policy. Stage A leaves a
// 120-message history; exactly one compression runs between the stages and
// stage B starts from the reduced history.
func TestCompressPolicyInsertsSingleCompression(t *testing.T) {
	var compressions int
	summarizer := compress.SummarizerFunc(func(_ context.Context, msgs []core.Message) (string, error) {
		compressions++
		return fmt.Sprintf("summary of %d messages", len(msgs)), nil
	})
	c := compress.NewCompressor(summarizer)

	store := session.NewStore(core.NewPrompt(), nil)
	o := newOrchestrator(store, c)

	var seenByB int
	stageB := graph.NewBuilder("b").
		AddNode("start", graph.Transform(func(rc *graph.RunContext, in graph.Output) (graph.Output, error) {
			seenByB = len(rc.Store.AcquireRead().Messages())
			return in, nil
		})).
		Start("start").Finish("start").
		MustBuild()

	snapshotBefore := store.AcquireRead()

	s, err := NewStrategy("compressing", []Stage{
		DynamicStage("a", appendGraph(t, "a", 120)),
		DynamicStage("b", stageB),
	}, func(opts *StrategyOptions) { opts.Policy = Compress })
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, compressions, "exactly one compression step between two stages")
	assert.Equal(t, 1, seenByB, "stage B must see the compressed history")
	assert.Less(t, seenByB, 120)
	assert.Empty(t, snapshotBefore.Messages(), "earlier snapshots must not be mutated")
}

func TestCompressPolicyThreeStages(t *testing.T) {
	var compressions int
	c := compress.NewCompressor(compress.SummarizerFunc(
		func(_ context.Context, msgs []core.Message) (string, error) {
			compressions++
			return "summary", nil
		}))

	store := session.NewStore(core.NewPrompt(), nil)
	o := newOrchestrator(store, c)

	s, err := NewStrategy("three", []Stage{
		DynamicStage("a", appendGraph(t, "a", 4)),
		DynamicStage("b", appendGraph(t, "b", 4)),
		DynamicStage("c", passthroughGraph(t, "c")),
	}, func(opts *StrategyOptions) { opts.Policy = Compress })
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, compressions, "for [s1,s2,s3] the action runs exactly between stages: s1,X,s2,X,s3")
}

func TestCompressPolicyWithoutCompressorFails(t *testing.T) {
	store := session.NewStore(core.NewPrompt(), nil)
	o := newOrchestrator(store, nil)

	s, err := NewStrategy("broken", []Stage{
		DynamicStage("a", appendGraph(t, "a", 2)),
		DynamicStage("b", passthroughGraph(t, "b")),
	}, func(opts *StrategyOptions) { opts.Policy = Compress })
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	var compErr *core.CompressionError
	assert.ErrorAs(t, err, &compErr)
}

func TestStaticStageInstallsFixedToolSet(t *testing.T) {
	fixed := noopTool("fixed")
	store := session.NewStore(core.NewPrompt(), nil)

	var stageTools []string
	g := graph.NewBuilder("inspect").
		AddNode("start", graph.Transform(func(rc *graph.RunContext, in graph.Output) (graph.Output, error) {
			for _, tl := range rc.Store.AcquireRead().Tools() {
				stageTools = append(stageTools, tl.Name())
			}
			return in, nil
		})).
		Start("start").Finish("start").
		MustBuild()

	o := newOrchestrator(store, nil)
	s, err := NewStrategy("static", []Stage{StaticStage("a", g, fixed)})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), s, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"fixed"}, stageTools)
}
