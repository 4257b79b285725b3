package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

func newTestContext(t *testing.T, m model.Model, tools ...tool.Tool) *RunContext {
	t.Helper()
	if m == nil {
		m = model.NewMockModel("test")
	}
	store := session.NewStore(core.NewPrompt(), tools)
	dispatcher := tool.NewDispatcher(tool.NewRegistry(tools...))
	return NewRunContext(context.Background(), store, m, dispatcher)
}

func passthrough() Operation {
	return Transform(func(_ *RunContext, in Output) (Output, error) { return in, nil })
}

func emit(msgs ...core.Message) Operation {
	return Transform(func(_ *RunContext, _ Output) (Output, error) {
		return Output{Messages: msgs}, nil
	})
}

func TestBuildValidation(t *testing.T) {
	var gtErr *core.GraphTraversalError

	_, err := NewBuilder("empty").Build()
	if !errors.As(err, &gtErr) {
		t.Fatalf("expected GraphTraversalError for empty graph, got %v", err)
	}

	_, err = NewBuilder("nostart").
		AddNode("a", passthrough()).
		Finish("a").
		Build()
	if !errors.As(err, &gtErr) {
		t.Fatalf("expected error for undeclared start, got %v", err)
	}

	_, err = NewBuilder("badedge").
		AddNode("a", passthrough()).
		AddEdge("a", Edge{To: "ghost"}).
		Start("a").Finish("a").
		Build()
	if !errors.As(err, &gtErr) {
		t.Fatalf("expected error for edge to undeclared node, got %v", err)
	}

	_, err = NewBuilder("deadcode").
		AddNode("a", passthrough()).
		AddNode("island", passthrough()).
		AddEdge("island", Edge{To: "a"}).
		Start("a").Finish("a").
		Build()
	if !errors.As(err, &gtErr) {
		t.Fatalf("expected error for unreachable node, got %v", err)
	}
}

func TestRunLinearGraph(t *testing.T) {
	g := NewBuilder("linear").
		AddNode("start", emit(core.NewAssistantMessage("hello"))).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish"}).
		Start("start").Finish("finish").
		MustBuild()

	out, err := Run(newTestContext(t, nil), g, Output{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "hello" {
		t.Fatalf("unexpected output: %+v", out.Messages)
	}
}

// Overlapping conditions on one node: only declaration order decides, and
// swapping the order changes the outcome.
func TestEdgeDeclarationOrderSensitivity(t *testing.T) {
	mixed := []core.Message{
		core.NewAssistantMessage("thinking"),
		core.NewToolCallMessage(core.ToolCall{Name: "lookup"}),
	}
	routed := func(toolFirst bool) string {
		target := ""
		record := func(name string) Operation {
			return Transform(func(_ *RunContext, in Output) (Output, error) {
				target = name
				return in, nil
			})
		}
		b := NewBuilder("order").
			AddNode("start", emit(mixed...)).
			AddNode("tools", record("tools")).
			AddNode("answer", record("answer")).
			AddNode("finish", passthrough()).
			Start("start").Finish("finish")
		if toolFirst {
			b.AddEdge("start", Edge{To: "tools", Condition: OnToolCall()})
			b.AddEdge("start", Edge{To: "answer", Condition: OnAssistantMessage()})
		} else {
			b.AddEdge("start", Edge{To: "answer", Condition: OnAssistantMessage()})
			b.AddEdge("start", Edge{To: "tools", Condition: OnToolCall()})
		}
		b.AddEdge("tools", Edge{To: "finish"})
		b.AddEdge("answer", Edge{To: "finish"})

		if _, err := Run(newTestContext(t, nil), b.MustBuild(), Output{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return target
	}

	if got := routed(true); got != "tools" {
		t.Fatalf("tool-call edge declared first must win, got %q", got)
	}
	if got := routed(false); got != "answer" {
		t.Fatalf("swapped declaration order must change the outcome, got %q", got)
	}
}

func TestNoMatchingEdgeFails(t *testing.T) {
	g := NewBuilder("stuck").
		AddNode("start", emit(core.NewAssistantMessage("no tools here"))).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish", Condition: OnToolCall()}).
		Start("start").Finish("finish").
		MustBuild()

	_, err := Run(newTestContext(t, nil), g, Output{})
	var gtErr *core.GraphTraversalError
	if !errors.As(err, &gtErr) {
		t.Fatalf("expected GraphTraversalError, got %v", err)
	}
	if gtErr.Node != "start" {
		t.Fatalf("error should name the stuck node, got %q", gtErr.Node)
	}
}

func TestCyclesBoundedByCondition(t *testing.T) {
	loop := Transform(func(rc *RunContext, in Output) (Output, error) {
		n, _ := rc.State["laps"].(int)
		rc.State["laps"] = n + 1
		return in, nil
	})
	notDone := ConditionFunc(func(rc *RunContext, _ Output) (bool, error) {
		n, _ := rc.State["laps"].(int)
		return n < 5, nil
	})

	g := NewBuilder("cycle").
		AddNode("loop", loop).
		AddNode("finish", passthrough()).
		AddEdge("loop", Edge{To: "loop", Condition: notDone}).
		AddEdge("loop", Edge{To: "finish"}).
		Start("loop").Finish("finish").
		MustBuild()

	rc := newTestContext(t, nil)
	if _, err := Run(rc, g, Output{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if laps := rc.State["laps"]; laps != 5 {
		t.Fatalf("expected 5 laps, got %v", laps)
	}
}

func TestTemplateMessageRendersState(t *testing.T) {
	g := NewBuilder("templated").
		AddNode("prompt", TemplateMessage("Review the {{ .topic | default \"draft\" }} from stage {{ .stage }}.")).
		AddNode("finish", passthrough()).
		AddEdge("prompt", Edge{To: "finish"}).
		Start("prompt").Finish("finish").
		MustBuild()

	rc := newTestContext(t, nil)
	rc.State["topic"] = "summary"
	rc.State["stage"] = 2

	out, err := Run(rc, g, Output{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "Review the summary from stage 2." {
		t.Fatalf("unexpected render: %+v", out.Messages)
	}
	if out.Messages[0].Kind != core.KindUser {
		t.Fatalf("expected user message, got %s", out.Messages[0].Kind)
	}

	bad := NewBuilder("badtmpl").
		AddNode("prompt", TemplateMessage("{{ .unterminated")).
		AddNode("finish", passthrough()).
		AddEdge("prompt", Edge{To: "finish"}).
		Start("prompt").Finish("finish").
		MustBuild()
	if _, err := Run(newTestContext(t, nil), bad, Output{}); err == nil {
		t.Fatal("expected parse error for malformed template")
	}
}

func TestEdgeTransformMapsOutput(t *testing.T) {
	g := NewBuilder("transforming").
		AddNode("start", emit(core.NewAssistantMessage("raw"))).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{
			To: "finish",
			Transform: func(_ *RunContext, in Output) (Output, error) {
				return Output{Messages: []core.Message{core.NewAssistantMessage(in.Messages[0].Text + "+mapped")}}, nil
			},
		}).
		Start("start").Finish("finish").
		MustBuild()

	out, err := Run(newTestContext(t, nil), g, Output{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Messages[0].Text != "raw+mapped" {
		t.Fatalf("edge transform not applied: %q", out.Messages[0].Text)
	}
}

func TestSubgraphOutputBecomesNodeOutput(t *testing.T) {
	inner := NewBuilder("inner").
		AddNode("start", emit(core.NewAssistantMessage("from inner"))).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish"}).
		Start("start").Finish("finish").
		MustBuild()

	outer := NewBuilder("outer").
		AddNode("sub", Subgraph(inner)).
		AddNode("finish", passthrough()).
		AddEdge("sub", Edge{To: "finish"}).
		Start("sub").Finish("finish").
		MustBuild()

	out, err := Run(newTestContext(t, nil), outer, Output{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Messages[0].Text != "from inner" {
		t.Fatalf("subgraph output lost: %+v", out.Messages)
	}
}

func TestUnhandledNodeFailureAborts(t *testing.T) {
	boom := Transform(func(*RunContext, Output) (Output, error) {
		return Output{}, errors.New("node exploded")
	})
	g := NewBuilder("failing").
		AddNode("start", boom).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish"}).
		Start("start").Finish("finish").
		MustBuild()

	_, err := Run(newTestContext(t, nil), g, Output{})
	if err == nil || err.Error() != "node exploded" {
		t.Fatalf("expected terminal node error, got %v", err)
	}
}

func TestHandledFailureRoutesViaOnError(t *testing.T) {
	boom := Transform(func(*RunContext, Output) (Output, error) {
		return Output{}, errors.New("recoverable")
	})
	g := NewBuilder("recovering").
		AddNode("start", boom).
		AddNode("fallback", emit(core.NewAssistantMessage("recovered"))).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish", Condition: OnAssistantMessage()}).
		AddEdge("start", Edge{To: "fallback", Condition: OnError()}).
		AddEdge("fallback", Edge{To: "finish"}).
		Start("start").Finish("finish").
		MustBuild()

	rc := newTestContext(t, nil)
	rc.Pipeline.RegisterErrorHandler(func(_ context.Context, n *event.Notification) (bool, error) {
		return n.Err != nil, nil
	})

	out, err := Run(rc, g, Output{})
	if err != nil {
		t.Fatalf("handled failure must not abort: %v", err)
	}
	if out.Messages[0].Text != "recovered" {
		t.Fatalf("unexpected output: %+v", out.Messages)
	}
}

func TestCancellationReturnsErrCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := session.NewStore(core.NewPrompt(), nil)
	rc := NewRunContext(ctx, store, model.NewMockModel("test"), tool.NewDispatcher(tool.NewRegistry()))

	g := NewBuilder("cancelled").
		AddNode("start", Transform(func(*RunContext, Output) (Output, error) {
			cancel()
			return Output{}, nil
		})).
		AddNode("finish", passthrough()).
		AddEdge("start", Edge{To: "finish"}).
		Start("start").Finish("finish").
		MustBuild()

	_, err := Run(rc, g, Output{})
	if !errors.Is(err, core.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestCELCondition(t *testing.T) {
	cond, err := NewCELCondition(`has_tool_call && !has_error`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	rc := newTestContext(t, nil)
	match, err := cond.Evaluate(rc, Output{Messages: []core.Message{
		core.NewToolCallMessage(core.ToolCall{Name: "x"}),
	}})
	if err != nil || !match {
		t.Fatalf("expected match, got %v %v", match, err)
	}

	match, err = cond.Evaluate(rc, Output{Messages: []core.Message{core.NewAssistantMessage("plain")}})
	if err != nil || match {
		t.Fatalf("expected no match, got %v %v", match, err)
	}

	if _, err := NewCELCondition(`"not a bool"`); err == nil {
		t.Fatal("non-bool expression must fail at compile time")
	}
	if _, err := NewCELCondition(`has_tool_call &&`); err == nil {
		t.Fatal("syntax error must fail at compile time")
	}
}

func TestCELConditionReadsState(t *testing.T) {
	cond, err := NewCELCondition(`state["phase"] == "done"`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	rc := newTestContext(t, nil)
	rc.State["phase"] = "done"

	match, err := cond.Evaluate(rc, Output{})
	if err != nil || !match {
		t.Fatalf("expected state match, got %v %v", match, err)
	}
}

// Full loop: model requests a tool, the result loops back, model answers.
func TestLLMToolLoop(t *testing.T) {
	sum := tool.NewFunctionTool("sum", "adds a and b",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
	)

	m := model.NewMockModel("test")
	m.AddToolCalls("what is 2+2?", core.ToolCall{ID: "tc1", Name: "sum", Arguments: `{"a":2,"b":2}`})
	m.AddResponse("4", "the answer is 4")

	rc := newTestContext(t, m, sum)

	g := NewBuilder("agent").
		AddNode("llm", LLMRequest()).
		AddNode("tools", ToolExecute()).
		AddNode("finish", passthrough()).
		AddEdge("llm", Edge{To: "tools", Condition: OnToolCall()}).
		AddEdge("llm", Edge{To: "finish", Condition: OnAssistantMessage()}).
		AddEdge("tools", Edge{To: "llm"}).
		Start("llm").Finish("finish").
		MustBuild()

	out, err := Run(rc, g, Output{Messages: []core.Message{core.NewUserMessage("what is 2+2?")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "the answer is 4" {
		t.Fatalf("unexpected final output: %+v", out.Messages)
	}

	history := rc.Store.AcquireRead().Messages()
	// user, tool call, tool result, final answer
	if len(history) != 4 {
		t.Fatalf("expected 4 committed messages, got %d", len(history))
	}
	if !history[1].IsToolCall() || !history[2].IsToolResult() {
		t.Fatalf("history shape wrong: %+v", history)
	}
}

// streamRecorder wraps a backend and records the Stream flag of the last
// request it received.
type streamRecorder struct {
	inner  model.Model
	stream bool
}

func (s *streamRecorder) Info() model.Info { return s.inner.Info() }

func (s *streamRecorder) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	s.stream = req.Stream
	return s.inner.Generate(ctx, req)
}

func TestLLMRequestStreamFlagReachesModel(t *testing.T) {
	rec := &streamRecorder{inner: model.NewMockModel("test")}
	rc := newTestContext(t, rec)

	g := NewBuilder("streamed").
		AddNode("llm", LLMRequest(func(o *LLMRequestOptions) { o.Stream = true })).
		AddNode("finish", passthrough()).
		AddEdge("llm", Edge{To: "finish"}).
		Start("llm").Finish("finish").
		MustBuild()

	out, err := Run(rc, g, Output{Messages: []core.Message{core.NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.stream {
		t.Fatal("Stream option must be forwarded to the backend request")
	}
	// Draining still resolves to the single final message.
	if len(out.Messages) != 1 || out.Messages[0].Text == "" {
		t.Fatalf("unexpected final output: %+v", out.Messages)
	}
}

func TestModelCallLimit(t *testing.T) {
	m := model.NewMockModel("test")
	store := session.NewStore(core.NewPrompt(), nil)
	rc := NewRunContext(context.Background(), store, m, tool.NewDispatcher(tool.NewRegistry()),
		func(o *RunContextOptions) { o.MaxModelCalls = 1 })

	g := NewBuilder("limited").
		AddNode("llm", LLMRequest()).
		AddNode("again", LLMRequest()).
		AddNode("finish", passthrough()).
		AddEdge("llm", Edge{To: "again"}).
		AddEdge("again", Edge{To: "finish"}).
		Start("llm").Finish("finish").
		MustBuild()

	_, err := Run(rc, g, Output{Messages: []core.Message{core.NewUserMessage("hi")}})
	if err == nil {
		t.Fatal("expected limiter to fail the second model call")
	}
}
