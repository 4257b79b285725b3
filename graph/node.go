package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

// Output is the value flowing along edges: the messages a node produced,
// or a handled error converted into routable output.
type Output struct {
	Messages []core.Message
	// Err is set when a node failure was marked handled by an error
	// listener; edges can route on it via OnError or CEL's has_error.
	Err error
}

// Operation is the closed set of node behaviors. Implementations are
// created through Transform, LLMRequest, ToolExecute, Compress and Subgraph.
type Operation interface {
	// Kind names the operation variant for logs and validation.
	Kind() string

	// Apply executes the operation against the current input.
	Apply(rc *RunContext, in Output) (Output, error)
}

// TransformFunc is a pure in-process transformation of the flowing output.
type TransformFunc func(rc *RunContext, in Output) (Output, error)

type transformOp struct {
	fn TransformFunc
}

// Transform creates an operation that applies fn to its input without any
// external side effects.
func Transform(fn TransformFunc) Operation { return transformOp{fn: fn} }

func (transformOp) Kind() string { return "transform" }

func (op transformOp) Apply(rc *RunContext, in Output) (Output, error) {
	return op.fn(rc, in)
}

// TemplateMessage creates a transform that renders tmpl against the run's
// state map and emits the result as a single user message. Useful for stage
// prompts that reference values earlier nodes stored in State.
func TemplateMessage(tmpl string) Operation {
	return Transform(func(rc *RunContext, _ Output) (Output, error) {
		text, err := util.RenderTemplate(tmpl, rc.State)
		if err != nil {
			return Output{}, err
		}
		return Output{Messages: []core.Message{core.NewUserMessage(text)}}, nil
	})
}

// LLMRequestOptions configures an LLMRequest operation.
type LLMRequestOptions struct {
	// Stream requests partial chunks from the backend. The flag is forwarded
	// to the model as-is; the operation still resolves to the final response
	// and discards partials while draining. Backends that do not support
	// streaming reject the request.
	Stream bool
}

type llmRequest struct {
	opts LLMRequestOptions
}

// LLMRequest creates the operation that appends its input messages to the
// session history, sends the full history with the session's tool
// definitions to the model, and appends the response. Its output is the
// response messages.
func LLMRequest(optFns ...func(o *LLMRequestOptions)) Operation {
	opts := LLMRequestOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return llmRequest{opts: opts}
}

func (llmRequest) Kind() string { return "llm_request" }

func (op llmRequest) Apply(rc *RunContext, in Output) (Output, error) {
	if err := rc.Limiter.Increment(); err != nil {
		return Output{}, err
	}

	ws, err := rc.Store.AcquireWrite(rc.Context)
	if err != nil {
		return Output{}, err
	}
	defer ws.Rollback()

	appendNew(ws, in.Messages)

	defs := make([]model.ToolDefinition, 0, len(ws.Tools()))
	for _, t := range ws.Tools() {
		defs = append(defs, tool.Definition(t))
	}

	ctx, cancel := rc.callContext()
	defer cancel()

	start := time.Now()
	msgs, usage, err := model.Complete(ctx, rc.Model, model.Request{
		Messages: ws.Prompt().Messages(),
		Tools:    defs,
		Stream:   op.opts.Stream,
	})
	dur := time.Since(start)

	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}
	rc.Logger.Info("graph.model.call",
		"run_id", rc.RunID,
		"model", rc.Model.Info().Name,
		"tokens", tokens,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && rc.Context.Err() == nil {
			return Output{}, &core.TimeoutError{Op: "llm_request", Timeout: rc.CallTimeout}
		}
		return Output{}, err
	}

	ws.Append(msgs...)
	if err := ws.Commit(); err != nil {
		return Output{}, err
	}
	return Output{Messages: msgs}, nil
}

// ToolExecuteOptions configures a ToolExecute operation.
type ToolExecuteOptions struct {
	// ContinueOnError converts tool failures into error-carrying tool
	// result messages visible to the model instead of failing the node.
	ContinueOnError bool
	// Tools names the tools this node is expected to invoke. Used by static
	// stage validation; empty means any registered tool.
	Tools []string
}

type toolExecute struct {
	opts ToolExecuteOptions
}

// ToolExecute creates the operation that runs every tool call present in its
// input through the dispatcher, appends the tool results to the session
// history and outputs the result messages. Calls fan out concurrently and
// results keep submission order.
func ToolExecute(optFns ...func(o *ToolExecuteOptions)) Operation {
	opts := ToolExecuteOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return toolExecute{opts: opts}
}

func (toolExecute) Kind() string { return "tool_execute" }

// RequiredTools returns the tool names declared on the operation.
func (op toolExecute) RequiredTools() []string { return op.opts.Tools }

func (op toolExecute) Apply(rc *RunContext, in Output) (Output, error) {
	toolCalls := core.ToolCalls(in.Messages)
	if len(toolCalls) == 0 {
		return Output{}, fmt.Errorf("tool execute node received no tool calls")
	}

	calls := make([]tool.Call, 0, len(toolCalls))
	for _, tc := range toolCalls {
		call, err := tool.ParseCall(tc)
		if err != nil {
			return Output{}, err
		}
		calls = append(calls, call)
	}

	ws, err := rc.Store.AcquireWrite(rc.Context)
	if err != nil {
		return Output{}, err
	}
	defer ws.Rollback()

	appendNew(ws, in.Messages)

	for i := range toolCalls {
		rc.Pipeline.Publish(rc.Context, &event.Notification{
			Point: event.PointBeforeToolCall,
			RunID: rc.RunID,
			Stage: rc.Stage,
			Call:  &toolCalls[i],
		})
	}

	ctx, cancel := rc.callContext()
	defer cancel()

	results, err := rc.Dispatcher.ExecuteMany(ctx, calls)
	if err != nil {
		return Output{}, err
	}

	msgs := make([]core.Message, 0, len(results))
	for _, r := range results {
		msg := r.Message()
		rc.Pipeline.Publish(rc.Context, &event.Notification{
			Point:  event.PointAfterToolCall,
			RunID:  rc.RunID,
			Stage:  rc.Stage,
			Result: msg.ToolResult,
			Err:    r.Err,
		})
		if r.Err != nil && !op.opts.ContinueOnError {
			return Output{}, r.Err
		}
		msgs = append(msgs, msg)
	}

	ws.Append(msgs...)
	if err := ws.Commit(); err != nil {
		return Output{}, err
	}
	return Output{Messages: msgs}, nil
}

type compressOp struct {
	strategy compress.Strategy
}

// Compress creates the operation that replaces the session history with the
// compressed sequence computed by strategy. The replacement is computed in
// full before the prompt is touched; on failure the history is unchanged.
func Compress(strategy compress.Strategy) Operation {
	return compressOp{strategy: strategy}
}

func (compressOp) Kind() string { return "compress" }

func (op compressOp) Apply(rc *RunContext, in Output) (Output, error) {
	if rc.Compressor == nil {
		return Output{}, fmt.Errorf("no compressor configured")
	}

	ws, err := rc.Store.AcquireWrite(rc.Context)
	if err != nil {
		return Output{}, err
	}
	defer ws.Rollback()

	appendNew(ws, in.Messages)

	ctx, cancel := rc.callContext()
	defer cancel()

	replaced, err := rc.Compressor.Compress(ctx, op.strategy, ws.Prompt().Messages())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && rc.Context.Err() == nil {
			return Output{}, &core.TimeoutError{Op: "compress", Timeout: rc.CallTimeout}
		}
		return Output{}, err
	}

	ws.Prompt().Replace(replaced)
	if err := ws.Commit(); err != nil {
		return Output{}, err
	}
	return Output{Messages: replaced}, nil
}

type subgraphOp struct {
	graph *Graph
}

// Subgraph creates the operation that recursively runs a nested graph and
// treats its terminal output as its own output.
func Subgraph(g *Graph) Operation { return subgraphOp{graph: g} }

func (subgraphOp) Kind() string { return "subgraph" }

func (op subgraphOp) Apply(rc *RunContext, in Output) (Output, error) {
	return Run(rc, op.graph, in)
}

// appendNew appends only messages whose ID is not already present in the
// session history, so output looping back into a history-writing node never
// duplicates committed messages.
func appendNew(ws *session.WriteSession, msgs []core.Message) {
	if len(msgs) == 0 {
		return
	}
	seen := make(map[string]struct{}, ws.Prompt().Len())
	for _, msg := range ws.Prompt().Messages() {
		seen[msg.ID] = struct{}{}
	}
	for _, msg := range msgs {
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		ws.Append(msg)
	}
}
