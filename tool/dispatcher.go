package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/logging"
)

// Call is a resolved-or-named tool invocation. When Tool is set it takes
// precedence over Name lookup in the registry.
type Call struct {
	// ID correlates the call with its originating tool call message.
	ID string
	// Name is used for registry lookup when Tool is nil.
	Name string
	// Tool, when non-nil, is invoked directly without registry lookup.
	Tool Tool
	// Arguments are the structured call arguments.
	Arguments map[string]any
}

// ParseCall converts a tool call message payload into a dispatchable Call,
// decoding the JSON argument string.
func ParseCall(tc core.ToolCall) (Call, error) {
	args := map[string]any{}
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			return Call{}, fmt.Errorf("parse arguments for tool %q: %w", tc.Name, err)
		}
	}
	return Call{ID: tc.ID, Name: tc.Name, Arguments: args}, nil
}

// Result is the outcome of a single dispatched call. Err carries one of the
// typed errors from core (ToolNotFoundError, ArgsValidationError,
// ToolExecutionError).
type Result struct {
	ID    string
	Name  string
	Value any
	Err   error
}

// Message converts the result into a history message.
func (r Result) Message() core.Message {
	return core.NewToolResultMessage(r.ID, r.Name, r.Value, r.Err)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent calls in ExecuteMany. 0 or <1 means no
	// explicit limit.
	MaxParallel int
	// FailFast makes ExecuteMany cancel sibling calls on the first failure
	// and return that error. Default is positional failure collection.
	FailFast bool
	// Logger receives per-call duration logs.
	Logger logging.Logger
}

// Dispatcher resolves and invokes tools. It is safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	opts     DispatcherOptions
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Dispatcher{registry: registry, opts: opts}
}

// Registry returns the dispatcher's underlying registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Execute resolves and invokes a single call. Arguments are validated against
// the tool's declared schema before the body is entered; validation failures
// surface as ArgsValidationError and the body never runs. Panics inside the
// body are recovered and surface as ToolExecutionError.
func (d *Dispatcher) Execute(ctx context.Context, call Call) Result {
	t, err := d.resolve(call)
	if err != nil {
		return Result{ID: call.ID, Name: call.Name, Err: err}
	}

	if err := util.ValidateParameters(call.Arguments, t.Parameters()); err != nil {
		var field string
		if ve, ok := err.(*util.ValidationError); ok {
			field = ve.Field
		}
		return Result{ID: call.ID, Name: t.Name(), Err: &core.ArgsValidationError{
			Tool:  t.Name(),
			Field: field,
			Cause: err,
		}}
	}

	start := time.Now()
	value, err := d.invoke(ctx, t, call.Arguments)
	d.opts.Logger.Debug("tool.call.executed",
		"tool", t.Name(),
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)
	if err != nil {
		return Result{ID: call.ID, Name: t.Name(), Err: &core.ToolExecutionError{
			Tool:  t.Name(),
			Cause: err,
		}}
	}
	return Result{ID: call.ID, Name: t.Name(), Value: value}
}

// ExecuteMany dispatches all calls concurrently, joins them, and returns
// results indexed by submission order regardless of completion order. In the
// default mode failures are collected positionally and the returned error is
// nil; with FailFast the first failure cancels siblings and is returned.
func (d *Dispatcher) ExecuteMany(ctx context.Context, calls []Call) ([]Result, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}
	if n == 1 {
		r := d.Execute(ctx, calls[0])
		if d.opts.FailFast && r.Err != nil {
			return nil, r.Err
		}
		return []Result{r}, nil
	}
	if d.opts.FailFast {
		return d.executeFailFast(ctx, calls)
	}
	return d.executeCollect(ctx, calls), nil
}

func (d *Dispatcher) executeCollect(ctx context.Context, calls []Call) []Result {
	n := len(calls)
	maxPar := d.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	results := make([]Result, n)
	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call Call) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results[idx] = Result{ID: call.ID, Name: call.Name, Err: &core.ToolExecutionError{Tool: call.Name, Cause: err}}
				return
			}
			results[idx] = d.Execute(ctx, call)
		}(i, calls[i])
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) executeFailFast(ctx context.Context, calls []Call) ([]Result, error) {
	n := len(calls)
	results := make([]Result, n)

	g, ctx := errgroup.WithContext(ctx)
	if d.opts.MaxParallel > 0 {
		g.SetLimit(d.opts.MaxParallel)
	}
	for i := range calls {
		idx, call := i, calls[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := d.Execute(ctx, call)
			results[idx] = r
			return r.Err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolve applies the resolution order: exact instance beats name lookup.
func (d *Dispatcher) resolve(call Call) (Tool, error) {
	if call.Tool != nil {
		return call.Tool, nil
	}
	if d.registry != nil {
		if t, ok := d.registry.Get(call.Name); ok {
			return t, nil
		}
	}
	return nil, &core.ToolNotFoundError{Name: call.Name}
}

// invoke runs the tool body with panic recovery.
func (d *Dispatcher) invoke(ctx context.Context, t Tool, args map[string]any) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.opts.Logger.Error("tool.call.panic", "tool", t.Name(), "recover", r)
			err = fmt.Errorf("panic in tool %q: %v\n%s", t.Name(), r, debug.Stack())
		}
	}()
	return t.Call(ctx, args)
}
