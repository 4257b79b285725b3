// Package event implements the lifecycle notification pipeline. Listeners
// observe graph runs without owning any data; only error listeners can affect
// control flow, by marking an error as handled.
package event

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

// Point identifies a lifecycle point where listeners can be notified.
type Point string

const (
	// PointInit is published once when a run starts.
	PointInit Point = "init"

	// PointBeforeToolCall is published before each tool invocation.
	PointBeforeToolCall Point = "before_tool_call"

	// PointAfterToolCall is published after each tool invocation, whether it
	// succeeded or failed.
	PointAfterToolCall Point = "after_tool_call"

	// PointResult is published when a run produces its final output.
	PointResult Point = "result"

	// PointError is published when a node operation fails. Error listeners
	// may mark the error as handled, in which case the run continues.
	PointError Point = "error"
)

// Notification carries the payload of a lifecycle occurrence. Fields are
// populated according to the point; unused fields are zero.
type Notification struct {
	Point Point

	// RunID identifies the graph run this occurrence belongs to.
	RunID string

	// Stage and Node locate the occurrence within the strategy.
	Stage string
	Node  string

	// Call is set for BeforeToolCall.
	Call *core.ToolCall

	// Result is set for AfterToolCall.
	Result *core.ToolResult

	// Messages is set for Result and carries the run's final output.
	Messages []core.Message

	// Err is set for Error and AfterToolCall on failure.
	Err error
}

// Listener observes occurrences of a single lifecycle point. A listener's
// own failure is isolated: it is logged and does not prevent remaining
// listeners from running.
type Listener interface {
	// Point returns the lifecycle point this listener handles.
	Point() Point

	// Notify is invoked synchronously for every occurrence of the point.
	Notify(ctx context.Context, n *Notification) error
}

// ErrorHandler inspects an error occurrence and reports whether it handled
// the error. If any registered handler returns true the run continues with
// the error treated as recovered.
type ErrorHandler func(ctx context.Context, n *Notification) (handled bool, err error)

// FuncListener wraps a plain function as a Listener.
type FuncListener struct {
	point Point
	fn    func(ctx context.Context, n *Notification) error
}

// NewFuncListener creates a function-based listener for the given point.
func NewFuncListener(point Point, fn func(ctx context.Context, n *Notification) error) *FuncListener {
	return &FuncListener{point: point, fn: fn}
}

// Point implements Listener.
func (l *FuncListener) Point() Point { return l.point }

// Notify implements Listener.
func (l *FuncListener) Notify(ctx context.Context, n *Notification) error { return l.fn(ctx, n) }

// Pipeline maintains ordered listener lists per lifecycle point.
//
// Thread Safety:
// Registration is not synchronized; register all listeners before the first
// run. Once registration is complete, publishing is safe for concurrent use.
type Pipeline struct {
	listeners     map[Point][]Listener
	errorHandlers []ErrorHandler
	logger        logging.Logger
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger logging.Logger) *Pipeline {
	return &Pipeline{
		listeners: make(map[Point][]Listener),
		logger:    logging.OrNoOp(logger),
	}
}

// Register adds a listener for its declared point. Multiple listeners per
// point run in registration order.
func (p *Pipeline) Register(l Listener) {
	p.listeners[l.Point()] = append(p.listeners[l.Point()], l)
}

// RegisterFunc adds a function-based listener for the given point.
func (p *Pipeline) RegisterFunc(point Point, fn func(ctx context.Context, n *Notification) error) {
	p.Register(NewFuncListener(point, fn))
}

// RegisterErrorHandler adds an error handler. Handlers run in registration
// order on every Error occurrence.
func (p *Pipeline) RegisterErrorHandler(h ErrorHandler) {
	p.errorHandlers = append(p.errorHandlers, h)
}

// Publish notifies all listeners of the notification's point, in
// registration order. Listener failures and panics are logged and do not
// stop remaining listeners.
func (p *Pipeline) Publish(ctx context.Context, n *Notification) {
	for _, l := range p.listeners[n.Point] {
		p.notifyIsolated(ctx, l, n)
	}
}

// PublishError runs all error handlers for the given error occurrence and
// reports whether any of them handled it. All handlers run even after one
// reports handled; a panicking handler counts as not handled.
func (p *Pipeline) PublishError(ctx context.Context, n *Notification) bool {
	n.Point = PointError
	p.Publish(ctx, n)

	handled := false
	for _, h := range p.errorHandlers {
		if p.handleIsolated(ctx, h, n) {
			handled = true
		}
	}
	return handled
}

func (p *Pipeline) notifyIsolated(ctx context.Context, l Listener, n *Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event.listener.panic", "point", n.Point, "recover", r)
		}
	}()
	if err := l.Notify(ctx, n); err != nil {
		p.logger.Warn("event.listener.error", "point", n.Point, "error", err.Error())
	}
}

func (p *Pipeline) handleIsolated(ctx context.Context, h ErrorHandler, n *Notification) bool {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event.error_handler.panic", "recover", r)
		}
	}()
	handled, err := h(ctx, n)
	if err != nil {
		p.logger.Warn("event.error_handler.error", "error", err.Error())
	}
	return handled
}
