package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when a run is cancelled at a suspension boundary.
// Any held write session is released without committing partial output.
var ErrCancelled = errors.New("run cancelled")

// GraphTraversalError reports a traversal or construction defect: no outgoing
// edge of a non-finish node matched, or the graph failed reachability
// validation. It is a caller/config error and is never silently retried.
type GraphTraversalError struct {
	Node   string // Node at which traversal stopped (or the invalid element)
	Reason string
}

func (e *GraphTraversalError) Error() string {
	return fmt.Sprintf("graph traversal error at node %q: %s", e.Node, e.Reason)
}

// ToolNotFoundError reports that a tool reference could not be resolved,
// neither by exact instance nor by name.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ArgsValidationError reports that tool call arguments did not satisfy the
// tool's declared parameter schema. The tool body was never entered.
type ArgsValidationError struct {
	Tool  string
	Field string
	Cause error
}

func (e *ArgsValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q (field %q): %v", e.Tool, e.Field, e.Cause)
}

func (e *ArgsValidationError) Unwrap() error { return e.Cause }

// ToolExecutionError reports a failure executing a tool call, whether from
// the tool body or from cancellation before it ran, distinguished from
// resolution and validation failures.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// CompressionError reports a history compression failure. The prompt is
// guaranteed to be unchanged when this error is returned.
type CompressionError struct {
	Strategy string
	Cause    error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compression strategy %q failed: %v", e.Strategy, e.Cause)
}

func (e *CompressionError) Unwrap() error { return e.Cause }

// TimeoutError reports that a scoped external call (model round trip, tool
// invocation, compression call) exceeded its deadline. It is routed through
// the same node/edge/event path as any other node failure.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// SessionConflictError reports a violation of write-session exclusivity, such
// as releasing a session twice or using it after release.
type SessionConflictError struct {
	Reason string
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("session conflict: %s", e.Reason)
}
