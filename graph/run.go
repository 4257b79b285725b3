package graph

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
)

// Run traverses the graph from its start node on one logical control thread:
// each node operation runs to completion before the next node is selected.
// Node failures are first offered to error listeners; a handled failure
// flows into edge evaluation as the node output, an unhandled one aborts the
// run. Cancellation is honoured at suspension boundaries and returns
// core.ErrCancelled.
func Run(rc *RunContext, g *Graph, initial Output) (Output, error) {
	start := time.Now()
	out, err := run(rc, g, initial)
	rc.Logger.Info("graph.run.finished",
		"run_id", rc.RunID,
		"graph", g.Name(),
		"nodes", g.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)
	return out, err
}

func run(rc *RunContext, g *Graph, initial Output) (Output, error) {
	current := g.Start()
	in := initial

	for {
		if rc.Cancelled() {
			return Output{}, core.ErrCancelled
		}
		node, ok := g.Node(current)
		if !ok {
			return Output{}, &core.GraphTraversalError{Node: current, Reason: "node not in graph"}
		}

		rc.Logger.Debug("graph.node.apply",
			"run_id", rc.RunID,
			"graph", g.Name(),
			"node", node.Name,
			"op", node.Op.Kind(),
		)

		out, err := node.Op.Apply(rc, in)
		if err != nil {
			if isCancelled(rc, err) {
				return Output{}, core.ErrCancelled
			}
			handled := rc.Pipeline.PublishError(rc.Context, &event.Notification{
				RunID: rc.RunID,
				Stage: rc.Stage,
				Node:  node.Name,
				Err:   err,
			})
			if !handled {
				return Output{}, err
			}
			rc.Logger.Warn("graph.node.error_handled",
				"run_id", rc.RunID,
				"node", node.Name,
				"error", err.Error(),
			)
			out = Output{Err: err}
		}

		if current == g.Finish() {
			return out, nil
		}

		edge, err := selectEdge(rc, node, out)
		if err != nil {
			return Output{}, err
		}

		in = out
		if edge.Transform != nil {
			in, err = edge.Transform(rc, out)
			if err != nil {
				if isCancelled(rc, err) {
					return Output{}, core.ErrCancelled
				}
				return Output{}, err
			}
		}
		current = edge.To
	}
}

// selectEdge evaluates the node's outgoing edges in declaration order and
// returns the first whose condition matches. A non-finish node with no
// matching edge is a configuration error, never silently retried.
func selectEdge(rc *RunContext, node *Node, out Output) (Edge, error) {
	for _, edge := range node.Edges {
		match, err := edge.Condition.Evaluate(rc, out)
		if err != nil {
			return Edge{}, &core.GraphTraversalError{
				Node:   node.Name,
				Reason: "edge condition failed: " + err.Error(),
			}
		}
		if match {
			return edge, nil
		}
	}
	return Edge{}, &core.GraphTraversalError{Node: node.Name, Reason: "no outgoing edge matched"}
}

func isCancelled(rc *RunContext, err error) bool {
	if rc.Context.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, core.ErrCancelled)
}
