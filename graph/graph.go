package graph

import (
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// Edge connects a node to a successor. Edges are evaluated in declaration
// order; the first whose condition matches is taken.
type Edge struct {
	// To names the target node.
	To string
	// Condition guards the edge. nil means Always.
	Condition Condition
	// Transform, when set, maps the node output to the next node's input.
	// nil is the identity transform.
	Transform TransformFunc
}

// Node is one operation in a graph plus its ordered outgoing edges. Nodes
// are owned exclusively by the graph that declares them.
type Node struct {
	Name  string
	Op    Operation
	Edges []Edge
}

// Graph is a validated directed graph with a designated start and finish
// node. Construct through Builder; a built graph is immutable and safe for
// concurrent runs.
type Graph struct {
	name   string
	start  string
	finish string
	nodes  map[string]*Node
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Start returns the start node name.
func (g *Graph) Start() string { return g.start }

// Finish returns the finish node name.
func (g *Graph) Finish() string { return g.finish }

// Node returns the named node.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Operations returns the operation kinds used by the graph, including nested
// subgraphs. Used for static tool validation.
func (g *Graph) Operations() []Operation {
	var ops []Operation
	for _, n := range g.nodes {
		ops = append(ops, n.Op)
		if sub, ok := n.Op.(subgraphOp); ok {
			ops = append(ops, sub.graph.Operations()...)
		}
	}
	return ops
}

// Builder assembles and validates a Graph. Add nodes and edges in any order;
// Build validates names, start/finish designation and reachability.
type Builder struct {
	name   string
	start  string
	finish string
	nodes  map[string]*Node
	order  []string
	errs   []error
}

// NewBuilder creates a builder for a named graph.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, nodes: map[string]*Node{}}
}

// AddNode declares a node. Declaring a name twice is a build error.
func (b *Builder) AddNode(name string, op Operation) *Builder {
	if _, exists := b.nodes[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("duplicate node %q", name))
		return b
	}
	b.nodes[name] = &Node{Name: name, Op: op}
	b.order = append(b.order, name)
	return b
}

// AddEdge appends an outgoing edge to a declared node. Edge order is the
// call order and is significant at run time.
func (b *Builder) AddEdge(from string, edge Edge) *Builder {
	node, ok := b.nodes[from]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("edge from undeclared node %q", from))
		return b
	}
	if edge.Condition == nil {
		edge.Condition = Always()
	}
	node.Edges = append(node.Edges, edge)
	return b
}

// Start designates the start node.
func (b *Builder) Start(name string) *Builder {
	b.start = name
	return b
}

// Finish designates the finish node.
func (b *Builder) Finish(name string) *Builder {
	b.finish = name
	return b
}

// Build validates the assembled graph. Malformed construction fails with
// GraphTraversalError: unknown start/finish, edges to undeclared nodes, or
// nodes unreachable from start.
func (b *Builder) Build() (*Graph, error) {
	for _, err := range b.errs {
		return nil, &core.GraphTraversalError{Node: b.name, Reason: err.Error()}
	}
	if len(b.nodes) == 0 {
		return nil, &core.GraphTraversalError{Node: b.name, Reason: "graph has no nodes"}
	}
	if _, ok := b.nodes[b.start]; !ok {
		return nil, &core.GraphTraversalError{Node: b.start, Reason: "start node not declared"}
	}
	if _, ok := b.nodes[b.finish]; !ok {
		return nil, &core.GraphTraversalError{Node: b.finish, Reason: "finish node not declared"}
	}
	for _, name := range b.order {
		for _, edge := range b.nodes[name].Edges {
			if _, ok := b.nodes[edge.To]; !ok {
				return nil, &core.GraphTraversalError{
					Node:   name,
					Reason: fmt.Sprintf("edge targets undeclared node %q", edge.To),
				}
			}
		}
	}

	reachable := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for _, edge := range b.nodes[name].Edges {
			visit(edge.To)
		}
	}
	visit(b.start)

	if !reachable[b.finish] {
		return nil, &core.GraphTraversalError{Node: b.finish, Reason: "finish node unreachable from start"}
	}
	for _, name := range b.order {
		if !reachable[name] {
			return nil, &core.GraphTraversalError{
				Node:   name,
				Reason: "node unreachable from start (dead code)",
			}
		}
	}

	return &Graph{
		name:   b.name,
		start:  b.start,
		finish: b.finish,
		nodes:  b.nodes,
	}, nil
}

// MustBuild is Build panicking on validation errors; intended for statically
// known graph declarations.
func (b *Builder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
