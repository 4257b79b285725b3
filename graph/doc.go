// Package graph implements the directed-graph execution engine: operation
// nodes connected by ordered conditional edges, traversed one node at a time
// from start to finish. Edge conditions are evaluated in declaration order
// and the first match wins; cycles are legal and bounded only by conditions.
package graph
