// Package strategy sequences multiple graphs as stages and applies a
// history-transition policy between them. The orchestrator drives one graph
// run per stage and interleaves the policy action strictly between stages.
package strategy

import (
	"fmt"

	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/tool"
)

// ToolMode controls a stage's tool availability.
type ToolMode string

const (
	// Static fixes the stage's tool set at construction; it never grows.
	Static ToolMode = "static"
	// Dynamic exposes whatever the active registry exposes at run time.
	Dynamic ToolMode = "dynamic"
)

// Policy is the history transition applied between consecutive stages.
type Policy string

const (
	// Persist carries the prompt forward unchanged.
	Persist Policy = "persist"
	// Compress inserts a single compression step between stages.
	Compress Policy = "compress"
	// Clear resets the prompt to its original system messages.
	Clear Policy = "clear"
)

// Stage is one named graph plus its tool-availability mode.
type Stage struct {
	Name  string
	Mode  ToolMode
	Tools []tool.Tool // fixed tool set for Static stages
	Graph *graph.Graph
}

// StaticStage declares a stage with a fixed tool set.
func StaticStage(name string, g *graph.Graph, tools ...tool.Tool) Stage {
	return Stage{Name: name, Mode: Static, Tools: tools, Graph: g}
}

// DynamicStage declares a stage using whatever the registry exposes.
func DynamicStage(name string, g *graph.Graph) Stage {
	return Stage{Name: name, Mode: Dynamic, Graph: g}
}

// Strategy is an ordered stage sequence plus one history-transition policy.
// Construct through NewStrategy, which performs static tool validation.
type Strategy struct {
	name        string
	stages      []Stage
	policy      Policy
	compression compress.Strategy
}

// StrategyOptions configures NewStrategy.
type StrategyOptions struct {
	// Policy is the history transition between stages. Default Persist.
	Policy Policy
	// Compression is the strategy used by the Compress policy. Default
	// WholeHistory.
	Compression compress.Strategy
}

// NewStrategy validates and assembles a strategy. For Static stages every
// tool name referenced by the stage's graph must be covered by the stage's
// declared tool set; violations fail here, never at run time.
func NewStrategy(name string, stages []Stage, optFns ...func(o *StrategyOptions)) (*Strategy, error) {
	opts := StrategyOptions{
		Policy:      Persist,
		Compression: compress.WholeHistory(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("strategy %q has no stages", name)
	}
	for _, stage := range stages {
		if stage.Graph == nil {
			return nil, fmt.Errorf("stage %q has no graph", stage.Name)
		}
		if stage.Mode == Static {
			if err := validateStaticTools(stage); err != nil {
				return nil, err
			}
		}
	}
	return &Strategy{
		name:        name,
		stages:      stages,
		policy:      opts.Policy,
		compression: opts.Compression,
	}, nil
}

// Name returns the strategy name.
func (s *Strategy) Name() string { return s.name }

// Stages returns the ordered stage sequence.
func (s *Strategy) Stages() []Stage { return s.stages }

// Policy returns the history-transition policy.
func (s *Strategy) Policy() Policy { return s.policy }

// validateStaticTools checks that every tool name referenced by the stage's
// graph is present in the stage's fixed tool set.
func validateStaticTools(stage Stage) error {
	declared := make(map[string]struct{}, len(stage.Tools))
	for _, t := range stage.Tools {
		declared[t.Name()] = struct{}{}
	}
	for _, op := range stage.Graph.Operations() {
		req, ok := op.(interface{ RequiredTools() []string })
		if !ok {
			continue
		}
		for _, name := range req.RequiredTools() {
			if _, found := declared[name]; !found {
				return &core.ToolNotFoundError{Name: fmt.Sprintf("%s (static stage %q)", name, stage.Name)}
			}
		}
	}
	return nil
}
