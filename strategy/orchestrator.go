package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/memory"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	Compressor    *compress.Compressor
	Memory        memory.Provider
	Pipeline      *event.Pipeline
	Logger        logging.Logger
	MaxModelCalls int
	CallTimeout   time.Duration
}

// Orchestrator runs a strategy's stages in order against one session store,
// interleaving the history-transition policy strictly between stages: for
// stages [s1..sn] the effective order is s1, X, s2, X, ..., X, sn — X never
// runs before s1 or after sn.
type Orchestrator struct {
	store      *session.Store
	model      model.Model
	dispatcher *tool.Dispatcher
	opts       OrchestratorOptions
}

// NewOrchestrator wires an orchestrator over the given collaborators.
func NewOrchestrator(
	store *session.Store,
	m model.Model,
	dispatcher *tool.Dispatcher,
	optFns ...func(o *OrchestratorOptions),
) *Orchestrator {
	opts := OrchestratorOptions{
		Memory: memory.NoopProvider{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Pipeline == nil {
		opts.Pipeline = event.NewPipeline(opts.Logger)
	}
	return &Orchestrator{store: store, model: m, dispatcher: dispatcher, opts: opts}
}

// Run executes the strategy against initial input and returns the final
// stage's output messages. An unhandled node failure aborts the run and is
// reported as a terminal error; cancellation yields core.ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, s *Strategy, initial []core.Message) ([]core.Message, error) {
	runID := uuid.NewString()
	logger := o.opts.Logger

	o.opts.Pipeline.Publish(ctx, &event.Notification{
		Point:    event.PointInit,
		RunID:    runID,
		Messages: initial,
	})

	rc := graph.NewRunContext(ctx, o.store, o.model, o.dispatcher, func(rco *graph.RunContextOptions) {
		rco.RunID = runID
		rco.MaxModelCalls = o.opts.MaxModelCalls
		rco.CallTimeout = o.opts.CallTimeout
		rco.Memory = o.opts.Memory
		rco.Pipeline = o.opts.Pipeline
		rco.Compressor = o.opts.Compressor
		rco.Logger = logger
	})

	input := graph.Output{Messages: initial}
	stages := s.Stages()

	for i, stage := range stages {
		rc.Stage = stage.Name
		if err := o.applyStageTools(ctx, stage); err != nil {
			return nil, err
		}

		logger.Info("strategy.stage.start",
			"run_id", runID,
			"strategy", s.Name(),
			"stage", stage.Name,
			"mode", string(stage.Mode),
		)

		out, err := graph.Run(rc, stage.Graph, input)
		if err != nil {
			logger.Error("strategy.stage.failed",
				"run_id", runID,
				"stage", stage.Name,
				"error", err.Error(),
			)
			return nil, err
		}

		if i < len(stages)-1 {
			if err := o.applyPolicy(rc, s); err != nil {
				return nil, err
			}
		}
		input = out
	}

	o.opts.Pipeline.Publish(ctx, &event.Notification{
		Point:    event.PointResult,
		RunID:    runID,
		Messages: input.Messages,
	})
	return input.Messages, nil
}

// applyStageTools installs the stage's tool set into the session: the fixed
// set for Static stages, the registry's current contents for Dynamic ones.
func (o *Orchestrator) applyStageTools(ctx context.Context, stage Stage) error {
	tools := stage.Tools
	if stage.Mode == Dynamic {
		tools = o.dispatcher.Registry().All()
	}
	ws, err := o.store.AcquireWrite(ctx)
	if err != nil {
		return err
	}
	defer ws.Rollback()
	ws.ReplaceTools(tools)
	return ws.Commit()
}

// applyPolicy performs the intermediate history transition between stages.
func (o *Orchestrator) applyPolicy(rc *graph.RunContext, s *Strategy) error {
	switch s.policy {
	case Persist:
		return nil
	case Clear:
		ws, err := o.store.AcquireWrite(rc.Context)
		if err != nil {
			return err
		}
		defer ws.Rollback()
		ws.Prompt().Clear()
		return ws.Commit()
	case Compress:
		if o.opts.Compressor == nil {
			return &core.CompressionError{
				Strategy: s.compression.Name(),
				Cause:    errNoCompressor,
			}
		}
		_, err := graph.Compress(s.compression).Apply(rc, graph.Output{})
		return err
	}
	return nil
}

var errNoCompressor = errors.New("compress policy requires a configured compressor")
