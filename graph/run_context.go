package graph

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/memory"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

// RunContext carries the collaborators and per-run state for one graph run.
// It is created once per run and shared by every node operation; the State
// map is the only mutable field and is confined to the run's single control
// thread.
type RunContext struct {
	Context context.Context
	RunID   string
	Stage   string

	Store      *session.Store
	Model      model.Model
	Dispatcher *tool.Dispatcher
	Compressor *compress.Compressor
	Memory     memory.Provider
	Pipeline   *event.Pipeline
	Limiter    *core.ModelLimiter

	// CallTimeout bounds each external call (model round trip, single tool
	// invocation, compression delegate). Zero disables the bound.
	CallTimeout time.Duration

	// State is scratch space shared across nodes of one run.
	State map[string]any

	Logger logging.Logger
}

// RunContextOptions configures NewRunContext.
type RunContextOptions struct {
	RunID         string
	Stage         string
	MaxModelCalls int
	CallTimeout   time.Duration
	Memory        memory.Provider
	Pipeline      *event.Pipeline
	Compressor    *compress.Compressor
	Logger        logging.Logger
}

// NewRunContext constructs a RunContext with empty state.
func NewRunContext(
	ctx context.Context,
	store *session.Store,
	m model.Model,
	dispatcher *tool.Dispatcher,
	optFns ...func(o *RunContextOptions),
) *RunContext {
	opts := RunContextOptions{
		RunID:  uuid.NewString(),
		Memory: memory.NoopProvider{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Pipeline == nil {
		opts.Pipeline = event.NewPipeline(opts.Logger)
	}
	return &RunContext{
		Context:     ctx,
		RunID:       opts.RunID,
		Stage:       opts.Stage,
		Store:       store,
		Model:       m,
		Dispatcher:  dispatcher,
		Compressor:  opts.Compressor,
		Memory:      opts.Memory,
		Pipeline:    opts.Pipeline,
		Limiter:     core.NewModelLimiter(opts.MaxModelCalls),
		CallTimeout: opts.CallTimeout,
		State:       map[string]any{},
		Logger:      logging.OrNoOp(opts.Logger),
	}
}

// callContext derives a context bounded by the per-call timeout.
func (rc *RunContext) callContext() (context.Context, context.CancelFunc) {
	if rc.CallTimeout > 0 {
		return context.WithTimeout(rc.Context, rc.CallTimeout)
	}
	return context.WithCancel(rc.Context)
}

// Cancelled reports whether the run's context has been cancelled.
func (rc *RunContext) Cancelled() bool { return rc.Context.Err() != nil }
