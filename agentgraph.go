// Package agentgraph provides a high-level façade over the graph execution
// engine and its collaborators (sessions, tools, compression, memory, events
// & logging) enabling rapid construction of multi-stage agent pipelines.
// Most applications interact with this package by:
//  1. Creating a Runner via New() (optionally overriding defaults)
//  2. Registering tools and event listeners
//  3. Declaring graphs and strategies, then calling Run / RunGraph
//
// The façade delegates orchestration to strategy.Orchestrator while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a real
// model backend, a structured logger and a durable memory provider.
package agentgraph

import (
	"context"
	"time"

	"github.com/hupe1980/agentgraph/artifact"
	"github.com/hupe1980/agentgraph/compress"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/memory"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/strategy"
	"github.com/hupe1980/agentgraph/tool"
)

// Options configures the Runner.
type Options struct {
	// Model is the language model backend. Defaults to a MockModel, which
	// is only useful for tests and examples.
	Model model.Model

	// SystemPrompt seeds the session prompt. Empty means no system message.
	SystemPrompt string

	// Tools pre-populates the tool registry.
	Tools []tool.Tool

	// Compressor handles history compression. Defaults to a model-backed
	// summarizer over Model.
	Compressor *compress.Compressor

	// Memory is the fact provider. Defaults to the no-op provider.
	Memory memory.Provider

	// Artifacts, when set, receives a JSON transcript of every run's final
	// messages keyed by run ID. Nil disables transcript recording.
	Artifacts artifact.Store

	// MaxModelCalls bounds model calls per run. 0 means unlimited.
	MaxModelCalls int

	// CallTimeout bounds each external call. 0 disables the bound.
	CallTimeout time.Duration

	// MaxParallelTools bounds concurrent tool calls per fan-out.
	MaxParallelTools int

	// Logger defaults to the NoOp logger.
	Logger logging.Logger
}

// Runner is the high-level façade aggregating the session store, tool
// dispatcher, event pipeline and stage orchestrator.
type Runner struct {
	opts         Options
	store        *session.Store
	registry     *tool.Registry
	dispatcher   *tool.Dispatcher
	pipeline     *event.Pipeline
	orchestrator *strategy.Orchestrator
}

// New creates a Runner with optional overrides. Any unset collaborator is
// initialized with a safe default.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Memory: memory.NoopProvider{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == nil {
		opts.Model = model.NewMockModel("mock")
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.NewCompressor(
			compress.NewModelSummarizer(opts.Model),
			func(o *compress.Options) { o.Logger = opts.Logger },
		)
		if _, noop := opts.Memory.(memory.NoopProvider); !noop && opts.Memory != nil {
			opts.Compressor.WithRetriever(compress.NewProviderFactRetriever(
				opts.Memory,
				compress.NewModelFactRetriever(opts.Model),
				memory.User,
				memory.GlobalScope,
			))
		}
	}

	var system []core.Message
	if opts.SystemPrompt != "" {
		system = append(system, core.NewSystemMessage(opts.SystemPrompt))
	}

	registry := tool.NewRegistry(opts.Tools...)
	dispatcher := tool.NewDispatcher(registry, func(o *tool.DispatcherOptions) {
		o.MaxParallel = opts.MaxParallelTools
		o.Logger = opts.Logger
	})
	pipeline := event.NewPipeline(opts.Logger)
	if opts.Artifacts != nil {
		pipeline.Register(artifact.NewTranscriptRecorder(opts.Artifacts))
	}
	store := session.NewStore(core.NewPrompt(system...), opts.Tools)

	orchestrator := strategy.NewOrchestrator(store, opts.Model, dispatcher, func(o *strategy.OrchestratorOptions) {
		o.Compressor = opts.Compressor
		o.Memory = opts.Memory
		o.Pipeline = pipeline
		o.Logger = opts.Logger
		o.MaxModelCalls = opts.MaxModelCalls
		o.CallTimeout = opts.CallTimeout
	})

	return &Runner{
		opts:         opts,
		store:        store,
		registry:     registry,
		dispatcher:   dispatcher,
		pipeline:     pipeline,
		orchestrator: orchestrator,
	}
}

// RegisterTool adds a tool to the registry.
func (r *Runner) RegisterTool(t tool.Tool) { r.registry.Register(t) }

// RegisterListener adds a lifecycle listener to the event pipeline. Register
// all listeners before the first run.
func (r *Runner) RegisterListener(l event.Listener) { r.pipeline.Register(l) }

// RegisterErrorHandler adds an error handler; a handler returning true marks
// a node failure as recovered and the run continues.
func (r *Runner) RegisterErrorHandler(h event.ErrorHandler) { r.pipeline.RegisterErrorHandler(h) }

// Store returns the session store guarding the runner's prompt.
func (r *Runner) Store() *session.Store { return r.store }

// Run executes a strategy with the given user input and returns the final
// stage's output messages.
func (r *Runner) Run(ctx context.Context, s *strategy.Strategy, input string) ([]core.Message, error) {
	return r.orchestrator.Run(ctx, s, []core.Message{core.NewUserMessage(input)})
}

// RunGraph executes a single graph as a one-stage dynamic strategy.
func (r *Runner) RunGraph(ctx context.Context, g *graph.Graph, input string) ([]core.Message, error) {
	s, err := strategy.NewStrategy(g.Name(), []strategy.Stage{strategy.DynamicStage(g.Name(), g)})
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, s, input)
}
