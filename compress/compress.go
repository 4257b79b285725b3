// Package compress implements history compression: pure transformations of a
// message sequence into a reduced sequence, pluggable by strategy. Callers
// compute the replacement first and swap it into the prompt atomically under
// a write session.
package compress

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

// Strategy transforms a message sequence into a reduced sequence. Strategies
// never mutate the input slice.
type Strategy interface {
	// Name identifies the strategy in logs and errors.
	Name() string

	// Apply computes the replacement sequence for messages.
	Apply(ctx context.Context, deps Deps, messages []core.Message) ([]core.Message, error)
}

// Counter reports token counts for message sequences. *TokenCounter is the
// tiktoken-backed implementation.
type Counter interface {
	CountMessages(messages []core.Message) int
}

// Deps carries the collaborators strategies may delegate to.
type Deps struct {
	Summarizer Summarizer
	Retriever  FactRetriever
	Logger     logging.Logger
}

// Options configures a Compressor.
type Options struct {
	// PreserveMemory excludes memory-origin messages from whatever the
	// strategy would drop and re-appends them in original relative order.
	PreserveMemory bool
	// Counter, when set, reports input/output token counts for logging and
	// budget enforcement.
	Counter Counter
	// SummaryTokenBudget, when positive, fails compression whose output
	// exceeds the budget. A budget without a Counter fails every
	// compression so the misconfiguration cannot pass silently.
	SummaryTokenBudget int
	// Logger receives compression logs.
	Logger logging.Logger
}

// Compressor applies a strategy to a message sequence. The computation is
// pure with respect to the input: on any failure the returned error wraps
// the cause in CompressionError and the input remains usable unchanged.
type Compressor struct {
	deps Deps
	opts Options
}

// NewCompressor creates a compressor delegating summarization to summarizer.
func NewCompressor(summarizer Summarizer, optFns ...func(o *Options)) *Compressor {
	opts := Options{PreserveMemory: true, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Compressor{
		deps: Deps{
			Summarizer: summarizer,
			Retriever:  &summarizerRetriever{summarizer: summarizer},
			Logger:     opts.Logger,
		},
		opts: opts,
	}
}

// WithRetriever overrides the fact retriever used by RetrieveFacts.
func (c *Compressor) WithRetriever(r FactRetriever) *Compressor {
	c.deps.Retriever = r
	return c
}

// Compress computes the full replacement sequence for messages. With
// PreserveMemory, memory-origin messages are partitioned out before the
// strategy runs and re-appended afterwards in their original relative order.
func (c *Compressor) Compress(ctx context.Context, strategy Strategy, messages []core.Message) ([]core.Message, error) {
	input := messages
	var preserved []core.Message
	if c.opts.PreserveMemory {
		input, preserved = partitionMemory(messages)
	}

	out, err := strategy.Apply(ctx, c.deps, input)
	if err != nil {
		return nil, &core.CompressionError{Strategy: strategy.Name(), Cause: err}
	}
	result := make([]core.Message, 0, len(out)+len(preserved))
	result = append(result, out...)
	result = append(result, preserved...)

	if err := c.checkBudget(strategy, result); err != nil {
		return nil, err
	}
	c.logCounts(strategy, messages, result)
	return result, nil
}

// partitionMemory splits messages into normal and memory-origin sequences,
// both preserving relative order.
func partitionMemory(messages []core.Message) (normal, mem []core.Message) {
	for _, msg := range messages {
		if msg.IsMemory() {
			mem = append(mem, msg)
			continue
		}
		normal = append(normal, msg)
	}
	return normal, mem
}

func (c *Compressor) checkBudget(strategy Strategy, result []core.Message) error {
	if c.opts.SummaryTokenBudget <= 0 {
		return nil
	}
	if c.opts.Counter == nil {
		return &core.CompressionError{
			Strategy: strategy.Name(),
			Cause:    errors.New("summary token budget configured without a token counter"),
		}
	}
	tokens := c.opts.Counter.CountMessages(result)
	if tokens > c.opts.SummaryTokenBudget {
		return &core.CompressionError{
			Strategy: strategy.Name(),
			Cause:    fmt.Errorf("summary of %d tokens exceeds budget of %d", tokens, c.opts.SummaryTokenBudget),
		}
	}
	return nil
}

func (c *Compressor) logCounts(strategy Strategy, in, out []core.Message) {
	args := []any{
		"strategy", strategy.Name(),
		"messages_in", len(in),
		"messages_out", len(out),
	}
	if c.opts.Counter != nil {
		args = append(args,
			"tokens_in", c.opts.Counter.CountMessages(in),
			"tokens_out", c.opts.Counter.CountMessages(out),
		)
	}
	c.opts.Logger.Info("compress.applied", args...)
}
