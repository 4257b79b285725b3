package compress

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/memory"
)

// wholeHistory summarizes the entire input into exactly one message.
type wholeHistory struct{}

// WholeHistory returns the strategy that produces exactly one summary message
// representing the entire input sequence. An empty input is returned
// unchanged.
func WholeHistory() Strategy { return wholeHistory{} }

func (wholeHistory) Name() string { return "whole_history" }

func (wholeHistory) Apply(ctx context.Context, deps Deps, messages []core.Message) ([]core.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}
	summary, err := deps.Summarizer.Summarize(ctx, messages)
	if err != nil {
		return nil, err
	}
	return []core.Message{core.NewAssistantMessage(summary)}, nil
}

// fromLastN summarizes only a tail window; older messages are dropped.
type fromLastN struct {
	n int
}

// FromLastNMessages returns the strategy that summarizes only the last n
// messages into one summary message. Messages before the window are dropped
// entirely, not summarized. n >= length behaves identically to WholeHistory;
// n < 1 fails compression.
func FromLastNMessages(n int) Strategy { return fromLastN{n: n} }

func (s fromLastN) Name() string { return fmt.Sprintf("from_last_%d", s.n) }

func (s fromLastN) Apply(ctx context.Context, deps Deps, messages []core.Message) ([]core.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}
	if s.n < 1 {
		return nil, fmt.Errorf("window size must be >= 1, got %d", s.n)
	}
	window := messages
	if s.n < len(messages) {
		window = messages[len(messages)-s.n:]
	}
	summary, err := deps.Summarizer.Summarize(ctx, window)
	if err != nil {
		return nil, err
	}
	return []core.Message{core.NewAssistantMessage(summary)}, nil
}

// chunked summarizes consecutive fixed-size chunks independently.
type chunked struct {
	size int
}

// Chunked returns the strategy that partitions the sequence into consecutive
// chunks of size messages (last chunk may be shorter), summarizes each chunk
// independently and in order, and concatenates the per-chunk summaries
// preserving chronological order. size >= length yields one chunk; size == 1
// yields one summary per original message.
func Chunked(size int) Strategy { return chunked{size: size} }

func (s chunked) Name() string { return fmt.Sprintf("chunked_%d", s.size) }

func (s chunked) Apply(ctx context.Context, deps Deps, messages []core.Message) ([]core.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}
	size := s.size
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be >= 1, got %d", size)
	}
	var result []core.Message
	for start := 0; start < len(messages); start += size {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		summary, err := deps.Summarizer.Summarize(ctx, messages[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, core.NewAssistantMessage(summary))
	}
	return result, nil
}

// retrieveFacts replaces the history with one message per retrieved fact.
type retrieveFacts struct {
	concepts []memory.Concept
}

// RetrieveFactsFromHistory returns the strategy that queries the full history
// for facts matching each concept and replaces the entire output history with
// one message per retrieved fact, in concept declaration order. Single-arity
// concepts yield at most one fact. Fact messages carry the memory origin tag
// so later compressions preserve them.
func RetrieveFactsFromHistory(concepts ...memory.Concept) Strategy {
	return retrieveFacts{concepts: concepts}
}

func (retrieveFacts) Name() string { return "retrieve_facts" }

func (s retrieveFacts) Apply(ctx context.Context, deps Deps, messages []core.Message) ([]core.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}
	var result []core.Message
	for _, concept := range s.concepts {
		values, err := deps.Retriever.Retrieve(ctx, concept, messages)
		if err != nil {
			return nil, fmt.Errorf("retrieve facts for concept %q: %w", concept.Keyword, err)
		}
		if concept.Arity == memory.Single && len(values) > 1 {
			values = values[:1]
		}
		for _, value := range values {
			msg := core.NewAssistantMessage(fmt.Sprintf("%s: %s", concept.Keyword, value))
			result = append(result, msg.WithOrigin(core.OriginMemory))
		}
	}
	return result, nil
}
