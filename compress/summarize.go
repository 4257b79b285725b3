package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/memory"
	"github.com/hupe1980/agentgraph/model"
)

// Summarizer condenses a message sequence into one summary text.
type Summarizer interface {
	Summarize(ctx context.Context, messages []core.Message) (string, error)
}

// SummarizerFunc adapts a plain function to the Summarizer interface.
type SummarizerFunc func(ctx context.Context, messages []core.Message) (string, error)

// Summarize implements Summarizer.
func (f SummarizerFunc) Summarize(ctx context.Context, messages []core.Message) (string, error) {
	return f(ctx, messages)
}

const summarySystemPrompt = "You condense conversation history. Produce a concise summary " +
	"of the following messages that preserves decisions, facts, open tasks and tool outcomes. " +
	"Reply with the summary text only."

// ModelSummarizer delegates summarization to a language model.
type ModelSummarizer struct {
	model model.Model
}

// NewModelSummarizer creates a model-backed summarizer.
func NewModelSummarizer(m model.Model) *ModelSummarizer {
	return &ModelSummarizer{model: m}
}

// Summarize implements Summarizer.
func (s *ModelSummarizer) Summarize(ctx context.Context, messages []core.Message) (string, error) {
	req := model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(summarySystemPrompt),
			core.NewUserMessage(renderHistory(messages)),
		},
	}
	out, _, err := model.Complete(ctx, s.model, req)
	if err != nil {
		return "", err
	}
	return finalText(out), nil
}

// FactRetriever extracts fact values matching a concept from a message
// sequence.
type FactRetriever interface {
	Retrieve(ctx context.Context, concept memory.Concept, messages []core.Message) ([]string, error)
}

const factSystemPrompt = "You extract facts from conversation history. Given a concept, reply " +
	"with one matching fact value per line, nothing else. Reply with an empty response when the " +
	"history contains no matching fact."

// ModelFactRetriever delegates fact extraction to a language model.
type ModelFactRetriever struct {
	model model.Model
}

// NewModelFactRetriever creates a model-backed fact retriever.
func NewModelFactRetriever(m model.Model) *ModelFactRetriever {
	return &ModelFactRetriever{model: m}
}

// Retrieve implements FactRetriever.
func (r *ModelFactRetriever) Retrieve(ctx context.Context, concept memory.Concept, messages []core.Message) ([]string, error) {
	req := model.Request{
		Messages: []core.Message{
			core.NewSystemMessage(factSystemPrompt),
			core.NewUserMessage(fmt.Sprintf(
				"Concept: %s (%s)\n\nHistory:\n%s",
				concept.Keyword, concept.Description, renderHistory(messages),
			)),
		},
	}
	out, _, err := model.Complete(ctx, r.model, req)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, line := range strings.Split(finalText(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			values = append(values, line)
		}
	}
	return values, nil
}

// ProviderFactRetriever consults a memory provider before falling back to
// another retriever. Stored facts win; facts the fallback extracts from the
// history are saved back to the provider so later runs find them directly.
type ProviderFactRetriever struct {
	provider memory.Provider
	fallback FactRetriever
	subject  memory.Subject
	scope    memory.Scope
}

// NewProviderFactRetriever creates a retriever backed by provider, delegating
// to fallback for concepts the provider has no facts for.
func NewProviderFactRetriever(provider memory.Provider, fallback FactRetriever, subject memory.Subject, scope memory.Scope) *ProviderFactRetriever {
	return &ProviderFactRetriever{provider: provider, fallback: fallback, subject: subject, scope: scope}
}

// Retrieve implements FactRetriever.
func (r *ProviderFactRetriever) Retrieve(ctx context.Context, concept memory.Concept, messages []core.Message) ([]string, error) {
	facts, err := r.provider.Load(ctx, concept, r.subject, r.scope)
	if err != nil {
		return nil, err
	}
	if len(facts) > 0 {
		var values []string
		for _, f := range facts {
			values = append(values, f.Values...)
		}
		return values, nil
	}
	values, err := r.fallback.Retrieve(ctx, concept, messages)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		if err := r.provider.Save(ctx, memory.NewFact(concept, values...), r.subject, r.scope); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// summarizerRetriever is the fallback retriever used when no dedicated
// retriever is configured: it asks the summarizer for the concept and treats
// the summary as a single fact value.
type summarizerRetriever struct {
	summarizer Summarizer
}

func (r *summarizerRetriever) Retrieve(ctx context.Context, concept memory.Concept, messages []core.Message) ([]string, error) {
	query := core.NewUserMessage(fmt.Sprintf(
		"Extract the fact %q (%s) from the preceding history.",
		concept.Keyword, concept.Description,
	))
	value, err := r.summarizer.Summarize(ctx, append(append([]core.Message{}, messages...), query))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	return []string{value}, nil
}

// renderHistory flattens messages into a plain transcript for delegate calls.
func renderHistory(messages []core.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Kind {
		case core.KindToolCall:
			if msg.ToolCall != nil {
				fmt.Fprintf(&b, "[tool call] %s(%s)\n", msg.ToolCall.Name, msg.ToolCall.Arguments)
			}
		case core.KindToolResult:
			if msg.ToolResult != nil {
				fmt.Fprintf(&b, "[tool result] %s: %v\n", msg.ToolResult.Name, msg.ToolResult.Result)
			}
		default:
			fmt.Fprintf(&b, "[%s] %s\n", msg.Kind, msg.Text)
		}
	}
	return b.String()
}

// finalText concatenates assistant text from a completed model turn.
func finalText(messages []core.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Kind == core.KindAssistant {
			b.WriteString(msg.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
