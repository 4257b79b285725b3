package testutil

import (
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// PromptBuilder provides a fluent helper for constructing message sequences
// in tests. Example:
//
//	msgs := NewPromptBuilder().System("act nice").User("hi").Assistant("hello").Messages()
//
// Chain only the parts you need.
type PromptBuilder struct {
	messages []core.Message
}

// NewPromptBuilder creates an empty builder.
func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

// System appends a system message (chainable).
func (b *PromptBuilder) System(text string) *PromptBuilder {
	b.messages = append(b.messages, core.NewSystemMessage(text))
	return b
}

// User appends a user message (chainable).
func (b *PromptBuilder) User(text string) *PromptBuilder {
	b.messages = append(b.messages, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *PromptBuilder) Assistant(text string) *PromptBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(text))
	return b
}

// Memory appends an assistant message tagged with the memory origin (chainable).
func (b *PromptBuilder) Memory(text string) *PromptBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(text).WithOrigin(core.OriginMemory))
	return b
}

// ToolCall appends a tool call message (chainable).
func (b *PromptBuilder) ToolCall(id, name, args string) *PromptBuilder {
	b.messages = append(b.messages, core.NewToolCallMessage(core.ToolCall{ID: id, Name: name, Arguments: args}))
	return b
}

// ToolResult appends a successful tool result message (chainable).
func (b *PromptBuilder) ToolResult(id, name string, result any) *PromptBuilder {
	b.messages = append(b.messages, core.NewToolResultMessage(id, name, result, nil))
	return b
}

// Users appends n numbered user messages (chainable). Useful for building
// large histories.
func (b *PromptBuilder) Users(n int) *PromptBuilder {
	for i := 0; i < n; i++ {
		b.messages = append(b.messages, core.NewUserMessage(fmt.Sprintf("message %d", i)))
	}
	return b
}

// Messages returns the accumulated sequence.
func (b *PromptBuilder) Messages() []core.Message { return b.messages }

// Prompt returns a prompt seeded with the accumulated sequence. Leading
// system messages become the prompt's system messages.
func (b *PromptBuilder) Prompt() *core.Prompt {
	var system []core.Message
	rest := b.messages
	for len(rest) > 0 && rest[0].Kind == core.KindSystem {
		system = append(system, rest[0])
		rest = rest[1:]
	}
	p := core.NewPrompt(system...)
	p.Append(rest...)
	return p
}
