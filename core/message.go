package core

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the closed set of message variants.
type Kind string

const (
	// KindSystem is an instruction message installed at prompt creation.
	KindSystem Kind = "system"
	// KindUser is end-user supplied content.
	KindUser Kind = "user"
	// KindAssistant is model-produced content.
	KindAssistant Kind = "assistant"
	// KindToolCall is a model-requested tool invocation.
	KindToolCall Kind = "tool_call"
	// KindToolResult is the outcome of a previously requested tool call.
	KindToolResult Kind = "tool_result"
)

// Origin tags where a message came from. Compression treats memory-derived
// messages specially (they survive every strategy when preserveMemory is on).
type Origin string

const (
	// OriginNormal marks ordinary conversation messages.
	OriginNormal Origin = "normal"
	// OriginMemory marks messages materialized from the memory provider.
	OriginMemory Origin = "memory"
)

// ToolCall describes a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`        // Correlates call and result
	Name      string `json:"name"`                // Tool name
	Arguments string `json:"arguments,omitempty"` // Serialized JSON argument payload
}

// ToolResult captures the outcome of a tool call.
type ToolResult struct {
	ID     string `json:"id,omitempty"` // Matches originating ToolCall ID
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"` // Successful result (any JSON-serializable shape)
	Error  string `json:"error,omitempty"`  // Populated on failure
}

// Message is the immutable unit of conversation history. Once appended to a
// Prompt it must not be mutated; derive new messages instead.
//
// Exactly one payload is meaningful per Kind: Text for system/user/assistant
// variants, ToolCall for KindToolCall, ToolResult for KindToolResult.
type Message struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Origin     Origin      `json:"origin"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewID generates a unique identifier for messages, runs and tool calls.
func NewID() string { return uuid.NewString() }

func newMessage(kind Kind) Message {
	return Message{
		ID:        NewID(),
		Kind:      kind,
		Origin:    OriginNormal,
		Timestamp: time.Now().UTC(),
	}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(text string) Message {
	m := newMessage(KindSystem)
	m.Text = text
	return m
}

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	m := newMessage(KindUser)
	m.Text = text
	return m
}

// NewAssistantMessage creates a model-authored text message.
func NewAssistantMessage(text string) Message {
	m := newMessage(KindAssistant)
	m.Text = text
	return m
}

// NewToolCallMessage records a model-requested tool invocation.
func NewToolCallMessage(call ToolCall) Message {
	if call.ID == "" {
		call.ID = NewID()
	}
	m := newMessage(KindToolCall)
	m.ToolCall = &call
	return m
}

// NewToolResultMessage records the completion result (or error) of a tool
// invocation. If err is non-nil its message is copied into the result.
func NewToolResultMessage(id, name string, result any, err error) Message {
	tr := ToolResult{ID: id, Name: name, Result: result}
	if err != nil {
		tr.Error = err.Error()
	}
	m := newMessage(KindToolResult)
	m.ToolResult = &tr
	return m
}

// WithOrigin returns a copy of the message re-tagged with the given origin.
func (m Message) WithOrigin(origin Origin) Message {
	m.Origin = origin
	return m
}

// IsMemory reports whether the message was derived from the memory provider.
func (m Message) IsMemory() bool { return m.Origin == OriginMemory }

// IsToolCall reports whether the message requests a tool invocation.
func (m Message) IsToolCall() bool { return m.Kind == KindToolCall }

// IsToolResult reports whether the message carries a tool outcome.
func (m Message) IsToolResult() bool { return m.Kind == KindToolResult }

// ToolCalls extracts all tool call payloads from a message sequence,
// preserving order.
func ToolCalls(msgs []Message) []ToolCall {
	var calls []ToolCall
	for _, m := range msgs {
		if m.Kind == KindToolCall && m.ToolCall != nil {
			calls = append(calls, *m.ToolCall)
		}
	}
	return calls
}
