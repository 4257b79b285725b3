package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by graph runs.
// Messages carry the staged history in order; system messages may appear
// anywhere and are hoisted by the provider adapters as required.
type Request struct {
	Messages []core.Message   `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Stream   bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial chunks carry incremental assistant text or tool call arguments;
// the final chunk carries the complete set of messages for the turn, which
// may be a single assistant message or an assistant message followed by one
// or more tool call messages.
type Response struct {
	Partial      bool           `json:"partial"`
	Messages     []core.Message `json:"messages"`
	FinishReason string         `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a Generate call synchronously and returns the messages of
// the final response chunk. The request's Stream flag is passed through to
// the backend unchanged; partial chunks are drained and discarded.
func Complete(ctx context.Context, m Model, req Request) ([]core.Message, *TokenUsage, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final *Response
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				r := resp
				final = &r
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, nil, err
			}
		}
	}
	if final == nil {
		return nil, nil, fmt.Errorf("model %q produced no final response", m.Info().Name)
	}
	return final.Messages, final.Usage, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Canned responses are matched against the text of the last non-system
// message in the request; tool call responses can be scripted per turn.
type MockModel struct {
	info      Info
	responses map[string]string
	toolCalls map[string][]core.ToolCall
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
		responses: make(map[string]string),
		toolCalls: make(map[string][]core.ToolCall),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// AddToolCalls registers tool calls to emit when the given prompt is the
// latest input. The final chunk then finishes with reason "tool_calls".
func (m *MockModel) AddToolCalls(prompt string, calls ...core.ToolCall) {
	m.toolCalls[prompt] = calls
}

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		inputText := lastInputText(req.Messages)
		if calls, ok := m.toolCalls[inputText]; ok {
			msgs := make([]core.Message, 0, len(calls))
			for _, tc := range calls {
				msgs = append(msgs, core.NewToolCallMessage(tc))
			}
			respCh <- Response{Messages: msgs, FinishReason: "tool_calls"}
			return
		}
		full := m.responses[inputText]
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial:  true,
					Messages: []core.Message{core.NewAssistantMessage(string(r))},
				}:
				}
			}
		}
		respCh <- Response{
			Messages:     []core.Message{core.NewAssistantMessage(full)},
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// lastInputText returns the text of the most recent message that can serve
// as a prompt key: the latest user, tool result, or assistant message.
func lastInputText(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		switch msg.Kind {
		case core.KindSystem:
			continue
		case core.KindToolResult:
			if msg.ToolResult != nil {
				return fmt.Sprintf("%v", msg.ToolResult.Result)
			}
		default:
			if s := strings.TrimSpace(msg.Text); s != "" {
				return s
			}
		}
	}
	return ""
}
