// Package openai adapts the OpenAI Chat Completions API to the model.Model
// interface, including streaming with incremental tool call aggregation.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// aggCall accumulates streamed tool call fragments for one tool call index.
type aggCall struct {
	id   string
	name string
	args string
}

// Options configures the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model implements model.Model backed by the OpenAI Chat Completions API.
type Model struct {
	client openai.Client
	opts   Options
}

// NewModel creates an adapter using an API key.
func NewModel(apiKey string, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewModelFromClient(client, optFns...)
}

// NewModelFromClient creates an adapter from a preconfigured client.
func NewModelFromClient(client openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4o,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai", SupportsTools: true}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req.Messages))
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts history messages into OpenAI chat messages.
// Consecutive tool call messages collapse into a single assistant message
// carrying the tool_calls array, as the API requires.
func buildMessages(messages []core.Message) []openai.ChatCompletionMessageParamUnion {
	var (
		result  []openai.ChatCompletionMessageParamUnion
		pending []openai.ChatCompletionMessageToolCallParam
	)
	flush := func() {
		if len(pending) > 0 {
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: pending,
				},
			})
			pending = nil
		}
	}
	for _, msg := range messages {
		switch msg.Kind {
		case core.KindSystem:
			flush()
			result = append(result, openai.SystemMessage(msg.Text))
		case core.KindUser:
			flush()
			result = append(result, openai.UserMessage(msg.Text))
		case core.KindAssistant:
			flush()
			result = append(result, openai.AssistantMessage(msg.Text))
		case core.KindToolCall:
			if msg.ToolCall == nil {
				continue
			}
			pending = append(pending, openai.ChatCompletionMessageToolCallParam{
				ID:   msg.ToolCall.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      msg.ToolCall.Name,
					Arguments: msg.ToolCall.Arguments,
				},
			})
		case core.KindToolResult:
			if msg.ToolResult == nil {
				continue
			}
			flush()
			result = append(result, openai.ToolMessage(resultText(msg.ToolResult), msg.ToolResult.ID))
		}
	}
	flush()
	return result
}

func resultText(tr *core.ToolResult) string {
	if tr.Error != "" {
		return tr.Error
	}
	if s, ok := tr.Result.(string); ok {
		return s
	}
	data, err := json.Marshal(tr.Result)
	if err != nil {
		return fmt.Sprintf("%v", tr.Result)
	}
	return string(data)
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Function.Name,
				Description: openai.String(tdef.Function.Description),
				Parameters:  tdef.Function.Parameters,
			},
		}
	}
	params.Tools = tools
	return params
}

// handleStreaming processes streaming responses and forwards partial / final chunks.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	var text string
	toolAgg := map[int64]*aggCall{}
	aggOrder := []int64{}
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				text += ch.Delta.Content
				out <- model.Response{
					Partial:  true,
					Messages: []core.Message{core.NewAssistantMessage(ch.Delta.Content)},
				}
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := toolAgg[tc.Index]
				if !ok {
					ac = &aggCall{}
					toolAgg[tc.Index] = ac
					aggOrder = append(aggOrder, tc.Index)
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" {
					ac.name = tc.Function.Name
				}
				if tc.Function.Arguments != "" {
					ac.args += tc.Function.Arguments
				}
				out <- model.Response{
					Partial: true,
					Messages: []core.Message{core.NewToolCallMessage(core.ToolCall{
						ID:        ac.id,
						Name:      ac.name,
						Arguments: ac.args,
					})},
				}
			}
			if ch.FinishReason != "" {
				var final []core.Message
				if text != "" {
					final = append(final, core.NewAssistantMessage(text))
				}
				for _, idx := range aggOrder {
					ac := toolAgg[idx]
					final = append(final, core.NewToolCallMessage(core.ToolCall{
						ID:        ac.id,
						Name:      ac.name,
						Arguments: ac.args,
					}))
				}
				if len(final) == 0 {
					final = append(final, core.NewAssistantMessage(""))
				}
				out <- model.Response{Messages: final, FinishReason: ch.FinishReason}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	choice := resp.Choices[0]

	var messages []core.Message
	if choice.Message.Content != "" {
		messages = append(messages, core.NewAssistantMessage(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		messages = append(messages, core.NewToolCallMessage(core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}))
	}
	if len(messages) == 0 {
		messages = append(messages, core.NewAssistantMessage(""))
	}

	out <- model.Response{
		Messages:     messages,
		FinishReason: string(choice.FinishReason),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
