// Package anthropic adapts the Anthropic Messages API to the model.Model
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Model implements model.Model backed by the Anthropic Messages API.
type Model struct {
	client anthropic.Client
	opts   Options
}

// NewModel creates an adapter using an API key.
func NewModel(apiKey string, optFns ...func(o *Options)) *Model {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return NewModelFromClient(client, optFns...)
}

// NewModelFromClient creates an adapter from a preconfigured client.
func NewModelFromClient(client anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       string(anthropic.ModelClaudeSonnet4_20250514),
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "anthropic", SupportsTools: true}
}

// Generate implements model.Model. Streaming is not implemented for this
// adapter yet; requests with Stream set fail fast.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if req.Stream {
			errCh <- fmt.Errorf("anthropic adapter: streaming not yet implemented")
			return
		}

		params := anthropic.MessageNewParams{
			Model:       anthropic.Model(m.opts.Model),
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := buildSystem(req.Messages); len(system) > 0 {
			params.System = system
		}
		if tools := buildTools(req.Tools); len(tools) > 0 {
			params.Tools = tools
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- model.Response{
			Messages:     convertResponse(resp),
			FinishReason: string(resp.StopReason),
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()
	return out, errCh
}

// buildSystem hoists system messages into the dedicated system parameter.
func buildSystem(messages []core.Message) []anthropic.TextBlockParam {
	var system []anthropic.TextBlockParam
	for _, msg := range messages {
		if msg.Kind == core.KindSystem && msg.Text != "" {
			system = append(system, anthropic.TextBlockParam{Text: msg.Text})
		}
	}
	return system
}

// buildMessages converts history messages into Anthropic turns. Consecutive
// assistant text and tool call messages collapse into a single assistant turn;
// tool results become user turns carrying tool_result blocks, as the API
// requires.
func buildMessages(messages []core.Message) []anthropic.MessageParam {
	var (
		turns     []anthropic.MessageParam
		assistant []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(assistant) > 0 {
			turns = append(turns, anthropic.NewAssistantMessage(assistant...))
			assistant = nil
		}
	}
	for _, msg := range messages {
		switch msg.Kind {
		case core.KindSystem:
			continue
		case core.KindUser:
			flush()
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
		case core.KindAssistant:
			if msg.Text != "" {
				assistant = append(assistant, anthropic.NewTextBlock(msg.Text))
			}
		case core.KindToolCall:
			if msg.ToolCall == nil {
				continue
			}
			assistant = append(assistant, anthropic.NewToolUseBlock(
				msg.ToolCall.ID,
				json.RawMessage(msg.ToolCall.Arguments),
				msg.ToolCall.Name,
			))
		case core.KindToolResult:
			if msg.ToolResult == nil {
				continue
			}
			flush()
			content := resultText(msg.ToolResult)
			isError := msg.ToolResult.Error != ""
			turns = append(turns, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolResult.ID, content, isError),
			))
		}
	}
	flush()
	return turns
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

// buildTools converts tool definitions into the Anthropic tool format.
func buildTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       constant.Object("object"),
			Properties: def.Function.Parameters["properties"],
			Required:   requiredOf(def.Function.Parameters),
		}
		tool := anthropic.ToolUnionParamOfTool(inputSchema, def.Function.Name)
		if def.Function.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Function.Description)
		}
		tools = append(tools, tool)
	}
	return tools
}

func requiredOf(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		required := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
		return required
	}
	return nil
}

// convertResponse maps the Anthropic content blocks back into history
// messages: accumulated text becomes a single assistant message, each
// tool_use block becomes a tool call message.
func convertResponse(resp *anthropic.Message) []core.Message {
	var (
		messages []core.Message
		text     string
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			if text != "" {
				messages = append(messages, core.NewAssistantMessage(text))
				text = ""
			}
			messages = append(messages, core.NewToolCallMessage(core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			}))
		}
	}
	if text != "" || len(messages) == 0 {
		messages = append(messages, core.NewAssistantMessage(text))
	}
	return messages
}
