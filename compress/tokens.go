package compress

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/agentgraph/core"
)

// DefaultEncoding is the tokenizer encoding used when none is specified.
const DefaultEncoding = "cl100k_base"

// TokenCounter counts tokens using a tiktoken encoding. It is safe for
// concurrent use.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the given encoding name. An empty
// name selects DefaultEncoding.
func NewTokenCounter(encodingName string) (*TokenCounter, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encodingName, err)
	}
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the token count of a single text.
func (c *TokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// CountMessages returns the total token count across all message payloads.
func (c *TokenCounter) CountMessages(messages []core.Message) int {
	total := 0
	for _, msg := range messages {
		switch msg.Kind {
		case core.KindToolCall:
			if msg.ToolCall != nil {
				total += c.Count(msg.ToolCall.Name) + c.Count(msg.ToolCall.Arguments)
			}
		case core.KindToolResult:
			if msg.ToolResult != nil {
				total += c.Count(fmt.Sprintf("%v", msg.ToolResult.Result))
			}
		default:
			total += c.Count(msg.Text)
		}
	}
	return total
}
