// Package tool implements the function / tool calling subsystem: structured
// capabilities (APIs, computations, side effects) with schema validated
// arguments, consistent error handling and concurrent fan-out dispatch.
package tool

import (
	"context"

	"github.com/hupe1980/agentgraph/internal/util"
)

// Tool defines the interface for callable capabilities exposed to models.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// Call executes the tool with already-validated structured arguments.
	// The dispatcher validates arguments against Parameters() before Call
	// is entered; implementations may assume required fields are present.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError
