package graph

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/hupe1980/agentgraph/core"
)

// Condition is a pure predicate over (run context, node output). Conditions
// must not produce side effects; they may be evaluated any number of times.
type Condition interface {
	Evaluate(rc *RunContext, out Output) (bool, error)
}

// ConditionFunc adapts a plain predicate function to the Condition interface.
type ConditionFunc func(rc *RunContext, out Output) (bool, error)

// Evaluate implements Condition.
func (f ConditionFunc) Evaluate(rc *RunContext, out Output) (bool, error) { return f(rc, out) }

// Always matches unconditionally. The usual condition of a node's last edge.
func Always() Condition {
	return ConditionFunc(func(*RunContext, Output) (bool, error) { return true, nil })
}

// OnToolCall matches when the node output contains at least one tool call
// message.
func OnToolCall() Condition {
	return ConditionFunc(func(_ *RunContext, out Output) (bool, error) {
		for _, msg := range out.Messages {
			if msg.IsToolCall() {
				return true, nil
			}
		}
		return false, nil
	})
}

// OnAssistantMessage matches when the node output contains at least one plain
// assistant message.
func OnAssistantMessage() Condition {
	return ConditionFunc(func(_ *RunContext, out Output) (bool, error) {
		for _, msg := range out.Messages {
			if msg.Kind == core.KindAssistant {
				return true, nil
			}
		}
		return false, nil
	})
}

// OnError matches when the node output carries a handled error.
func OnError() Condition {
	return ConditionFunc(func(_ *RunContext, out Output) (bool, error) {
		return out.Err != nil, nil
	})
}

// celCondition evaluates a CEL expression compiled at graph build time.
type celCondition struct {
	expr string
	prg  cel.Program
}

// NewCELCondition compiles expr into a condition. The expression must
// evaluate to a bool and may reference:
//
//	text          string  concatenated assistant text of the output
//	kind          string  kind of the output's last message ("" when empty)
//	has_tool_call bool    any tool call message present
//	has_error     bool    output carries a handled error
//	error         string  handled error text ("" when none)
//	state         map     the run's shared state
//
// Example: `has_tool_call && !has_error`.
func NewCELCondition(expr string) (Condition, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("has_tool_call", cel.BoolType),
		cel.Variable("has_error", cel.BoolType),
		cel.Variable("error", cel.StringType),
		cel.Variable("state", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile condition %q: %w", expr, iss.Err())
	}
	if ast.OutputType().String() != cel.BoolType.String() {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build condition program %q: %w", expr, err)
	}
	return &celCondition{expr: expr, prg: prg}, nil
}

// MustCELCondition is NewCELCondition panicking on compile errors; intended
// for statically known expressions in graph declarations.
func MustCELCondition(expr string) Condition {
	c, err := NewCELCondition(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *celCondition) Evaluate(rc *RunContext, out Output) (bool, error) {
	var (
		text        string
		kind        string
		hasToolCall bool
		errText     string
	)
	for _, msg := range out.Messages {
		if msg.Kind == core.KindAssistant {
			text += msg.Text
		}
		if msg.IsToolCall() {
			hasToolCall = true
		}
	}
	if len(out.Messages) > 0 {
		kind = string(out.Messages[len(out.Messages)-1].Kind)
	}
	if out.Err != nil {
		errText = out.Err.Error()
	}

	val, _, err := c.prg.Eval(map[string]any{
		"text":          text,
		"kind":          kind,
		"has_tool_call": hasToolCall,
		"has_error":     out.Err != nil,
		"error":         errText,
		"state":         rc.State,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", c.expr, err)
	}
	b, ok := val.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned non-bool %T", c.expr, val.Value())
	}
	return b, nil
}
