// Package exprsteps provides the ExprSteps object: evaluation of
// expr-lang programs against named variables.
package exprsteps

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the steps.Module interface for this package.
type Module struct{}

// EvaluateInput carries the program text and its variable bindings.
type EvaluateInput struct {
	Expression string    `cty:"expression"`
	Variables  cty.Value `cty:"variables"`
}

// Evaluate is the body for 'ExprSteps.evaluate'. Variables are exposed
// to the program as a flat environment.
func Evaluate(ctx context.Context, pctx *pipeline.Context, in *EvaluateInput) (any, error) {
	env := map[string]any{}
	if !value.IsAbsent(in.Variables) {
		native, ok := value.ToNative(in.Variables).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("variables must be a map")
		}
		env = native
	}

	program, err := expr.Compile(in.Expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("cannot compile expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("expression failed: %w", err)
	}
	return out, nil
}

// Register registers the step bodies with the engine.
func (m *Module) Register(r *steps.Registry) {
	r.RegisterStep("ExprSteps", "evaluate", &steps.Overload{
		NewInput: func() any { return new(EvaluateInput) },
		Fn:       Evaluate,
	})
}
