// Package flowsteps provides the FlowSteps object: flow-control step
// bodies for pausing, failing and inspecting values.
package flowsteps

import (
	"context"

	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Module implements the steps.Module interface for this package.
type Module struct{}

// MessageInput carries a stop message.
type MessageInput struct {
	Message string `cty:"message"`
}

// Pause is the body for 'FlowSteps.pause': it records a pause message,
// moving the owning pipeline to PAUSED.
func Pause(ctx context.Context, pctx *pipeline.Context, in *MessageInput) (any, error) {
	return nil, errs.Pause("%s", in.Message)
}

// Fail is the body for 'FlowSteps.fail': a structured error stop.
func Fail(ctx context.Context, pctx *pipeline.Context, in *MessageInput) (any, error) {
	return nil, errs.Fail("%s", in.Message)
}

// ValueInput carries an arbitrary value.
type ValueInput struct {
	Value cty.Value `cty:"value"`
}

// IsEmpty is the body for 'FlowSteps.isEmpty'.
func IsEmpty(ctx context.Context, pctx *pipeline.Context, in *ValueInput) (any, error) {
	return value.IsEmpty(in.Value), nil
}

// PassThrough is the body for 'FlowSteps.value': it returns its input
// unchanged, useful for seeding and branching.
func PassThrough(ctx context.Context, pctx *pipeline.Context, in *ValueInput) (any, error) {
	return in.Value, nil
}

// Register registers the step bodies with the engine.
func (m *Module) Register(r *steps.Registry) {
	r.RegisterStep("FlowSteps", "pause", &steps.Overload{
		NewInput: func() any { return new(MessageInput) },
		Fn:       Pause,
	})
	r.RegisterStep("FlowSteps", "fail", &steps.Overload{
		NewInput: func() any { return new(MessageInput) },
		Fn:       Fail,
	})
	r.RegisterStep("FlowSteps", "isEmpty", &steps.Overload{
		NewInput: func() any { return new(ValueInput) },
		Fn:       IsEmpty,
	})
	r.RegisterStep("FlowSteps", "value", &steps.Overload{
		NewInput: func() any { return new(ValueInput) },
		Fn:       PassThrough,
	})
}
