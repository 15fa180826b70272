// Package stringsteps provides the StringSteps object: small string
// manipulation step bodies.
package stringsteps

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
)

// Module implements the steps.Module interface for this package.
type Module struct{}

// ConcatInput joins values with a separator.
type ConcatInput struct {
	Values    []string `cty:"values"`
	Separator string   `cty:"separator"`
}

// Concat is the body for 'StringSteps.concat'.
func Concat(ctx context.Context, pctx *pipeline.Context, in *ConcatInput) (any, error) {
	return strings.Join(in.Values, in.Separator), nil
}

// ConcatPairInput joins exactly two values, the overload selected when a
// caller supplies left/right instead of a list.
type ConcatPairInput struct {
	Left  string `cty:"left"`
	Right string `cty:"right"`
}

// ConcatPair is the two-argument overload for 'StringSteps.concat'.
func ConcatPair(ctx context.Context, pctx *pipeline.Context, in *ConcatPairInput) (any, error) {
	return in.Left + in.Right, nil
}

// SplitInput splits a string on a separator.
type SplitInput struct {
	Value     string `cty:"value"`
	Separator string `cty:"separator"`
}

// Split is the body for 'StringSteps.split'.
func Split(ctx context.Context, pctx *pipeline.Context, in *SplitInput) (any, error) {
	if in.Separator == "" {
		return nil, fmt.Errorf("separator must not be empty")
	}
	return strings.Split(in.Value, in.Separator), nil
}

// CaseInput changes a string's case.
type CaseInput struct {
	Value string `cty:"value"`
}

// Upper is the body for 'StringSteps.upper'.
func Upper(ctx context.Context, pctx *pipeline.Context, in *CaseInput) (any, error) {
	return strings.ToUpper(in.Value), nil
}

// Lower is the body for 'StringSteps.lower'.
func Lower(ctx context.Context, pctx *pipeline.Context, in *CaseInput) (any, error) {
	return strings.ToLower(in.Value), nil
}

// Register registers the step bodies with the engine.
func (m *Module) Register(r *steps.Registry) {
	r.RegisterStep("StringSteps", "concat", &steps.Overload{
		NewInput: func() any { return &ConcatInput{Separator: ""} },
		Fn:       Concat,
	})
	r.RegisterStep("StringSteps", "concat", &steps.Overload{
		NewInput: func() any { return new(ConcatPairInput) },
		Fn:       ConcatPair,
	})
	r.RegisterStep("StringSteps", "split", &steps.Overload{
		NewInput: func() any { return new(SplitInput) },
		Fn:       Split,
	})
	r.RegisterStep("StringSteps", "upper", &steps.Overload{
		NewInput: func() any { return new(CaseInput) },
		Fn:       Upper,
	})
	r.RegisterStep("StringSteps", "lower", &steps.Overload{
		NewInput: func() any { return new(CaseInput) },
		Fn:       Lower,
	})
}
