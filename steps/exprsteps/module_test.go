package exprsteps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/zclconf/go-cty/cty"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()
	r := steps.New()
	(&Module{}).Register(r)

	callable, err := r.Resolve(nil, "ExprSteps.evaluate", map[string]cty.Value{
		"expression": cty.StringVal("a + b * 2"),
		"variables": cty.ObjectVal(map[string]cty.Value{
			"a": cty.NumberIntVal(1),
			"b": cty.NumberIntVal(3),
		}),
	})
	require.NoError(t, err)

	resp, err := callable.Invoke(context.Background(), pipeline.NewContext())
	require.NoError(t, err)
	require.True(t, resp.Primary.RawEquals(cty.NumberIntVal(7)))
}

func TestEvaluate_CompileErrorSurfaces(t *testing.T) {
	t.Parallel()
	r := steps.New()
	(&Module{}).Register(r)

	callable, err := r.Resolve(nil, "ExprSteps.evaluate", map[string]cty.Value{
		"expression": cty.StringVal("1 +"),
	})
	require.NoError(t, err)

	_, err = callable.Invoke(context.Background(), pipeline.NewContext())
	require.Error(t, err)
}
