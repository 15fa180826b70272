package stringsteps

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/zclconf/go-cty/cty"
)

func newRegistry() *steps.Registry {
	r := steps.New()
	(&Module{}).Register(r)
	return r
}

func invoke(t *testing.T, r *steps.Registry, ref string, args map[string]cty.Value) cty.Value {
	t.Helper()
	callable, err := r.Resolve(nil, ref, args)
	require.NoError(t, err)
	resp, err := callable.Invoke(context.Background(), pipeline.NewContext())
	require.NoError(t, err)
	return resp.Primary
}

func TestConcat_OverloadSelection(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	// The list form wins when values/separator are supplied.
	got := invoke(t, r, "StringSteps.concat", map[string]cty.Value{
		"values":    cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		"separator": cty.StringVal("-"),
	})
	require.Equal(t, cty.StringVal("a-b"), got)

	// The pair form wins when left/right are supplied.
	got = invoke(t, r, "StringSteps.concat", map[string]cty.Value{
		"left":  cty.StringVal("foo"),
		"right": cty.StringVal("bar"),
	})
	require.Equal(t, cty.StringVal("foobar"), got)
}

func TestSplitAndCase(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	got := invoke(t, r, "StringSteps.split", map[string]cty.Value{
		"value":     cty.StringVal("a,b,c"),
		"separator": cty.StringVal(","),
	})
	require.Equal(t, 3, got.LengthInt())

	require.Equal(t, cty.StringVal("LOUD"), invoke(t, r, "StringSteps.upper",
		map[string]cty.Value{"value": cty.StringVal("loud")}))
	require.Equal(t, cty.StringVal("quiet"), invoke(t, r, "StringSteps.lower",
		map[string]cty.Value{"value": cty.StringVal("QUIET")}))
}

func TestSplit_EmptySeparatorFails(t *testing.T) {
	t.Parallel()
	r := newRegistry()

	callable, err := r.Resolve(nil, "StringSteps.split", map[string]cty.Value{
		"value": cty.StringVal("abc"),
	})
	require.NoError(t, err)
	_, err = callable.Invoke(context.Background(), pipeline.NewContext())
	require.Error(t, err)
}
