package value

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestPath_ObjectDescent(t *testing.T) {
	t.Parallel()

	v := cty.ObjectVal(map[string]cty.Value{
		"outer": cty.ObjectVal(map[string]cty.Value{
			"inner": cty.StringVal("deep"),
		}),
	})

	require.Equal(t, cty.StringVal("deep"), Path(v, "outer.inner"))
	require.Equal(t, v, Path(v, ""))
}

func TestPath_AbsentIntermediateTerminates(t *testing.T) {
	t.Parallel()

	v := cty.ObjectVal(map[string]cty.Value{
		"present": cty.StringVal("x"),
		"gone":    cty.NullVal(cty.DynamicPseudoType),
	})

	require.True(t, IsAbsent(Path(v, "missing.anything")))
	require.True(t, IsAbsent(Path(v, "gone.deeper")))
}

func TestPath_MapLookup(t *testing.T) {
	t.Parallel()

	v := cty.MapVal(map[string]cty.Value{
		"a": cty.StringVal("1"),
		"b": cty.StringVal("2"),
	})

	require.Equal(t, cty.StringVal("2"), Path(v, "b"))
	require.True(t, IsAbsent(Path(v, "c")))
}

type pathTarget struct {
	Name    string      `cty:"name"`
	Nested  *pathNested `cty:"nested"`
	Skipped *pathNested `cty:"skipped"`
}

type pathNested struct {
	Score int `cty:"score"`
}

func TestPath_CapsuleFieldWithPointerUnwrap(t *testing.T) {
	t.Parallel()

	target := &pathTarget{Name: "obj", Nested: &pathNested{Score: 7}}
	v := cty.CapsuleVal(CapsuleType("test.pathTarget", reflect.TypeOf(pathTarget{})), target)

	require.Equal(t, cty.StringVal("obj"), Path(v, "name"))
	require.True(t, Path(v, "nested.score").RawEquals(cty.NumberIntVal(7)))
	// Nil pointer fields terminate with absence instead of panicking.
	require.True(t, IsAbsent(Path(v, "skipped.score")))
}

func TestIsEmpty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		v     cty.Value
		empty bool
	}{
		{"absent", Absent, true},
		{"null", cty.NullVal(cty.String), true},
		{"empty string", cty.StringVal(""), true},
		{"empty tuple", cty.EmptyTupleVal, true},
		{"empty object", cty.EmptyObjectVal, true},
		{"zero number", cty.Zero, false},
		{"false", cty.False, false},
		{"string", cty.StringVal("x"), false},
		{"tuple", cty.TupleVal([]cty.Value{cty.True}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.empty, IsEmpty(tc.v))
		})
	}
}

func TestFromNative_RoundTripsStructuredData(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"name":    "complex-object",
		"enabled": true,
		"items":   []any{int64(1), int64(2)},
		"metadata": map[string]any{
			"owner": "test-suite",
		},
	}

	v := FromNative(in)
	require.False(t, IsAbsent(v))

	out := ToNative(v)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	s, err := Stringify(cty.NumberIntVal(42))
	require.NoError(t, err)
	require.Equal(t, "42", s)

	s, err = Stringify(cty.True)
	require.NoError(t, err)
	require.Equal(t, "true", s)

	_, err = Stringify(cty.ObjectVal(map[string]cty.Value{"a": cty.True}))
	require.Error(t, err)
}

func TestWrap(t *testing.T) {
	t.Parallel()

	r := Wrap("plain")
	require.Equal(t, cty.StringVal("plain"), r.Primary)
	require.Nil(t, r.Named)

	r = Wrap(nil)
	require.True(t, IsAbsent(r.Primary))

	direct := &Response{Primary: cty.True, Named: map[string]cty.Value{"n": cty.Zero}}
	require.Same(t, direct, Wrap(direct))
}

func TestResponseValue_SupportsDottedTraversal(t *testing.T) {
	t.Parallel()

	r := &Response{
		Primary: cty.StringVal("main"),
		Named:   map[string]cty.Value{"count": cty.NumberIntVal(3)},
	}
	v := r.Value()

	require.Equal(t, cty.StringVal("main"), Path(v, "primaryReturn"))
	require.Equal(t, cty.NumberIntVal(3), Path(v, "namedReturns.count"))
}
