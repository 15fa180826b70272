package application

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/plan"
	"github.com/vk/metalus/internal/steps"
	"github.com/zclconf/go-cty/cty"
)

const sampleJSON = `{
  "globals": {"greeting": "hi", "validateStepParameterTypes": false},
  "pipelines": [
    {
      "id": "p1",
      "name": "first",
      "steps": [
        {
          "id": "s1",
          "params": [{"name": "value", "value": "!greeting"}],
          "engineMeta": {"command": "TestSteps.echo"}
        }
      ]
    }
  ],
  "executions": [
    {"id": "A", "pipelineIds": ["p1"]},
    {"id": "B", "pipelineIds": ["p1"], "parents": ["A"], "globals": {"greeting": "hello"}}
  ]
}`

type appEchoIn struct {
	Value cty.Value `cty:"value"`
}

func newAppRegistry() *steps.Registry {
	r := steps.New()
	r.RegisterStep("TestSteps", "echo", &steps.Overload{
		NewInput: func() any { return new(appEchoIn) },
		Fn: func(_ context.Context, _ *pipeline.Context, in *appEchoIn) (any, error) {
			return in.Value, nil
		},
	})
	return r
}

func TestParseJSON_RoundTripsLosslessly(t *testing.T) {
	t.Parallel()

	app, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	out, err := app.JSON()
	require.NoError(t, err)
	reparsed, err := ParseJSON(out)
	require.NoError(t, err)

	if diff := cmp.Diff(app, reparsed); diff != "" {
		t.Fatalf("round trip mismatch (-parsed +reparsed):\n%s", diff)
	}
}

func TestBuild_SeedsOverlaidGlobalsAndResolvesLibrary(t *testing.T) {
	t.Parallel()

	app, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	built, err := Build(context.Background(), app, newAppRegistry())
	require.NoError(t, err)

	a, ok := built.Execution("A")
	require.True(t, ok)
	require.Equal(t, cty.StringVal("hi"), a.Context.Global("greeting"))
	require.Len(t, a.Pipelines, 1)
	require.Equal(t, "p1", a.Pipelines[0].ID)

	// B's override wins over the application default.
	b, ok := built.Execution("B")
	require.True(t, ok)
	require.Equal(t, cty.StringVal("hello"), b.Context.Global("greeting"))
}

func TestBuild_StripsReservedDriverGlobals(t *testing.T) {
	t.Parallel()

	app, err := ParseJSON([]byte(`{
	  "globals": {
	    "keep": "yes",
	    "applicationJson": "{}",
	    "applicationConfigPath": "/tmp/x.json",
	    "applicationConfigurationLoader": "json"
	  },
	  "executions": [{"id": "A", "pipelines": [
	    {"id": "p", "steps": [{"id": "s", "engineMeta": {"command": "TestSteps.echo"}}]}
	  ]}]
	}`))
	require.NoError(t, err)

	built, err := Build(context.Background(), app, newAppRegistry())
	require.NoError(t, err)

	a, _ := built.Execution("A")
	require.Equal(t, cty.StringVal("yes"), a.Context.Global("keep"))
	for _, reserved := range []string{
		pipeline.GlobalApplicationJSON,
		pipeline.GlobalApplicationPath,
		pipeline.GlobalApplicationLoader,
	} {
		_, present := a.Context.Globals[reserved]
		require.False(t, present, "reserved global %q must be stripped", reserved)
	}
}

func TestBuild_ConfigErrors(t *testing.T) {
	t.Parallel()
	registry := newAppRegistry()

	// No executions.
	app, err := ParseJSON([]byte(`{"executions": []}`))
	require.NoError(t, err)
	_, err = Build(context.Background(), app, registry)
	require.True(t, errs.IsConfigError(err))

	// Unknown pipeline reference.
	app, err = ParseJSON([]byte(`{"executions": [{"id": "A", "pipelineIds": ["ghost"]}]}`))
	require.NoError(t, err)
	_, err = Build(context.Background(), app, registry)
	require.True(t, errs.IsConfigError(err))
}

// prefixSecurity is a registrable security manager used to exercise
// class descriptor overrides.
type prefixSecurity struct {
	Prefix string `cty:"prefix"`
}

func (m *prefixSecurity) SecureParameter(v cty.Value) cty.Value {
	if v != cty.NilVal && !v.IsNull() && v.Type() == cty.String {
		return cty.StringVal(m.Prefix + v.AsString())
	}
	return v
}

func TestBuild_InstantiatesClassDescriptorOverrides(t *testing.T) {
	t.Parallel()
	registry := newAppRegistry()
	registry.RegisterObject("security.Prefixer", prefixSecurity{})

	app, err := ParseJSON([]byte(`{
	  "globals": {"greeting": "hi"},
	  "securityManager": {"className": "security.Prefixer", "parameters": {"prefix": ">>"}},
	  "executions": [{"id": "A", "pipelines": [
	    {"id": "p", "steps": [
	      {"id": "s", "params": [{"name": "value", "value": "!greeting"}],
	       "engineMeta": {"command": "TestSteps.echo"}}
	    ]}
	  ]}]
	}`))
	require.NoError(t, err)

	built, err := Build(context.Background(), app, registry)
	require.NoError(t, err)

	summary := plan.NewScheduler(registry, 1, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	a, _ := built.Execution("A")
	r, ok := a.Context.StepResult("p", "s")
	require.True(t, ok)
	require.Equal(t, cty.StringVal(">>hi"), r.Primary)
}

func TestBuild_UnknownOverrideClassIsConfigError(t *testing.T) {
	t.Parallel()

	app, err := ParseJSON([]byte(`{
	  "securityManager": {"className": "no.Such"},
	  "executions": [{"id": "A", "pipelines": [
	    {"id": "p", "steps": [{"id": "s", "engineMeta": {"command": "TestSteps.echo"}}]}
	  ]}]
	}`))
	require.NoError(t, err)
	_, err = Build(context.Background(), app, newAppRegistry())
	require.True(t, errs.IsConfigError(err))
}

func TestParseYAML_MatchesJSONModel(t *testing.T) {
	t.Parallel()

	yamlDoc := `
globals:
  greeting: hi
pipelines:
  - id: p1
    name: first
    steps:
      - id: s1
        params:
          - name: value
            value: "!greeting"
        engineMeta:
          command: TestSteps.echo
executions:
  - id: A
    pipelineIds: [p1]
`
	fromYAML, err := ParseYAML([]byte(yamlDoc))
	require.NoError(t, err)

	require.Equal(t, "hi", fromYAML.Globals["greeting"])
	require.Len(t, fromYAML.Pipelines, 1)
	require.Equal(t, "TestSteps.echo", fromYAML.Pipelines[0].Steps[0].EngineMeta.Command)
	require.Len(t, fromYAML.Executions, 1)
}

func TestParseHCL_MatchesJSONModel(t *testing.T) {
	t.Parallel()

	hclDoc := `
globals {
  greeting = "hi"
}

pipeline "p1" {
  name = "first"

  step "s1" {
    command = "TestSteps.echo"
    params {
      value = "!greeting"
    }
  }
}

execution "A" {
  pipeline_ids = ["p1"]
}

execution "B" {
  pipeline_ids = ["p1"]
  parents      = ["A"]

  globals {
    greeting = "hello"
  }
}
`
	app, err := ParseHCL("app.hcl", []byte(hclDoc))
	require.NoError(t, err)

	require.Equal(t, "hi", app.Globals["greeting"])
	require.Len(t, app.Pipelines, 1)
	p := app.Pipelines[0]
	require.Equal(t, "p1", p.ID)
	require.Equal(t, "TestSteps.echo", p.Steps[0].EngineMeta.Command)
	require.Equal(t, "value", p.Steps[0].Params[0].Name)
	require.Equal(t, "!greeting", p.Steps[0].Params[0].Value)
	require.Len(t, app.Executions, 2)
	require.Equal(t, []string{"A"}, app.Executions[1].Parents)
	require.Equal(t, "hello", app.Executions[1].Globals["greeting"])
}

func TestRefresh_RebuildsFromScratch(t *testing.T) {
	t.Parallel()
	registry := newAppRegistry()

	first, err := Refresh(context.Background(), LoaderJSON, "app.json", []byte(sampleJSON), registry)
	require.NoError(t, err)
	second, err := Refresh(context.Background(), LoaderJSON, "app.json", []byte(sampleJSON), registry)
	require.NoError(t, err)

	require.NotEqual(t, first.RunID, second.RunID)
	a1, _ := first.Execution("A")
	a2, _ := second.Execution("A")
	require.NotSame(t, a1.Context, a2.Context)
}

func TestEndToEnd_ParentGlobalsInheritance(t *testing.T) {
	t.Parallel()
	registry := newAppRegistry()

	app, err := ParseJSON([]byte(`{
	  "globals": {"x": 42},
	  "pipelines": [
	    {"id": "p1", "steps": [
	      {"id": "s1", "params": [{"name": "value", "value": "!x"}],
	       "engineMeta": {"command": "TestSteps.echo"}}
	    ]},
	    {"id": "p2", "steps": [
	      {"id": "s1", "params": [{"name": "value", "value": "!A.globals.x"}],
	       "engineMeta": {"command": "TestSteps.echo"}}
	    ]}
	  ],
	  "executions": [
	    {"id": "A", "pipelineIds": ["p1"]},
	    {"id": "B", "pipelineIds": ["p2"], "parents": ["A"]}
	  ]
	}`))
	require.NoError(t, err)

	built, err := Build(context.Background(), app, registry)
	require.NoError(t, err)
	summary := plan.NewScheduler(registry, 2, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	b, _ := built.Execution("B")
	r, ok := b.Context.StepResult("p2", "s1")
	require.True(t, ok)
	require.True(t, r.Primary.RawEquals(cty.NumberIntVal(42)))
}

func TestBuild_SeedsPipelineParameters(t *testing.T) {
	t.Parallel()
	registry := newAppRegistry()

	// Pre-seeded pipeline parameters let executeIfEmpty short-circuit
	// without any upstream execution.
	app, err := ParseJSON([]byte(`{
	  "executions": [{
	    "id": "A",
	    "pipelineParameters": {"pre": {"seeded": "DF1"}},
	    "pipelines": [
	      {"id": "p", "steps": [
	        {"id": "s",
	         "params": [{"name": "value", "value": "fresh"}],
	         "engineMeta": {"command": "TestSteps.echo"},
	         "executeIfEmpty": {"name": "executeIfEmpty", "value": "@pre.seeded"}}
	      ]}
	    ]
	  }]
	}`))
	require.NoError(t, err)

	built, err := Build(context.Background(), app, registry)
	require.NoError(t, err)

	a, _ := built.Execution("A")
	seeded, ok := a.Context.StepResult("pre", "seeded")
	require.True(t, ok)
	require.Equal(t, cty.StringVal("DF1"), seeded.Primary)

	summary := plan.NewScheduler(registry, 1, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	r, ok := a.Context.StepResult("p", "s")
	require.True(t, ok)
	require.Equal(t, cty.StringVal("DF1"), r.Primary)
}

func TestDriverParams(t *testing.T) {
	t.Parallel()

	_, err := DriverParams{}.Load()
	require.True(t, errs.IsConfigError(err))

	app, err := DriverParams{ApplicationJSON: sampleJSON}.Load()
	require.NoError(t, err)
	require.Len(t, app.Executions, 2)
}
