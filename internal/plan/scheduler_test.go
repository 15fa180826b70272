package plan

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/resolver"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

type planEchoIn struct {
	Value cty.Value `cty:"value"`
}

// newPlanRegistry registers the handlers the scheduler tests drive.
func newPlanRegistry() *steps.Registry {
	r := steps.New()
	r.RegisterStep("TestSteps", "echo", &steps.Overload{
		NewInput: func() any { return new(planEchoIn) },
		Fn: func(_ context.Context, _ *pipeline.Context, in *planEchoIn) (any, error) {
			return in.Value, nil
		},
	})
	r.RegisterStep("TestSteps", "pause", &steps.Overload{
		NewInput: nil,
		Fn: func(_ context.Context, _ *pipeline.Context, _ *struct{}) (any, error) {
			return nil, errs.Pause("halted")
		},
	})
	r.RegisterStep("TestSteps", "fail", &steps.Overload{
		NewInput: nil,
		Fn: func(_ context.Context, _ *pipeline.Context, _ *struct{}) (any, error) {
			return nil, errs.Fail("broken")
		},
	})
	return r
}

// newExecution builds an execution around a single one-step pipeline
// invoking the named command.
func newExecution(registry *steps.Registry, id, command string, parents ...string) *Execution {
	pctx := pipeline.NewContext()
	pctx.Mapper = resolver.New(registry)
	p := &pipeline.Pipeline{ID: id + "-pipe", Steps: []pipeline.Step{
		{
			ID:         "s1",
			Params:     []pipeline.Parameter{{Name: "value", Value: "done-" + id}},
			EngineMeta: &pipeline.EngineMeta{Command: command},
		},
	}}
	return &Execution{ID: id, Pipelines: []*pipeline.Pipeline{p}, Parents: parents, Context: pctx}
}

func TestPlanNew_RejectsCyclesAndDuplicates(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	_, err := New([]*Execution{
		newExecution(registry, "A", "TestSteps.echo", "B"),
		newExecution(registry, "B", "TestSteps.echo", "A"),
	})
	require.True(t, errs.IsConfigError(err))

	_, err = New([]*Execution{
		newExecution(registry, "A", "TestSteps.echo"),
		newExecution(registry, "A", "TestSteps.echo"),
	})
	require.True(t, errs.IsConfigError(err))

	_, err = New([]*Execution{
		newExecution(registry, "A", "TestSteps.echo", "ghost"),
	})
	require.True(t, errs.IsConfigError(err))
}

func TestScheduler_ChainInheritsParentGlobals(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	a := newExecution(registry, "A", "TestSteps.echo")
	a.Context.Globals["x"] = cty.NumberIntVal(42)
	b := newExecution(registry, "B", "TestSteps.echo", "A")

	built, err := New([]*Execution{a, b})
	require.NoError(t, err)

	summary := NewScheduler(registry, 2, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	// B's seeded globals carry A's final globals and pipeline parameters
	// under A's id.
	inherited := b.Context.Global("A.globals.x")
	require.Equal(t, cty.NumberIntVal(42), inherited)

	params := b.Context.Global("A.pipelineParameters.A-pipe.s1.primaryReturn")
	require.Equal(t, cty.StringVal("done-A"), params)
}

func TestScheduler_ChildStartsAfterParentsFinish(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	a := newExecution(registry, "A", "TestSteps.echo")
	b := newExecution(registry, "B", "TestSteps.echo")
	c := newExecution(registry, "C", "TestSteps.echo", "A", "B")

	built, err := New([]*Execution{a, b, c})
	require.NoError(t, err)

	summary := NewScheduler(registry, 4, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	require.False(t, c.StartTime().Before(a.EndTime()))
	require.False(t, c.StartTime().Before(b.EndTime()))
}

func TestScheduler_PauseSkipsDescendants(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	a := newExecution(registry, "A", "TestSteps.pause")
	b := newExecution(registry, "B", "TestSteps.echo", "A")
	c := newExecution(registry, "C", "TestSteps.echo", "B")

	built, err := New([]*Execution{a, b, c})
	require.NoError(t, err)

	summary := NewScheduler(registry, 2, true).Run(context.Background(), built)

	require.Equal(t, StatePaused, a.State())
	require.Equal(t, StateSkipped, b.State())
	require.Equal(t, StateSkipped, c.State())
	require.Equal(t, "paused", summary.Outcome)

	// Skipped executions expose no context to anyone downstream.
	require.Nil(t, b.FinalContext())
	require.Nil(t, c.FinalContext())
}

func TestScheduler_ErrorSkipsOnlyDescendants(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	root := newExecution(registry, "root", "TestSteps.echo")
	bad := newExecution(registry, "bad", "TestSteps.fail", "root")
	good := newExecution(registry, "good", "TestSteps.echo", "root")
	downstream := newExecution(registry, "downstream", "TestSteps.echo", "bad")

	built, err := New([]*Execution{root, bad, good, downstream})
	require.NoError(t, err)

	summary := NewScheduler(registry, 2, true).Run(context.Background(), built)

	// The sibling of the failed execution still completes in strict mode.
	require.Equal(t, StateComplete, root.State())
	require.Equal(t, StateErrored, bad.State())
	require.Equal(t, StateComplete, good.State())
	require.Equal(t, StateSkipped, downstream.State())
	require.Equal(t, "errored", summary.Outcome)
}

func TestScheduler_ParallelSiblingsSeeIdenticalInheritance(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	root := newExecution(registry, "root", "TestSteps.echo")
	root.Context.Globals["shared"] = cty.StringVal("both")
	a := newExecution(registry, "a", "TestSteps.echo", "root")
	b := newExecution(registry, "b", "TestSteps.echo", "root")

	built, err := New([]*Execution{root, a, b})
	require.NoError(t, err)

	summary := NewScheduler(registry, 4, true).Run(context.Background(), built)
	require.True(t, summary.Complete())

	av := value.ToNative(a.Context.Global("root"))
	bv := value.ToNative(b.Context.Global("root"))
	if diff := cmp.Diff(av, bv); diff != "" {
		t.Fatalf("sibling inheritance differs (-a +b):\n%s", diff)
	}
}

func TestSummary_ReportsFirstNonCompleteInTopologicalOrder(t *testing.T) {
	t.Parallel()
	registry := newPlanRegistry()

	a := newExecution(registry, "A", "TestSteps.echo")
	b := newExecution(registry, "B", "TestSteps.fail", "A")
	c := newExecution(registry, "C", "TestSteps.echo", "B")

	built, err := New([]*Execution{a, b, c})
	require.NoError(t, err)

	summary := NewScheduler(registry, 1, true).Run(context.Background(), built)
	require.Equal(t, "errored", summary.Outcome)
	require.Len(t, summary.Executions, 3)
	require.Equal(t, "A", summary.Executions[0].ID)
	require.Equal(t, "complete", summary.Executions[0].State)
	require.Equal(t, "B", summary.Executions[1].ID)
	require.Equal(t, "s1", summary.Executions[1].LastStepID)
}
