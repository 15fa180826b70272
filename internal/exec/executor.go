package exec

import (
	"context"

	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Executor runs pipelines against a step registry. It is single-threaded
// within one execution; one Executor may serve concurrent executions
// because it keeps no per-run state.
type Executor struct {
	registry *steps.Registry
}

// New creates an Executor over the given registry.
func New(registry *steps.Registry) *Executor {
	return &Executor{registry: registry}
}

// RunChain executes an execution's pipelines sequentially over one
// shared context. A pipeline leaving the chain paused or errored stops
// it at that point.
func (e *Executor) RunChain(ctx context.Context, pctx *pipeline.Context, pipelines []*pipeline.Pipeline) *Result {
	for _, p := range pipelines {
		if res := e.RunPipeline(ctx, pctx, p); res.Outcome != OutcomeComplete {
			return res
		}
	}
	last := ""
	if len(pipelines) > 0 {
		last = pipelines[len(pipelines)-1].ID
	}
	return complete(last)
}

// RunPipeline walks the pipeline's step graph from its first step until
// a step has no successor or a stop occurs.
func (e *Executor) RunPipeline(ctx context.Context, pctx *pipeline.Context, p *pipeline.Pipeline) *Result {
	logger := ctxlog.FromContext(ctx).With("pipelineID", p.ID)
	pctx.CurrentPipeline = p.ID
	if pctx.Listener != nil {
		pctx.Listener.PipelineStarted(ctx, pctx, p)
	}

	if len(p.Steps) == 0 {
		logger.Warn("Pipeline has no steps.")
		if pctx.Listener != nil {
			pctx.Listener.PipelineFinished(ctx, pctx, p)
		}
		return complete(p.ID)
	}

	step := &p.Steps[0]
	for step != nil {
		res := e.runStep(ctx, pctx, p, step)
		if res.err != nil {
			return e.finishStopped(ctx, pctx, p, step.ID, res.err)
		}

		nextID, err := nextStepID(step, res.response)
		if err != nil {
			return e.finishStopped(ctx, pctx, p, step.ID, err)
		}
		if nextID == "" {
			break
		}
		next, ok := p.Step(nextID)
		if !ok {
			return e.finishStopped(ctx, pctx, p, step.ID,
				errs.NewConfigError("pipeline %s: step %s selected unknown next step %q", p.ID, step.ID, nextID))
		}
		step = next
	}

	if pctx.Listener != nil {
		pctx.Listener.PipelineFinished(ctx, pctx, p)
	}
	return complete(p.ID)
}

// stepRun carries one step's response or stop.
type stepRun struct {
	response *value.Response
	err      error
}

// runStep resolves executeIfEmpty, maps parameters, and invokes the step
// body (or the step-group / pass-through machinery for structural step
// types). The recorded response is written exactly once, after a
// successful run.
func (e *Executor) runStep(ctx context.Context, pctx *pipeline.Context, p *pipeline.Pipeline, s *pipeline.Step) stepRun {
	logger := ctxlog.FromContext(ctx).With("pipelineID", p.ID, "stepID", s.ID)
	if pctx.Listener != nil {
		pctx.Listener.StepStarted(ctx, pctx, p, s)
	}

	// Parameters are resolved against the current context at the moment
	// of entry; the body observes a frozen argument vector.
	if s.ExecuteIfEmpty != nil {
		pre, err := pctx.Mapper.MapParameter(ctx, pctx, s.ExecuteIfEmpty)
		if err != nil {
			return stepRun{err: err}
		}
		if !value.IsEmpty(pre) {
			logger.Debug("Step pre-seeded by executeIfEmpty, body not invoked.")
			resp := &value.Response{Primary: pre}
			pctx.SetStepResult(p.ID, s.ID, resp)
			if pctx.Listener != nil {
				pctx.Listener.StepFinished(ctx, pctx, p, s, resp)
			}
			return stepRun{response: resp}
		}
	}

	args, err := e.mapParams(ctx, pctx, s)
	if err != nil {
		return stepRun{err: err}
	}

	var resp *value.Response
	switch s.Type {
	case pipeline.StepTypeStepGroup:
		resp, err = e.runStepGroup(ctx, pctx, p, s, args)
	case pipeline.StepTypeFork, pipeline.StepTypeJoin:
		resp, err = e.passThrough(s, args)
	default:
		resp, err = e.invokeBody(ctx, pctx, p, s, args)
	}
	if err != nil {
		return stepRun{err: err}
	}

	pctx.SetStepResult(p.ID, s.ID, resp)
	if pctx.Listener != nil {
		pctx.Listener.StepFinished(ctx, pctx, p, s, resp)
	}
	return stepRun{response: resp}
}

// mapParams resolves the step's declared parameters into the argument
// map handed to the registry.
func (e *Executor) mapParams(ctx context.Context, pctx *pipeline.Context, s *pipeline.Step) (map[string]cty.Value, error) {
	args := make(map[string]cty.Value, len(s.Params))
	for i := range s.Params {
		prm := &s.Params[i]
		v, err := pctx.Mapper.MapParameter(ctx, pctx, prm)
		if err != nil {
			return nil, err
		}
		if value.IsAbsent(v) {
			continue
		}
		args[prm.Name] = v
	}
	return args, nil
}

// invokeBody resolves and calls the step's engine command.
func (e *Executor) invokeBody(ctx context.Context, pctx *pipeline.Context, p *pipeline.Pipeline, s *pipeline.Step, args map[string]cty.Value) (*value.Response, error) {
	if s.EngineMeta == nil || s.EngineMeta.Command == "" {
		return nil, errs.NewConfigError("pipeline %s: step %s has no engine command", p.ID, s.ID)
	}
	callable, err := e.registry.Resolve(pctx.StepPackages, s.EngineMeta.Command, args)
	if err != nil {
		return nil, err
	}
	if pctx.GlobalBool(pipeline.GlobalValidateTypes) {
		if err := callable.ValidateArgTypes(); err != nil {
			return nil, err
		}
	}
	return callable.Invoke(ctx, pctx)
}

// passThrough records fork/join steps without a body: the primary return
// is the first declared parameter's resolved value. Full fan-out
// execution is not part of this core.
func (e *Executor) passThrough(s *pipeline.Step, args map[string]cty.Value) (*value.Response, error) {
	if len(s.Params) > 0 {
		if v, ok := args[s.Params[0].Name]; ok {
			return &value.Response{Primary: v}, nil
		}
	}
	return &value.Response{Primary: value.Absent}, nil
}

// finishStopped classifies a stop and emits the matching listener
// callback. Structured stops keep their kind; mapping and configuration
// failures are reported as errors unchanged; anything else is wrapped as
// fatal.
func (e *Executor) finishStopped(ctx context.Context, pctx *pipeline.Context, p *pipeline.Pipeline, stepID string, err error) *Result {
	if se, ok := errs.AsStepError(err); ok {
		se.StepID, se.PipelineID = stepID, p.ID
		if se.Kind == errs.StopPause {
			if pctx.Listener != nil {
				pctx.Listener.PipelinePaused(ctx, pctx, p, se.Message)
			}
			return paused(p.ID, stepID, se.Message)
		}
		if pctx.Listener != nil {
			pctx.Listener.PipelineErrored(ctx, pctx, p, se)
		}
		return errored(p.ID, stepID, se)
	}

	if !errs.IsMappingError(err) && !errs.IsConfigError(err) && !errs.IsFatal(err) {
		err = &errs.FatalError{StepID: stepID, PipelineID: p.ID, Cause: err}
	}
	if pctx.Listener != nil {
		pctx.Listener.PipelineErrored(ctx, pctx, p, err)
	}
	return errored(p.ID, stepID, err)
}

// nextStepID computes the successor. Branch steps match the stringified
// primary return against parameter names and follow that parameter's
// value; all other types follow nextStepId. No successor ends the
// pipeline.
func nextStepID(s *pipeline.Step, resp *value.Response) (string, error) {
	if s.Type != pipeline.StepTypeBranch {
		return s.NextStepID, nil
	}
	if resp == nil || value.IsAbsent(resp.Primary) {
		return "", nil
	}
	decision, err := value.Stringify(resp.Primary)
	if err != nil {
		return "", errs.NewConfigError("branch step %s returned a non-scalar decision", s.ID)
	}
	prm, ok := s.Param(decision)
	if !ok {
		return "", nil
	}
	next, ok := prm.Value.(string)
	if !ok {
		return "", errs.NewConfigError("branch step %s: parameter %q does not carry a step id", s.ID, decision)
	}
	return next, nil
}
