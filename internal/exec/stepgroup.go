package exec

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/resolver"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// runStepGroup executes a step whose body is an embedded pipeline. The
// child runs in an isolated context whose entire globals are the
// resolved pipelineMappings map; its results are projected back into the
// outer step's response.
func (e *Executor) runStepGroup(ctx context.Context, pctx *pipeline.Context, p *pipeline.Pipeline, s *pipeline.Step, args map[string]cty.Value) (*value.Response, error) {
	logger := ctxlog.FromContext(ctx).With("pipelineID", p.ID, "stepID", s.ID)

	child, err := e.groupPipeline(pctx, s, args)
	if err != nil {
		return nil, err
	}
	logger.Debug("Running step group.", "groupPipelineID", child.ID)

	childCtx := &pipeline.Context{
		Globals:         groupGlobals(args),
		Parameters:      map[string]map[string]*value.Response{},
		PipelineManager: pctx.PipelineManager,
		SecurityManager: pctx.SecurityManager,
		Listener:        pctx.Listener,
		Mapper:          pctx.Mapper,
		StepPackages:    pctx.StepPackages,
	}

	res := e.RunPipeline(ctx, childCtx, child)
	switch res.Outcome {
	case OutcomePaused:
		return nil, &errs.StepError{Kind: errs.StopPause, Message: res.Message}
	case OutcomeErrored:
		if se, ok := errs.AsStepError(res.Err); ok {
			return nil, &errs.StepError{Kind: se.Kind, Message: se.Message}
		}
		return nil, res.Err
	}

	return groupResponse(childCtx, child), nil
}

// groupPipeline locates the embedded pipeline: inline under engineMeta,
// an inline or `&`-resolved `pipeline` parameter, or a `pipelineId`
// parameter resolved through the pipeline manager.
func (e *Executor) groupPipeline(pctx *pipeline.Context, s *pipeline.Step, args map[string]cty.Value) (*pipeline.Pipeline, error) {
	if s.EngineMeta != nil && s.EngineMeta.Pipeline != nil {
		return s.EngineMeta.Pipeline, nil
	}

	if prm, ok := s.Param("pipeline"); ok {
		if raw, isMap := prm.Value.(map[string]any); isMap {
			return inlinePipeline(raw)
		}
		if v, resolved := args["pipeline"]; resolved {
			if p, isPipe := resolver.PipelineFromValue(v); isPipe {
				return p, nil
			}
		}
		return nil, errs.NewConfigError("step %s: pipeline parameter did not resolve to a pipeline", s.ID)
	}

	if v, ok := args["pipelineId"]; ok && v.Type() == cty.String {
		id := v.AsString()
		if pctx.PipelineManager != nil {
			if p, found := pctx.PipelineManager.Get(id); found {
				return p, nil
			}
		}
		return nil, errs.NewConfigError("step %s: pipeline %q not known to the pipeline manager", s.ID, id)
	}

	return nil, errs.NewConfigError("step %s: step-group carries no pipeline reference", s.ID)
}

// inlinePipeline decodes a pipeline embedded directly in configuration.
func inlinePipeline(raw map[string]any) (*pipeline.Pipeline, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, errs.WrapConfigError(err, "cannot read inline pipeline")
	}
	var p pipeline.Pipeline
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, errs.WrapConfigError(err, "cannot read inline pipeline")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// groupGlobals extracts the child's entire globals from the resolved
// pipelineMappings argument. The parent's globals are not merged in.
func groupGlobals(args map[string]cty.Value) map[string]cty.Value {
	globals := map[string]cty.Value{}
	v, ok := args["pipelineMappings"]
	if !ok || value.IsAbsent(v) {
		return globals
	}
	t := v.Type()
	if !t.IsObjectType() && !t.IsMapType() {
		return globals
	}
	for it := v.ElementIterator(); it.Next(); {
		k, ev := it.Element()
		globals[k.AsString()] = ev
	}
	return globals
}

// groupResponse projects the finished child context into the outer
// step's response: the designated result step's primary (or the whole
// parameter map), plus every step's response as a named return.
func groupResponse(childCtx *pipeline.Context, child *pipeline.Pipeline) *value.Response {
	named := map[string]cty.Value{}
	for sid, resp := range childCtx.Parameters[child.ID] {
		named[sid] = resp.Value()
	}

	primary := childCtx.ParametersValue()
	if child.StepGroupResult != "" {
		if resp, ok := childCtx.StepResult(child.ID, child.StepGroupResult); ok {
			primary = resp.Primary
		} else {
			primary = value.Absent
		}
	}
	return &value.Response{Primary: primary, Named: named}
}
