package application

import (
	"context"

	"dario.cat/mergo"
	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/plan"
	"github.com/vk/metalus/internal/resolver"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Build materializes the parsed application into a validated plan:
// executions with seeded contexts, pipelines resolved from the library,
// and listener/security/mapper overrides instantiated through the
// registry.
func Build(ctx context.Context, app *Application, registry *steps.Registry) (*plan.Plan, error) {
	logger := ctxlog.FromContext(ctx)
	if len(app.Executions) == 0 {
		return nil, errs.NewConfigError("application declares no executions")
	}

	stripReservedGlobals(app.Globals)

	library := make([]*pipeline.Pipeline, 0, len(app.Pipelines))
	for _, p := range app.Pipelines {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		library = append(library, p)
	}
	manager := pipeline.NewMapPipelineManager(library...)

	defaults, err := newOverrides(registry, app.PipelineListener, app.SecurityManager, app.StepMapper)
	if err != nil {
		return nil, err
	}
	if defaults.listener == nil {
		defaults.listener = &pipeline.AuditListener{}
	}
	if defaults.security == nil {
		defaults.security = pipeline.DefaultSecurityManager{}
	}
	if defaults.mapper == nil {
		defaults.mapper = resolver.New(registry)
	}

	executions := make([]*plan.Execution, 0, len(app.Executions))
	for _, def := range app.Executions {
		ex, err := buildExecution(app, def, registry, manager, defaults)
		if err != nil {
			return nil, err
		}
		executions = append(executions, ex)
	}

	built, err := plan.New(executions)
	if err != nil {
		return nil, err
	}
	logger.Debug("Plan materialized.", "executions", len(executions), "pipelines", len(library))
	return built, nil
}

// Refresh re-parses configuration and rebuilds the plan from scratch.
// The caller must ensure no execution of the previous plan is running.
func Refresh(ctx context.Context, loader, filename string, data []byte, registry *steps.Registry) (*plan.Plan, error) {
	app, err := Parse(loader, filename, data)
	if err != nil {
		return nil, err
	}
	return Build(ctx, app, registry)
}

// overrides bundles the three pluggable policies.
type overrides struct {
	listener pipeline.Listener
	security pipeline.SecurityManager
	mapper   pipeline.StepMapper
}

// newOverrides instantiates class descriptors, leaving nil slots for
// absent descriptors so callers can fall back.
func newOverrides(registry *steps.Registry, listener, security, mapper *ClassDescriptor) (*overrides, error) {
	o := &overrides{}
	if listener != nil {
		inst, err := instantiate(registry, listener)
		if err != nil {
			return nil, err
		}
		typed, ok := inst.(pipeline.Listener)
		if !ok {
			return nil, errs.NewConfigError("class %q is not a pipeline listener", listener.ClassName)
		}
		o.listener = typed
	}
	if security != nil {
		inst, err := instantiate(registry, security)
		if err != nil {
			return nil, err
		}
		typed, ok := inst.(pipeline.SecurityManager)
		if !ok {
			return nil, errs.NewConfigError("class %q is not a security manager", security.ClassName)
		}
		o.security = typed
	}
	if mapper != nil {
		inst, err := instantiate(registry, mapper)
		if err != nil {
			return nil, err
		}
		typed, ok := inst.(pipeline.StepMapper)
		if !ok {
			return nil, errs.NewConfigError("class %q is not a step mapper", mapper.ClassName)
		}
		o.mapper = typed
	}
	return o, nil
}

// instantiate constructs a descriptor's class through the registry and
// unwraps the native instance.
func instantiate(registry *steps.Registry, desc *ClassDescriptor) (any, error) {
	params := make(map[string]cty.Value, len(desc.Parameters))
	for k, raw := range desc.Parameters {
		params[k] = value.FromNative(raw)
	}
	v, err := registry.NewObject(desc.ClassName, params)
	if err != nil {
		return nil, err
	}
	return v.EncapsulatedValue(), nil
}

// buildExecution seeds one execution: globals overlay, pipeline chain,
// pre-seeded pipeline parameters, and per-execution policy overrides.
func buildExecution(app *Application, def *ExecutionDef, registry *steps.Registry, manager pipeline.PipelineManager, defaults *overrides) (*plan.Execution, error) {
	if def.ID == "" {
		return nil, errs.NewConfigError("execution has no id")
	}

	seed := map[string]any{}
	if err := mergo.Merge(&seed, app.Globals); err != nil {
		return nil, errs.WrapConfigError(err, "cannot seed globals for execution %s", def.ID)
	}
	if err := mergo.Merge(&seed, def.Globals, mergo.WithOverride); err != nil {
		return nil, errs.WrapConfigError(err, "cannot overlay globals for execution %s", def.ID)
	}
	stripReservedGlobals(seed)

	pctx := pipeline.NewContext()
	for k, raw := range seed {
		pctx.Globals[k] = value.FromNative(raw)
	}
	pctx.PipelineManager = manager
	pctx.StepPackages = app.StepPackages

	own, err := newOverrides(registry, def.PipelineListener, def.SecurityManager, def.StepMapper)
	if err != nil {
		return nil, err
	}
	pctx.Listener = firstListener(own.listener, defaults.listener)
	pctx.SecurityManager = firstSecurity(own.security, defaults.security)
	pctx.Mapper = firstMapper(own.mapper, defaults.mapper)

	for pid, stepValues := range def.PipelineParameters {
		for sid, raw := range stepValues {
			pctx.SetStepResult(pid, sid, value.Wrap(value.FromNative(raw)))
		}
	}

	pipelines, err := executionPipelines(def, manager)
	if err != nil {
		return nil, err
	}

	return &plan.Execution{
		ID:        def.ID,
		Pipelines: pipelines,
		Parents:   def.Parents,
		Context:   pctx,
	}, nil
}

// executionPipelines assembles the chain: inline pipelines first, then
// library references in declaration order.
func executionPipelines(def *ExecutionDef, manager pipeline.PipelineManager) ([]*pipeline.Pipeline, error) {
	var chain []*pipeline.Pipeline
	for _, p := range def.Pipelines {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	for _, id := range def.PipelineIDs {
		p, ok := manager.Get(id)
		if !ok {
			return nil, errs.NewConfigError("execution %s references unknown pipeline %q", def.ID, id)
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, errs.NewConfigError("execution %s has no pipelines", def.ID)
	}
	return chain, nil
}

// stripReservedGlobals removes the driver-only keys from a globals map.
func stripReservedGlobals(globals map[string]any) {
	delete(globals, pipeline.GlobalApplicationJSON)
	delete(globals, pipeline.GlobalApplicationPath)
	delete(globals, pipeline.GlobalApplicationLoader)
}

func firstListener(vals ...pipeline.Listener) pipeline.Listener {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstSecurity(vals ...pipeline.SecurityManager) pipeline.SecurityManager {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstMapper(vals ...pipeline.StepMapper) pipeline.StepMapper {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
