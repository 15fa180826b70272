package pipeline

import (
	"context"

	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Reserved driver globals, seeded before parsing and stripped from the
// final context afterwards.
const (
	GlobalApplicationJSON   = "applicationJson"
	GlobalApplicationPath   = "applicationConfigPath"
	GlobalApplicationLoader = "applicationConfigurationLoader"
)

// GlobalValidateTypes enables runtime type validation of resolved step
// arguments against declared parameter types.
const GlobalValidateTypes = "validateStepParameterTypes"

// SecurityManager sees every resolved final step argument and may redact
// or transform it. Implementations must be safe for concurrent use from
// distinct executions.
type SecurityManager interface {
	SecureParameter(v cty.Value) cty.Value
}

// DefaultSecurityManager passes parameters through untouched.
type DefaultSecurityManager struct{}

func (DefaultSecurityManager) SecureParameter(v cty.Value) cty.Value { return v }

// StepMapper evaluates one declared parameter against the context,
// producing the value handed to the step body. The default mapper is the
// sigil resolver; applications may substitute their own.
type StepMapper interface {
	MapParameter(ctx context.Context, pctx *Context, p *Parameter) (cty.Value, error)
}

// Context is the per-execution mutable state. Within one execution the
// executor is single-threaded; Context instances are never shared across
// executions — inheritance is by snapshot at parent completion.
type Context struct {
	Globals         map[string]cty.Value
	Parameters      map[string]map[string]*value.Response
	PipelineManager PipelineManager
	SecurityManager SecurityManager
	Listener        Listener
	Mapper          StepMapper
	StepPackages    []string
	CurrentPipeline string
	Audits          []Audit
}

// NewContext builds a context with the default security manager and
// audit-recording listener; the caller fills in globals and managers.
func NewContext() *Context {
	return &Context{
		Globals:         map[string]cty.Value{},
		Parameters:      map[string]map[string]*value.Response{},
		PipelineManager: NewMapPipelineManager(),
		SecurityManager: DefaultSecurityManager{},
		Listener:        &AuditListener{},
	}
}

// Global returns a global by dotted name, descending into nested values
// after the first segment.
func (c *Context) Global(name string) cty.Value {
	head, rest := splitPath(name)
	v, ok := c.Globals[head]
	if !ok {
		return value.Absent
	}
	return value.Path(v, rest)
}

// GlobalBool reads a boolean global, false when absent or not a bool.
func (c *Context) GlobalBool(name string) bool {
	v := c.Global(name)
	if value.IsAbsent(v) || v.Type() != cty.Bool {
		return false
	}
	return v.True()
}

// StepResult returns the recorded response for a step, if any.
func (c *Context) StepResult(pipelineID, stepID string) (*value.Response, bool) {
	steps, ok := c.Parameters[pipelineID]
	if !ok {
		return nil, false
	}
	r, ok := steps[stepID]
	return r, ok
}

// SetStepResult records a step's response. Results are written exactly
// once per successful step execution.
func (c *Context) SetStepResult(pipelineID, stepID string, r *value.Response) {
	steps, ok := c.Parameters[pipelineID]
	if !ok {
		steps = map[string]*value.Response{}
		c.Parameters[pipelineID] = steps
	}
	steps[stepID] = r
}

// HasPipelineResults reports whether any step of the pipeline has
// recorded a result. Used to disambiguate cross-pipeline references.
func (c *Context) HasPipelineResults(pipelineID string) bool {
	_, ok := c.Parameters[pipelineID]
	return ok
}

// ParametersValue projects the full parameters map into value space:
// pipelineId → stepId → response object.
func (c *Context) ParametersValue() cty.Value {
	if len(c.Parameters) == 0 {
		return value.Absent
	}
	pipes := make(map[string]cty.Value, len(c.Parameters))
	for pid, steps := range c.Parameters {
		if len(steps) == 0 {
			continue
		}
		attrs := make(map[string]cty.Value, len(steps))
		for sid, resp := range steps {
			attrs[sid] = resp.Value()
		}
		pipes[pid] = cty.ObjectVal(attrs)
	}
	if len(pipes) == 0 {
		return value.Absent
	}
	return cty.ObjectVal(pipes)
}

// Snapshot deep-copies the context's own state. Managers and the mapper
// are shared (read-only after construction); globals, parameters and
// audits are copied so the snapshot is immune to later writes.
func (c *Context) Snapshot() *Context {
	globals := make(map[string]cty.Value, len(c.Globals))
	for k, v := range c.Globals {
		globals[k] = v
	}
	params := make(map[string]map[string]*value.Response, len(c.Parameters))
	for pid, steps := range c.Parameters {
		stepsCopy := make(map[string]*value.Response, len(steps))
		for sid, r := range steps {
			stepsCopy[sid] = r
		}
		params[pid] = stepsCopy
	}
	audits := make([]Audit, len(c.Audits))
	copy(audits, c.Audits)
	return &Context{
		Globals:         globals,
		Parameters:      params,
		PipelineManager: c.PipelineManager,
		SecurityManager: c.SecurityManager,
		Listener:        c.Listener,
		Mapper:          c.Mapper,
		StepPackages:    append([]string(nil), c.StepPackages...),
		CurrentPipeline: c.CurrentPipeline,
		Audits:          audits,
	}
}

// splitPath separates the first dotted segment from the remainder.
func splitPath(name string) (string, string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}
