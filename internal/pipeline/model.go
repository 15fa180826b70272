// Package pipeline defines the declarative pipeline model and the
// per-execution mutable context it runs against.
package pipeline

import "github.com/vk/metalus/internal/errs"

// Step types understood by the executor.
const (
	StepTypePipeline  = "pipeline"
	StepTypeBranch    = "branch"
	StepTypeStepGroup = "step-group"
	StepTypeFork      = "fork"
	StepTypeJoin      = "join"
)

// Parameter value types.
const (
	ParamTypeText   = "text"
	ParamTypeScript = "script"
	ParamTypeObject = "object"
	ParamTypeList   = "list"
	ParamTypeResult = "result"
)

// Pipeline categories.
const (
	CategoryPipeline  = "pipeline"
	CategoryStepGroup = "step-group"
)

// Parameter is one declared input of a step. Value carries whatever the
// configuration held: a literal, a sigil expression string, a typed
// object descriptor, a list descriptor, or a nested map.
type Parameter struct {
	Name         string `json:"name"`
	Type         string `json:"type,omitempty"`
	Value        any    `json:"value,omitempty"`
	ClassName    string `json:"className,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// EngineMeta names the step body to invoke, or embeds a pipeline for
// step-group steps.
type EngineMeta struct {
	Command  string    `json:"command,omitempty"`
	Pipeline *Pipeline `json:"pipeline,omitempty"`
}

// Step is one node of a pipeline's step graph.
type Step struct {
	ID             string      `json:"id"`
	DisplayName    string      `json:"displayName,omitempty"`
	Description    string      `json:"description,omitempty"`
	Type           string      `json:"type,omitempty"`
	Params         []Parameter `json:"params,omitempty"`
	EngineMeta     *EngineMeta `json:"engineMeta,omitempty"`
	NextStepID     string      `json:"nextStepId,omitempty"`
	ExecuteIfEmpty *Parameter  `json:"executeIfEmpty,omitempty"`
}

// Param returns the named parameter, if declared.
func (s *Step) Param(name string) (*Parameter, bool) {
	for i := range s.Params {
		if s.Params[i].Name == name {
			return &s.Params[i], true
		}
	}
	return nil, false
}

// Pipeline is an ordered graph of steps. Execution starts at the first
// step of the list; flow control follows nextStepId edges from there.
type Pipeline struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	Category        string `json:"category,omitempty"`
	Steps           []Step `json:"steps"`
	StepGroupResult string `json:"stepGroupResult,omitempty"`
}

// Step returns the step with the given id.
func (p *Pipeline) Step(id string) (*Step, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks the structural invariants the executor relies on:
// non-empty id, unique step ids, and nextStepId edges that point at
// declared steps.
func (p *Pipeline) Validate() error {
	if p.ID == "" {
		return errs.NewConfigError("pipeline has no id")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.ID == "" {
			return errs.NewConfigError("pipeline %s: step %d has no id", p.ID, i)
		}
		if seen[s.ID] {
			return errs.NewConfigError("pipeline %s: duplicate step id %q", p.ID, s.ID)
		}
		seen[s.ID] = true
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.NextStepID != "" && !seen[s.NextStepID] {
			return errs.NewConfigError("pipeline %s: step %s points at unknown step %q", p.ID, s.ID, s.NextStepID)
		}
	}
	return nil
}

// PipelineManager looks up pipelines by id for `&` expressions and
// step-group references.
type PipelineManager interface {
	Get(id string) (*Pipeline, bool)
}

// MapPipelineManager is the default PipelineManager over an in-memory
// library of pipelines.
type MapPipelineManager struct {
	pipelines map[string]*Pipeline
}

// NewMapPipelineManager indexes the given pipelines by id.
func NewMapPipelineManager(pipelines ...*Pipeline) *MapPipelineManager {
	m := &MapPipelineManager{pipelines: make(map[string]*Pipeline, len(pipelines))}
	for _, p := range pipelines {
		m.pipelines[p.ID] = p
	}
	return m
}

func (m *MapPipelineManager) Get(id string) (*Pipeline, bool) {
	p, ok := m.pipelines[id]
	return p, ok
}
