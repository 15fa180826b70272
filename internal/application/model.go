// Package application parses declarative application configuration and
// materializes it into an executable plan.
package application

import (
	"github.com/vk/metalus/internal/pipeline"
)

// ClassDescriptor names a registered class plus its construction
// parameters, used for listener / security-manager / step-mapper
// overrides.
type ClassDescriptor struct {
	ClassName  string         `json:"className"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ExecutionDef is one node of the configured plan DAG. Pipelines may be
// inlined or referenced from the application library by id. Overrides
// fall back to the plan-level defaults when absent.
type ExecutionDef struct {
	ID                 string                    `json:"id"`
	PipelineIDs        []string                  `json:"pipelineIds,omitempty"`
	Pipelines          []*pipeline.Pipeline      `json:"pipelines,omitempty"`
	Parents            []string                  `json:"parents,omitempty"`
	Globals            map[string]any            `json:"globals,omitempty"`
	PipelineParameters map[string]map[string]any `json:"pipelineParameters,omitempty"`
	PipelineListener   *ClassDescriptor          `json:"pipelineListener,omitempty"`
	SecurityManager    *ClassDescriptor          `json:"securityManager,omitempty"`
	StepMapper         *ClassDescriptor          `json:"stepMapper,omitempty"`
}

// Application is the parsed top-level configuration.
type Application struct {
	Globals          map[string]any       `json:"globals,omitempty"`
	Executions       []*ExecutionDef      `json:"executions"`
	Pipelines        []*pipeline.Pipeline `json:"pipelines,omitempty"`
	StepPackages     []string             `json:"stepPackages,omitempty"`
	PipelineListener *ClassDescriptor     `json:"pipelineListener,omitempty"`
	SecurityManager  *ClassDescriptor     `json:"securityManager,omitempty"`
	StepMapper       *ClassDescriptor     `json:"stepMapper,omitempty"`
	SparkConf        map[string]any       `json:"sparkConf,omitempty"`
}
