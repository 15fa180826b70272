package application

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/metalus/internal/errs"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/value"
)

// HCL application schema, decoded with gohcl-tagged structs.

type hclAttrsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type hclStep struct {
	ID             string         `hcl:"id,label"`
	DisplayName    string         `hcl:"display_name,optional"`
	Description    string         `hcl:"description,optional"`
	Type           string         `hcl:"type,optional"`
	Command        string         `hcl:"command,optional"`
	NextStepID     string         `hcl:"next_step_id,optional"`
	ExecuteIfEmpty string         `hcl:"execute_if_empty,optional"`
	Params         *hclAttrsBlock `hcl:"params,block"`
}

type hclPipeline struct {
	ID              string     `hcl:"id,label"`
	Name            string     `hcl:"name,optional"`
	Category        string     `hcl:"category,optional"`
	StepGroupResult string     `hcl:"step_group_result,optional"`
	Steps           []*hclStep `hcl:"step,block"`
}

type hclExecution struct {
	ID          string         `hcl:"id,label"`
	PipelineIDs []string       `hcl:"pipeline_ids,optional"`
	Parents     []string       `hcl:"parents,optional"`
	Globals     *hclAttrsBlock `hcl:"globals,block"`
}

type hclApplication struct {
	StepPackages []string        `hcl:"step_packages,optional"`
	Globals      *hclAttrsBlock  `hcl:"globals,block"`
	Pipelines    []*hclPipeline  `hcl:"pipeline,block"`
	Executions   []*hclExecution `hcl:"execution,block"`
}

// ParseHCL decodes an application authored in HCL. Attribute values are
// literal HCL expressions; sigil strings stay strings and are resolved
// at execution time like their JSON counterparts.
func ParseHCL(filename string, data []byte) (*Application, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errs.WrapConfigError(diags, "cannot parse application HCL")
	}

	var root hclApplication
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, errs.WrapConfigError(diags, "invalid application HCL")
	}

	app := &Application{StepPackages: root.StepPackages}

	globals, err := attrsToMap(root.Globals)
	if err != nil {
		return nil, err
	}
	app.Globals = globals

	for _, hp := range root.Pipelines {
		p, err := pipelineFromHCL(hp)
		if err != nil {
			return nil, err
		}
		app.Pipelines = append(app.Pipelines, p)
	}

	for _, he := range root.Executions {
		execGlobals, err := attrsToMap(he.Globals)
		if err != nil {
			return nil, err
		}
		app.Executions = append(app.Executions, &ExecutionDef{
			ID:          he.ID,
			PipelineIDs: he.PipelineIDs,
			Parents:     he.Parents,
			Globals:     execGlobals,
		})
	}
	return app, nil
}

func pipelineFromHCL(hp *hclPipeline) (*pipeline.Pipeline, error) {
	p := &pipeline.Pipeline{
		ID:              hp.ID,
		Name:            hp.Name,
		Category:        hp.Category,
		StepGroupResult: hp.StepGroupResult,
	}
	for _, hs := range hp.Steps {
		step := pipeline.Step{
			ID:          hs.ID,
			DisplayName: hs.DisplayName,
			Description: hs.Description,
			Type:        hs.Type,
			NextStepID:  hs.NextStepID,
		}
		if hs.Command != "" {
			step.EngineMeta = &pipeline.EngineMeta{Command: hs.Command}
		}
		if hs.ExecuteIfEmpty != "" {
			step.ExecuteIfEmpty = &pipeline.Parameter{Name: "executeIfEmpty", Value: hs.ExecuteIfEmpty}
		}
		params, err := paramsFromHCL(hs.Params)
		if err != nil {
			return nil, err
		}
		step.Params = params
		p.Steps = append(p.Steps, step)
	}
	return p, nil
}

// paramsFromHCL turns each attribute of a params block into a declared
// parameter, preserving attribute declaration order.
func paramsFromHCL(block *hclAttrsBlock) ([]pipeline.Parameter, error) {
	if block == nil {
		return nil, nil
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, errs.WrapConfigError(diags, "invalid params block")
	}
	ordered := make([]*hcl.Attribute, 0, len(attrs))
	for _, attr := range attrs {
		ordered = append(ordered, attr)
	}
	sortAttrs(ordered)

	params := make([]pipeline.Parameter, 0, len(ordered))
	for _, attr := range ordered {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, errs.WrapConfigError(diags, "invalid value for parameter %q", attr.Name)
		}
		params = append(params, pipeline.Parameter{Name: attr.Name, Value: value.ToNative(v)})
	}
	return params, nil
}

// attrsToMap evaluates a block's attributes into plain values.
func attrsToMap(block *hclAttrsBlock) (map[string]any, error) {
	if block == nil {
		return nil, nil
	}
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, errs.WrapConfigError(diags, "invalid globals block")
	}
	out := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, errs.WrapConfigError(diags, "invalid value for global %q", name)
		}
		out[name] = value.ToNative(v)
	}
	return out, nil
}

// sortAttrs orders attributes by source position so parameter order
// matches the file.
func sortAttrs(attrs []*hcl.Attribute) {
	for i := 1; i < len(attrs); i++ {
		for j := i; j > 0 && beforeAttr(attrs[j], attrs[j-1]); j-- {
			attrs[j], attrs[j-1] = attrs[j-1], attrs[j]
		}
	}
}

func beforeAttr(a, b *hcl.Attribute) bool {
	if a.Range.Start.Line != b.Range.Start.Line {
		return a.Range.Start.Line < b.Range.Start.Line
	}
	return a.Range.Start.Column < b.Range.Start.Column
}
