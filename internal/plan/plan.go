package plan

import (
	"github.com/google/uuid"
	"github.com/vk/metalus/internal/dag"
	"github.com/vk/metalus/internal/errs"
)

// Plan is the validated DAG of executions, ready for the scheduler.
type Plan struct {
	RunID      string
	Graph      *dag.Graph
	executions map[string]*Execution
	order      []string
}

// New validates the executions (unique ids, known parents, acyclic
// edges) and assembles the plan.
func New(executions []*Execution) (*Plan, error) {
	p := &Plan{
		RunID:      uuid.NewString(),
		Graph:      dag.New(),
		executions: make(map[string]*Execution, len(executions)),
	}

	for _, ex := range executions {
		if ex.ID == "" {
			return nil, errs.NewConfigError("execution has no id")
		}
		if _, dup := p.executions[ex.ID]; dup {
			return nil, errs.NewConfigError("duplicate execution id %q", ex.ID)
		}
		p.executions[ex.ID] = ex
		p.order = append(p.order, ex.ID)
		p.Graph.AddNode(ex.ID)
	}

	for _, ex := range executions {
		seen := map[string]bool{}
		for _, parent := range ex.Parents {
			if seen[parent] {
				continue
			}
			seen[parent] = true
			if _, known := p.executions[parent]; !known {
				return nil, errs.NewConfigError("execution %q names unknown parent %q", ex.ID, parent)
			}
			if err := p.Graph.AddEdge(parent, ex.ID); err != nil {
				return nil, errs.WrapConfigError(err, "invalid plan edge")
			}
		}
		ex.remainingParents.Store(int32(len(seen)))
	}

	if err := p.Graph.DetectCycles(); err != nil {
		return nil, errs.WrapConfigError(err, "execution parent edges must form a DAG")
	}
	return p, nil
}

// Execution returns an execution by id.
func (p *Plan) Execution(id string) (*Execution, bool) {
	ex, ok := p.executions[id]
	return ex, ok
}

// Executions returns the executions in declaration order.
func (p *Plan) Executions() []*Execution {
	out := make([]*Execution, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.executions[id])
	}
	return out
}
