// Package plan materializes an application into a DAG of pipeline
// executions and schedules them with bounded parallelism.
package plan

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/metalus/internal/exec"
	"github.com/vk/metalus/internal/pipeline"
)

// State is an execution's lifecycle state. Pending and Running are
// transient; the rest are terminal.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateComplete
	StatePaused
	StateErrored
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StatePaused:
		return "paused"
	case StateErrored:
		return "errored"
	case StateSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s >= StateComplete
}

// Execution is one node of the plan: a chain of pipelines run over one
// owned context, started only after every parent completed.
type Execution struct {
	ID        string
	Pipelines []*pipeline.Pipeline
	Parents   []string
	Context   *pipeline.Context

	state            atomic.Int32
	remainingParents atomic.Int32

	// mergeMu guards pre-start writes to Context.Globals from parents
	// completing concurrently.
	mergeMu sync.Mutex

	result *exec.Result
	final  *pipeline.Context
	start  time.Time
	end    time.Time
}

// State returns the execution's current state.
func (e *Execution) State() State {
	return State(e.state.Load())
}

func (e *Execution) setState(s State) {
	e.state.Store(int32(s))
}

// claim atomically moves the execution from one state to another. It is
// how the scheduler arbitrates between a worker starting an execution
// and a failed parent skipping it.
func (e *Execution) claim(from, to State) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

// Result returns the chain result for a terminal execution, nil before
// then (and for skipped executions).
func (e *Execution) Result() *exec.Result {
	return e.result
}

// FinalContext returns the immutable context snapshot of a completed
// execution. Paused, errored and skipped executions expose no context to
// dependents.
func (e *Execution) FinalContext() *pipeline.Context {
	return e.final
}

// StartTime and EndTime bound the execution's run window.
func (e *Execution) StartTime() time.Time { return e.start }
func (e *Execution) EndTime() time.Time   { return e.end }
