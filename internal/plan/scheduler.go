package plan

import (
	"context"
	"sync"
	"time"

	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/exec"
	"github.com/vk/metalus/internal/pipeline"
	"github.com/vk/metalus/internal/steps"
	"github.com/vk/metalus/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// Scheduler dispatches a plan's executions across a bounded worker pool,
// releasing children as their parents complete.
type Scheduler struct {
	executor *exec.Executor
	workers  int
	// strict keeps running siblings alive after a failure; when false the
	// run context is canceled and not-yet-started work is skipped.
	strict bool
}

// NewScheduler builds a scheduler over the given registry. workers
// bounds plan-level concurrency.
func NewScheduler(registry *steps.Registry, workers int, strict bool) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{executor: exec.New(registry), workers: workers, strict: strict}
}

// Run executes the whole plan and blocks until every execution reaches a
// terminal state. The returned summary reports the plan outcome and
// per-execution terminal states.
func (s *Scheduler) Run(ctx context.Context, p *Plan) *Summary {
	logger := ctxlog.FromContext(ctx)
	executions := p.Executions()

	readyChan := make(chan *Execution, len(executions))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Debug("Scheduler starting, finding root executions.")
	for _, ex := range executions {
		if ex.remainingParents.Load() == 0 {
			logger.Debug("Found root execution.", "executionID", ex.ID)
			readyChan <- ex
		}
	}

	var wg sync.WaitGroup
	wg.Add(len(executions))

	logger.Debug("Starting scheduler worker pool.", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(runCtx, p, readyChan, &wg, cancel)
	}

	logger.Info("Waiting for all executions to complete...")
	wg.Wait()
	close(readyChan)
	logger.Info("All executions reached a terminal state.")

	return summarize(p)
}

// worker is the processing loop for a single concurrent worker.
func (s *Scheduler) worker(ctx context.Context, p *Plan, readyChan chan *Execution, wg *sync.WaitGroup, cancel context.CancelFunc) {
	logger := ctxlog.FromContext(ctx)

	for ex := range readyChan {
		if ctx.Err() != nil {
			s.skip(ctx, p, ex, wg)
			continue
		}

		// A failed parent may have skipped this execution between enqueue
		// and pickup; only the winner of the claim runs it.
		if !ex.claim(StatePending, StateRunning) {
			continue
		}
		logger.Debug("Worker picked up execution.", "executionID", ex.ID)
		ex.start = time.Now()

		res := s.executor.RunChain(ctx, ex.Context, ex.Pipelines)
		ex.result = res
		ex.end = time.Now()

		switch res.Outcome {
		case exec.OutcomeComplete:
			ex.setState(StateComplete)
			// The final context is an immutable snapshot; dependents never
			// observe partial parent state.
			ex.final = ex.Context.Snapshot()
			s.release(ctx, p, ex, readyChan)
		case exec.OutcomePaused:
			ex.setState(StatePaused)
			logger.Warn("Execution paused.", "executionID", ex.ID, "stepID", res.StepID, "message", res.Message)
			s.skipDescendants(ctx, p, ex, wg)
		case exec.OutcomeErrored:
			ex.setState(StateErrored)
			logger.Error("Execution errored.", "executionID", ex.ID, "stepID", res.StepID, "error", res.Err)
			s.skipDescendants(ctx, p, ex, wg)
			if !s.strict {
				cancel()
			}
		}
		wg.Done()
	}
}

// release merges the completed parent into each child's globals and
// enqueues children whose parents have all completed.
func (s *Scheduler) release(ctx context.Context, p *Plan, parent *Execution, readyChan chan *Execution) {
	logger := ctxlog.FromContext(ctx)
	children, err := p.Graph.Dependents(parent.ID)
	if err != nil {
		return
	}
	entry := inheritanceEntry(parent.final)
	for _, childID := range children {
		child, ok := p.Execution(childID)
		if !ok {
			continue
		}
		child.mergeMu.Lock()
		child.Context.Globals[parent.ID] = entry
		child.mergeMu.Unlock()

		if child.remainingParents.Add(-1) == 0 {
			logger.Debug("Releasing execution.", "executionID", child.ID)
			readyChan <- child
		}
	}
}

// inheritanceEntry projects a parent's final context into the value
// stored under the parent's id in each child's globals.
func inheritanceEntry(final *pipeline.Context) cty.Value {
	attrs := make(map[string]cty.Value, len(final.Globals))
	for k, v := range final.Globals {
		if value.IsAbsent(v) {
			continue
		}
		attrs[k] = v
	}
	globals := cty.EmptyObjectVal
	if len(attrs) > 0 {
		globals = cty.ObjectVal(attrs)
	}
	params := final.ParametersValue()
	if value.IsAbsent(params) {
		params = cty.EmptyObjectVal
	}
	return cty.ObjectVal(map[string]cty.Value{
		"globals":            globals,
		"pipelineParameters": params,
	})
}

// skip marks one not-yet-started execution skipped, then cascades.
func (s *Scheduler) skip(ctx context.Context, p *Plan, ex *Execution, wg *sync.WaitGroup) {
	if ex.claim(StatePending, StateSkipped) {
		ctxlog.FromContext(ctx).Warn("Skipping execution.", "executionID", ex.ID)
		wg.Done()
		s.skipDescendants(ctx, p, ex, wg)
	}
}

// skipDescendants recursively marks all downstream executions skipped.
// Skipped executions never dispatch and produce no context.
func (s *Scheduler) skipDescendants(ctx context.Context, p *Plan, ex *Execution, wg *sync.WaitGroup) {
	children, err := p.Graph.Dependents(ex.ID)
	if err != nil {
		return
	}
	for _, childID := range children {
		child, ok := p.Execution(childID)
		if !ok {
			continue
		}
		if child.claim(StatePending, StateSkipped) {
			ctxlog.FromContext(ctx).Warn("Skipping execution due to upstream stop.",
				"executionID", child.ID, "upstream", ex.ID)
			wg.Done()
			s.skipDescendants(ctx, p, child, wg)
		}
	}
}
