package app

import (
	"context"
	"fmt"

	"github.com/vk/metalus/internal/application"
	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/plan"
)

// Run materializes the plan and drives it to its terminal state.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	built, err := application.Build(ctx, a.app, a.registry)
	if err != nil {
		return fmt.Errorf("failed to materialize execution plan: %w", err)
	}
	a.logger.Debug("Execution plan built.", "executions", built.Graph.Len())

	a.logger.Info("Starting plan execution.", "runID", built.RunID, "workers", cfg.WorkerCount)
	scheduler := plan.NewScheduler(a.registry, cfg.WorkerCount, cfg.Strict)
	summary := scheduler.Run(ctx, built)

	for _, es := range summary.Executions {
		a.logger.Info("Execution finished.",
			"executionID", es.ID, "state", es.State, "lastStepID", es.LastStepID, "message", es.Message)
	}

	if !summary.Complete() {
		return fmt.Errorf("plan %s finished %s", summary.RunID, summary.Outcome)
	}
	a.logger.Info("Plan complete.", "runID", summary.RunID)
	return nil
}
