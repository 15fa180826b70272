package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vk/metalus/internal/ctxlog"
	"github.com/vk/metalus/internal/value"
)

// Listener receives pipeline lifecycle callbacks. Callbacks for distinct
// executions may arrive concurrently; implementations holding their own
// state must be internally synchronized.
type Listener interface {
	PipelineStarted(ctx context.Context, pctx *Context, p *Pipeline)
	PipelineFinished(ctx context.Context, pctx *Context, p *Pipeline)
	PipelinePaused(ctx context.Context, pctx *Context, p *Pipeline, message string)
	PipelineErrored(ctx context.Context, pctx *Context, p *Pipeline, err error)
	StepStarted(ctx context.Context, pctx *Context, p *Pipeline, s *Step)
	StepFinished(ctx context.Context, pctx *Context, p *Pipeline, s *Step, r *value.Response)
}

// Audit is one timed lifecycle record accumulated on the context.
type Audit struct {
	ID         string        `json:"id"`
	PipelineID string        `json:"pipelineId"`
	StepID     string        `json:"stepId,omitempty"`
	State      string        `json:"state"`
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Message    string        `json:"message,omitempty"`
}

// AuditListener is the default listener: it records timing audits into
// the owning context and logs transitions. It keeps no state of its own,
// so one instance can serve many executions.
type AuditListener struct{}

func (l *AuditListener) PipelineStarted(ctx context.Context, pctx *Context, p *Pipeline) {
	ctxlog.FromContext(ctx).Info("Pipeline started.", "pipelineID", p.ID)
	pctx.Audits = append(pctx.Audits, Audit{
		ID:         uuid.NewString(),
		PipelineID: p.ID,
		State:      "started",
		Start:      time.Now(),
	})
}

func (l *AuditListener) PipelineFinished(ctx context.Context, pctx *Context, p *Pipeline) {
	l.closePipelineAudit(pctx, p.ID, "complete", "")
	ctxlog.FromContext(ctx).Info("Pipeline finished.", "pipelineID", p.ID)
}

func (l *AuditListener) PipelinePaused(ctx context.Context, pctx *Context, p *Pipeline, message string) {
	l.closePipelineAudit(pctx, p.ID, "paused", message)
	ctxlog.FromContext(ctx).Warn("Pipeline paused.", "pipelineID", p.ID, "message", message)
}

func (l *AuditListener) PipelineErrored(ctx context.Context, pctx *Context, p *Pipeline, err error) {
	l.closePipelineAudit(pctx, p.ID, "errored", err.Error())
	ctxlog.FromContext(ctx).Error("Pipeline errored.", "pipelineID", p.ID, "error", err)
}

func (l *AuditListener) StepStarted(ctx context.Context, pctx *Context, p *Pipeline, s *Step) {
	ctxlog.FromContext(ctx).Debug("Step started.", "pipelineID", p.ID, "stepID", s.ID)
	pctx.Audits = append(pctx.Audits, Audit{
		ID:         uuid.NewString(),
		PipelineID: p.ID,
		StepID:     s.ID,
		State:      "started",
		Start:      time.Now(),
	})
}

func (l *AuditListener) StepFinished(ctx context.Context, pctx *Context, p *Pipeline, s *Step, _ *value.Response) {
	for i := len(pctx.Audits) - 1; i >= 0; i-- {
		a := &pctx.Audits[i]
		if a.PipelineID == p.ID && a.StepID == s.ID && a.End.IsZero() {
			a.End = time.Now()
			a.Duration = a.End.Sub(a.Start)
			a.State = "complete"
			break
		}
	}
	ctxlog.FromContext(ctx).Debug("Step finished.", "pipelineID", p.ID, "stepID", s.ID)
}

// closePipelineAudit seals the most recent open audit for the pipeline.
func (l *AuditListener) closePipelineAudit(pctx *Context, pipelineID, state, message string) {
	for i := len(pctx.Audits) - 1; i >= 0; i-- {
		a := &pctx.Audits[i]
		if a.PipelineID == pipelineID && a.StepID == "" && a.End.IsZero() {
			a.End = time.Now()
			a.Duration = a.End.Sub(a.Start)
			a.State = state
			a.Message = message
			return
		}
	}
}
