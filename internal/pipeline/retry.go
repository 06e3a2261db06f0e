package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

// RetryPolicy decides when a transiently failed artifact is attempted again
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration
}

// RetryPolicyFromModel builds a retry policy from configuration
func RetryPolicyFromModel(cfg model.PipelineConfig) RetryPolicy {
	p := RetryPolicy{MaxRetries: cfg.MaxRetries, Base: cfg.BaseBackoff, Max: cfg.MaxBackoff}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Base <= 0 {
		p.Base = 30 * time.Second
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	return p
}

// Backoff returns the delay before the given retry attempt (1-based), doubling
// from Base and capped at Max
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	return min(d, p.Max)
}

// Exhausted reports whether attempt exceeds the retry budget
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt > p.MaxRetries
}

// retryStatus is the status an artifact is put back into to rerun a stage
var retryStatus = map[model.PipelineStage]model.ArtifactStatus{
	model.StageTranscription:    model.StatusReceived,
	model.StageClaimsExtraction: model.StatusTranscribing,
	model.StageEntityResolution: model.StatusClaimsExtracted,
	model.StageDraftGeneration:  model.StatusEntitiesResolved,
	model.StageConfirmation:     model.StatusDraftsGenerated,
}

// Retry puts an artifact back in front of stage so the runner picks it up again.
// Completed and cancelled artifacts cannot be retried. An empty stage retries the
// artifact's current stage.
func (t *Tracker) Retry(ctx context.Context, id string, stage model.PipelineStage) (model.Artifact, error) {
	a, err := t.repo.GetArtifact(ctx, id)
	if err != nil {
		return model.Artifact{}, err
	}
	if a.Status == model.StatusCompleted || a.Status == model.StatusCancelled {
		return model.Artifact{}, fmt.Errorf("retry %s: artifact is %s: %w", id, a.Status, ErrArtifactTerminal)
	}
	if stage == "" {
		stage = a.PipelineStage
		if stage == model.StageIngestion {
			stage = model.StageTranscription
		}
	}
	status, ok := retryStatus[stage]
	if !ok {
		return model.Artifact{}, fmt.Errorf("retry %s: stage %q cannot be retried", id, stage)
	}

	previous, err := t.repo.CountEvents(ctx, id, model.EventRetryInitiated)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("count retries: %w", err)
	}
	attempt := previous + 1

	t.Emit(ctx, a, model.PipelineEvent{
		EventType:      model.EventRetryInitiated,
		PipelineStage:  stage,
		PreviousStatus: a.Status,
		NewStatus:      status,
		Metadata:       model.EventMetadata{RetryAttempt: model.IntPtr(attempt)},
	})
	t.observer.RecordRetry(stage, true)

	prev := a.Status
	next := a
	next.Status = status
	next.PipelineStage = stage
	next.RetryAttempt = 0
	next.NextAttemptAt = nil
	next.LastError = ""
	if err := t.repo.UpdateArtifact(ctx, next, prev); err != nil {
		return model.Artifact{}, fmt.Errorf("reset artifact %s: %w", id, err)
	}

	t.Emit(ctx, next, model.PipelineEvent{
		EventType:      model.EventArtifactStatusChanged,
		PreviousStatus: prev,
		NewStatus:      status,
	})
	t.logger.Info("Artifact retry initiated",
		"artifact_id", id,
		"stage", stage,
		"attempt", attempt,
		"from", prev)
	return next, nil
}
