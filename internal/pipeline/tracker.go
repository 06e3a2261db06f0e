// Package pipeline tracks voice-note artifacts through their processing stages,
// guarding AI calls with a circuit breaker and recording every transition as an event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/rollcall/internal/model"
)

var (
	// ErrInvalidTransition is returned for a status change the state machine does not allow
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrArtifactTerminal is returned when acting on a completed, cancelled or failed artifact
	ErrArtifactTerminal = errors.New("artifact is in a terminal status")
)

// Repository is the artifact and event persistence the pipeline needs
type Repository interface {
	CreateArtifact(ctx context.Context, a model.Artifact) error
	GetArtifact(ctx context.Context, id string) (model.Artifact, error)
	UpdateArtifact(ctx context.Context, a model.Artifact, expect model.ArtifactStatus) error
	AppendEvent(ctx context.Context, e model.PipelineEvent) (model.PipelineEvent, error)
	CountEvents(ctx context.Context, artifactID string, eventType model.EventType) (int, error)
}

// Observer receives pipeline signals for metrics
type Observer interface {
	RecordEvent(ev model.PipelineEvent)
	RecordRetry(stage model.PipelineStage, manual bool)
	SetBreakerState(state string)
	RecordAlert(a model.Alert)
	SetQueueDepth(n int)
	SetDisambiguationBacklog(n int)
}

type noopObserver struct{}

func (noopObserver) RecordEvent(model.PipelineEvent)       {}
func (noopObserver) RecordRetry(model.PipelineStage, bool) {}
func (noopObserver) SetBreakerState(string)                {}
func (noopObserver) RecordAlert(model.Alert)               {}
func (noopObserver) SetQueueDepth(int)                     {}
func (noopObserver) SetDisambiguationBacklog(int)          {}

// forward lists the linear successors of each status; failed and cancelled
// are reachable from every non-terminal status
var forward = map[model.ArtifactStatus][]model.ArtifactStatus{
	model.StatusReceived:             {model.StatusTranscribing},
	model.StatusTranscribing:         {model.StatusClaimsExtracted},
	model.StatusClaimsExtracted:      {model.StatusEntitiesResolved},
	model.StatusEntitiesResolved:     {model.StatusDraftsGenerated},
	model.StatusDraftsGenerated:      {model.StatusAwaitingConfirmation, model.StatusCompleted},
	model.StatusAwaitingConfirmation: {model.StatusCompleted},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to model.ArtifactStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == model.StatusFailed || to == model.StatusCancelled {
		return true
	}
	return slices.Contains(forward[from], to)
}

// Tracker owns artifact status changes and the event ledger
type Tracker struct {
	repo     Repository
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewTracker creates a tracker. observer and logger may be nil.
func NewTracker(repo Repository, observer Observer, logger *slog.Logger) *Tracker {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{repo: repo, observer: observer, logger: logger, now: time.Now}
}

// SetClock overrides the tracker time source
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Ingest stores a new artifact in received status and records its arrival
func (t *Tracker) Ingest(ctx context.Context, a model.Artifact) (model.Artifact, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = model.StatusReceived
	a.PipelineStage = model.StageIngestion
	a.CreatedAt = t.now().UTC()

	if err := t.repo.CreateArtifact(ctx, a); err != nil {
		return model.Artifact{}, fmt.Errorf("ingest artifact: %w", err)
	}

	t.Emit(ctx, a, model.PipelineEvent{
		EventType: model.EventArtifactReceived,
		NewStatus: model.StatusReceived,
		Metadata:  model.EventMetadata{SourceChannel: a.SourceChannel},
	})
	t.logger.Info("Artifact received", "artifact_id", a.ID, "source_channel", a.SourceChannel)
	return a, nil
}

// Transition moves a to a new status, advancing its stage if stage is later
// than the current one. a is updated in place only when the write succeeds.
func (t *Tracker) Transition(ctx context.Context, a *model.Artifact, to model.ArtifactStatus, stage model.PipelineStage) error {
	if a.Status.IsTerminal() {
		return fmt.Errorf("artifact %s is %s: %w", a.ID, a.Status, ErrArtifactTerminal)
	}
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%s -> %s: %w", a.Status, to, ErrInvalidTransition)
	}

	next := *a
	next.Status = to
	if stage.Index() > next.PipelineStage.Index() {
		next.PipelineStage = stage
	}
	if to.IsTerminal() {
		next.NextAttemptAt = nil
	}

	if err := t.repo.UpdateArtifact(ctx, next, a.Status); err != nil {
		return err
	}
	prev := a.Status
	*a = next

	t.logger.Debug("Artifact status changed",
		"artifact_id", a.ID,
		"from", prev,
		"to", to,
		"stage", a.PipelineStage)

	t.Emit(ctx, *a, model.PipelineEvent{
		EventType:      model.EventArtifactStatusChanged,
		PreviousStatus: prev,
		NewStatus:      to,
	})
	switch to {
	case model.StatusCompleted:
		t.Emit(ctx, *a, model.PipelineEvent{EventType: model.EventArtifactCompleted, PreviousStatus: prev, NewStatus: to})
	case model.StatusFailed:
		t.Emit(ctx, *a, model.PipelineEvent{
			EventType:      model.EventArtifactFailed,
			PreviousStatus: prev,
			NewStatus:      to,
			ErrorMessage:   a.LastError,
			Metadata:       model.EventMetadata{RetryAttempt: model.IntPtr(a.RetryAttempt)},
		})
	}
	return nil
}

// Save persists changes to a that keep its status
func (t *Tracker) Save(ctx context.Context, a *model.Artifact) error {
	return t.repo.UpdateArtifact(ctx, *a, a.Status)
}

// Fail moves a to failed, recording the cause
func (t *Tracker) Fail(ctx context.Context, a *model.Artifact, cause error) error {
	a.LastError = cause.Error()
	if err := t.Transition(ctx, a, model.StatusFailed, a.PipelineStage); err != nil {
		return err
	}
	t.logger.Warn("Artifact failed", "artifact_id", a.ID, "stage", a.PipelineStage, "error", cause)
	return nil
}

// Cancel stops an artifact at its current stage. Work already persisted for it is kept.
func (t *Tracker) Cancel(ctx context.Context, id, reason string) (model.Artifact, error) {
	a, err := t.repo.GetArtifact(ctx, id)
	if err != nil {
		return model.Artifact{}, err
	}
	if reason != "" {
		a.LastError = "cancelled: " + reason
	}
	if err := t.Transition(ctx, &a, model.StatusCancelled, a.PipelineStage); err != nil {
		return model.Artifact{}, err
	}
	t.logger.Info("Artifact cancelled", "artifact_id", id, "reason", reason)
	return a, nil
}

// Emit records an event for a, filling in artifact context and the current
// stage when ev leaves them empty. Write failures are logged, not returned.
func (t *Tracker) Emit(ctx context.Context, a model.Artifact, ev model.PipelineEvent) model.PipelineEvent {
	if ev.ArtifactID == "" {
		ev.ArtifactID = a.ID
	}
	if ev.OrganizationID == "" {
		ev.OrganizationID = a.OrganizationID()
	}
	if ev.CoachUserID == "" {
		ev.CoachUserID = a.SenderUserID
	}
	if ev.PipelineStage == "" {
		ev.PipelineStage = a.PipelineStage
	}
	return t.record(ctx, ev)
}

// EmitSystem records an event that belongs to no artifact
func (t *Tracker) EmitSystem(ctx context.Context, ev model.PipelineEvent) model.PipelineEvent {
	return t.record(ctx, ev)
}

// StageCompleted records a stage event with its start, completion and duration
func (t *Tracker) StageCompleted(ctx context.Context, a model.Artifact, eventType model.EventType, stage model.PipelineStage, started time.Time, meta model.EventMetadata) model.PipelineEvent {
	done := t.now().UTC()
	dur := done.Sub(started).Milliseconds()
	return t.Emit(ctx, a, model.PipelineEvent{
		EventType:        eventType,
		PipelineStage:    stage,
		StageStartedAt:   &started,
		StageCompletedAt: &done,
		DurationMs:       &dur,
		Metadata:         meta,
	})
}

func (t *Tracker) record(ctx context.Context, ev model.PipelineEvent) model.PipelineEvent {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now().UTC()
	}
	stored, err := t.repo.AppendEvent(ctx, ev)
	if err != nil {
		t.logger.Warn("Failed to record pipeline event",
			"event_type", ev.EventType,
			"artifact_id", ev.ArtifactID,
			"error", err)
		return ev
	}
	t.observer.RecordEvent(stored)
	return stored
}
