package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/resolve"
)

// ErrAIDisabled is returned when a stage needs the AI service and none is configured
var ErrAIDisabled = errors.New("AI service is not configured")

// AIService is the upstream service behind transcription and claims extraction
type AIService interface {
	Transcribe(ctx context.Context, a model.Artifact) (string, error)
	ExtractClaims(ctx context.Context, a model.Artifact) ([]model.Claim, error)
	Model() string
}

// EntityResolver resolves the claims of an artifact. It reports failures in
// the summary instead of returning them.
type EntityResolver interface {
	ResolveArtifact(ctx context.Context, a model.Artifact) *resolve.Summary
}

// Drafter generates insight drafts for an artifact and returns how many it made
type Drafter interface {
	GenerateDrafts(ctx context.Context, a model.Artifact) (int, error)
}

// ClaimStore persists extracted claims
type ClaimStore interface {
	SaveClaims(ctx context.Context, claims []model.Claim) error
	ClaimsForArtifact(ctx context.Context, artifactID string) ([]model.Claim, error)
	CountClaims(ctx context.Context, artifactID string, status model.ClaimStatus) (int, error)
}

// AlertSink stores alerts, deduplicating against unacknowledged ones
type AlertSink interface {
	RaiseAlert(ctx context.Context, a model.Alert) (model.Alert, bool, error)
}

// Outcome is the result of one Advance call
type Outcome string

const (
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeWaiting   Outcome = "waiting"   // awaiting confirmation or a later retry time
	OutcomePaused    Outcome = "paused"    // circuit breaker open, artifact left in place
	OutcomeRetrying  Outcome = "retrying"  // transient failure, rescheduled
	OutcomeFailed    Outcome = "failed"    // moved to failed
	OutcomeTerminal  Outcome = "terminal"  // already completed, cancelled or failed
	OutcomeCompleted Outcome = "completed" // reached completed on this call
)

// stageError is a failure that retrying cannot fix
type stageError struct {
	code string
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func permanent(code string, err error) error {
	return &stageError{code: code, err: err}
}

// RunnerConfig holds runner behaviour switches
type RunnerConfig struct {
	Retry               RetryPolicy
	Breaker             BreakerConfig
	RequireConfirmation bool
}

// RunnerConfigFromModel builds a runner config from configuration
func RunnerConfigFromModel(cfg model.PipelineConfig) RunnerConfig {
	return RunnerConfig{
		Retry:               RetryPolicyFromModel(cfg),
		Breaker:             BreakerConfigFromModel(cfg),
		RequireConfirmation: cfg.RequireConfirmation,
	}
}

// Runner moves artifacts through the pipeline one stage per call
type Runner struct {
	tracker  *Tracker
	repo     Repository
	claims   ClaimStore
	ai       AIService
	resolver EntityResolver
	drafter  Drafter
	alerts   AlertSink
	breaker  *CircuitBreaker
	observer Observer
	config   RunnerConfig
	logger   *slog.Logger
	now      func() time.Time
}

// RunnerDeps groups the collaborators of a Runner. AI, Drafter, Alerts and
// Observer are optional.
type RunnerDeps struct {
	Repo     Repository
	Claims   ClaimStore
	AI       AIService
	Resolver EntityResolver
	Drafter  Drafter
	Alerts   AlertSink
	Observer Observer
	Logger   *slog.Logger
}

// NewRunner creates a runner with a closed circuit breaker
func NewRunner(deps RunnerDeps, config RunnerConfig) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := deps.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	r := &Runner{
		tracker:  NewTracker(deps.Repo, observer, logger),
		repo:     deps.Repo,
		claims:   deps.Claims,
		ai:       deps.AI,
		resolver: deps.Resolver,
		drafter:  deps.Drafter,
		alerts:   deps.Alerts,
		observer: observer,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
	if r.drafter == nil {
		r.drafter = ResolvedClaimDrafter{Claims: deps.Claims}
	}
	r.breaker = NewCircuitBreaker(config.Breaker, logger, r.onBreakerChange)
	observer.SetBreakerState(StateClosed.String())
	return r
}

// SetClock overrides the runner and tracker time source
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
	r.tracker.SetClock(now)
}

// Tracker returns the runner's tracker
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Breaker returns the breaker guarding AI calls
func (r *Runner) Breaker() *CircuitBreaker {
	return r.breaker
}

// Advance runs the next stage of artifact id
func (r *Runner) Advance(ctx context.Context, id string) (Outcome, error) {
	a, err := r.repo.GetArtifact(ctx, id)
	if err != nil {
		return "", err
	}
	if a.Status.IsTerminal() {
		return OutcomeTerminal, nil
	}
	if a.NextAttemptAt != nil && r.now().Before(*a.NextAttemptAt) {
		return OutcomeWaiting, nil
	}

	switch a.Status {
	case model.StatusReceived:
		return r.transcribe(ctx, &a)
	case model.StatusTranscribing:
		if a.Transcript == "" {
			return r.transcribe(ctx, &a)
		}
		return r.extractClaims(ctx, &a)
	case model.StatusClaimsExtracted:
		return r.resolveEntities(ctx, &a)
	case model.StatusEntitiesResolved:
		return r.generateDrafts(ctx, &a)
	case model.StatusDraftsGenerated:
		return r.finishDrafts(ctx, &a)
	case model.StatusAwaitingConfirmation:
		return OutcomeWaiting, nil
	default:
		return "", fmt.Errorf("artifact %s has unknown status %q", a.ID, a.Status)
	}
}

// Run advances artifact id until it stops making progress
func (r *Runner) Run(ctx context.Context, id string) (Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := r.Advance(ctx, id)
		if err != nil || out != OutcomeAdvanced {
			return out, err
		}
	}
}

func (r *Runner) transcribe(ctx context.Context, a *model.Artifact) (Outcome, error) {
	started := r.now().UTC()
	transcript := a.Transcript
	modelName := ""

	if transcript == "" {
		if r.ai == nil {
			return r.fail(ctx, a, model.EventTranscriptionFailed, permanent("ai_disabled", ErrAIDisabled))
		}
		modelName = r.ai.Model()
		err := r.breaker.Call(ctx, func(ctx context.Context) error {
			text, err := r.ai.Transcribe(ctx, *a)
			transcript = text
			return err
		})
		if paused(err) {
			return OutcomePaused, nil
		}
		r.tracker.Emit(ctx, *a, model.PipelineEvent{
			EventType:      model.EventTranscriptionStarted,
			PipelineStage:  model.StageTranscription,
			StageStartedAt: &started,
			Timestamp:      started,
		})
		if err != nil {
			return r.stageFailed(ctx, a, model.StageTranscription, model.EventTranscriptionFailed, err)
		}
		if transcript == "" {
			return r.stageFailed(ctx, a, model.StageTranscription, model.EventTranscriptionFailed, errors.New("empty transcript"))
		}
	}

	retried := r.clearRetry(a)
	a.Transcript = transcript
	if a.Status == model.StatusReceived {
		if err := r.tracker.Transition(ctx, a, model.StatusTranscribing, model.StageTranscription); err != nil {
			return "", err
		}
	} else if err := r.tracker.Save(ctx, a); err != nil {
		return "", err
	}
	r.retrySucceeded(ctx, *a, model.StageTranscription, retried)
	r.tracker.StageCompleted(ctx, *a, model.EventTranscriptionCompleted, model.StageTranscription, started,
		model.EventMetadata{AIModel: modelName})
	return OutcomeAdvanced, nil
}

func (r *Runner) extractClaims(ctx context.Context, a *model.Artifact) (Outcome, error) {
	started := r.now().UTC()
	modelName := ""

	claims, err := r.claims.ClaimsForArtifact(ctx, a.ID)
	if err != nil {
		return "", fmt.Errorf("load claims: %w", err)
	}
	if len(claims) == 0 {
		if r.ai == nil {
			return r.fail(ctx, a, model.EventClaimsExtractionFailed, permanent("ai_disabled", ErrAIDisabled))
		}
		modelName = r.ai.Model()
		err := r.breaker.Call(ctx, func(ctx context.Context) error {
			extracted, err := r.ai.ExtractClaims(ctx, *a)
			claims = extracted
			return err
		})
		if paused(err) {
			return OutcomePaused, nil
		}
		r.tracker.Emit(ctx, *a, model.PipelineEvent{
			EventType:      model.EventClaimsExtractionStarted,
			PipelineStage:  model.StageClaimsExtraction,
			StageStartedAt: &started,
			Timestamp:      started,
		})
		if err != nil {
			return r.stageFailed(ctx, a, model.StageClaimsExtraction, model.EventClaimsExtractionFailed, err)
		}
		r.prepareClaims(*a, claims)
		if err := r.claims.SaveClaims(ctx, claims); err != nil {
			return r.stageFailed(ctx, a, model.StageClaimsExtraction, model.EventClaimsExtractionFailed,
				fmt.Errorf("save claims: %w", err))
		}
	}

	retried := r.clearRetry(a)
	if err := r.tracker.Transition(ctx, a, model.StatusClaimsExtracted, model.StageClaimsExtraction); err != nil {
		return "", err
	}
	r.retrySucceeded(ctx, *a, model.StageClaimsExtraction, retried)
	r.tracker.StageCompleted(ctx, *a, model.EventClaimsExtracted, model.StageClaimsExtraction, started,
		model.EventMetadata{ClaimCount: model.IntPtr(len(claims)), AIModel: modelName})
	return OutcomeAdvanced, nil
}

func (r *Runner) prepareClaims(a model.Artifact, claims []model.Claim) {
	now := r.now().UTC()
	for i := range claims {
		c := &claims[i]
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.ArtifactID = a.ID
		if c.OrganizationID == "" {
			c.OrganizationID = a.OrganizationID()
		}
		if c.Status == "" {
			c.Status = model.ClaimStatusExtracted
		}
		c.CreatedAt = now
		c.UpdatedAt = now
	}
}

func (r *Runner) resolveEntities(ctx context.Context, a *model.Artifact) (Outcome, error) {
	started := r.now().UTC()
	r.tracker.Emit(ctx, *a, model.PipelineEvent{
		EventType:      model.EventEntityResolutionStarted,
		PipelineStage:  model.StageEntityResolution,
		StageStartedAt: &started,
		Timestamp:      started,
	})

	sum := r.resolver.ResolveArtifact(ctx, *a)
	switch {
	case sum.Skipped:
		return r.fail(ctx, a, model.EventEntityResolutionFailed, permanent("no_organization", sum.Err))
	case sum.Failed():
		return r.stageFailed(ctx, a, model.StageEntityResolution, model.EventEntityResolutionFailed, sum.Err)
	}

	retried := r.clearRetry(a)
	if err := r.tracker.Transition(ctx, a, model.StatusEntitiesResolved, model.StageEntityResolution); err != nil {
		return "", err
	}
	r.retrySucceeded(ctx, *a, model.StageEntityResolution, retried)
	r.tracker.StageCompleted(ctx, *a, model.EventEntityResolutionCompleted, model.StageEntityResolution, started,
		model.EventMetadata{
			ClaimCount:          model.IntPtr(sum.Claims),
			EntityCount:         model.IntPtr(sum.Mentions),
			DisambiguationCount: model.IntPtr(sum.NeedsDisambiguation),
		})
	if sum.NeedsDisambiguation > 0 {
		r.tracker.Emit(ctx, *a, model.PipelineEvent{
			EventType:     model.EventEntityNeedsDisambiguation,
			PipelineStage: model.StageEntityResolution,
			Metadata:      model.EventMetadata{DisambiguationCount: model.IntPtr(sum.NeedsDisambiguation)},
		})
	}
	return OutcomeAdvanced, nil
}

func (r *Runner) generateDrafts(ctx context.Context, a *model.Artifact) (Outcome, error) {
	started := r.now().UTC()
	r.tracker.Emit(ctx, *a, model.PipelineEvent{
		EventType:      model.EventDraftGenerationStarted,
		PipelineStage:  model.StageDraftGeneration,
		StageStartedAt: &started,
		Timestamp:      started,
	})

	n, err := r.drafter.GenerateDrafts(ctx, *a)
	if err != nil {
		return r.stageFailed(ctx, a, model.StageDraftGeneration, model.EventDraftGenerationFailed, err)
	}

	retried := r.clearRetry(a)
	if err := r.tracker.Transition(ctx, a, model.StatusDraftsGenerated, model.StageDraftGeneration); err != nil {
		return "", err
	}
	r.retrySucceeded(ctx, *a, model.StageDraftGeneration, retried)
	r.tracker.StageCompleted(ctx, *a, model.EventDraftsGenerated, model.StageDraftGeneration, started,
		model.EventMetadata{ClaimCount: model.IntPtr(n)})
	return OutcomeAdvanced, nil
}

func (r *Runner) finishDrafts(ctx context.Context, a *model.Artifact) (Outcome, error) {
	if r.config.RequireConfirmation {
		if err := r.tracker.Transition(ctx, a, model.StatusAwaitingConfirmation, model.StageConfirmation); err != nil {
			return "", err
		}
		return OutcomeWaiting, nil
	}
	if err := r.tracker.Transition(ctx, a, model.StatusCompleted, model.StageConfirmation); err != nil {
		return "", err
	}
	return OutcomeCompleted, nil
}

// Confirm records a human decision on the drafts of an artifact awaiting
// confirmation and completes it
func (r *Runner) Confirm(ctx context.Context, id string, accepted bool) (model.Artifact, error) {
	a, err := r.repo.GetArtifact(ctx, id)
	if err != nil {
		return model.Artifact{}, err
	}
	if a.Status != model.StatusAwaitingConfirmation {
		return model.Artifact{}, fmt.Errorf("artifact %s is %s, not awaiting confirmation: %w", id, a.Status, ErrInvalidTransition)
	}

	ev := model.EventDraftConfirmed
	if !accepted {
		ev = model.EventDraftRejected
	}
	r.tracker.Emit(ctx, a, model.PipelineEvent{EventType: ev, PipelineStage: model.StageConfirmation})

	if err := r.tracker.Transition(ctx, &a, model.StatusCompleted, model.StageConfirmation); err != nil {
		return model.Artifact{}, err
	}
	return a, nil
}

// stageFailed records a transient stage failure and either reschedules the
// artifact with backoff or fails it when retries are exhausted. Bad input
// fails the artifact straight away.
func (r *Runner) stageFailed(ctx context.Context, a *model.Artifact, stage model.PipelineStage, failedEvent model.EventType, cause error) (Outcome, error) {
	var se *stageError
	if errors.As(cause, &se) {
		return r.fail(ctx, a, failedEvent, cause)
	}
	if errors.Is(cause, model.ErrBadInput) {
		return r.fail(ctx, a, failedEvent, permanent("bad_input", cause))
	}

	a.RetryAttempt++
	a.LastError = cause.Error()
	r.tracker.Emit(ctx, *a, model.PipelineEvent{
		EventType:     failedEvent,
		PipelineStage: stage,
		ErrorMessage:  cause.Error(),
		ErrorCode:     "stage_error",
		Metadata:      model.EventMetadata{RetryAttempt: model.IntPtr(a.RetryAttempt)},
	})
	r.observer.RecordRetry(stage, false)

	if r.config.Retry.Exhausted(a.RetryAttempt) {
		r.tracker.Emit(ctx, *a, model.PipelineEvent{
			EventType:     model.EventRetryFailed,
			PipelineStage: stage,
			ErrorMessage:  cause.Error(),
			Metadata:      model.EventMetadata{RetryAttempt: model.IntPtr(a.RetryAttempt)},
		})
		if err := r.tracker.Fail(ctx, a, fmt.Errorf("%s failed after %d attempts: %w", stage, a.RetryAttempt, cause)); err != nil {
			return "", err
		}
		return OutcomeFailed, nil
	}

	next := r.now().UTC().Add(r.config.Retry.Backoff(a.RetryAttempt))
	a.NextAttemptAt = &next
	if err := r.tracker.Save(ctx, a); err != nil {
		return "", err
	}
	r.logger.Warn("Stage failed, retry scheduled",
		"artifact_id", a.ID,
		"stage", stage,
		"attempt", a.RetryAttempt,
		"next_attempt_at", next,
		"error", cause)
	return OutcomeRetrying, nil
}

// fail moves a straight to failed with the error code of a permanent failure
func (r *Runner) fail(ctx context.Context, a *model.Artifact, failedEvent model.EventType, cause error) (Outcome, error) {
	code := "stage_error"
	var se *stageError
	if errors.As(cause, &se) {
		code = se.code
	}
	r.tracker.Emit(ctx, *a, model.PipelineEvent{
		EventType:    failedEvent,
		ErrorMessage: cause.Error(),
		ErrorCode:    code,
	})
	if err := r.tracker.Fail(ctx, a, cause); err != nil {
		return "", err
	}
	return OutcomeFailed, nil
}

// clearRetry resets the retry bookkeeping on a and returns the attempt it was on
func (r *Runner) clearRetry(a *model.Artifact) int {
	attempt := a.RetryAttempt
	a.RetryAttempt = 0
	a.NextAttemptAt = nil
	a.LastError = ""
	return attempt
}

func (r *Runner) retrySucceeded(ctx context.Context, a model.Artifact, stage model.PipelineStage, attempt int) {
	if attempt == 0 {
		return
	}
	r.tracker.Emit(ctx, a, model.PipelineEvent{
		EventType:     model.EventRetrySucceeded,
		PipelineStage: stage,
		Metadata:      model.EventMetadata{RetryAttempt: model.IntPtr(attempt)},
	})
	r.logger.Info("Retry succeeded", "artifact_id", a.ID, "stage", stage, "attempt", attempt)
}

func (r *Runner) onBreakerChange(tr Transition) {
	ctx := context.Background()
	r.observer.SetBreakerState(tr.To.String())

	switch tr.To {
	case StateOpen:
		msg := fmt.Sprintf("AI service circuit breaker opened after %d consecutive failures", tr.Failures)
		r.tracker.EmitSystem(ctx, model.PipelineEvent{
			EventType:    model.EventCircuitBreakerOpened,
			ErrorMessage: msg,
		})
		r.raise(ctx, model.Alert{
			AlertType: model.AlertCircuitBreakerOpen,
			Severity:  model.AlertSeverityCritical,
			Message:   msg,
			Metadata:  map[string]interface{}{"consecutive_failures": tr.Failures},
		})
	case StateClosed:
		r.tracker.EmitSystem(ctx, model.PipelineEvent{EventType: model.EventCircuitBreakerClosed})
	}
}

func (r *Runner) raise(ctx context.Context, a model.Alert) {
	if r.alerts == nil {
		return
	}
	stored, created, err := r.alerts.RaiseAlert(ctx, a)
	if err != nil {
		r.logger.Warn("Failed to raise alert", "alert_type", a.AlertType, "error", err)
		return
	}
	if created {
		r.observer.RecordAlert(stored)
		r.logger.Warn("Alert raised", "alert_type", stored.AlertType, "severity", stored.Severity, "message", stored.Message)
	}
}

func paused(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyProbes)
}

// ResolvedClaimDrafter counts resolved claims as drafts. Downstream drafting
// picks up resolved claims from the store.
type ResolvedClaimDrafter struct {
	Claims ClaimStore
}

// GenerateDrafts returns the number of resolved claims for a
func (d ResolvedClaimDrafter) GenerateDrafts(ctx context.Context, a model.Artifact) (int, error) {
	n, err := d.Claims.CountClaims(ctx, a.ID, model.ClaimStatusResolved)
	if err != nil {
		return 0, fmt.Errorf("count resolved claims: %w", err)
	}
	return n, nil
}
