package model

import (
	"errors"
	"time"
)

// ErrBadInput marks failures caused by the artifact itself, such as missing
// or oversized media. Retrying cannot fix them and they say nothing about the
// health of the AI service.
var ErrBadInput = errors.New("unusable artifact input")

// Artifact is one ingested voice note moving through the pipeline
type Artifact struct {
	ID                   string         `json:"id"`
	SourceChannel        string         `json:"source_channel,omitempty"` // whatsapp_audio, app_recorded, ...
	SenderUserID         string         `json:"sender_user_id"`
	OrgContextCandidates []OrgContext   `json:"org_context_candidates"`
	Status               ArtifactStatus `json:"status"`
	PipelineStage        PipelineStage  `json:"pipeline_stage"`
	RetryAttempt         int            `json:"retry_attempt"`
	NextAttemptAt        *time.Time     `json:"next_attempt_at,omitempty"`
	LastError            string         `json:"last_error,omitempty"`
	MediaRef             string         `json:"media_ref,omitempty"`  // audio file / storage reference
	Transcript           string         `json:"transcript,omitempty"` // set after transcription
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// OrgContext is a candidate organization the note may belong to
type OrgContext struct {
	OrganizationID string  `json:"organization_id"`
	Confidence     float64 `json:"confidence"`
}

// OrganizationID returns the primary organization context, or "" when none exists
func (a Artifact) OrganizationID() string {
	if len(a.OrgContextCandidates) == 0 {
		return ""
	}
	return a.OrgContextCandidates[0].OrganizationID
}

// ArtifactStatus is the pipeline state of an artifact
type ArtifactStatus string

const (
	StatusReceived             ArtifactStatus = "received"
	StatusTranscribing         ArtifactStatus = "transcribing"
	StatusClaimsExtracted      ArtifactStatus = "claims_extracted"
	StatusEntitiesResolved     ArtifactStatus = "entities_resolved"
	StatusDraftsGenerated      ArtifactStatus = "drafts_generated"
	StatusAwaitingConfirmation ArtifactStatus = "awaiting_confirmation"
	StatusCompleted            ArtifactStatus = "completed"
	StatusCancelled            ArtifactStatus = "cancelled"
	StatusFailed               ArtifactStatus = "failed"
)

// IsTerminal reports whether no further stage can run
func (s ArtifactStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ActiveStatuses lists every non-terminal status
func ActiveStatuses() []ArtifactStatus {
	return []ArtifactStatus{
		StatusReceived,
		StatusTranscribing,
		StatusClaimsExtracted,
		StatusEntitiesResolved,
		StatusDraftsGenerated,
		StatusAwaitingConfirmation,
	}
}

// PipelineStage names a processing stage
type PipelineStage string

const (
	StageIngestion        PipelineStage = "ingestion"
	StageTranscription    PipelineStage = "transcription"
	StageClaimsExtraction PipelineStage = "claims_extraction"
	StageEntityResolution PipelineStage = "entity_resolution"
	StageDraftGeneration  PipelineStage = "draft_generation"
	StageConfirmation     PipelineStage = "confirmation"
)

// Stages returns the stages in pipeline order
func Stages() []PipelineStage {
	return []PipelineStage{
		StageIngestion,
		StageTranscription,
		StageClaimsExtraction,
		StageEntityResolution,
		StageDraftGeneration,
		StageConfirmation,
	}
}

// Index returns the position of the stage in pipeline order, -1 if unknown
func (s PipelineStage) Index() int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}

// EventType classifies a pipeline event
type EventType string

const (
	EventArtifactReceived          EventType = "artifact_received"
	EventArtifactStatusChanged     EventType = "artifact_status_changed"
	EventArtifactCompleted         EventType = "artifact_completed"
	EventArtifactFailed            EventType = "artifact_failed"
	EventTranscriptionStarted      EventType = "transcription_started"
	EventTranscriptionCompleted    EventType = "transcription_completed"
	EventTranscriptionFailed       EventType = "transcription_failed"
	EventClaimsExtractionStarted   EventType = "claims_extraction_started"
	EventClaimsExtracted           EventType = "claims_extracted"
	EventClaimsExtractionFailed    EventType = "claims_extraction_failed"
	EventEntityResolutionStarted   EventType = "entity_resolution_started"
	EventEntityResolutionCompleted EventType = "entity_resolution_completed"
	EventEntityResolutionFailed    EventType = "entity_resolution_failed"
	EventEntityNeedsDisambiguation EventType = "entity_needs_disambiguation"
	EventDraftGenerationStarted    EventType = "draft_generation_started"
	EventDraftsGenerated           EventType = "drafts_generated"
	EventDraftGenerationFailed     EventType = "draft_generation_failed"
	EventDraftConfirmed            EventType = "draft_confirmed"
	EventDraftRejected             EventType = "draft_rejected"
	EventCircuitBreakerOpened      EventType = "circuit_breaker_opened"
	EventCircuitBreakerClosed      EventType = "circuit_breaker_closed"
	EventRetryInitiated            EventType = "retry_initiated"
	EventRetrySucceeded            EventType = "retry_succeeded"
	EventRetryFailed               EventType = "retry_failed"
)

// PipelineEvent is one entry in the pipeline ledger
type PipelineEvent struct {
	ID               string         `json:"id"`
	EventType        EventType      `json:"event_type"`
	ArtifactID       string         `json:"artifact_id,omitempty"`
	OrganizationID   string         `json:"organization_id,omitempty"`
	CoachUserID      string         `json:"coach_user_id,omitempty"`
	PipelineStage    PipelineStage  `json:"pipeline_stage,omitempty"`
	StageStartedAt   *time.Time     `json:"stage_started_at,omitempty"`
	StageCompletedAt *time.Time     `json:"stage_completed_at,omitempty"`
	DurationMs       *int64         `json:"duration_ms,omitempty"`
	PreviousStatus   ArtifactStatus `json:"previous_status,omitempty"`
	NewStatus        ArtifactStatus `json:"new_status,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ErrorCode        string         `json:"error_code,omitempty"`
	Metadata         EventMetadata  `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp"`
	TimeWindow       string         `json:"time_window"` // YYYY-MM-DD-HH
}

// EventMetadata carries optional per-event figures
type EventMetadata struct {
	ClaimCount          *int     `json:"claim_count,omitempty"`
	EntityCount         *int     `json:"entity_count,omitempty"`
	DisambiguationCount *int     `json:"disambiguation_count,omitempty"`
	ConfidenceScore     *float64 `json:"confidence_score,omitempty"`
	AIModel             string   `json:"ai_model,omitempty"`
	RetryAttempt        *int     `json:"retry_attempt,omitempty"`
	SourceChannel       string   `json:"source_channel,omitempty"`
}

// TimeWindow returns the hourly bucket key for t, e.g. "2026-02-15-14"
func TimeWindow(t time.Time) string {
	return t.Format("2006-01-02-15")
}

// IntPtr is a small helper for optional metadata fields
func IntPtr(v int) *int {
	return &v
}
