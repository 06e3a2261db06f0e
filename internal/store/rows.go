package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/ppiankov/rollcall/internal/model"
)

type claimRow struct {
	ID                 string `gorm:"primaryKey"`
	ArtifactID         string `gorm:"not null;index"`
	OrganizationID     string `gorm:"index"`
	Text               string `gorm:"type:text"`
	Topic              string
	Status             model.ClaimStatus                        `gorm:"not null;index"`
	EntityMentions     datatypes.JSONSlice[model.EntityMention] `gorm:"type:json"`
	ResolvedPlayerID   string
	ResolvedPlayerName string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (claimRow) TableName() string { return "claims" }

func (r claimRow) toModel() model.Claim {
	return model.Claim{
		ID:                 r.ID,
		ArtifactID:         r.ArtifactID,
		OrganizationID:     r.OrganizationID,
		Text:               r.Text,
		Topic:              r.Topic,
		Status:             r.Status,
		EntityMentions:     []model.EntityMention(r.EntityMentions),
		ResolvedPlayerID:   r.ResolvedPlayerID,
		ResolvedPlayerName: r.ResolvedPlayerName,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func claimFromModel(c model.Claim) claimRow {
	return claimRow{
		ID:                 c.ID,
		ArtifactID:         c.ArtifactID,
		OrganizationID:     c.OrganizationID,
		Text:               c.Text,
		Topic:              c.Topic,
		Status:             c.Status,
		EntityMentions:     datatypes.NewJSONSlice(c.EntityMentions),
		ResolvedPlayerID:   c.ResolvedPlayerID,
		ResolvedPlayerName: c.ResolvedPlayerName,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// resolutionRow is unique per (claim, mention index) so rewrites are no-ops
type resolutionRow struct {
	ID                 uint                                 `gorm:"primaryKey"`
	ClaimID            string                               `gorm:"not null;index:idx_resolution_mention,unique,priority:1"`
	MentionIndex       int                                  `gorm:"not null;index:idx_resolution_mention,unique,priority:2"`
	ArtifactID         string                               `gorm:"not null;index"`
	OrganizationID     string                               `gorm:"index"`
	MentionType        model.MentionType                    `gorm:"not null"`
	RawText            string                               `gorm:"not null"`
	Candidates         datatypes.JSONSlice[model.Candidate] `gorm:"type:json"`
	Status             model.ResolutionStatus               `gorm:"not null;index"`
	ResolvedEntityID   string
	ResolvedEntityName string
	ResolvedAt         *time.Time
	CreatedAt          time.Time
}

func (resolutionRow) TableName() string { return "resolution_records" }

func (r resolutionRow) toModel() model.ResolutionRecord {
	return model.ResolutionRecord{
		ClaimID:            r.ClaimID,
		ArtifactID:         r.ArtifactID,
		MentionIndex:       r.MentionIndex,
		MentionType:        r.MentionType,
		RawText:            r.RawText,
		Candidates:         []model.Candidate(r.Candidates),
		Status:             r.Status,
		ResolvedEntityID:   r.ResolvedEntityID,
		ResolvedEntityName: r.ResolvedEntityName,
		ResolvedAt:         r.ResolvedAt,
		OrganizationID:     r.OrganizationID,
		CreatedAt:          r.CreatedAt,
	}
}

func resolutionFromModel(r model.ResolutionRecord) resolutionRow {
	return resolutionRow{
		ClaimID:            r.ClaimID,
		MentionIndex:       r.MentionIndex,
		ArtifactID:         r.ArtifactID,
		OrganizationID:     r.OrganizationID,
		MentionType:        r.MentionType,
		RawText:            r.RawText,
		Candidates:         datatypes.NewJSONSlice(r.Candidates),
		Status:             r.Status,
		ResolvedEntityID:   r.ResolvedEntityID,
		ResolvedEntityName: r.ResolvedEntityName,
		ResolvedAt:         r.ResolvedAt,
		CreatedAt:          r.CreatedAt,
	}
}

type aliasRow struct {
	ID                 uint   `gorm:"primaryKey"`
	CoachUserID        string `gorm:"not null;index:idx_alias_key,unique,priority:1"`
	OrganizationID     string `gorm:"not null;index:idx_alias_key,unique,priority:2"`
	RawText            string `gorm:"not null;index:idx_alias_key,unique,priority:3"`
	ResolvedEntityID   string `gorm:"not null"`
	ResolvedEntityName string
	UseCount           int `gorm:"not null;default:1"`
	CreatedAt          time.Time
	LastUsedAt         time.Time
}

func (aliasRow) TableName() string { return "coach_aliases" }

func (r aliasRow) toModel() model.CoachAlias {
	return model.CoachAlias{
		CoachUserID:        r.CoachUserID,
		OrganizationID:     r.OrganizationID,
		RawText:            r.RawText,
		ResolvedEntityID:   r.ResolvedEntityID,
		ResolvedEntityName: r.ResolvedEntityName,
		UseCount:           r.UseCount,
		CreatedAt:          r.CreatedAt,
		LastUsedAt:         r.LastUsedAt,
	}
}

type artifactRow struct {
	ID                   string                                `gorm:"primaryKey"`
	SourceChannel        string                                `gorm:"index"`
	SenderUserID         string                                `gorm:"index"`
	OrgContextCandidates datatypes.JSONSlice[model.OrgContext] `gorm:"type:json"`
	Status               model.ArtifactStatus                  `gorm:"not null;index"`
	PipelineStage        model.PipelineStage                   `gorm:"not null"`
	RetryAttempt         int                                   `gorm:"not null;default:0"`
	NextAttemptAt        *time.Time                            `gorm:"index"`
	LastError            string                                `gorm:"type:text"`
	MediaRef             string
	Transcript           string    `gorm:"type:text"`
	CreatedAt            time.Time `gorm:"index"`
	UpdatedAt            time.Time
}

func (artifactRow) TableName() string { return "artifacts" }

func (r artifactRow) toModel() model.Artifact {
	return model.Artifact{
		ID:                   r.ID,
		SourceChannel:        r.SourceChannel,
		SenderUserID:         r.SenderUserID,
		OrgContextCandidates: []model.OrgContext(r.OrgContextCandidates),
		Status:               r.Status,
		PipelineStage:        r.PipelineStage,
		RetryAttempt:         r.RetryAttempt,
		NextAttemptAt:        r.NextAttemptAt,
		LastError:            r.LastError,
		MediaRef:             r.MediaRef,
		Transcript:           r.Transcript,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
}

func artifactFromModel(a model.Artifact) artifactRow {
	return artifactRow{
		ID:                   a.ID,
		SourceChannel:        a.SourceChannel,
		SenderUserID:         a.SenderUserID,
		OrgContextCandidates: datatypes.NewJSONSlice(a.OrgContextCandidates),
		Status:               a.Status,
		PipelineStage:        a.PipelineStage,
		RetryAttempt:         a.RetryAttempt,
		NextAttemptAt:        a.NextAttemptAt,
		LastError:            a.LastError,
		MediaRef:             a.MediaRef,
		Transcript:           a.Transcript,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
	}
}

type eventRow struct {
	ID               string          `gorm:"primaryKey"`
	EventType        model.EventType `gorm:"not null;index"`
	ArtifactID       string          `gorm:"index"`
	OrganizationID   string          `gorm:"index"`
	CoachUserID      string
	PipelineStage    model.PipelineStage `gorm:"index"`
	StageStartedAt   *time.Time
	StageCompletedAt *time.Time
	DurationMs       *int64
	PreviousStatus   model.ArtifactStatus
	NewStatus        model.ArtifactStatus
	ErrorMessage     string `gorm:"type:text"`
	ErrorCode        string
	Metadata         datatypes.JSONType[model.EventMetadata] `gorm:"type:json"`
	Timestamp        time.Time                               `gorm:"not null;index"`
	TimeWindow       string                                  `gorm:"not null;index"`
}

func (eventRow) TableName() string { return "pipeline_events" }

func (r eventRow) toModel() model.PipelineEvent {
	return model.PipelineEvent{
		ID:               r.ID,
		EventType:        r.EventType,
		ArtifactID:       r.ArtifactID,
		OrganizationID:   r.OrganizationID,
		CoachUserID:      r.CoachUserID,
		PipelineStage:    r.PipelineStage,
		StageStartedAt:   r.StageStartedAt,
		StageCompletedAt: r.StageCompletedAt,
		DurationMs:       r.DurationMs,
		PreviousStatus:   r.PreviousStatus,
		NewStatus:        r.NewStatus,
		ErrorMessage:     r.ErrorMessage,
		ErrorCode:        r.ErrorCode,
		Metadata:         r.Metadata.Data(),
		Timestamp:        r.Timestamp,
		TimeWindow:       r.TimeWindow,
	}
}

func eventFromModel(e model.PipelineEvent) eventRow {
	return eventRow{
		ID:               e.ID,
		EventType:        e.EventType,
		ArtifactID:       e.ArtifactID,
		OrganizationID:   e.OrganizationID,
		CoachUserID:      e.CoachUserID,
		PipelineStage:    e.PipelineStage,
		StageStartedAt:   e.StageStartedAt,
		StageCompletedAt: e.StageCompletedAt,
		DurationMs:       e.DurationMs,
		PreviousStatus:   e.PreviousStatus,
		NewStatus:        e.NewStatus,
		ErrorMessage:     e.ErrorMessage,
		ErrorCode:        e.ErrorCode,
		Metadata:         datatypes.NewJSONType(e.Metadata),
		Timestamp:        e.Timestamp,
		TimeWindow:       e.TimeWindow,
	}
}

type counterRow struct {
	Name       string `gorm:"primaryKey"`
	Value      int64  `gorm:"not null"`
	TimeWindow string `gorm:"not null"`
	UpdatedAt  time.Time
}

func (counterRow) TableName() string { return "pipeline_counters" }

type alertRow struct {
	ID           uint            `gorm:"primaryKey"`
	AlertType    model.AlertType `gorm:"not null;index"`
	Severity     model.AlertSeverity
	Message      string            `gorm:"type:text"`
	Metadata     datatypes.JSONMap `gorm:"type:json"`
	Acknowledged bool              `gorm:"not null;default:false;index"`
	AckedAt      *time.Time
	CreatedAt    time.Time `gorm:"index"`
}

func (alertRow) TableName() string { return "pipeline_alerts" }

func (r alertRow) toModel() model.Alert {
	return model.Alert{
		ID:           r.ID,
		AlertType:    r.AlertType,
		Severity:     r.Severity,
		Message:      r.Message,
		Metadata:     map[string]interface{}(r.Metadata),
		Acknowledged: r.Acknowledged,
		AckedAt:      r.AckedAt,
		CreatedAt:    r.CreatedAt,
	}
}

type trustRow struct {
	CoachUserID                string `gorm:"primaryKey"`
	InsightConfidenceThreshold *float64
	UpdatedAt                  time.Time
}

func (trustRow) TableName() string { return "coach_trust_levels" }
