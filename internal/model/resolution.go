package model

import "time"

// EntityType is the kind of database entity a candidate points at
type EntityType string

const (
	EntityPlayer EntityType = "player"
	EntityTeam   EntityType = "team"
	EntityCoach  EntityType = "coach"
)

// ResolutionStatus is the outcome of resolving one mention
type ResolutionStatus string

const (
	ResolutionAutoResolved        ResolutionStatus = "auto_resolved"
	ResolutionNeedsDisambiguation ResolutionStatus = "needs_disambiguation"
	ResolutionUserResolved        ResolutionStatus = "user_resolved"
	ResolutionUnresolved          ResolutionStatus = "unresolved"
)

// MatchReason explains why a candidate matched. Audit only, never used for decisions.
type MatchReason string

const (
	ReasonCoachAlias      MatchReason = "coach_alias"
	ReasonExactFirstName  MatchReason = "exact_first_name"
	ReasonLastNameMatch   MatchReason = "last_name_match"
	ReasonReversedName    MatchReason = "reversed_name"
	ReasonIrishAlias      MatchReason = "irish_alias"
	ReasonIrishAliasFuzzy MatchReason = "irish_alias+fuzzy"
	ReasonFuzzyFullName   MatchReason = "fuzzy_full_name"
	ReasonFuzzyFirstName  MatchReason = "fuzzy_first_name"
	ReasonPartialMatch    MatchReason = "partial_match"
	ReasonExactTeamName   MatchReason = "exact_team_name"
	ReasonFuzzyTeamName   MatchReason = "fuzzy_team_name"
	ReasonExactCoachName  MatchReason = "exact_coach_name"
	ReasonFuzzyCoachName  MatchReason = "fuzzy_coach_name"
)

// Candidate is a ranked scoring artifact; it is never stored on its own
type Candidate struct {
	EntityType  EntityType  `json:"entity_type"`
	EntityID    string      `json:"entity_id"`
	EntityName  string      `json:"entity_name"`
	Score       float64     `json:"score"` // [0,1]
	MatchReason MatchReason `json:"match_reason"`
}

// ResolutionRecord is the outcome of resolving one mention. Created once, never mutated.
type ResolutionRecord struct {
	ClaimID            string           `json:"claim_id"`
	ArtifactID         string           `json:"artifact_id"`
	MentionIndex       int              `json:"mention_index"`
	MentionType        MentionType      `json:"mention_type"`
	RawText            string           `json:"raw_text"`
	Candidates         []Candidate      `json:"candidates"`
	Status             ResolutionStatus `json:"status"`
	ResolvedEntityID   string           `json:"resolved_entity_id,omitempty"`
	ResolvedEntityName string           `json:"resolved_entity_name,omitempty"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty"`
	OrganizationID     string           `json:"organization_id"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Ref returns the (claim, mention index) address of the record
func (r ResolutionRecord) Ref() MentionRef {
	return MentionRef{ClaimID: r.ClaimID, MentionIndex: r.MentionIndex}
}

// IsAliasHit reports whether the record came straight from coach alias memory
func (r ResolutionRecord) IsAliasHit() bool {
	return r.Status == ResolutionAutoResolved &&
		len(r.Candidates) == 1 &&
		r.Candidates[0].MatchReason == ReasonCoachAlias
}

// CoachAlias maps a coach's previously confirmed raw text to an entity
type CoachAlias struct {
	CoachUserID        string    `json:"coach_user_id"`
	OrganizationID     string    `json:"organization_id"`
	RawText            string    `json:"raw_text"` // normalized lookup key
	ResolvedEntityID   string    `json:"resolved_entity_id"`
	ResolvedEntityName string    `json:"resolved_entity_name"`
	UseCount           int       `json:"use_count"`
	CreatedAt          time.Time `json:"created_at"`
	LastUsedAt         time.Time `json:"last_used_at"`
}

// TrustLevel is the slice of coach trust state the resolver consumes
type TrustLevel struct {
	CoachUserID                string   `json:"coach_user_id" yaml:"coach_user_id"`
	InsightConfidenceThreshold *float64 `json:"insight_confidence_threshold,omitempty" yaml:"insight_confidence_threshold,omitempty"`
}
