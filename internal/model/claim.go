package model

import "time"

// Claim is one factual statement extracted from a voice note
type Claim struct {
	ID             string          `json:"id"`
	ArtifactID     string          `json:"artifact_id"`
	OrganizationID string          `json:"organization_id,omitempty"`
	Text           string          `json:"text"`
	Topic          string          `json:"topic,omitempty"` // skill_rating, injury, behavior, ...
	Status         ClaimStatus     `json:"status"`
	EntityMentions []EntityMention `json:"entity_mentions"` // Ordered by position in the source text

	// Set by extraction when the player was already identified upstream
	ResolvedPlayerID   string `json:"resolved_player_id,omitempty"`
	ResolvedPlayerName string `json:"resolved_player_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsResolution reports whether the resolver should look at this claim
func (c Claim) NeedsResolution() bool {
	return c.Status == ClaimStatusExtracted && c.ResolvedPlayerID == ""
}

// ClaimStatus is the lifecycle state of a claim
type ClaimStatus string

const (
	ClaimStatusExtracted           ClaimStatus = "extracted"
	ClaimStatusResolving           ClaimStatus = "resolving"
	ClaimStatusResolved            ClaimStatus = "resolved"
	ClaimStatusNeedsDisambiguation ClaimStatus = "needs_disambiguation"
	ClaimStatusMerged              ClaimStatus = "merged"
	ClaimStatusDiscarded           ClaimStatus = "discarded"
	ClaimStatusFailed              ClaimStatus = "failed"
)

// EntityMention is a raw text span believed to reference a player, team, coach or group.
// It is always owned by a claim and addressed by (claim id, mention index).
type EntityMention struct {
	MentionType MentionType `json:"mention_type"`
	RawText     string      `json:"raw_text"`
	Position    int         `json:"position"`
}

// MentionType classifies what kind of entity a mention refers to
type MentionType string

const (
	MentionPlayerName     MentionType = "player_name"
	MentionTeamName       MentionType = "team_name"
	MentionGroupReference MentionType = "group_reference"
	MentionCoachName      MentionType = "coach_name"
)

// Valid reports whether t is a known mention type
func (t MentionType) Valid() bool {
	switch t {
	case MentionPlayerName, MentionTeamName, MentionGroupReference, MentionCoachName:
		return true
	}
	return false
}

// MentionRef addresses a single mention inside a claim
type MentionRef struct {
	ClaimID      string `json:"claim_id"`
	MentionIndex int    `json:"mention_index"`
}
