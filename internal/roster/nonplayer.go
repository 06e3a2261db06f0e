package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/rollcall/internal/match"
	"github.com/ppiankov/rollcall/internal/model"
)

// DefaultNonPlayerFloor is the acceptance floor for fuzzy team and coach matches
const DefaultNonPlayerFloor = 0.8

var coachTitles = map[string]bool{
	"coach": true,
	"mr":    true,
	"mrs":   true,
	"ms":    true,
	"miss":  true,
}

// NonPlayerResolver matches team and coach mentions against the coach's visible roster.
// The result is one candidate or none; there is no disambiguation set.
type NonPlayerResolver struct {
	source Source
	floor  float64
}

// NewNonPlayerResolver creates a resolver; floor <= 0 uses DefaultNonPlayerFloor
func NewNonPlayerResolver(source Source, floor float64) *NonPlayerResolver {
	if floor <= 0 {
		floor = DefaultNonPlayerFloor
	}
	return &NonPlayerResolver{source: source, floor: floor}
}

// ResolveTeamName finds the team a mention refers to, or nil
func (r *NonPlayerResolver) ResolveTeamName(ctx context.Context, orgID, coachID, rawText string) (*model.Candidate, error) {
	teams, err := r.source.Teams(ctx, orgID, coachID)
	if err != nil {
		return nil, fmt.Errorf("teams: %w", err)
	}

	search := match.Normalize(rawText)
	if search == "" {
		return nil, nil
	}

	for _, t := range teams {
		if match.Normalize(t.Name) == search {
			return teamCandidate(t, 1.0, model.ReasonExactTeamName), nil
		}
	}
	// First team over the floor wins, in roster order
	for _, t := range teams {
		if s := match.Similarity(search, t.Name); s >= r.floor {
			return teamCandidate(t, s, model.ReasonFuzzyTeamName), nil
		}
	}
	return nil, nil
}

// ResolveCoachName finds the coach a mention refers to, or nil.
// A leading title ("Coach Murphy", "Mrs Kelly") may match the coach's surname exactly.
func (r *NonPlayerResolver) ResolveCoachName(ctx context.Context, orgID, coachID, rawText string) (*model.Candidate, error) {
	coaches, err := r.source.Coaches(ctx, orgID, coachID)
	if err != nil {
		return nil, fmt.Errorf("coaches: %w", err)
	}

	search := match.Normalize(rawText)
	if search == "" {
		return nil, nil
	}
	bare, titled := stripTitle(search)

	for _, c := range coaches {
		name := match.Normalize(c.Name)
		if name == search || name == bare {
			return coachCandidate(c, 1.0, model.ReasonExactCoachName), nil
		}
		if titled && surname(name) == bare {
			return coachCandidate(c, 1.0, model.ReasonExactCoachName), nil
		}
	}
	for _, c := range coaches {
		if s := match.Similarity(bare, c.Name); s >= r.floor {
			return coachCandidate(c, s, model.ReasonFuzzyCoachName), nil
		}
	}
	return nil, nil
}

func stripTitle(normalized string) (string, bool) {
	first, rest, ok := strings.Cut(normalized, " ")
	if !ok || !coachTitles[strings.TrimSuffix(first, ".")] {
		return normalized, false
	}
	return rest, true
}

func surname(normalized string) string {
	tokens := strings.Fields(normalized)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}

func teamCandidate(t model.Team, score float64, reason model.MatchReason) *model.Candidate {
	return &model.Candidate{
		EntityType:  model.EntityTeam,
		EntityID:    t.ID,
		EntityName:  t.Name,
		Score:       score,
		MatchReason: reason,
	}
}

func coachCandidate(c model.Coach, score float64, reason model.MatchReason) *model.Candidate {
	return &model.Candidate{
		EntityType:  model.EntityCoach,
		EntityID:    c.ID,
		EntityName:  c.Name,
		Score:       score,
		MatchReason: reason,
	}
}
