// Package roster provides roster lookups and candidate search over players, teams and coaches.
package roster

import (
	"context"
	"errors"

	"github.com/ppiankov/rollcall/internal/model"
)

// ErrUnknownOrganization is returned when a source has no roster for an organization
var ErrUnknownOrganization = errors.New("unknown organization")

// Source is the roster/context collaborator the resolver reads from
type Source interface {
	// CoachTeams returns the teams a coach is assigned to
	CoachTeams(ctx context.Context, orgID, coachID string) ([]model.Team, error)

	// ActivePlayers returns all active player enrollments of an organization
	ActivePlayers(ctx context.Context, orgID string) ([]model.Player, error)

	// Teams returns the teams visible to a coach, the coach's own teams first
	Teams(ctx context.Context, orgID, coachID string) ([]model.Team, error)

	// Coaches returns the coaches visible in an organization
	Coaches(ctx context.Context, orgID, coachID string) ([]model.Coach, error)
}

// TeamContext resolves the set of player ids on any of the coach's teams
func TeamContext(ctx context.Context, src Source, orgID, coachID string) (map[string]bool, error) {
	teams, err := src.CoachTeams(ctx, orgID, coachID)
	if err != nil {
		return nil, err
	}
	if len(teams) == 0 {
		return map[string]bool{}, nil
	}

	teamIDs := make(map[string]bool, len(teams))
	for _, t := range teams {
		teamIDs[t.ID] = true
	}

	players, err := src.ActivePlayers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	onTeam := make(map[string]bool)
	for _, p := range players {
		for _, tid := range p.TeamIDs {
			if teamIDs[tid] {
				onTeam[p.ID] = true
				break
			}
		}
	}
	return onTeam, nil
}
