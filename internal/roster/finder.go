package roster

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ppiankov/rollcall/internal/match"
	"github.com/ppiankov/rollcall/internal/model"
)

const (
	DefaultCandidateLimit   = 5
	DefaultSimilarityFloor  = 0.5
	DefaultTeamContextBonus = 0.1
)

// Finder ranks roster players against a raw search string
type Finder struct {
	source Source
	floor  float64
	bonus  float64
	limit  int
}

// NewFinder creates a finder with the given tuning; zero values take the defaults
func NewFinder(source Source, cfg model.ResolutionConfig) *Finder {
	f := &Finder{
		source: source,
		floor:  cfg.SimilarityFloor,
		bonus:  cfg.TeamContextBonus,
		limit:  cfg.CandidateLimit,
	}
	if f.floor <= 0 {
		f.floor = DefaultSimilarityFloor
	}
	if f.bonus <= 0 {
		f.bonus = DefaultTeamContextBonus
	}
	if f.limit <= 0 {
		f.limit = DefaultCandidateLimit
	}
	return f
}

// FindSimilarPlayers returns up to limit players scoring at or above the
// similarity floor, best first. limit <= 0 uses the finder default.
func (f *Finder) FindSimilarPlayers(ctx context.Context, orgID, coachID, search string, limit int) ([]model.PlayerCandidate, error) {
	if limit <= 0 {
		limit = f.limit
	}

	onTeam, err := TeamContext(ctx, f.source, orgID, coachID)
	if err != nil {
		return nil, fmt.Errorf("team context: %w", err)
	}

	players, err := f.source.ActivePlayers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("active players: %w", err)
	}

	return f.rank(search, players, onTeam, limit), nil
}

func (f *Finder) rank(search string, players []model.Player, onTeam map[string]bool, limit int) []model.PlayerCandidate {
	var out []model.PlayerCandidate
	for _, p := range players {
		res := match.CalculateMatchScore(search, p.FirstName, p.LastName)
		score := res.Score
		if onTeam[p.ID] {
			score = min(score+f.bonus, 1.0)
		}
		if score < f.floor {
			continue
		}
		out = append(out, model.PlayerCandidate{
			Player:     p,
			Similarity: score,
			BaseScore:  res.Score,
			OnTeam:     onTeam[p.ID],
			Reason:     res.Reason,
		})
	}

	// Name and id break ties so results do not depend on roster order
	slices.SortStableFunc(out, func(a, b model.PlayerCandidate) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Player.FullName(), b.Player.FullName()); c != 0 {
			return c
		}
		return cmp.Compare(a.Player.ID, b.Player.ID)
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
