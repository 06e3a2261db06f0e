package roster

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rollcall/internal/model"
)

func testOrg() Organization {
	return Organization{
		ID: "org1",
		Players: []model.Player{
			{ID: "p1", FirstName: "Sean", LastName: "Murphy", TeamIDs: []string{"t2"}},
			{ID: "p2", FirstName: "Sean", LastName: "Kelly", TeamIDs: []string{"t1"}},
			{ID: "p3", FirstName: "Niamh", LastName: "O'Sullivan", TeamIDs: []string{"t1"}},
		},
		Teams: []model.Team{
			{ID: "t1", Name: "U12 Girls A", CoachIDs: []string{"c2"}},
			{ID: "t2", Name: "U12 Girls B", CoachIDs: []string{"c1"}},
		},
		Coaches: []model.Coach{
			{ID: "c1", Name: "Declan Murphy"},
			{ID: "c2", Name: "Aoife Brennan"},
		},
	}
}

func newFinder(src Source) *Finder {
	return NewFinder(src, model.DefaultConfig().Resolution)
}

func TestTeamContext(t *testing.T) {
	src := NewMemorySource(testOrg())

	onTeam, err := TeamContext(context.Background(), src, "org1", "c1")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"p1": true}, onTeam)

	onTeam, err = TeamContext(context.Background(), src, "org1", "nobody")
	require.NoError(t, err)
	assert.Empty(t, onTeam)
}

func TestFindSimilarPlayers_TwoSeans(t *testing.T) {
	f := newFinder(NewMemorySource(testOrg()))

	got, err := f.FindSimilarPlayers(context.Background(), "org1", "nobody", "Sean", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1.0, got[0].Similarity)
	assert.Equal(t, 1.0, got[1].Similarity)
	// equal scores fall back to name order
	assert.Equal(t, "p2", got[0].Player.ID)
	assert.Equal(t, "p1", got[1].Player.ID)
	assert.Equal(t, model.ReasonExactFirstName, got[0].Reason)
}

func TestFindSimilarPlayers_TeamBonus(t *testing.T) {
	org := testOrg()
	org.Players = append(org.Players, model.Player{ID: "p4", FirstName: "Joan", LastName: "Zz", TeamIDs: []string{"t2"}})
	f := newFinder(NewMemorySource(org))
	ctx := context.Background()

	// "jonathans" vs "joan" scores 0.444 on its own
	got, err := f.FindSimilarPlayers(ctx, "org1", "c1", "Jonathans", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p4", got[0].Player.ID)
	assert.True(t, got[0].OnTeam)
	assert.InDelta(t, 0.444, got[0].BaseScore, 0.001)
	assert.InDelta(t, 0.544, got[0].Similarity, 0.001)

	got, err = f.FindSimilarPlayers(ctx, "org1", "c2", "Jonathans", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindSimilarPlayers_BonusCapped(t *testing.T) {
	f := newFinder(NewMemorySource(testOrg()))

	got, err := f.FindSimilarPlayers(context.Background(), "org1", "c1", "Sean Murphy", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "p1", got[0].Player.ID)
	assert.Equal(t, 1.0, got[0].Similarity)
}

func TestFindSimilarPlayers_IrishAlias(t *testing.T) {
	f := newFinder(NewMemorySource(testOrg()))

	got, err := f.FindSimilarPlayers(context.Background(), "org1", "nobody", "Neeve", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p3", got[0].Player.ID)
	assert.Equal(t, 0.9, got[0].Similarity)
	assert.Equal(t, model.ReasonIrishAlias, got[0].Reason)
}

func TestFindSimilarPlayers_Limit(t *testing.T) {
	f := newFinder(NewMemorySource(testOrg()))

	got, err := f.FindSimilarPlayers(context.Background(), "org1", "nobody", "Sean", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFindSimilarPlayers_UnknownOrg(t *testing.T) {
	f := newFinder(NewMemorySource(testOrg()))

	_, err := f.FindSimilarPlayers(context.Background(), "missing", "c1", "Sean", 5)
	assert.ErrorIs(t, err, ErrUnknownOrganization)
}

func TestResolveTeamName(t *testing.T) {
	r := NewNonPlayerResolver(NewMemorySource(testOrg()), 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		coach   string
		raw     string
		wantID  string
		reason  model.MatchReason
		wantNil bool
	}{
		{name: "exact", coach: "c1", raw: "u12 girls a", wantID: "t1", reason: model.ReasonExactTeamName},
		{name: "fuzzy first match prefers own team", coach: "c1", raw: "U12 Girls", wantID: "t2", reason: model.ReasonFuzzyTeamName},
		{name: "fuzzy first match in roster order", coach: "c2", raw: "U12 Girls", wantID: "t1", reason: model.ReasonFuzzyTeamName},
		{name: "below floor", coach: "c1", raw: "the seniors", wantNil: true},
		{name: "empty", coach: "c1", raw: "  ", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveTeamName(ctx, "org1", tt.coach, tt.raw)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.EntityID)
			assert.Equal(t, tt.reason, got.MatchReason)
			assert.Equal(t, model.EntityTeam, got.EntityType)
		})
	}
}

func TestResolveCoachName(t *testing.T) {
	r := NewNonPlayerResolver(NewMemorySource(testOrg()), 0)
	ctx := context.Background()

	tests := []struct {
		raw    string
		wantID string
		reason model.MatchReason
	}{
		{raw: "Declan Murphy", wantID: "c1", reason: model.ReasonExactCoachName},
		{raw: "Coach Murphy", wantID: "c1", reason: model.ReasonExactCoachName},
		{raw: "Mrs. Brennan", wantID: "c2", reason: model.ReasonExactCoachName},
		{raw: "Declan Murphey", wantID: "c1", reason: model.ReasonFuzzyCoachName},
		{raw: "Murphy"},
		{raw: "Someone Else"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := r.ResolveCoachName(ctx, "org1", "c1", tt.raw)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.EntityID)
			assert.Equal(t, tt.reason, got.MatchReason)
		})
	}
}

type countingSource struct {
	Source
	players atomic.Int32
}

func (c *countingSource) ActivePlayers(ctx context.Context, orgID string) ([]model.Player, error) {
	c.players.Add(1)
	return c.Source.ActivePlayers(ctx, orgID)
}

func TestCachedSource(t *testing.T) {
	inner := &countingSource{Source: NewMemorySource(testOrg())}
	src := NewCachedSource(inner, time.Minute)
	ctx := context.Background()

	for range 3 {
		players, err := src.ActivePlayers(ctx, "org1")
		require.NoError(t, err)
		assert.Len(t, players, 3)
	}
	assert.Equal(t, int32(1), inner.players.Load())

	src.Invalidate()
	_, err := src.ActivePlayers(ctx, "org1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.players.Load())

	_, err = src.ActivePlayers(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownOrganization)
}

// ctxSource fails reads whose context is already done
type ctxSource struct {
	Source
}

func (c ctxSource) ActivePlayers(ctx context.Context, orgID string) ([]model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Source.ActivePlayers(ctx, orgID)
}

func TestCachedSource_LoadOutlivesCaller(t *testing.T) {
	inner := &countingSource{Source: ctxSource{Source: NewMemorySource(testOrg())}}
	src := NewCachedSource(inner, time.Minute)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	players, err := src.ActivePlayers(cancelled, "org1")
	require.NoError(t, err)
	assert.Len(t, players, 3)

	players, err = src.ActivePlayers(context.Background(), "org1")
	require.NoError(t, err)
	assert.Len(t, players, 3)
	assert.Equal(t, int32(1), inner.players.Load())
}

func TestNewFinder_ZeroConfigTakesDefaults(t *testing.T) {
	f := NewFinder(NewMemorySource(testOrg()), model.ResolutionConfig{})
	assert.Equal(t, DefaultSimilarityFloor, f.floor)
	assert.Equal(t, DefaultTeamContextBonus, f.bonus)
	assert.Equal(t, DefaultCandidateLimit, f.limit)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	data := `organizations:
  - id: org1
    players:
      - id: p1
        first_name: Niamh
        last_name: O'Sullivan
        team_ids: [t1]
    teams:
      - id: t1
        name: U12 Girls
        coach_ids: [c1]
    coaches:
      - id: c1
        name: Declan Murphy
trust:
  - coach_user_id: c1
    insight_confidence_threshold: 0.85
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Organizations, 1)
	require.Len(t, f.Trust, 1)
	require.NotNil(t, f.Trust[0].InsightConfidenceThreshold)
	assert.Equal(t, 0.85, *f.Trust[0].InsightConfidenceThreshold)

	teams, err := f.Source().CoachTeams(context.Background(), "org1", "c1")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "U12 Girls", teams[0].Name)
}

func TestValidate(t *testing.T) {
	bad := 1.5
	tests := []struct {
		name string
		file File
	}{
		{name: "missing org id", file: File{Organizations: []Organization{{}}}},
		{name: "duplicate org", file: File{Organizations: []Organization{{ID: "a"}, {ID: "a"}}}},
		{name: "nameless player", file: File{Organizations: []Organization{{ID: "a", Players: []model.Player{{ID: "p"}}}}}},
		{name: "team without name", file: File{Organizations: []Organization{{ID: "a", Teams: []model.Team{{ID: "t"}}}}}},
		{name: "threshold out of range", file: File{Trust: []model.TrustLevel{{CoachUserID: "c", InsightConfidenceThreshold: &bad}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.file.Validate())
		})
	}
}
