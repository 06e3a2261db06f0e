// Demo program that resolves a coach's spoken names against a small roster.
// It shows strategy scoring, disambiguation of shared first names, and alias
// memory turning a nickname into a confident match on the next note.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/rollcall/internal/match"
	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/resolve"
	"github.com/ppiankov/rollcall/internal/roster"
	"github.com/ppiankov/rollcall/internal/store"
)

const (
	orgID   = "org-demo"
	coachID = "coach-murphy"
)

var demoRoster = roster.Organization{
	ID:   orgID,
	Name: "Demo GAA Club",
	Players: []model.Player{
		{ID: "p1", FirstName: "Sean", LastName: "Murphy", TeamIDs: []string{"u12"}},
		{ID: "p2", FirstName: "Sean", LastName: "Kelly", TeamIDs: []string{"u14"}},
		{ID: "p3", FirstName: "Emma", LastName: "Walsh", TeamIDs: []string{"u12"}},
		{ID: "p4", FirstName: "Siobhán", LastName: "O'Brien", TeamIDs: []string{"u12"}},
		{ID: "p5", FirstName: "Jacob", LastName: "Byrne", TeamIDs: []string{"u14"}},
	},
	Teams: []model.Team{
		{ID: "u12", Name: "U12 Girls", CoachIDs: []string{coachID}},
		{ID: "u14", Name: "U14 Boys", CoachIDs: []string{"coach-kelly"}},
	},
	Coaches: []model.Coach{
		{ID: coachID, Name: "Coach Murphy"},
		{ID: "coach-kelly", Name: "Coach Kelly"},
	},
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	fmt.Println("=== Entity Resolution Demo ===")
	fmt.Println()

	fmt.Println("Strategy scores")
	fmt.Println(strings.Repeat("-", 60))
	for _, q := range []struct{ search, first, last string }{
		{"Emma", "Emma", "Walsh"},
		{"Walsh Emma", "Emma", "Walsh"},
		{"Shevaun", "Siobhán", "O'Brien"},
		{"Jake", "Jacob", "Byrne"},
	} {
		res := match.CalculateMatchScore(q.search, q.first, q.last)
		fmt.Printf("  %-12s vs %-18s %.3f  %s (%s)\n", q.search, q.first+" "+q.last, res.Score, res.Reason, res.Strategy)
	}
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "demo failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Demo Complete ===")
}

func run(ctx context.Context) error {
	st, err := store.Open(model.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cfg := model.DefaultConfig().Resolution
	src := roster.NewMemorySource(demoRoster)
	finder := roster.NewFinder(src, cfg)
	names := roster.NewNonPlayerResolver(src, cfg.NonPlayerFloor)
	r := resolve.New(st, st, finder, names, resolve.NewStaticTrust(), cfg)

	first := []model.Claim{
		claim("Sean's tackling was strong today", mention(model.MentionPlayerName, "Sean", 0)),
		claim("Emma and the U12 Girls worked on passing",
			mention(model.MentionPlayerName, "Emma", 0),
			mention(model.MentionTeamName, "the U12 Girls", 13)),
		claim("Jakey needs to work on his first touch", mention(model.MentionPlayerName, "Jakey", 0)),
	}
	if err := resolveNote(ctx, st, r, "note-1", first); err != nil {
		return err
	}

	// a human picked Jacob Byrne for "Jakey"
	if _, err := st.Store(ctx, coachID, orgID, "Jakey", "p5", "Jacob Byrne"); err != nil {
		return err
	}
	fmt.Println("Learned alias: \"Jakey\" -> Jacob Byrne")
	fmt.Println()

	second := []model.Claim{
		claim("Jakey scored twice", mention(model.MentionPlayerName, "Jakey", 0)),
	}
	return resolveNote(ctx, st, r, "note-2", second)
}

func resolveNote(ctx context.Context, st *store.Store, r *resolve.Resolver, id string, claims []model.Claim) error {
	art := model.Artifact{
		ID:                   id,
		SenderUserID:         coachID,
		OrgContextCandidates: []model.OrgContext{{OrganizationID: orgID, Confidence: 1}},
		Status:               model.StatusClaimsExtracted,
		PipelineStage:        model.StageClaimsExtraction,
		CreatedAt:            time.Now().UTC(),
	}
	if err := st.CreateArtifact(ctx, art); err != nil {
		return err
	}
	for i := range claims {
		claims[i].ID = fmt.Sprintf("%s-c%d", id, i+1)
		claims[i].ArtifactID = id
		claims[i].OrganizationID = orgID
	}
	if err := st.SaveClaims(ctx, claims); err != nil {
		return err
	}

	sum, err := r.Resolve(ctx, art)
	if err != nil {
		return err
	}

	fmt.Printf("Note %s\n", id)
	fmt.Println(strings.Repeat("-", 60))
	for _, rec := range sum.Records {
		fmt.Printf("  %-16q %-22s", rec.RawText, rec.Status)
		if rec.ResolvedEntityName != "" {
			fmt.Printf(" -> %s", rec.ResolvedEntityName)
		}
		fmt.Println()
		if rec.Status == model.ResolutionNeedsDisambiguation {
			for _, c := range rec.Candidates {
				fmt.Printf("      %-18s %.3f  %s\n", c.EntityName, c.Score, c.MatchReason)
			}
		}
	}
	fmt.Printf("  auto=%d disambiguate=%d unresolved=%d alias_hits=%d\n\n",
		sum.AutoResolved, sum.NeedsDisambiguation, sum.Unresolved, sum.AliasHits)
	return nil
}

func claim(text string, mentions ...model.EntityMention) model.Claim {
	return model.Claim{Text: text, Status: model.ClaimStatusExtracted, EntityMentions: mentions}
}

func mention(t model.MentionType, raw string, pos int) model.EntityMention {
	return model.EntityMention{MentionType: t, RawText: raw, Position: pos}
}
