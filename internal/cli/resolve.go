package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rollcall/internal/model"
)

var (
	resolveJSON bool
	lookupOrg   string
	lookupCoach string
	lookupType  string
	lookupLimit int
	lookupJSON  bool
)

// resolveCmd re-runs entity resolution outside the pipeline
var resolveCmd = &cobra.Command{
	Use:   "resolve <artifact-id>",
	Short: "Resolve the entity mentions of an artifact's claims",
	Long: `Resolve matches every unresolved mention in the artifact's extracted claims
against the organization roster and the coach's alias memory.

Player mentions auto-resolve only when exactly one candidate clears the
coach's trust threshold; otherwise they are queued for disambiguation.
Existing resolution records are kept.

Example:
  rollcall resolve 7c0e...
  rollcall resolve lookup "Jake" --org org-1 --coach coach-1`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var resolveLookupCmd = &cobra.Command{
	Use:   "lookup <text>",
	Short: "Rank roster candidates for a spoken name",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.AddCommand(resolveLookupCmd)

	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print JSON")

	resolveLookupCmd.Flags().StringVar(&lookupOrg, "org", "", "organization ID")
	resolveLookupCmd.Flags().StringVar(&lookupCoach, "coach", "", "coach user ID (enables team context)")
	resolveLookupCmd.Flags().StringVar(&lookupType, "type", string(model.MentionPlayerName), "mention type: player_name, team_name, coach_name")
	resolveLookupCmd.Flags().IntVar(&lookupLimit, "limit", 0, "max candidates (default: resolution.candidate_limit)")
	resolveLookupCmd.Flags().BoolVar(&lookupJSON, "json", false, "print JSON")
	_ = resolveLookupCmd.MarkFlagRequired("org")
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	art, err := a.store.GetArtifact(ctx, args[0])
	if err != nil {
		return err
	}
	sum, err := a.resolver.Resolve(ctx, art)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", art.ID, err)
	}
	if resolveJSON {
		return printJSON(sum)
	}

	fmt.Fprintf(os.Stderr, "✓ %d claims, %d mentions, %d distinct names\n", sum.Claims, sum.Mentions, sum.DistinctNames)
	fmt.Fprintf(os.Stderr, "  auto-resolved: %d  needs disambiguation: %d  unresolved: %d  alias hits: %d\n\n",
		sum.AutoResolved, sum.NeedsDisambiguation, sum.Unresolved, sum.AliasHits)

	tw := newTable()
	_, _ = fmt.Fprintln(tw, "CLAIM\tMENTION\tTYPE\tSTATUS\tRESOLVED\tCANDIDATES")
	for _, r := range sum.Records {
		_, _ = fmt.Fprintf(tw, "%s\t%q\t%s\t%s\t%s\t%s\n",
			r.ClaimID, r.RawText, r.MentionType, r.Status, orDash(r.ResolvedEntityName), formatCandidates(r.Candidates))
	}
	return tw.Flush()
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	text := args[0]
	var cands []model.Candidate
	switch model.MentionType(lookupType) {
	case model.MentionPlayerName:
		limit := lookupLimit
		if limit <= 0 {
			limit = a.cfg.Resolution.CandidateLimit
		}
		players, err := a.finder.FindSimilarPlayers(ctx, lookupOrg, lookupCoach, text, limit)
		if err != nil {
			return err
		}
		for _, p := range players {
			cands = append(cands, model.Candidate{
				EntityType:  model.EntityPlayer,
				EntityID:    p.Player.ID,
				EntityName:  p.Player.FullName(),
				Score:       p.Similarity,
				MatchReason: p.Reason,
			})
		}
	case model.MentionTeamName, model.MentionCoachName:
		resolveName := a.names.ResolveTeamName
		if model.MentionType(lookupType) == model.MentionCoachName {
			resolveName = a.names.ResolveCoachName
		}
		c, err := resolveName(ctx, lookupOrg, lookupCoach, text)
		if err != nil {
			return err
		}
		if c != nil {
			cands = append(cands, *c)
		}
	default:
		return errors.New("--type must be player_name, team_name or coach_name")
	}

	if lookupJSON {
		return printJSON(cands)
	}
	if len(cands) == 0 {
		fmt.Printf("No candidates for %q\n", text)
		return nil
	}
	tw := newTable()
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSCORE\tREASON")
	for _, c := range cands {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\n", c.EntityID, c.EntityName, c.Score, c.MatchReason)
	}
	return tw.Flush()
}

func formatCandidates(cands []model.Candidate) string {
	if len(cands) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(cands))
	for _, c := range cands {
		parts = append(parts, fmt.Sprintf("%s(%.2f)", c.EntityName, c.Score))
	}
	return strings.Join(parts, ", ")
}
