// Package resolve turns raw entity mentions in extracted claims into resolved
// entity references with a confidence-backed status.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rollcall/internal/alias"
	"github.com/ppiankov/rollcall/internal/model"
)

// ErrNoOrganization means the artifact carries no organization context and cannot be resolved
var ErrNoOrganization = errors.New("artifact has no organization context")

// Repository is the claim and resolution persistence the resolver needs
type Repository interface {
	ClaimsForArtifact(ctx context.Context, artifactID string) ([]model.Claim, error)

	// SaveResolutions writes all records and claim status updates in one batch.
	// Existing records for the same (claim, mention index) are kept, and a claim
	// status only changes while the claim is still extracted.
	SaveResolutions(ctx context.Context, records []model.ResolutionRecord, statuses map[string]model.ClaimStatus) error
}

// PlayerFinder ranks roster players for a search string
type PlayerFinder interface {
	FindSimilarPlayers(ctx context.Context, orgID, coachID, search string, limit int) ([]model.PlayerCandidate, error)
}

// NonPlayerResolver matches team and coach mentions
type NonPlayerResolver interface {
	ResolveTeamName(ctx context.Context, orgID, coachID, rawText string) (*model.Candidate, error)
	ResolveCoachName(ctx context.Context, orgID, coachID, rawText string) (*model.Candidate, error)
}

// Recorder observes resolution outcomes
type Recorder interface {
	RecordResolution(status model.ResolutionStatus, mentionType model.MentionType)
	RecordAliasHit()
}

// Resolver is the entity resolution orchestrator
type Resolver struct {
	repo      Repository
	aliases   alias.Store
	finder    PlayerFinder
	nonPlayer NonPlayerResolver
	trust     TrustSource
	cfg       model.ResolutionConfig
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the resolver logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithClock overrides the time source used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(rec Recorder) Option {
	return func(r *Resolver) { r.recorder = rec }
}

// New creates a resolver
func New(repo Repository, aliases alias.Store, finder PlayerFinder, nonPlayer NonPlayerResolver, trust TrustSource, cfg model.ResolutionConfig, opts ...Option) *Resolver {
	r := &Resolver{
		repo:      repo,
		aliases:   aliases,
		finder:    finder,
		nonPlayer: nonPlayer,
		trust:     trust,
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg.LookupConcurrency <= 0 {
		r.cfg.LookupConcurrency = 8
	}
	return r
}

// Summary reports what a resolution pass did
type Summary struct {
	ArtifactID          string
	Skipped             bool
	Claims              int
	Mentions            int
	DistinctNames       int
	AutoResolved        int
	NeedsDisambiguation int
	Unresolved          int
	AliasHits           int
	ClaimsResolved      int
	ClaimsDisambiguate  int
	Records             []model.ResolutionRecord
	Err                 error
}

// Failed reports whether the pass hit an unexpected error
func (s *Summary) Failed() bool {
	return s.Err != nil
}

// ResolveArtifact runs Resolve and never fails: errors and panics are logged
// and reported in the summary, leaving claims in their prior state.
func (r *Resolver) ResolveArtifact(ctx context.Context, artifact model.Artifact) (sum *Summary) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Entity resolution panicked", "artifact_id", artifact.ID, "panic", p)
			sum = &Summary{ArtifactID: artifact.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	sum, err := r.Resolve(ctx, artifact)
	switch {
	case errors.Is(err, ErrNoOrganization):
		r.logger.Warn("Skipping entity resolution", "artifact_id", artifact.ID, "reason", err)
		sum.Skipped = true
		sum.Err = err
	case err != nil:
		r.logger.Error("Entity resolution failed", "artifact_id", artifact.ID, "error", err)
		sum.Err = err
	}
	return sum
}

// Resolve resolves every unresolved mention of an artifact's extracted claims
func (r *Resolver) Resolve(ctx context.Context, artifact model.Artifact) (*Summary, error) {
	sum := &Summary{ArtifactID: artifact.ID}

	orgID := artifact.OrganizationID()
	if orgID == "" {
		return sum, ErrNoOrganization
	}
	coachID := artifact.SenderUserID

	all, err := r.repo.ClaimsForArtifact(ctx, artifact.ID)
	if err != nil {
		return sum, fmt.Errorf("load claims: %w", err)
	}

	var claims []model.Claim
	for _, c := range all {
		if c.NeedsResolution() && len(c.EntityMentions) > 0 {
			claims = append(claims, c)
		}
	}
	sum.Claims = len(claims)
	if len(claims) == 0 {
		r.logger.Debug("No unresolved claims", "artifact_id", artifact.ID)
		return sum, nil
	}

	threshold := r.threshold(ctx, coachID)
	groups, others := groupMentions(claims)
	sum.DistinctNames = len(groups)

	outcomes, err := r.resolvePlayers(ctx, orgID, coachID, groups, threshold)
	if err != nil {
		return sum, err
	}

	now := r.now().UTC()
	var records []model.ResolutionRecord
	for i, g := range groups {
		out := outcomes[i]
		for _, m := range g.mentions {
			records = append(records, r.record(artifact.ID, orgID, m, out.candidates, out.status, now))
		}
	}

	for _, m := range others {
		cand, err := r.resolveNonPlayer(ctx, orgID, coachID, m.mention)
		if err != nil {
			return sum, fmt.Errorf("resolve %s %q: %w", m.mention.MentionType, m.mention.RawText, err)
		}
		var cands []model.Candidate
		status := model.ResolutionUnresolved
		if cand != nil {
			cands = []model.Candidate{*cand}
			status = model.ResolutionAutoResolved
		}
		records = append(records, r.record(artifact.ID, orgID, m, cands, status, now))
	}

	statuses := claimStatuses(records)
	if err := r.repo.SaveResolutions(ctx, records, statuses); err != nil {
		return sum, fmt.Errorf("save resolutions: %w", err)
	}

	for i, g := range groups {
		if outcomes[i].alias != nil {
			r.touchAlias(ctx, coachID, orgID, g.key, outcomes[i].alias)
			sum.AliasHits++
		}
	}

	r.tally(sum, records, statuses)
	r.logger.Info("Entity resolution complete",
		"artifact_id", artifact.ID,
		"claims", sum.Claims,
		"mentions", sum.Mentions,
		"distinct_names", sum.DistinctNames,
		"auto_resolved", sum.AutoResolved,
		"needs_disambiguation", sum.NeedsDisambiguation,
		"unresolved", sum.Unresolved,
		"alias_hits", sum.AliasHits,
		"threshold", threshold)
	return sum, nil
}

func (r *Resolver) threshold(ctx context.Context, coachID string) float64 {
	fallback := r.cfg.AutoResolveThreshold
	if fallback <= 0 {
		fallback = DefaultAutoResolveThreshold
	}
	if r.trust == nil {
		return fallback
	}

	level, err := r.trust.TrustLevel(ctx, coachID)
	if err != nil {
		r.logger.Warn("Trust level lookup failed, using default threshold", "coach_id", coachID, "error", err)
		return fallback
	}
	if level == nil || level.InsightConfidenceThreshold == nil {
		return fallback
	}
	return *level.InsightConfidenceThreshold
}

type playerOutcome struct {
	candidates []model.Candidate
	status     model.ResolutionStatus
	alias      *model.CoachAlias
}

// resolvePlayers runs one alias lookup and at most one candidate search per distinct name
func (r *Resolver) resolvePlayers(ctx context.Context, orgID, coachID string, groups []mentionGroup, threshold float64) ([]playerOutcome, error) {
	outcomes := make([]playerOutcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.LookupConcurrency)
	for i, grp := range groups {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("lookup %q panicked: %v", grp.key, p)
				}
			}()
			outcomes[i], err = r.resolvePlayer(gctx, orgID, coachID, grp, threshold)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (r *Resolver) resolvePlayer(ctx context.Context, orgID, coachID string, grp mentionGroup, threshold float64) (playerOutcome, error) {
	a, err := r.aliases.Lookup(ctx, coachID, orgID, grp.key)
	if err != nil {
		return playerOutcome{}, fmt.Errorf("alias lookup %q: %w", grp.key, err)
	}
	if a != nil {
		return playerOutcome{
			candidates: []model.Candidate{{
				EntityType:  model.EntityPlayer,
				EntityID:    a.ResolvedEntityID,
				EntityName:  a.ResolvedEntityName,
				Score:       1.0,
				MatchReason: model.ReasonCoachAlias,
			}},
			status: model.ResolutionAutoResolved,
			alias:  a,
		}, nil
	}

	found, err := r.finder.FindSimilarPlayers(ctx, orgID, coachID, grp.search, r.cfg.CandidateLimit)
	if err != nil {
		return playerOutcome{}, fmt.Errorf("find players %q: %w", grp.search, err)
	}
	cands := make([]model.Candidate, 0, len(found))
	for _, pc := range found {
		cands = append(cands, model.Candidate{
			EntityType:  model.EntityPlayer,
			EntityID:    pc.Player.ID,
			EntityName:  pc.Player.FullName(),
			Score:       pc.Similarity,
			MatchReason: pc.Reason,
		})
	}
	return playerOutcome{candidates: cands, status: Classify(cands, threshold)}, nil
}

// Classify decides a player mention's status. Only a single candidate at or
// above the threshold auto-resolves; any competition needs a human.
func Classify(cands []model.Candidate, threshold float64) model.ResolutionStatus {
	switch {
	case len(cands) == 0:
		return model.ResolutionUnresolved
	case len(cands) == 1 && cands[0].Score >= threshold:
		return model.ResolutionAutoResolved
	default:
		return model.ResolutionNeedsDisambiguation
	}
}

func (r *Resolver) resolveNonPlayer(ctx context.Context, orgID, coachID string, m model.EntityMention) (*model.Candidate, error) {
	switch m.MentionType {
	case model.MentionTeamName:
		return r.nonPlayer.ResolveTeamName(ctx, orgID, coachID, m.RawText)
	case model.MentionCoachName:
		return r.nonPlayer.ResolveCoachName(ctx, orgID, coachID, m.RawText)
	default:
		// group references and unknown types have nothing to match against
		return nil, nil
	}
}

func (r *Resolver) record(artifactID, orgID string, m located, cands []model.Candidate, status model.ResolutionStatus, now time.Time) model.ResolutionRecord {
	rec := model.ResolutionRecord{
		ClaimID:        m.claimID,
		ArtifactID:     artifactID,
		MentionIndex:   m.index,
		MentionType:    m.mention.MentionType,
		RawText:        m.mention.RawText,
		Candidates:     cands,
		Status:         status,
		OrganizationID: orgID,
		CreatedAt:      now,
	}
	if status == model.ResolutionAutoResolved {
		rec.ResolvedEntityID = cands[0].EntityID
		rec.ResolvedEntityName = cands[0].EntityName
		rec.ResolvedAt = &now
	}
	return rec
}

func (r *Resolver) touchAlias(ctx context.Context, coachID, orgID, key string, a *model.CoachAlias) {
	if _, err := r.aliases.Store(ctx, coachID, orgID, key, a.ResolvedEntityID, a.ResolvedEntityName); err != nil {
		r.logger.Warn("Failed to bump alias use count", "coach_id", coachID, "raw_text", key, "error", err)
		return
	}
	if r.recorder != nil {
		r.recorder.RecordAliasHit()
	}
}

// claimStatuses maps each claim to resolved only when all its mentions auto-resolved
func claimStatuses(records []model.ResolutionRecord) map[string]model.ClaimStatus {
	out := make(map[string]model.ClaimStatus)
	for _, rec := range records {
		if _, ok := out[rec.ClaimID]; !ok {
			out[rec.ClaimID] = model.ClaimStatusResolved
		}
		if rec.Status != model.ResolutionAutoResolved {
			out[rec.ClaimID] = model.ClaimStatusNeedsDisambiguation
		}
	}
	return out
}

func (r *Resolver) tally(sum *Summary, records []model.ResolutionRecord, statuses map[string]model.ClaimStatus) {
	sum.Records = records
	sum.Mentions = len(records)
	for _, rec := range records {
		switch rec.Status {
		case model.ResolutionAutoResolved:
			sum.AutoResolved++
		case model.ResolutionNeedsDisambiguation:
			sum.NeedsDisambiguation++
		case model.ResolutionUnresolved:
			sum.Unresolved++
		}
		if r.recorder != nil {
			r.recorder.RecordResolution(rec.Status, rec.MentionType)
		}
	}
	for _, st := range statuses {
		if st == model.ClaimStatusResolved {
			sum.ClaimsResolved++
		} else {
			sum.ClaimsDisambiguate++
		}
	}
}
