package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rollcall/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(model.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClaimsRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	claims := []model.Claim{
		{ID: "cl1", ArtifactID: "a1", Text: "Emma's passing improved", Status: model.ClaimStatusExtracted,
			EntityMentions: []model.EntityMention{{MentionType: model.MentionPlayerName, RawText: "Emma", Position: 0}}},
		{ID: "cl2", ArtifactID: "a2", Status: model.ClaimStatusExtracted},
	}
	require.NoError(t, s.SaveClaims(ctx, claims))

	got, err := s.ClaimsForArtifact(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Emma", got[0].EntityMentions[0].RawText)
	assert.Equal(t, model.ClaimStatusExtracted, got[0].Status)
}

func TestSaveResolutions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveClaims(ctx, []model.Claim{
		{ID: "cl1", ArtifactID: "a1", Status: model.ClaimStatusExtracted},
		{ID: "cl2", ArtifactID: "a1", Status: model.ClaimStatusDiscarded},
	}))

	records := []model.ResolutionRecord{
		{
			ClaimID: "cl1", ArtifactID: "a1", MentionIndex: 0, MentionType: model.MentionPlayerName,
			RawText: "Neeve", Status: model.ResolutionAutoResolved,
			Candidates: []model.Candidate{{EntityType: model.EntityPlayer, EntityID: "p3", EntityName: "Niamh O'Sullivan",
				Score: 0.9, MatchReason: model.ReasonIrishAlias}},
			ResolvedEntityID: "p3", ResolvedEntityName: "Niamh O'Sullivan", ResolvedAt: &now, CreatedAt: now,
		},
		{
			ClaimID: "cl1", ArtifactID: "a1", MentionIndex: 1, MentionType: model.MentionGroupReference,
			RawText: "the squad", Status: model.ResolutionUnresolved, CreatedAt: now,
		},
	}
	statuses := map[string]model.ClaimStatus{
		"cl1": model.ClaimStatusNeedsDisambiguation,
		"cl2": model.ClaimStatusResolved,
	}
	require.NoError(t, s.SaveResolutions(ctx, records, statuses))

	got, err := s.ResolutionsForArtifact(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ReasonIrishAlias, got[0].Candidates[0].MatchReason)
	assert.Equal(t, "p3", got[0].ResolvedEntityID)
	assert.Empty(t, got[1].Candidates)

	claims, err := s.ClaimsForArtifact(ctx, "a1")
	require.NoError(t, err)
	byID := map[string]model.ClaimStatus{}
	for _, c := range claims {
		byID[c.ID] = c.Status
	}
	assert.Equal(t, model.ClaimStatusNeedsDisambiguation, byID["cl1"])
	// only extracted claims move
	assert.Equal(t, model.ClaimStatusDiscarded, byID["cl2"])

	// a second write of the same mentions keeps the originals
	changed := records[0]
	changed.Status = model.ResolutionUnresolved
	require.NoError(t, s.SaveResolutions(ctx, []model.ResolutionRecord{changed}, nil))
	again, err := s.ResolutionsForArtifact(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, model.ResolutionAutoResolved, again[0].Status)
}

func TestDisambiguationBacklog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveResolutions(ctx, []model.ResolutionRecord{
		{ClaimID: "cl1", MentionIndex: 0, ArtifactID: "a1", MentionType: model.MentionPlayerName, RawText: "Sean", Status: model.ResolutionNeedsDisambiguation},
		{ClaimID: "cl1", MentionIndex: 1, ArtifactID: "a1", MentionType: model.MentionPlayerName, RawText: "Emma", Status: model.ResolutionAutoResolved},
		{ClaimID: "cl2", MentionIndex: 0, ArtifactID: "a1", MentionType: model.MentionPlayerName, RawText: "Sean", Status: model.ResolutionNeedsDisambiguation},
	}, nil))

	n, err := s.DisambiguationBacklog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAliasUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	got, err := s.Lookup(ctx, "c1", "org1", "the big fella")
	require.NoError(t, err)
	assert.Nil(t, got)

	a, err := s.Store(ctx, "c1", "org1", " The Big Fella", "p5", "Christopher Fitzgerald")
	require.NoError(t, err)
	assert.Equal(t, 1, a.UseCount)
	assert.Equal(t, "the big fella", a.RawText)

	a, err = s.Store(ctx, "c1", "org1", "the big fella", "p5", "Christopher Fitzgerald")
	require.NoError(t, err)
	assert.Equal(t, 2, a.UseCount)

	other, err := s.Lookup(ctx, "c2", "org1", "the big fella")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestAliasConcurrentIncrements(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for range n {
		wg.Go(func() {
			_, err := s.Store(ctx, "c1", "org1", "emma", "p4", "Emma Walsh")
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	a, err := s.Lookup(ctx, "c1", "org1", "emma")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, n, a.UseCount)

	list, err := s.List(ctx, "c1", "org1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTrustLevels(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	got, err := s.TrustLevel(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	th := 0.8
	require.NoError(t, s.SetTrustLevels(ctx, []model.TrustLevel{{CoachUserID: "c1", InsightConfidenceThreshold: &th}}))
	th2 := 0.7
	require.NoError(t, s.SetTrustLevels(ctx, []model.TrustLevel{{CoachUserID: "c1", InsightConfidenceThreshold: &th2}}))

	got, err = s.TrustLevel(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.InsightConfidenceThreshold)
	assert.Equal(t, 0.7, *got.InsightConfidenceThreshold)
}

func TestArtifactLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.SetClock(fixedClock(base))

	a := model.Artifact{
		ID: "a1", SenderUserID: "c1", Status: model.StatusReceived, PipelineStage: model.StageIngestion,
		OrgContextCandidates: []model.OrgContext{{OrganizationID: "org1", Confidence: 1}},
	}
	require.NoError(t, s.CreateArtifact(ctx, a))

	got, err := s.GetArtifact(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "org1", got.OrganizationID())

	got.Status = model.StatusTranscribing
	got.PipelineStage = model.StageTranscription
	require.NoError(t, s.UpdateArtifact(ctx, got, model.StatusReceived))

	// stale writer
	got.Status = model.StatusFailed
	err = s.UpdateArtifact(ctx, got, model.StatusReceived)
	assert.ErrorIs(t, err, ErrStale)

	_, err = s.GetArtifact(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDueAndListArtifacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	fixtures := []model.Artifact{
		{ID: "due", Status: model.StatusReceived, CreatedAt: base},
		{ID: "backoff", Status: model.StatusClaimsExtracted, NextAttemptAt: &later, CreatedAt: base.Add(time.Minute)},
		{ID: "waiting", Status: model.StatusAwaitingConfirmation, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "failed", Status: model.StatusFailed, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, a := range fixtures {
		require.NoError(t, s.CreateArtifact(ctx, a))
	}

	due, err := s.DueArtifacts(ctx, base.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)

	due, err = s.DueArtifacts(ctx, later, 0)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	active, err := s.ListArtifacts(ctx, model.ActiveStatuses(), 0)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "waiting", active[0].ID)

	n, err := s.CountArtifacts(ctx, []model.ArtifactStatus{model.StatusFailed})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAppendEventCounters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 14, 9, 10, 0, 0, time.UTC)

	for _, ts := range []time.Time{t0, t0.Add(20 * time.Minute)} {
		_, err := s.AppendEvent(ctx, model.PipelineEvent{EventType: model.EventArtifactReceived, ArtifactID: "a1", Timestamp: ts})
		require.NoError(t, err)
	}
	ev, err := s.AppendEvent(ctx, model.PipelineEvent{EventType: model.EventArtifactStatusChanged, ArtifactID: "a1", Timestamp: t0})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "2026-03-14-09", ev.TimeWindow)

	counters, err := s.Counters(ctx)
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.Equal(t, "artifacts_received_1h", counters[0].Name)
	assert.Equal(t, int64(2), counters[0].Value)

	// next hour resets the window
	_, err = s.AppendEvent(ctx, model.PipelineEvent{EventType: model.EventArtifactReceived, ArtifactID: "a2", Timestamp: t0.Add(time.Hour)})
	require.NoError(t, err)
	counters, err = s.Counters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters[0].Value)
	assert.Equal(t, "2026-03-14-10", counters[0].TimeWindow)

	n, err := s.CountEvents(ctx, "a1", model.EventArtifactReceived)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	last, ok, err := s.LastEventTime(ctx, model.EventArtifactReceived)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(t0.Add(time.Hour)))

	_, ok, err = s.LastEventTime(ctx, model.EventArtifactFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	since, err := s.EventsSince(ctx, t0.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Len(t, since, 1)
}

func TestEventMetadataRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	dur := int64(1500)
	_, err := s.AppendEvent(ctx, model.PipelineEvent{
		EventType:     model.EventEntityResolutionCompleted,
		ArtifactID:    "a1",
		PipelineStage: model.StageEntityResolution,
		DurationMs:    &dur,
		Metadata:      model.EventMetadata{EntityCount: model.IntPtr(3), DisambiguationCount: model.IntPtr(1)},
	})
	require.NoError(t, err)

	events, err := s.EventsForArtifact(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Metadata.EntityCount)
	assert.Equal(t, 3, *events[0].Metadata.EntityCount)
	assert.Equal(t, int64(1500), *events[0].DurationMs)
}

func TestAlerts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := model.Alert{AlertType: model.AlertCircuitBreakerOpen, Severity: model.AlertSeverityCritical, Message: "open",
		Metadata: map[string]interface{}{"failures": 5}}
	first, created, err := s.RaiseAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	dup, created, err := s.RaiseAlert(ctx, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	require.NoError(t, s.AcknowledgeAlert(ctx, first.ID))
	open, err := s.Alerts(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, created, err = s.RaiseAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)

	all, err := s.Alerts(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.AcknowledgeAlert(ctx, 999), ErrNotFound)
}
