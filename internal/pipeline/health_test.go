package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/rollcall/internal/model"
	"github.com/ppiankov/rollcall/internal/store"
)

type fakeHealthSource struct {
	counters     []model.Counter
	events       []model.PipelineEvent
	active       int
	backlog      int
	lastReceived time.Time
}

func (f *fakeHealthSource) Counters(context.Context) ([]model.Counter, error) {
	return f.counters, nil
}

func (f *fakeHealthSource) EventsSince(_ context.Context, since time.Time) ([]model.PipelineEvent, error) {
	var out []model.PipelineEvent
	for _, e := range f.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHealthSource) CountArtifacts(context.Context, []model.ArtifactStatus) (int, error) {
	return f.active, nil
}

func (f *fakeHealthSource) DisambiguationBacklog(context.Context) (int, error) {
	return f.backlog, nil
}

func (f *fakeHealthSource) LastEventTime(context.Context, model.EventType) (time.Time, bool, error) {
	return f.lastReceived, !f.lastReceived.IsZero(), nil
}

func counter(name string, v int64, at time.Time) model.Counter {
	return model.Counter{Name: name, Value: v, TimeWindow: model.TimeWindow(at)}
}

func completion(id string, received, completed time.Time) []model.PipelineEvent {
	return []model.PipelineEvent{
		{EventType: model.EventArtifactReceived, ArtifactID: id, Timestamp: received, TimeWindow: model.TimeWindow(received)},
		{EventType: model.EventArtifactCompleted, ArtifactID: id, Timestamp: completed, TimeWindow: model.TimeWindow(completed)},
	}
}

func newHealthStore(t *testing.T, now time.Time) *store.Store {
	t.Helper()
	s, err := store.Open(model.DatabaseConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.SetClock(func() time.Time { return now })
	return s
}

func checkNames(r HealthReport, healthy bool) []string {
	var out []string
	for _, c := range r.Checks {
		if c.Healthy == healthy {
			out = append(out, c.Name)
		}
	}
	return out
}

func TestHealthCheckHealthy(t *testing.T) {
	now := t0.Add(30 * time.Minute)
	src := &fakeHealthSource{
		counters: []model.Counter{
			counter("artifacts_completed_1h", 20, now),
			counter("artifacts_failed_1h", 1, now),
		},
		active:       3,
		backlog:      10,
		lastReceived: now.Add(-5 * time.Minute),
	}
	s := newHealthStore(t, now)
	obs := &recordingObserver{}
	cb := NewCircuitBreaker(DefaultBreakerConfig(), discardLogger(), nil)

	hc := NewHealthChecker(src, s, cb, obs, discardLogger())
	hc.SetClock(func() time.Time { return now })

	report, err := hc.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Empty(t, report.Raised)
	assert.Equal(t, []string{"failure_rate", "latency", "queue_depth", "disambiguation_backlog", "circuit_breaker", "inactivity"},
		checkNames(report, true))
	assert.Equal(t, 3, obs.depth)
	assert.Equal(t, 10, obs.backlog)
}

func TestHealthCheckRaisesAlerts(t *testing.T) {
	now := t0.Add(30 * time.Minute)

	var events []model.PipelineEvent
	// baseline: 1s end to end in each of two earlier hours
	events = append(events, completion("h1", t0.Add(-5*time.Hour), t0.Add(-5*time.Hour+time.Second))...)
	events = append(events, completion("h2", t0.Add(-3*time.Hour), t0.Add(-3*time.Hour+time.Second))...)
	// current hour: 5s
	events = append(events, completion("c1", now.Add(-10*time.Minute), now.Add(-10*time.Minute+5*time.Second))...)

	src := &fakeHealthSource{
		counters: []model.Counter{
			counter("artifacts_completed_1h", 8, now),
			counter("artifacts_failed_1h", 2, now),
			// stale window is ignored
			counter("artifacts_received_1h", 500, now.Add(-2*time.Hour)),
		},
		events:       events,
		active:       51,
		backlog:      101,
		lastReceived: now.Add(-61 * time.Minute),
	}
	s := newHealthStore(t, now)
	obs := &recordingObserver{}
	cb := NewCircuitBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Hour, HalfOpenMaxRequests: 1}, discardLogger(), nil)
	_ = cb.Call(context.Background(), failing)

	hc := NewHealthChecker(src, s, cb, obs, discardLogger())
	hc.SetClock(func() time.Time { return now })
	ctx := context.Background()

	report, err := hc.Check(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Empty(t, checkNames(report, true))
	require.Len(t, report.Raised, 6)

	byType := make(map[model.AlertType]model.Alert)
	for _, a := range report.Raised {
		byType[a.AlertType] = a
	}
	assert.Equal(t, model.AlertSeverityHigh, byType[model.AlertHighFailureRate].Severity)
	assert.Equal(t, "Pipeline failure rate is 20.0% (threshold: 10%)", byType[model.AlertHighFailureRate].Message)
	assert.Equal(t, "End-to-end latency is 5000ms (2x normal: 1000ms)", byType[model.AlertHighLatency].Message)
	assert.Equal(t, "51 artifacts queued (threshold: 50)", byType[model.AlertHighQueueDepth].Message)
	assert.Equal(t, model.AlertSeverityLow, byType[model.AlertDisambiguationBacklog].Severity)
	assert.Equal(t, model.AlertSeverityCritical, byType[model.AlertCircuitBreakerOpen].Severity)
	assert.Equal(t, "No voice notes received in 61 minutes (threshold: 60)", byType[model.AlertInactivity].Message)
	assert.Len(t, obs.alerts, 6)

	// unacknowledged alerts are not raised twice
	report, err = hc.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Raised)

	stored, err := s.Alerts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}

func TestHealthCheckNeverReceived(t *testing.T) {
	now := t0
	src := &fakeHealthSource{}
	s := newHealthStore(t, now)
	hc := NewHealthChecker(src, s, nil, nil, discardLogger())
	hc.SetClock(func() time.Time { return now })

	report, err := hc.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"inactivity"}, checkNames(report, false))
	require.Len(t, report.Raised, 1)
	assert.Equal(t, "No voice notes have been received", report.Raised[0].Message)
}

func TestLatencyBaselineWithoutHistory(t *testing.T) {
	now := t0
	events := completion("c1", now.Add(-time.Minute), now)
	current, historical := latencyBaseline(events, now)
	assert.Equal(t, 60000.0, current)
	assert.Zero(t, historical)
}

func TestComputeStageStats(t *testing.T) {
	ms := func(v int64) *int64 { return &v }
	events := []model.PipelineEvent{
		{EventType: model.EventTranscriptionStarted},
		{EventType: model.EventTranscriptionCompleted, DurationMs: ms(100)},
		{EventType: model.EventTranscriptionStarted},
		{EventType: model.EventTranscriptionCompleted, DurationMs: ms(300)},
		{EventType: model.EventTranscriptionStarted},
		{EventType: model.EventTranscriptionFailed},
		{EventType: model.EventClaimsExtractionStarted},
		{EventType: model.EventClaimsExtracted},
		{EventType: model.EventArtifactReceived},
	}

	stats := ComputeStageStats(events)
	require.Len(t, stats, 4)
	assert.Equal(t, model.StageTranscription, stats[0].Stage)
	assert.Equal(t, 3, stats[0].Started)
	assert.Equal(t, 2, stats[0].Completed)
	assert.Equal(t, 1, stats[0].Failed)
	assert.Equal(t, 200.0, stats[0].AvgLatencyMs)
	assert.InDelta(t, 1.0/3.0, stats[0].FailureRate, 1e-9)

	assert.Equal(t, model.StageClaimsExtraction, stats[1].Stage)
	assert.Equal(t, 1, stats[1].Completed)
	assert.Zero(t, stats[1].AvgLatencyMs)
	assert.Zero(t, stats[1].FailureRate)

	assert.Equal(t, model.StageEntityResolution, stats[2].Stage)
	assert.Equal(t, model.StageDraftGeneration, stats[3].Stage)
}
