package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/rollcall/internal/model"
)

const (
	FailureRateThreshold = 0.10
	LatencySpikeFactor   = 2.0
	QueueDepthThreshold  = 50
	BacklogThreshold     = 100
	InactivityThreshold  = 60 * time.Minute
	latencyHistoryWindow = 7 * 24 * time.Hour
	latencyCurrentWindow = time.Hour
)

// HealthSource is the read side the health checks query
type HealthSource interface {
	Counters(ctx context.Context) ([]model.Counter, error)
	EventsSince(ctx context.Context, since time.Time) ([]model.PipelineEvent, error)
	CountArtifacts(ctx context.Context, statuses []model.ArtifactStatus) (int, error)
	DisambiguationBacklog(ctx context.Context) (int, error)
	LastEventTime(ctx context.Context, eventType model.EventType) (time.Time, bool, error)
}

// CheckResult is the outcome of one health check
type CheckResult struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// HealthReport is the outcome of one health pass
type HealthReport struct {
	CheckedAt time.Time     `json:"checked_at"`
	Checks    []CheckResult `json:"checks"`
	Raised    []model.Alert `json:"raised,omitempty"`
}

// Healthy reports whether every check passed
func (r HealthReport) Healthy() bool {
	for _, c := range r.Checks {
		if !c.Healthy {
			return false
		}
	}
	return true
}

// HealthChecker runs the pipeline health checks and raises alerts for the failing ones
type HealthChecker struct {
	source   HealthSource
	alerts   AlertSink
	breaker  *CircuitBreaker
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// NewHealthChecker creates a checker. breaker, observer and logger may be nil.
func NewHealthChecker(source HealthSource, alerts AlertSink, breaker *CircuitBreaker, observer Observer, logger *slog.Logger) *HealthChecker {
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthChecker{
		source:   source,
		alerts:   alerts,
		breaker:  breaker,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the checker time source
func (h *HealthChecker) SetClock(now func() time.Time) {
	h.now = now
}

// Check runs every health check. A failing data query aborts the pass.
func (h *HealthChecker) Check(ctx context.Context) (HealthReport, error) {
	now := h.now().UTC()
	report := HealthReport{CheckedAt: now}

	// failure rate over the current hourly window
	counters, err := h.source.Counters(ctx)
	if err != nil {
		return report, err
	}
	window := model.TimeWindow(now)
	var completed, failed int64
	for _, c := range counters {
		if c.TimeWindow != window {
			continue
		}
		switch c.Name {
		case model.CounterFor(model.EventArtifactCompleted):
			completed = c.Value
		case model.CounterFor(model.EventArtifactFailed):
			failed = c.Value
		}
	}
	rate := safeDivide(float64(failed), float64(completed+failed))
	if h.record(&report, "failure_rate", rate, FailureRateThreshold, rate <= FailureRateThreshold) {
		h.raise(ctx, &report, model.Alert{
			AlertType: model.AlertHighFailureRate,
			Severity:  model.AlertSeverityHigh,
			Message:   fmt.Sprintf("Pipeline failure rate is %.1f%% (threshold: 10%%)", rate*100),
			Metadata: map[string]interface{}{
				"failure_rate": rate,
				"completed":    completed,
				"failed":       failed,
				"threshold":    FailureRateThreshold,
			},
		})
	}

	// end-to-end latency against the 7-day baseline
	events, err := h.source.EventsSince(ctx, now.Add(-latencyHistoryWindow))
	if err != nil {
		return report, err
	}
	current, historical := latencyBaseline(events, now)
	spike := historical > 0 && current > historical*LatencySpikeFactor
	if h.record(&report, "latency", current, historical*LatencySpikeFactor, !spike) {
		h.raise(ctx, &report, model.Alert{
			AlertType: model.AlertHighLatency,
			Severity:  model.AlertSeverityMedium,
			Message:   fmt.Sprintf("End-to-end latency is %.0fms (2x normal: %.0fms)", current, historical),
			Metadata: map[string]interface{}{
				"current_latency_ms":    current,
				"historical_latency_ms": historical,
				"threshold":             LatencySpikeFactor,
			},
		})
	}

	depth, err := h.source.CountArtifacts(ctx, model.ActiveStatuses())
	if err != nil {
		return report, err
	}
	h.observer.SetQueueDepth(depth)
	if h.record(&report, "queue_depth", float64(depth), QueueDepthThreshold, depth <= QueueDepthThreshold) {
		h.raise(ctx, &report, model.Alert{
			AlertType: model.AlertHighQueueDepth,
			Severity:  model.AlertSeverityMedium,
			Message:   fmt.Sprintf("%d artifacts queued (threshold: %d)", depth, QueueDepthThreshold),
			Metadata:  map[string]interface{}{"queue_depth": depth, "threshold": QueueDepthThreshold},
		})
	}

	backlog, err := h.source.DisambiguationBacklog(ctx)
	if err != nil {
		return report, err
	}
	h.observer.SetDisambiguationBacklog(backlog)
	if h.record(&report, "disambiguation_backlog", float64(backlog), BacklogThreshold, backlog <= BacklogThreshold) {
		h.raise(ctx, &report, model.Alert{
			AlertType: model.AlertDisambiguationBacklog,
			Severity:  model.AlertSeverityLow,
			Message:   fmt.Sprintf("%d entities awaiting manual review (threshold: %d)", backlog, BacklogThreshold),
			Metadata:  map[string]interface{}{"backlog": backlog, "threshold": BacklogThreshold},
		})
	}

	if h.breaker != nil {
		stats := h.breaker.Stats()
		if h.record(&report, "circuit_breaker", float64(stats.State), float64(StateClosed), stats.State == StateClosed) {
			h.raise(ctx, &report, model.Alert{
				AlertType: model.AlertCircuitBreakerOpen,
				Severity:  model.AlertSeverityCritical,
				Message:   "AI service circuit breaker is open - pipeline degraded",
				Metadata: map[string]interface{}{
					"state":                stats.State.String(),
					"consecutive_failures": stats.Failures,
				},
			})
		}
	}

	last, ok, err := h.source.LastEventTime(ctx, model.EventArtifactReceived)
	if err != nil {
		return report, err
	}
	idle := now.Sub(last)
	if !ok {
		idle = now.Sub(time.Unix(0, 0))
	}
	if h.record(&report, "inactivity", idle.Minutes(), InactivityThreshold.Minutes(), idle <= InactivityThreshold) {
		msg := fmt.Sprintf("No voice notes received in %d minutes (threshold: 60)", int(idle.Minutes()))
		if !ok {
			msg = "No voice notes have been received"
		}
		h.raise(ctx, &report, model.Alert{
			AlertType: model.AlertInactivity,
			Severity:  model.AlertSeverityLow,
			Message:   msg,
			Metadata:  map[string]interface{}{"minutes_since_last_artifact": int(idle.Minutes()), "threshold": 60},
		})
	}

	h.logger.Info("Pipeline health checked",
		"healthy", report.Healthy(),
		"checks", len(report.Checks),
		"alerts_raised", len(report.Raised))
	return report, nil
}

// record appends a check result and reports whether it failed
func (h *HealthChecker) record(r *HealthReport, name string, value, threshold float64, healthy bool) bool {
	r.Checks = append(r.Checks, CheckResult{Name: name, Healthy: healthy, Value: value, Threshold: threshold})
	return !healthy
}

func (h *HealthChecker) raise(ctx context.Context, r *HealthReport, a model.Alert) {
	if h.alerts == nil {
		return
	}
	a.CreatedAt = h.now().UTC()
	stored, created, err := h.alerts.RaiseAlert(ctx, a)
	if err != nil {
		h.logger.Warn("Failed to raise alert", "alert_type", a.AlertType, "error", err)
		return
	}
	if !created {
		return
	}
	h.observer.RecordAlert(stored)
	r.Raised = append(r.Raised, stored)
	h.logger.Warn("Alert raised", "alert_type", stored.AlertType, "severity", stored.Severity, "message", stored.Message)
}

// latencyBaseline returns the average end-to-end latency in ms of artifacts
// completed in the last hour, and the mean of the hourly averages before it
func latencyBaseline(events []model.PipelineEvent, now time.Time) (current, historical float64) {
	received := make(map[string]time.Time)
	for _, ev := range events {
		if ev.EventType == model.EventArtifactReceived {
			received[ev.ArtifactID] = ev.Timestamp
		}
	}

	type bucket struct {
		sum float64
		n   int
	}
	var cur bucket
	hourly := make(map[string]*bucket)
	cutoff := now.Add(-latencyCurrentWindow)

	for _, ev := range events {
		if ev.EventType != model.EventArtifactCompleted {
			continue
		}
		start, ok := received[ev.ArtifactID]
		if !ok {
			continue
		}
		ms := float64(ev.Timestamp.Sub(start).Milliseconds())
		if !ev.Timestamp.Before(cutoff) {
			cur.sum += ms
			cur.n++
			continue
		}
		b := hourly[ev.TimeWindow]
		if b == nil {
			b = &bucket{}
			hourly[ev.TimeWindow] = b
		}
		b.sum += ms
		b.n++
	}

	current = safeDivide(cur.sum, float64(cur.n))
	var sum float64
	for _, b := range hourly {
		sum += b.sum / float64(b.n)
	}
	historical = safeDivide(sum, float64(len(hourly)))
	return current, historical
}

func safeDivide(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}
