// Package metrics provides Prometheus metrics for the voice-note pipeline
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/rollcall/internal/model"
)

// Breaker state gauge values
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// PipelineMetrics contains Prometheus metrics for pipeline stages and entity resolution
type PipelineMetrics struct {
	registry *prometheus.Registry

	eventsTotal           *prometheus.CounterVec
	statusTransitions     *prometheus.CounterVec
	stageDuration         *prometheus.HistogramVec
	stageFailuresTotal    *prometheus.CounterVec
	retriesTotal          *prometheus.CounterVec
	breakerState          prometheus.Gauge
	breakerTransitions    *prometheus.CounterVec
	resolutionsTotal      *prometheus.CounterVec
	aliasHitsTotal        prometheus.Counter
	alertsTotal           *prometheus.CounterVec
	queueDepth            prometheus.Gauge
	disambiguationBacklog prometheus.Gauge

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers pipeline metrics
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_pipeline_events_total",
			Help: "Total number of pipeline events by type",
		},
		[]string{"event_type"},
	)

	m.statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_pipeline_status_transitions_total",
			Help: "Total number of artifact status transitions",
		},
		[]string{"from", "to"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_pipeline_stage_duration_seconds",
			Help:    "Time taken by completed pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~3m
		},
		[]string{"stage"},
	)

	m.stageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_pipeline_stage_failures_total",
			Help: "Total number of failed stage attempts",
		},
		[]string{"stage", "error_code"},
	)

	m.retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_pipeline_retries_total",
			Help: "Total number of scheduled and manual retries",
		},
		[]string{"stage", "kind"}, // kind: scheduled, manual
	)

	m.breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_ai_circuit_breaker_state",
		Help: "AI service circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	m.breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_ai_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"to"},
	)

	m.resolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_entity_resolutions_total",
			Help: "Total number of resolved mentions by outcome",
		},
		[]string{"status", "mention_type"},
	)

	m.aliasHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_entity_alias_hits_total",
		Help: "Total number of mentions resolved from coach alias memory",
	})

	m.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_pipeline_alerts_total",
			Help: "Total number of raised health alerts",
		},
		[]string{"alert_type", "severity"},
	)

	m.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_pipeline_queue_depth",
		Help: "Number of artifacts in a non-terminal status",
	})

	m.disambiguationBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_disambiguation_backlog",
		Help: "Number of mentions waiting for human disambiguation",
	})

	m.collectors = []prometheus.Collector{
		m.eventsTotal,
		m.statusTransitions,
		m.stageDuration,
		m.stageFailuresTotal,
		m.retriesTotal,
		m.breakerState,
		m.breakerTransitions,
		m.resolutionsTotal,
		m.aliasHitsTotal,
		m.alertsTotal,
		m.queueDepth,
		m.disambiguationBacklog,
	}
}

// RecordEvent updates counters from a stored pipeline event
func (m *PipelineMetrics) RecordEvent(ev model.PipelineEvent) {
	m.eventsTotal.WithLabelValues(string(ev.EventType)).Inc()

	if ev.PreviousStatus != "" && ev.NewStatus != "" && ev.PreviousStatus != ev.NewStatus {
		m.statusTransitions.WithLabelValues(string(ev.PreviousStatus), string(ev.NewStatus)).Inc()
	}
	if ev.DurationMs != nil && ev.ErrorMessage == "" {
		m.stageDuration.WithLabelValues(string(ev.PipelineStage)).Observe(float64(*ev.DurationMs) / 1000)
	}
	if ev.ErrorMessage != "" && ev.PipelineStage != "" {
		code := ev.ErrorCode
		if code == "" {
			code = "unknown"
		}
		m.stageFailuresTotal.WithLabelValues(string(ev.PipelineStage), code).Inc()
	}
}

// RecordRetry counts a retry of a stage
func (m *PipelineMetrics) RecordRetry(stage model.PipelineStage, manual bool) {
	kind := "scheduled"
	if manual {
		kind = "manual"
	}
	m.retriesTotal.WithLabelValues(string(stage), kind).Inc()
}

// SetBreakerState records a circuit breaker transition
func (m *PipelineMetrics) SetBreakerState(state string) {
	switch state {
	case "open":
		m.breakerState.Set(BreakerOpen)
	case "half-open":
		m.breakerState.Set(BreakerHalfOpen)
	default:
		m.breakerState.Set(BreakerClosed)
	}
	m.breakerTransitions.WithLabelValues(state).Inc()
}

// RecordResolution counts one resolved mention
func (m *PipelineMetrics) RecordResolution(status model.ResolutionStatus, mentionType model.MentionType) {
	m.resolutionsTotal.WithLabelValues(string(status), string(mentionType)).Inc()
}

// RecordAliasHit counts a mention resolved from alias memory
func (m *PipelineMetrics) RecordAliasHit() {
	m.aliasHitsTotal.Inc()
}

// RecordAlert counts a newly raised alert
func (m *PipelineMetrics) RecordAlert(a model.Alert) {
	m.alertsTotal.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
}

// SetQueueDepth records the number of active artifacts
func (m *PipelineMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetDisambiguationBacklog records the number of mentions awaiting a human
func (m *PipelineMetrics) SetDisambiguationBacklog(n int) {
	m.disambiguationBacklog.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format
func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Describe implements the prometheus.Collector interface
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
