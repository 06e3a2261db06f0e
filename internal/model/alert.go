package model

import "time"

// AlertType identifies a pipeline health condition
type AlertType string

const (
	AlertHighFailureRate       AlertType = "PIPELINE_HIGH_FAILURE_RATE"
	AlertHighLatency           AlertType = "PIPELINE_HIGH_LATENCY"
	AlertHighQueueDepth        AlertType = "PIPELINE_HIGH_QUEUE_DEPTH"
	AlertDisambiguationBacklog AlertType = "PIPELINE_DISAMBIGUATION_BACKLOG"
	AlertCircuitBreakerOpen    AlertType = "PIPELINE_CIRCUIT_BREAKER_OPEN"
	AlertInactivity            AlertType = "PIPELINE_INACTIVITY"
)

// AlertSeverity orders alerts for display
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityLow      AlertSeverity = "low"
)

// Rank returns a sort key, lower is more severe
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityCritical:
		return 0
	case AlertSeverityHigh:
		return 1
	case AlertSeverityMedium:
		return 2
	default:
		return 3
	}
}

// Alert is a monitoring alert raised by the pipeline health check
type Alert struct {
	ID           uint                   `json:"id"`
	AlertType    AlertType              `json:"alert_type"`
	Severity     AlertSeverity          `json:"severity"`
	Message      string                 `json:"message"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Acknowledged bool                   `json:"acknowledged"`
	AckedAt      *time.Time             `json:"acknowledged_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// StageStats summarizes monitoring figures for one stage
type StageStats struct {
	Stage        PipelineStage `json:"stage"`
	Started      int           `json:"started"`
	Completed    int           `json:"completed"`
	Failed       int           `json:"failed"`
	AvgLatencyMs float64       `json:"avg_latency_ms"`
	FailureRate  float64       `json:"failure_rate"`
}
