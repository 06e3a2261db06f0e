package model

import "time"

// Counter is a rolling hourly pipeline counter
type Counter struct {
	Name       string    `json:"name"`
	Value      int64     `json:"value"`
	TimeWindow string    `json:"time_window"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var counterByEvent = map[EventType]string{
	EventArtifactReceived:          "artifacts_received_1h",
	EventArtifactCompleted:         "artifacts_completed_1h",
	EventArtifactFailed:            "artifacts_failed_1h",
	EventTranscriptionCompleted:    "transcriptions_completed_1h",
	EventClaimsExtracted:           "claims_extracted_1h",
	EventEntityResolutionCompleted: "entities_resolved_1h",
	EventDraftsGenerated:           "drafts_generated_1h",
}

// CounterFor returns the hourly counter an event type feeds, or ""
func CounterFor(t EventType) string {
	return counterByEvent[t]
}
