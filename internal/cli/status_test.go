package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/rollcall/internal/model"
)

func TestStatusChange(t *testing.T) {
	assert.Equal(t, "-", statusChange(model.PipelineEvent{}))
	assert.Equal(t, "received", statusChange(model.PipelineEvent{NewStatus: model.StatusReceived}))
	assert.Equal(t, "received -> transcribing", statusChange(model.PipelineEvent{
		PreviousStatus: model.StatusReceived,
		NewStatus:      model.StatusTranscribing,
	}))
}

func TestEventDetail(t *testing.T) {
	dur := int64(1250)
	ev := model.PipelineEvent{
		DurationMs:   &dur,
		ErrorMessage: "timeout",
		Metadata: model.EventMetadata{
			ClaimCount: model.IntPtr(3),
			AIModel:    "gpt-4o-mini",
		},
	}
	assert.Equal(t, `1250ms claims=3 model=gpt-4o-mini error="timeout"`, eventDetail(ev))
	assert.Equal(t, "-", eventDetail(model.PipelineEvent{}))
}

func TestFormatCandidates(t *testing.T) {
	assert.Equal(t, "-", formatCandidates(nil))
	assert.Equal(t, "Sean Murphy(0.82), Sean Kelly(0.80)", formatCandidates([]model.Candidate{
		{EntityName: "Sean Murphy", Score: 0.82},
		{EntityName: "Sean Kelly", Score: 0.80},
	}))
}
