package pipeline

import "github.com/ppiankov/rollcall/internal/model"

type stageEvents struct {
	started, completed, failed model.EventType
}

var stageEventTypes = map[model.PipelineStage]stageEvents{
	model.StageTranscription: {
		model.EventTranscriptionStarted, model.EventTranscriptionCompleted, model.EventTranscriptionFailed,
	},
	model.StageClaimsExtraction: {
		model.EventClaimsExtractionStarted, model.EventClaimsExtracted, model.EventClaimsExtractionFailed,
	},
	model.StageEntityResolution: {
		model.EventEntityResolutionStarted, model.EventEntityResolutionCompleted, model.EventEntityResolutionFailed,
	},
	model.StageDraftGeneration: {
		model.EventDraftGenerationStarted, model.EventDraftsGenerated, model.EventDraftGenerationFailed,
	},
}

// ComputeStageStats aggregates per-stage counts, average latency and failure
// rate from events, in pipeline order
func ComputeStageStats(events []model.PipelineEvent) []model.StageStats {
	type acc struct {
		stats     model.StageStats
		latencyMs int64
		timed     int
	}
	byStage := make(map[model.PipelineStage]*acc)
	byType := make(map[model.EventType]model.PipelineStage)
	kind := make(map[model.EventType]int)
	for stage, et := range stageEventTypes {
		byStage[stage] = &acc{stats: model.StageStats{Stage: stage}}
		byType[et.started], kind[et.started] = stage, 0
		byType[et.completed], kind[et.completed] = stage, 1
		byType[et.failed], kind[et.failed] = stage, 2
	}

	for _, ev := range events {
		stage, ok := byType[ev.EventType]
		if !ok {
			continue
		}
		a := byStage[stage]
		switch kind[ev.EventType] {
		case 0:
			a.stats.Started++
		case 1:
			a.stats.Completed++
			if ev.DurationMs != nil {
				a.latencyMs += *ev.DurationMs
				a.timed++
			}
		case 2:
			a.stats.Failed++
		}
	}

	out := make([]model.StageStats, 0, len(stageEventTypes))
	for _, stage := range model.Stages() {
		a, ok := byStage[stage]
		if !ok {
			continue
		}
		a.stats.AvgLatencyMs = safeDivide(float64(a.latencyMs), float64(a.timed))
		a.stats.FailureRate = safeDivide(float64(a.stats.Failed), float64(a.stats.Completed+a.stats.Failed))
		out = append(out, a.stats)
	}
	return out
}
