package famulus

import "github.com/zoobzio/capitan"

// Signal definitions for pipeline events.
// Signals follow the pattern: famulus.<entity>.<event>.
var (
	// Pipeline lifecycle signals.
	PipelineStarted = capitan.NewSignal(
		"famulus.pipeline.started",
		"Pipeline run admitted and stage sequence beginning",
	)
	PipelineCompleted = capitan.NewSignal(
		"famulus.pipeline.completed",
		"Pipeline run produced a response",
	)
	PipelineRejected = capitan.NewSignal(
		"famulus.pipeline.rejected",
		"Request stopped at the admission gate",
	)
	PipelineAborted = capitan.NewSignal(
		"famulus.pipeline.aborted",
		"Critical stage failure substituted the fallback response",
	)
	PipelineSlow = capitan.NewSignal(
		"famulus.pipeline.slow",
		"Run exceeded the slow-response notification threshold",
	)

	// Stage execution signals.
	StageStarted = capitan.NewSignal(
		"famulus.stage.started",
		"Pipeline stage began execution",
	)
	StageCompleted = capitan.NewSignal(
		"famulus.stage.completed",
		"Pipeline stage finished successfully",
	)
	StageSkipped = capitan.NewSignal(
		"famulus.stage.skipped",
		"Pipeline stage recorded as skipped",
	)
	StageFailed = capitan.NewSignal(
		"famulus.stage.failed",
		"Pipeline stage exhausted all attempts",
	)
	StageRetried = capitan.NewSignal(
		"famulus.stage.retried",
		"Pipeline stage attempt failed and will be retried",
	)

	// Memory signals.
	MemoriesSaved = capitan.NewSignal(
		"famulus.memory.saved",
		"Candidate memories committed in one batch",
	)
	MemoriesHeld = capitan.NewSignal(
		"famulus.memory.held",
		"Candidates held for clarification instead of persisted",
	)
	ConflictDetected = capitan.NewSignal(
		"famulus.memory.conflict",
		"Candidate conflicts with an existing stored fact",
	)

	// Provider signals.
	ProviderFallback = capitan.NewSignal(
		"famulus.provider.fallback",
		"Primary provider failed; fallback provider attempted",
	)
)

// Field keys for pipeline event data.
var (
	// Run metadata.
	FieldTraceID   = capitan.NewStringKey("trace_id")
	FieldSubjectID = capitan.NewStringKey("subject_id")
	FieldIntent    = capitan.NewStringKey("intent")
	FieldReason    = capitan.NewStringKey("reason")

	// Stage metadata.
	FieldStageName   = capitan.NewStringKey("stage_name")
	FieldStageNumber = capitan.NewIntKey("stage_number")
	FieldAttempt     = capitan.NewIntKey("attempt")

	// Memory metadata.
	FieldCandidateCount = capitan.NewIntKey("candidate_count")
	FieldSavedCount     = capitan.NewIntKey("saved_count")
	FieldHeldCount      = capitan.NewIntKey("held_count")
	FieldConflictCount  = capitan.NewIntKey("conflict_count")

	// Provider metadata.
	FieldProvider     = capitan.NewStringKey("provider")
	FieldModel        = capitan.NewStringKey("model")
	FieldInputTokens  = capitan.NewIntKey("input_tokens")
	FieldOutputTokens = capitan.NewIntKey("output_tokens")

	// Timing.
	FieldStageDuration = capitan.NewDurationKey("stage_duration")
	FieldRunDuration   = capitan.NewDurationKey("run_duration")

	// Error information.
	FieldError = capitan.NewErrorKey("error")
)
