package main

import (
	"context"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"

	"github.com/zoobzio/famulus"
)

// bridgeSignals forwards pipeline signals into the process logger. Returns a
// function that detaches every listener.
func bridgeSignals(logger *zap.Logger) func() {
	listeners := []interface{ Close() }{
		capitan.Hook(famulus.PipelineCompleted, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			intent, _ := famulus.FieldIntent.From(e)
			elapsed, _ := famulus.FieldRunDuration.From(e)
			saved, _ := famulus.FieldSavedCount.From(e)
			logger.Info("pipeline completed",
				zap.String("traceId", traceID),
				zap.String("intent", intent),
				zap.Duration("elapsed", elapsed),
				zap.Int("memoriesSaved", saved),
			)
		}),
		capitan.Hook(famulus.PipelineRejected, func(_ context.Context, e *capitan.Event) {
			subjectID, _ := famulus.FieldSubjectID.From(e)
			reason, _ := famulus.FieldReason.From(e)
			logger.Warn("request rejected",
				zap.String("subjectId", subjectID),
				zap.String("reason", reason),
			)
		}),
		capitan.Hook(famulus.PipelineAborted, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			err, _ := famulus.FieldError.From(e)
			logger.Error("pipeline aborted",
				zap.String("traceId", traceID),
				zap.Error(err),
			)
		}),
		capitan.Hook(famulus.PipelineSlow, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			elapsed, _ := famulus.FieldRunDuration.From(e)
			logger.Warn("slow response",
				zap.String("traceId", traceID),
				zap.Duration("elapsed", elapsed),
			)
		}),
		capitan.Hook(famulus.StageFailed, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			stage, _ := famulus.FieldStageName.From(e)
			err, _ := famulus.FieldError.From(e)
			logger.Error("stage failed",
				zap.String("traceId", traceID),
				zap.String("stage", stage),
				zap.Error(err),
			)
		}),
		capitan.Hook(famulus.ProviderFallback, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			provider, _ := famulus.FieldProvider.From(e)
			logger.Warn("provider fallback",
				zap.String("traceId", traceID),
				zap.String("provider", provider),
			)
		}),
		capitan.Hook(famulus.MemoriesHeld, func(_ context.Context, e *capitan.Event) {
			traceID, _ := famulus.FieldTraceID.From(e)
			held, _ := famulus.FieldHeldCount.From(e)
			logger.Info("memories held",
				zap.String("traceId", traceID),
				zap.Int("held", held),
			)
		}),
	}

	return func() {
		for _, l := range listeners {
			l.Close()
		}
	}
}
