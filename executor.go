package famulus

import (
	"context"
	"fmt"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// WorkFunc is the body of one pipeline stage. It reads earlier stage outputs
// from the run, writes its own, and returns the data recorded in the stage's
// audit entry. The context carries the per-attempt deadline; blocking work
// must honor it.
type WorkFunc func(context.Context, *Run) (map[string]any, error)

// stageDef binds a stage identity to its work and its runtime skip rule.
// The skip rule covers data-dependent skips (no candidates, blocked run);
// config-driven disablement is handled by the executor itself.
type stageDef struct {
	stage Stage
	skip  func(*Run) (bool, string)
	work  WorkFunc
}

// Executor runs every stage under one uniform retry and timeout policy, so
// stage authors never re-implement failure handling. It guarantees exactly
// one StageResult per stage per run, appended in stage-number order.
type Executor struct {
	store DocStore
}

// NewExecutor creates a stage executor. The store is used only for
// best-effort error audit entries and may be nil.
func NewExecutor(store DocStore) *Executor {
	return &Executor{store: store}
}

// Chain wraps a stage definition as a pipz processor. The returned error is
// non-nil only for fatal failures (StopOnFirstError or a critical stage), so
// a pipz.Sequence of chained stages aborts exactly when the run must abort.
func (e *Executor) Chain(def stageDef) pipz.Chainable[*Run] {
	return pipz.Apply(pipz.NewIdentity(def.stage.String(), ""), func(ctx context.Context, run *Run) (*Run, error) {
		return run, e.Execute(ctx, run, def)
	})
}

// Execute runs one stage to completion: skip bookkeeping, retries with a
// fixed delay (none after the final attempt), per-attempt timeout, audit
// trail append, and the fatal-vs-absorbed decision.
func (e *Executor) Execute(ctx context.Context, run *Run, def stageDef) error {
	cfg := run.Config

	if !cfg.StageEnabled(def.stage) {
		e.recordSkip(ctx, run, def.stage, "disabled")
		return nil
	}
	if def.skip != nil {
		if skip, reason := def.skip(run); skip {
			e.recordSkip(ctx, run, def.stage, reason)
			return nil
		}
	}

	start := time.Now()
	attempts := cfg.ErrorHandling.MaxRetries + 1
	timeout := cfg.Performance.AttemptTimeout(def.stage)

	var data map[string]any
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		capitan.Emit(ctx, StageStarted,
			FieldTraceID.Field(run.TraceID),
			FieldStageName.Field(def.stage.String()),
			FieldStageNumber.Field(def.stage.Number()),
			FieldAttempt.Field(attempt),
		)

		data, err = e.attempt(ctx, run, def, timeout)
		if err == nil {
			break
		}

		if attempt < attempts {
			capitan.Emit(ctx, StageRetried,
				FieldTraceID.Field(run.TraceID),
				FieldStageName.Field(def.stage.String()),
				FieldAttempt.Field(attempt),
				FieldError.Field(err),
			)
			if !sleepCtx(ctx, cfg.ErrorHandling.RetryDelay) {
				break
			}
		}
	}

	elapsed := time.Since(start)

	if err != nil {
		run.AddResult(StageResult{
			Stage:   def.stage,
			Name:    def.stage.String(),
			Number:  def.stage.Number(),
			Success: false,
			Error:   err.Error(),
			Elapsed: elapsed,
		})
		capitan.Error(ctx, StageFailed,
			FieldTraceID.Field(run.TraceID),
			FieldStageName.Field(def.stage.String()),
			FieldStageDuration.Field(elapsed),
			FieldError.Field(err),
		)
		e.logError(ctx, run, def.stage, err)

		if cfg.Critical(def.stage) {
			return fmt.Errorf("critical stage %s failed: %w", def.stage, err)
		}
		return nil
	}

	run.AddResult(StageResult{
		Stage:   def.stage,
		Name:    def.stage.String(),
		Number:  def.stage.Number(),
		Success: true,
		Data:    data,
		Elapsed: elapsed,
	})
	capitan.Emit(ctx, StageCompleted,
		FieldTraceID.Field(run.TraceID),
		FieldStageName.Field(def.stage.String()),
		FieldStageDuration.Field(elapsed),
	)
	return nil
}

// attempt runs the work once under its deadline. On timeout the work
// goroutine is abandoned, not killed: its result is discarded and the
// attempt context it received is canceled so cancellable calls unwind.
func (e *Executor) attempt(ctx context.Context, run *Run, def stageDef, timeout time.Duration) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data map[string]any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := def.work(attemptCtx, run)
		done <- outcome{data: data, err: err}
	}()

	select {
	case out := <-done:
		return out.data, out.err
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("stage %s timed out after %s: %w", def.stage, timeout, attemptCtx.Err())
	}
}

// recordSkip appends the skipped audit entry. Skipped stages still occupy
// their slot in the trail so replay stays deterministic.
func (e *Executor) recordSkip(ctx context.Context, run *Run, stage Stage, reason string) {
	run.AddResult(StageResult{
		Stage:   stage,
		Name:    stage.String(),
		Number:  stage.Number(),
		Success: true,
		Skipped: true,
		Data:    map[string]any{"reason": reason},
	})
	capitan.Emit(ctx, StageSkipped,
		FieldTraceID.Field(run.TraceID),
		FieldStageName.Field(stage.String()),
		FieldReason.Field(reason),
	)
}

// logError writes a best-effort audit document. Failures to log are
// swallowed: the audit trail must never take a request down with it.
func (e *Executor) logError(ctx context.Context, run *Run, stage Stage, stageErr error) {
	if e.store == nil {
		return
	}
	path := fmt.Sprintf("logs/errors/%s/%s", run.TraceID, stage)
	_ = e.store.Set(ctx, path, map[string]any{
		"subjectId": run.Input.SubjectID,
		"stage":     stage.String(),
		"error":     stageErr.Error(),
		"at":        time.Now().UTC(),
	})
}

// sleepCtx waits for d or until the context is canceled. Returns false when
// the wait was interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
