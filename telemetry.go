package famulus

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// logTimeout bounds the fire-and-forget audit write so an unhealthy store
// cannot pile up logger goroutines.
const logTimeout = 5 * time.Second

// runLogDoc is the per-run audit summary written after the response is
// already on its way to the client.
type runLogDoc struct {
	TraceID       string        `json:"traceId"`
	SubjectID     string        `json:"subjectId"`
	Intent        string        `json:"intent,omitempty"`
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	MemoriesSaved int           `json:"memoriesSaved"`
	Holding       bool          `json:"holding"`
	Elapsed       time.Duration `json:"elapsedMs"`
	Stages        []StageResult `json:"stages"`
}

// logRun is the post-response logger. It runs on its own goroutine with a
// detached context: the request is already answered, so every failure here
// is swallowed.
func (p *Pipeline) logRun(run *Run, resp *Response) {
	ctx, cancel := context.WithTimeout(context.Background(), logTimeout)
	defer cancel()

	elapsed := run.Elapsed()

	intent := ""
	if run.Intent != nil {
		intent = run.Intent.Bucket
	}
	capitan.Emit(ctx, PipelineCompleted,
		FieldTraceID.Field(run.TraceID),
		FieldSubjectID.Field(run.Input.SubjectID),
		FieldIntent.Field(intent),
		FieldRunDuration.Field(elapsed),
		FieldSavedCount.Field(len(run.Saved)),
	)

	if threshold := run.Config.Notifications.SlowResponse; threshold > 0 && elapsed > threshold {
		capitan.Emit(ctx, PipelineSlow,
			FieldTraceID.Field(run.TraceID),
			FieldRunDuration.Field(elapsed),
		)
	}

	if p.store == nil {
		return
	}

	doc := runLogDoc{
		TraceID:       run.TraceID,
		SubjectID:     run.Input.SubjectID,
		Success:       resp.Success,
		Error:         resp.Error,
		MemoriesSaved: len(run.Saved),
		Holding:       run.Holding,
		Elapsed:       elapsed,
		Stages:        run.Results(),
	}
	if run.Intent != nil {
		doc.Intent = run.Intent.Bucket
	}

	_ = p.store.Set(ctx, "logs/runs/"+run.TraceID, doc)
}
