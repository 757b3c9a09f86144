package famulus

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// TagInvalidRequest marks malformed input rejected before any processing.
const TagInvalidRequest = "INVALID_REQUEST"

// StageSummary is the client-facing digest of one audit-trail entry,
// populated only when debug detail is enabled for the subject.
type StageSummary struct {
	Name      string `json:"name"`
	Number    int    `json:"number"`
	Success   bool   `json:"success"`
	Skipped   bool   `json:"skipped"`
	ElapsedMs int64  `json:"elapsedMs"`
	Error     string `json:"error,omitempty"`
}

// Response is the complete result of one pipeline run. Chat always returns
// one: errors are never surfaced raw to the end user.
type Response struct {
	Success        bool           `json:"success"`
	Response       string         `json:"response"`
	ConversationID string         `json:"conversationId,omitempty"`
	TotalTimeMs    int64          `json:"totalTimeMs"`
	MemoriesUsed   int            `json:"memoriesUsed"`
	MemoriesSaved  int            `json:"memoriesSaved"`
	Intent         string         `json:"intent,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	Error          string         `json:"error,omitempty"`
	Actions        []Action       `json:"actions,omitempty"`
	SavedMemories  []SavedMemory  `json:"savedMemories,omitempty"`
	StageSummary   []StageSummary `json:"stageSummary,omitempty"`
	Debug          map[string]any `json:"debug,omitempty"`
}

// Pipeline is the stage-execution engine. One Pipeline serves many
// concurrent runs; runs share no mutable state beyond the stores, which
// provide their own atomicity.
type Pipeline struct {
	store     DocStore
	memories  MemoryStore
	providers *Registry
	gate      *Gate
	executor  *Executor
}

// New creates a pipeline over the given stores and provider registry.
func New(store DocStore, memories MemoryStore, providers *Registry) *Pipeline {
	return &Pipeline{
		store:     store,
		memories:  memories,
		providers: providers,
		gate:      NewGate(store),
		executor:  NewExecutor(store),
	}
}

// Chat pushes one inbound message through the full stage sequence and
// always returns a complete response. The configuration snapshot is fetched
// once here and passed through every component; the stored document may
// change between calls but never affects a run in flight.
func (p *Pipeline) Chat(ctx context.Context, input Input) *Response {
	start := time.Now()

	if input.SubjectID == "" || strings.TrimSpace(input.Message) == "" {
		return &Response{
			Success:     false,
			Response:    "I need a message to work with.",
			Error:       TagInvalidRequest,
			TotalTimeMs: time.Since(start).Milliseconds(),
		}
	}

	cfg := LoadConfig(ctx, p.store)

	if rejection := p.gate.Admit(ctx, cfg, input.SubjectID); rejection != nil {
		return &Response{
			Success:        false,
			Response:       rejection.Message,
			Error:          rejection.Tag,
			ConversationID: input.ConversationID,
			TotalTimeMs:    time.Since(start).Milliseconds(),
		}
	}

	run := NewRun(input, cfg)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Performance.GlobalTimeout)
	defer cancel()

	capitan.Emit(runCtx, PipelineStarted,
		FieldTraceID.Field(run.TraceID),
		FieldSubjectID.Field(input.SubjectID),
	)

	sequence := pipz.NewSequence(pipz.NewIdentity("famulus-pipeline", ""), p.stageChain()...)
	if _, err := sequence.Process(runCtx, run); err != nil {
		// A critical stage failed; the remaining slots are recorded as
		// skipped so the one-result-per-stage invariant holds for replay.
		p.fillRemaining(runCtx, run)
		capitan.Error(runCtx, PipelineAborted,
			FieldTraceID.Field(run.TraceID),
			FieldError.Field(err),
		)
	}

	resp := p.buildResponse(run, input, start)
	go p.logRun(run, resp)
	return resp
}

// stageChain assembles the executor-wrapped stage sequence. The completion
// backstop sits directly after the completion gate and is not a configured
// stage: it can be neither disabled nor skipped.
func (p *Pipeline) stageChain() []pipz.Chainable[*Run] {
	asm := &assembler{store: p.store, memories: p.memories, providers: p.providers}
	res := &responder{providers: p.providers}

	defs := []stageDef{
		analysisStage(),
		classificationStage(),
		confidenceGateStage(),
		resolutionStage(),
		recallStage(p.memories),
		extractionStage(),
		conflictStage(),
		completionStage(),
		trustStage(),
		decisionStage(p.memories),
		asm.assemblyStage(),
		res.responseStage(),
	}

	chain := make([]pipz.Chainable[*Run], 0, len(defs)+1)
	for _, def := range defs {
		chain = append(chain, p.executor.Chain(def))
		if def.stage == StageCompletionGate {
			chain = append(chain, completionBackstop())
		}
	}
	return chain
}

// fillRemaining records skipped results for every stage after the abort
// point.
func (p *Pipeline) fillRemaining(ctx context.Context, run *Run) {
	for _, stage := range Stages()[run.ResultCount():] {
		p.executor.recordSkip(ctx, run, stage, "aborted")
	}
}

// buildResponse assembles the response envelope from the finished run.
func (p *Pipeline) buildResponse(run *Run, input Input, start time.Time) *Response {
	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	resp := &Response{
		Success:        true,
		ConversationID: conversationID,
		TotalTimeMs:    time.Since(start).Milliseconds(),
		MemoriesUsed:   len(run.Memories),
		MemoriesSaved:  len(run.Saved),
		Actions:        BuildActions(run),
		SavedMemories:  run.Saved,
	}

	if run.Intent != nil {
		resp.Intent = run.Intent.Bucket
	}

	switch {
	case run.Blocked:
		resp.Response = run.Clarification
	case run.Reply != nil:
		resp.Response = run.Reply.Text
		resp.Provider = run.Reply.Provider
	default:
		resp.Response = run.Config.ErrorHandling.FallbackMessage
	}

	if run.Config.DebugFor(input.SubjectID, input.Debug) {
		for _, result := range run.Results() {
			resp.StageSummary = append(resp.StageSummary, StageSummary{
				Name:      result.Name,
				Number:    result.Number,
				Success:   result.Success,
				Skipped:   result.Skipped,
				ElapsedMs: result.Elapsed.Milliseconds(),
				Error:     result.Error,
			})
		}
		resp.Debug = map[string]any{
			"traceId": run.TraceID,
			"holding": run.Holding,
		}
		if run.Intent != nil {
			resp.Debug["intentScores"] = run.Intent.Scores
		}
		if run.Assembled != nil {
			resp.Debug["contextTokens"] = run.Assembled.Tokens
		}
	}

	return resp
}
