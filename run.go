package famulus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/zyn"
)

// Input is the immutable description of one inbound message. It is fixed for
// the duration of a pipeline run.
type Input struct {
	SubjectID      string        `json:"subjectId"`
	Message        string        `json:"message"`
	ConversationID string        `json:"conversationId,omitempty"`
	SessionID      string        `json:"sessionId,omitempty"`
	History        []zyn.Message `json:"conversationHistory,omitempty"`
	Profile        map[string]string `json:"userProfile,omitempty"`
	Provider       string        `json:"provider,omitempty"`
	Model          string        `json:"model,omitempty"`
	Debug          bool          `json:"debug,omitempty"`
}

// Reply is the response-stage output.
type Reply struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Degraded     bool // true when the fixed error string was substituted
}

// Run is the accumulating context of one pipeline execution. Stages read
// the outputs of earlier stages and append their own; the StageResult list
// is an append-only audit trail in stage-number order.
//
// A Run is owned by a single request goroutine. Stage execution within a run
// is strictly sequential; the mutex only guards the audit trail, which the
// fire-and-forget logger reads after the run completes.
type Run struct {
	Input  Input
	Config *Config

	TraceID   string
	StartedAt time.Time

	mu      sync.RWMutex
	results []StageResult

	// Classification outputs.
	Analysis *Analysis
	Intent   *Intent

	// Blocked is set by the confidence gate or intent resolution when the
	// message cannot proceed; Clarification carries the prompt returned
	// instead of a model response.
	Blocked       bool
	Clarification string

	// Memory outputs.
	Memories   []StoredMemory
	Timeline   *TimelineSummary
	Candidates []MemoryCandidate
	Conflicts  []PendingConflict

	// Completion gate outputs.
	Holding      bool
	PendingCards []PendingCard

	// Persistence outputs.
	Outcomes []SaveOutcome
	Saved    []SavedMemory

	// Prompt and response outputs.
	Assembled    *Assembled
	Reply        *Reply
	QuickReplies []string
}

// NewRun creates the context object for one pipeline execution.
func NewRun(input Input, cfg *Config) *Run {
	return &Run{
		Input:     input,
		Config:    cfg,
		TraceID:   uuid.New().String(),
		StartedAt: time.Now(),
	}
}

// AddResult appends a stage result to the audit trail. Results must be
// appended in stage-number order; entries are never mutated after append.
func (r *Run) AddResult(res StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

// Results returns a copy of the audit trail in stage-number order.
func (r *Run) Results() []StageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StageResult, len(r.results))
	copy(out, r.results)
	return out
}

// ResultCount returns the number of recorded stage results.
func (r *Run) ResultCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}

// CleanCandidates returns the candidates that survived the conflict check
// and any trust-evaluation drops.
func (r *Run) CleanCandidates() []MemoryCandidate {
	out := make([]MemoryCandidate, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		if c.Dropped {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Elapsed returns the wall-clock duration since the run started.
func (r *Run) Elapsed() time.Duration {
	return time.Since(r.StartedAt)
}

// Clone creates an independent copy of the run for parallel connectors.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &Run{
		Input:         r.Input,
		Config:        r.Config,
		TraceID:       r.TraceID,
		StartedAt:     r.StartedAt,
		Analysis:      r.Analysis,
		Intent:        r.Intent,
		Blocked:       r.Blocked,
		Clarification: r.Clarification,
		Timeline:      r.Timeline,
		Holding:       r.Holding,
		Assembled:     r.Assembled,
		Reply:         r.Reply,
	}

	clone.results = make([]StageResult, len(r.results))
	copy(clone.results, r.results)
	clone.Memories = append([]StoredMemory(nil), r.Memories...)
	clone.Candidates = append([]MemoryCandidate(nil), r.Candidates...)
	clone.Conflicts = append([]PendingConflict(nil), r.Conflicts...)
	clone.PendingCards = append([]PendingCard(nil), r.PendingCards...)
	clone.Outcomes = append([]SaveOutcome(nil), r.Outcomes...)
	clone.Saved = append([]SavedMemory(nil), r.Saved...)
	clone.QuickReplies = append([]string(nil), r.QuickReplies...)

	return clone
}

// Compile-time check: *Run must implement pipz.Cloner[*Run].
var _ interface{ Clone() *Run } = (*Run)(nil)
