package famulus

import "time"

// Stage identifies one step of the fixed reasoning sequence. Stage numbers
// are contiguous and ascending; StageResult entries are always produced in
// this order regardless of skips or failures.
type Stage int

const (
	StageInputAnalysis Stage = iota + 1
	StageClassification
	StageConfidenceGate
	StageIntentResolution
	StageMemoryQuery
	StageMemoryExtraction
	StageConflictCheck
	StageCompletionGate
	StageTrustEvaluation
	StageSaveDecision
	StageContextAssembly
	StageResponse
)

var stageNames = map[Stage]string{
	StageInputAnalysis:    "input_analysis",
	StageClassification:   "classification",
	StageConfidenceGate:   "confidence_gate",
	StageIntentResolution: "intent_resolution",
	StageMemoryQuery:      "memory_query",
	StageMemoryExtraction: "memory_extraction",
	StageConflictCheck:    "conflict_check",
	StageCompletionGate:   "completion_gate",
	StageTrustEvaluation:  "trust_evaluation",
	StageSaveDecision:     "save_decision",
	StageContextAssembly:  "context_assembly",
	StageResponse:         "response",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// Number returns the 1-based stage number used in StageResult ordering.
func (s Stage) Number() int {
	return int(s)
}

// Stages returns all pipeline stages in execution order.
func Stages() []Stage {
	return []Stage{
		StageInputAnalysis,
		StageClassification,
		StageConfidenceGate,
		StageIntentResolution,
		StageMemoryQuery,
		StageMemoryExtraction,
		StageConflictCheck,
		StageCompletionGate,
		StageTrustEvaluation,
		StageSaveDecision,
		StageContextAssembly,
		StageResponse,
	}
}

// StageResult records the outcome of one stage attempt sequence. Results are
// appended to the Run's audit trail and never mutated after append.
type StageResult struct {
	Stage   Stage          `json:"stage"`
	Name    string         `json:"name"`
	Number  int            `json:"number"`
	Success bool           `json:"success"`
	Skipped bool           `json:"skipped"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed_ms"`
}
