package famulus

// Slot is one named field of a memory candidate.
type Slot struct {
	Value  string `json:"value"`
	Filled bool   `json:"filled"`
}

// MemoryCandidate is an unconfirmed fact extracted from a message. It is
// created by the extraction stage and flows through conflict check,
// completion gate, trust evaluation, and save decision. Terminal states are
// persisted, held for clarification, or discarded.
type MemoryCandidate struct {
	Type                 string          `json:"type"`
	Content              string          `json:"content"`
	Slots                map[string]Slot `json:"slots"`
	Confidence           float64         `json:"confidence"`
	Complete             bool            `json:"complete"`
	MissingRequiredSlots []string        `json:"missingRequiredSlots"`
	Provenance           string          `json:"provenanceTag"`

	// Attached by later stages.
	Verdict *ConflictVerdict `json:"verdict,omitempty"`
	Trust   *TrustAssessment `json:"trust,omitempty"`
	Dropped bool             `json:"-"`
	Held    bool             `json:"-"`
}

// ConflictCategory classifies the relationship between a new candidate and
// one existing stored fact.
type ConflictCategory string

const (
	ConflictConflict  ConflictCategory = "CONFLICT"
	ConflictUpdate    ConflictCategory = "UPDATE"
	ConflictAddition  ConflictCategory = "ADDITION"
	ConflictDuplicate ConflictCategory = "DUPLICATE"
)

// ConflictVerdict relates a candidate to at most one existing stored fact.
type ConflictVerdict struct {
	Category         ConflictCategory `json:"category"`
	Confidence       float64          `json:"confidence"`
	ExistingMemoryID string           `json:"existingMemoryId,omitempty"`
}

// PendingConflict is a CONFLICT-classified candidate queued for user
// clarification instead of persistence.
type PendingConflict struct {
	Candidate        MemoryCandidate `json:"candidate"`
	ExistingMemoryID string          `json:"existingMemoryId"`
	ExistingContent  string          `json:"existingContent"`
}

// TrustAction is the trust evaluator's recommendation.
type TrustAction string

const (
	TrustAccept TrustAction = "accept"
	TrustFlag   TrustAction = "flag"
	TrustReject TrustAction = "reject"
)

// TrustAssessment scores a candidate before the save decision runs.
type TrustAssessment struct {
	Score  float64     `json:"trustScore"`
	Action TrustAction `json:"action"`
}

// SaveDecision classifies what the save stage should do with a candidate.
type SaveDecision string

const (
	DecisionSave       SaveDecision = "save"
	DecisionUpdate     SaveDecision = "update"
	DecisionReactivate SaveDecision = "reactivate"
	DecisionKeepBoth   SaveDecision = "keep_both"
	DecisionAskUser    SaveDecision = "ask_user"
	DecisionHold       SaveDecision = "hold"
	DecisionReject     SaveDecision = "reject"
)

// SaveOutcome records the decision reached for one candidate.
type SaveOutcome struct {
	Decision    SaveDecision `json:"decision"`
	PersistedID string       `json:"persistedId,omitempty"`
	Candidate   string       `json:"candidate"`
}

// SavedMemory echoes a committed memory back to the client so it can render
// an inline edit affordance without a re-query.
type SavedMemory struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// PendingCard is the renderable description of a held candidate: what was
// captured and which required fields are still missing.
type PendingCard struct {
	TempID        string   `json:"tempId"`
	Type          string   `json:"type"`
	Content       string   `json:"content"`
	MissingFields []string `json:"missingFields"`
	Icon          string   `json:"icon"`
	Color         string   `json:"color"`
}

// TimelineSummary is optional memory-query output describing the subject's
// recent history, rendered client-side as a timeline.
type TimelineSummary struct {
	Title   string         `json:"title"`
	Entries []TimelineItem `json:"entries"`
}

// TimelineItem is one row of a timeline summary.
type TimelineItem struct {
	When    string `json:"when"`
	Content string `json:"content"`
}
