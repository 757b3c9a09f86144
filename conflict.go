package famulus

import (
	"context"
	"sort"

	"github.com/zoobzio/capitan"
)

// Similarity bands for verdict classification.
const (
	duplicateSimilarity = 0.9
	relatedSimilarity   = 0.5
)

// ClassifyAgainst relates one candidate to one stored fact.
//
// Near-identical content is a DUPLICATE. Related content agreeing with the
// stored fact is an UPDATE (newer phrasing of the same thing); related
// content disagreeing (same subject, opposite sentiment, or an explicit
// replacement) is a CONFLICT. Unrelated content is an ADDITION.
func ClassifyAgainst(candidate MemoryCandidate, existing StoredMemory) ConflictVerdict {
	similarity := keywordOverlap(existing.Content, candidate.Content)

	switch {
	case similarity >= duplicateSimilarity:
		return ConflictVerdict{
			Category:         ConflictDuplicate,
			Confidence:       similarity,
			ExistingMemoryID: existing.ID,
		}
	case similarity >= relatedSimilarity:
		if sentimentDisagrees(candidate, existing) {
			return ConflictVerdict{
				Category:         ConflictConflict,
				Confidence:       similarity,
				ExistingMemoryID: existing.ID,
			}
		}
		return ConflictVerdict{
			Category:         ConflictUpdate,
			Confidence:       similarity,
			ExistingMemoryID: existing.ID,
		}
	default:
		return ConflictVerdict{Category: ConflictAddition, Confidence: 1 - similarity}
	}
}

// sentimentDisagrees detects a preference flip against a stored preference.
func sentimentDisagrees(candidate MemoryCandidate, existing StoredMemory) bool {
	if candidate.Type != MemoryTypePreference {
		return false
	}
	newSentiment, ok := candidate.Slots["sentiment"]
	if !ok {
		return false
	}
	oldSentiment, ok := existing.Slots["sentiment"]
	if !ok {
		return false
	}
	return newSentiment.Value != oldSentiment
}

// conflictStage reconciles candidates against stored facts. Runs only when
// candidates exist. Each candidate is compared against the N most-similar
// stored facts; DUPLICATE candidates are dropped per the auto-resolve
// policy, CONFLICT candidates leave the clean set and queue a pending
// clarification, ADDITION and UPDATE candidates pass through.
func conflictStage() stageDef {
	return stageDef{
		stage: StageConflictCheck,
		skip: func(run *Run) (bool, string) {
			if run.Blocked {
				return true, "blocked"
			}
			if len(run.Candidates) == 0 {
				return true, "no_candidates"
			}
			return false, ""
		},
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			limit := run.Config.Conflict.CompareLimit
			dropped, conflicted := 0, 0

			for i := range run.Candidates {
				candidate := &run.Candidates[i]
				verdict := bestVerdict(*candidate, run.Memories, limit)
				candidate.Verdict = &verdict

				switch verdict.Category {
				case ConflictDuplicate:
					if run.Config.Conflict.DropDuplicate {
						candidate.Dropped = true
						dropped++
					}
				case ConflictConflict:
					candidate.Dropped = true
					conflicted++
					run.Conflicts = append(run.Conflicts, PendingConflict{
						Candidate:        *candidate,
						ExistingMemoryID: verdict.ExistingMemoryID,
						ExistingContent:  contentOf(run.Memories, verdict.ExistingMemoryID),
					})
					capitan.Emit(ctx, ConflictDetected,
						FieldTraceID.Field(run.TraceID),
						FieldSubjectID.Field(run.Input.SubjectID),
					)
				}
			}

			return map[string]any{
				"dropped":    dropped,
				"conflicted": conflicted,
				"clean":      len(run.CleanCandidates()),
			}, nil
		},
	}
}

// bestVerdict compares a candidate against its most-similar stored facts
// and keeps the strongest relationship found. ADDITION only stands when no
// compared fact relates.
func bestVerdict(candidate MemoryCandidate, memories []StoredMemory, limit int) ConflictVerdict {
	if len(memories) == 0 {
		return ConflictVerdict{Category: ConflictAddition, Confidence: 1}
	}

	ranked := make([]StoredMemory, len(memories))
	copy(ranked, memories)
	sort.SliceStable(ranked, func(i, j int) bool {
		return keywordOverlap(ranked[i].Content, candidate.Content) > keywordOverlap(ranked[j].Content, candidate.Content)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	best := ConflictVerdict{Category: ConflictAddition, Confidence: 1}
	for _, existing := range ranked {
		verdict := ClassifyAgainst(candidate, existing)
		if strongerVerdict(verdict, best) {
			best = verdict
		}
	}
	return best
}

// verdictRank orders categories by how strongly they bind candidate to an
// existing fact.
var verdictRank = map[ConflictCategory]int{
	ConflictAddition:  0,
	ConflictUpdate:    1,
	ConflictConflict:  2,
	ConflictDuplicate: 3,
}

func strongerVerdict(a, b ConflictVerdict) bool {
	if verdictRank[a.Category] != verdictRank[b.Category] {
		return verdictRank[a.Category] > verdictRank[b.Category]
	}
	return a.Confidence > b.Confidence
}

func contentOf(memories []StoredMemory, id string) string {
	for _, m := range memories {
		if m.ID == id {
			return m.Content
		}
	}
	return ""
}
