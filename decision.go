package famulus

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
)

// DecideSave classifies the outcome for one surviving candidate against the
// stored facts it was compared to.
func DecideSave(candidate MemoryCandidate, memories []StoredMemory) SaveDecision {
	if candidate.Held {
		return DecisionHold
	}
	if candidate.Dropped {
		return DecisionReject
	}

	if candidate.Verdict == nil {
		return DecisionSave
	}

	switch candidate.Verdict.Category {
	case ConflictDuplicate:
		// Duplicate of an inactive memory is worth waking back up.
		for _, m := range memories {
			if m.ID == candidate.Verdict.ExistingMemoryID && m.Status == MemoryInactive {
				return DecisionReactivate
			}
		}
		return DecisionReject
	case ConflictUpdate:
		return DecisionUpdate
	case ConflictConflict:
		return DecisionAskUser
	default:
		return DecisionSave
	}
}

// decisionStage turns surviving candidates into save outcomes and commits
// the save set in one atomic batched write. Save failures are absorbed: the
// run continues with zero memories saved.
func decisionStage(memories MemoryStore) stageDef {
	return stageDef{
		stage: StageSaveDecision,
		skip: func(run *Run) (bool, string) {
			if run.Blocked {
				return true, "blocked"
			}
			if run.Holding {
				return true, "holding"
			}
			if len(run.CleanCandidates()) == 0 {
				return true, "no_candidates"
			}
			return false, ""
		},
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			var toSave []StoredMemory
			var saveCandidates []MemoryCandidate
			var saveOutcomes []int

			for _, candidate := range run.Candidates {
				if candidate.Dropped || candidate.Held {
					continue
				}

				decision := DecideSave(candidate, run.Memories)
				outcome := SaveOutcome{Decision: decision, Candidate: candidate.Content}

				switch decision {
				case DecisionSave:
					toSave = append(toSave, storedFrom(run.Input.SubjectID, candidate))
					saveCandidates = append(saveCandidates, candidate)
					saveOutcomes = append(saveOutcomes, len(run.Outcomes))
				case DecisionUpdate:
					updated := storedFrom(run.Input.SubjectID, candidate)
					updated.ID = candidate.Verdict.ExistingMemoryID
					if err := memories.Update(ctx, updated); err == nil {
						outcome.PersistedID = updated.ID
					}
				case DecisionReactivate:
					if err := memories.Reactivate(ctx, candidate.Verdict.ExistingMemoryID); err == nil {
						outcome.PersistedID = candidate.Verdict.ExistingMemoryID
					}
				}

				run.Outcomes = append(run.Outcomes, outcome)
			}

			if len(toSave) > 0 {
				ids, err := memories.SaveBatch(ctx, toSave)
				if err != nil {
					// Persistence errors do not abort the run; they
					// surface as zero memoriesSaved.
					capitan.Error(ctx, StageFailed,
						FieldTraceID.Field(run.TraceID),
						FieldStageName.Field(StageSaveDecision.String()),
						FieldError.Field(err),
					)
				} else {
					// Ids come back in batch order; outcomes are matched by
					// position so identical-content candidates stay distinct.
					for i, id := range ids {
						run.Saved = append(run.Saved, SavedMemory{
							ID:      id,
							Type:    saveCandidates[i].Type,
							Content: saveCandidates[i].Content,
						})
						run.Outcomes[saveOutcomes[i]].PersistedID = id
					}
					capitan.Emit(ctx, MemoriesSaved,
						FieldTraceID.Field(run.TraceID),
						FieldSubjectID.Field(run.Input.SubjectID),
						FieldSavedCount.Field(len(ids)),
					)
				}
			}

			return map[string]any{
				"outcomes": len(run.Outcomes),
				"saved":    len(run.Saved),
			}, nil
		},
	}
}

// storedFrom converts a save-eligible candidate to its persisted form.
func storedFrom(subjectID string, candidate MemoryCandidate) StoredMemory {
	slots := make(map[string]string, len(candidate.Slots))
	for name, slot := range candidate.Slots {
		if slot.Filled {
			slots[name] = slot.Value
		}
	}
	now := time.Now()
	return StoredMemory{
		SubjectID: subjectID,
		Type:      candidate.Type,
		Content:   candidate.Content,
		Slots:     slots,
		Status:    MemoryActive,
		Created:   now,
		Updated:   now,
	}
}
