package famulus

import (
	"context"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// Default rendering hints for pending cards.
const (
	pendingCardIcon  = "memory"
	pendingCardColor = "#8884d8"
)

// completionStage is the curiosity module: it decides per candidate whether
// the required slots are filled, and holds the run for clarification when
// any are missing or a conflict clarification is already pending.
func completionStage() stageDef {
	return stageDef{
		stage: StageCompletionGate,
		skip: func(run *Run) (bool, string) {
			if run.Blocked {
				return true, "blocked"
			}
			if len(run.Candidates) == 0 && len(run.Conflicts) == 0 {
				return true, "no_candidates"
			}
			return false, ""
		},
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			held := 0
			for i := range run.Candidates {
				candidate := &run.Candidates[i]
				if candidate.Dropped {
					continue
				}
				if !candidate.Complete || len(candidate.MissingRequiredSlots) > 0 {
					candidate.Held = true
					held++
				}
			}

			if held > 0 || len(run.Conflicts) > 0 {
				run.Holding = true
			}

			return map[string]any{
				"held":             held,
				"pendingConflicts": len(run.Conflicts),
				"holding":          run.Holding,
			}, nil
		},
	}
}

// completionBackstop re-inspects every candidate independent of the
// completion stage's outcome. Downstream persistence must never write a
// half-filled fact, so an incomplete candidate is a hold condition even
// when the completion stage was disabled, errored, or disagreed. It also
// synthesizes the pending cards for client rendering.
//
// This is not a configured stage: it cannot be disabled and appends no
// StageResult.
func completionBackstop() pipz.Chainable[*Run] {
	return pipz.Transform(pipz.NewIdentity("completion-backstop", ""), func(ctx context.Context, run *Run) *Run {
		if run.Blocked {
			return run
		}

		for i := range run.Candidates {
			candidate := &run.Candidates[i]
			if candidate.Dropped || candidate.Held {
				continue
			}
			if !candidate.Complete && len(candidate.MissingRequiredSlots) > 0 {
				candidate.Held = true
			}
		}

		run.PendingCards = run.PendingCards[:0]
		for _, candidate := range run.Candidates {
			if candidate.Dropped || !candidate.Held {
				continue
			}
			run.Holding = true
			run.PendingCards = append(run.PendingCards, PendingCard{
				TempID:        uuid.New().String(),
				Type:          candidate.Type,
				Content:       candidate.Content,
				MissingFields: append([]string(nil), candidate.MissingRequiredSlots...),
				Icon:          pendingCardIcon,
				Color:         pendingCardColor,
			})
		}
		if len(run.Conflicts) > 0 {
			run.Holding = true
		}

		if run.Holding {
			capitan.Emit(ctx, MemoriesHeld,
				FieldTraceID.Field(run.TraceID),
				FieldHeldCount.Field(len(run.PendingCards)),
				FieldConflictCount.Field(len(run.Conflicts)),
			)
		}

		return run
	})
}
