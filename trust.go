package famulus

import (
	"context"
	"strings"
)

// Trust scoring parameters.
const (
	trustBase          = 0.5
	trustExplicitBoost = 0.3
	trustContentPenalty = 0.2
	trustAcceptScore   = 0.7
	trustRejectScore   = 0.3
	acceptConfidenceFloor = 0.8
)

// hedgeWords lower trust: hearsay and uncertainty markers suggest the fact
// is not the subject's own.
var hedgeWords = []string{"maybe", "i think", "probably", "someone said", "i heard", "not sure"}

// EvaluateTrust scores one candidate from its content, its provenance, and
// whether the message was an explicit persistence command.
func EvaluateTrust(candidate MemoryCandidate) TrustAssessment {
	score := trustBase

	if candidate.Provenance == ProvenanceExplicit {
		score += trustExplicitBoost
	}

	lower := strings.ToLower(candidate.Content)
	for _, hedge := range hedgeWords {
		if strings.Contains(lower, hedge) {
			score -= trustContentPenalty
			break
		}
	}

	// Very short content carries little verifiable substance.
	if len(wordsOf(candidate.Content)) < 2 {
		score -= trustContentPenalty
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	action := TrustFlag
	switch {
	case score >= trustAcceptScore:
		action = TrustAccept
	case score < trustRejectScore:
		action = TrustReject
	}

	return TrustAssessment{Score: score, Action: action}
}

// trustStage scores every clean candidate. Accepted candidates get their
// confidence raised to the floor; rejected candidates below the reject
// score are dropped entirely. Suppressed while the run holds for
// clarification.
func trustStage() stageDef {
	return stageDef{
		stage: StageTrustEvaluation,
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
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			accepted, rejected := 0, 0
			for i := range run.Candidates {
				candidate := &run.Candidates[i]
				if candidate.Dropped || candidate.Held {
					continue
				}

				assessment := EvaluateTrust(*candidate)
				candidate.Trust = &assessment

				switch assessment.Action {
				case TrustAccept:
					if candidate.Confidence < acceptConfidenceFloor {
						candidate.Confidence = acceptConfidenceFloor
					}
					accepted++
				case TrustReject:
					candidate.Dropped = true
					rejected++
				}
			}

			return map[string]any{
				"accepted": accepted,
				"rejected": rejected,
			}, nil
		},
	}
}
