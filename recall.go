package famulus

import (
	"context"
	"fmt"
)

// memoryQueryLimit caps how many stored facts one run pulls into context.
const memoryQueryLimit = 20

// recallStage retrieves the stored facts relevant to the message. Skipped
// when the resolved intent needs no query. For recall intents it also
// produces a timeline-style summary for the client.
func recallStage(memories MemoryStore) stageDef {
	return stageDef{
		stage: StageMemoryQuery,
		skip: func(run *Run) (bool, string) {
			if run.Blocked {
				return true, "blocked"
			}
			if run.Intent != nil && !run.Intent.NeedsQuery {
				return true, "intent_no_query"
			}
			return false, ""
		},
		work: func(ctx context.Context, run *Run) (map[string]any, error) {
			query := run.Input.Message
			if run.Analysis != nil {
				query = run.Analysis.Normalized
			}

			found, err := memories.Search(ctx, run.Input.SubjectID, query, memoryQueryLimit)
			if err != nil {
				return nil, fmt.Errorf("memory search failed: %w", err)
			}
			run.Memories = found

			if run.Intent != nil && run.Intent.Bucket == BucketMemoryRecall && len(found) > 0 {
				run.Timeline = buildTimeline(found)
			}

			return map[string]any{
				"memoriesFound": len(found),
				"timeline":      run.Timeline != nil,
			}, nil
		},
	}
}

// buildTimeline renders queried facts as a newest-first timeline summary.
func buildTimeline(memories []StoredMemory) *TimelineSummary {
	entries := make([]TimelineItem, 0, len(memories))
	for _, m := range memories {
		entries = append(entries, TimelineItem{
			When:    m.Created.Format("2006-01-02"),
			Content: m.Content,
		})
	}
	return &TimelineSummary{
		Title:   fmt.Sprintf("%d things I know", len(memories)),
		Entries: entries,
	}
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true,
	"you": true, "are": true, "was": true, "that": true, "have": true,
}

// keywordOverlap scores two texts by shared words. Used for both memory
// search ranking in the mock stores and conflict similarity.
func keywordOverlap(a, b string) float64 {
	wordsA := wordsOf(a)
	wordsB := wordsOf(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		if len(w) > 2 && !stopwords[w] {
			setA[w] = struct{}{}
		}
	}

	shared := 0
	counted := make(map[string]struct{})
	for _, w := range wordsB {
		if _, ok := setA[w]; ok {
			if _, seen := counted[w]; !seen {
				shared++
				counted[w] = struct{}{}
			}
		}
	}

	denom := len(setA)
	if denom == 0 {
		return 0
	}
	return float64(shared) / float64(denom)
}
