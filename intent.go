package famulus

import (
	"context"
	"sort"
	"strings"
)

// The five fixed intent buckets.
const (
	BucketMemoryStore  = "memory_store"
	BucketMemoryRecall = "memory_recall"
	BucketSchedule     = "schedule"
	BucketTask         = "task"
	BucketCasual       = "casual"
)

// Intent is the resolved classification of one message.
type Intent struct {
	Bucket          string             `json:"bucket"`
	Confidence      float64            `json:"confidence"`
	Scores          map[string]float64 `json:"scores"`
	Explicit        bool               `json:"explicit"`
	NeedsQuery      bool               `json:"needsQuery"`
	NeedsExtraction bool               `json:"needsExtraction"`
}

// defaultIntentKeywords are the word-boundary keyword buckets used when the
// stored configuration carries none.
func defaultIntentKeywords() map[string][]string {
	return map[string][]string{
		BucketMemoryStore:  {"remember", "note", "save", "dont forget", "keep in mind", "my favorite", "i love", "i like", "i prefer", "i hate"},
		BucketMemoryRecall: {"what did", "when did", "do you know", "do you remember", "recall", "tell me about", "what is my"},
		BucketSchedule:     {"schedule", "calendar", "meeting", "appointment", "event", "tomorrow", "next week"},
		BucketTask:         {"todo", "task", "remind me", "add to", "check off"},
		BucketCasual:       {"hello", "hi", "hey", "thanks", "thank you", "how are you", "good morning"},
	}
}

// sensitiveTerms block persistence-intent messages at the confidence gate.
var sensitiveTerms = []string{"password", "passcode", "credit card", "social security", "pin code"}

// wordsOf splits text into lowercase words, dropping punctuation so
// keyword matches are word-boundary matches.
func wordsOf(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '\'')
	})
}

// matchCount counts whole-word (or whole-phrase) occurrences of keyword.
func matchCount(words []string, keyword string) int {
	kw := strings.Fields(keyword)
	if len(kw) == 0 {
		return 0
	}
	count := 0
	for i := 0; i+len(kw) <= len(words); i++ {
		matched := true
		for j, part := range kw {
			if words[i+j] != strings.ToLower(part) {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

// ClassifyIntent scores every keyword bucket against the message. A single
// match scores base×1; multiple matches in a bucket score
// min(cap, base×count×multiplier). The highest-scoring bucket wins; below
// the confidence threshold the configured default bucket is used instead.
func ClassifyIntent(message string, keywords map[string][]string, cfg IntentConfig) *Intent {
	words := wordsOf(message)

	scores := make(map[string]float64, len(keywords))
	for bucket, terms := range keywords {
		count := 0
		for _, term := range terms {
			count += matchCount(words, term)
		}
		switch {
		case count == 0:
			scores[bucket] = 0
		case count == 1:
			scores[bucket] = cfg.BaseScore
		default:
			score := cfg.BaseScore * float64(count) * cfg.Multiplier
			if score > cfg.ScoreCap {
				score = cfg.ScoreCap
			}
			scores[bucket] = score
		}
	}

	// Deterministic winner: highest score, bucket name as tiebreak.
	buckets := make([]string, 0, len(scores))
	for b := range scores {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)

	winner := cfg.DefaultBucket
	best := 0.0
	for _, b := range buckets {
		if scores[b] > best {
			best = scores[b]
			winner = b
		}
	}

	if best < cfg.MinConfidence {
		winner = cfg.DefaultBucket
	}

	return &Intent{
		Bucket:     winner,
		Confidence: best,
		Scores:     scores,
		Explicit:   isExplicitCommand(message),
	}
}

// isExplicitCommand reports whether the message is a direct instruction to
// persist something ("remember that ...").
func isExplicitCommand(message string) bool {
	lower := strings.ToLower(message)
	for _, prefix := range []string{"remember that", "remember my", "don't forget", "dont forget", "note that"} {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// classificationStage runs the keyword classifier over the normalized
// message.
func classificationStage() stageDef {
	return stageDef{
		stage: StageClassification,
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			message := run.Input.Message
			if run.Analysis != nil {
				message = run.Analysis.Normalized
			}

			keywords := run.Config.Intent.Keywords
			if len(keywords) == 0 {
				keywords = defaultIntentKeywords()
			}

			run.Intent = ClassifyIntent(message, keywords, run.Config.Intent)

			return map[string]any{
				"bucket":     run.Intent.Bucket,
				"confidence": run.Intent.Confidence,
				"explicit":   run.Intent.Explicit,
			}, nil
		},
	}
}

// confidenceGateStage refines the classification and short-circuits blocked
// messages: a persistence intent mentioning sensitive credentials is never
// carried forward, and a clarification prompt replaces the model response.
func confidenceGateStage() stageDef {
	return stageDef{
		stage: StageConfidenceGate,
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			if run.Intent == nil {
				return map[string]any{"passed": true}, nil
			}

			// Explicit commands carry their own confidence.
			if run.Intent.Explicit && run.Intent.Confidence < run.Config.Intent.ScoreCap {
				run.Intent.Confidence = run.Config.Intent.ScoreCap
				run.Intent.Bucket = BucketMemoryStore
			}

			if run.Intent.Bucket == BucketMemoryStore {
				lower := strings.ToLower(run.Input.Message)
				for _, term := range sensitiveTerms {
					if strings.Contains(lower, term) {
						run.Blocked = true
						run.Clarification = "I can't store credentials or payment details. Is there something else you'd like me to remember?"
						return map[string]any{"blocked": true, "reason": "sensitive_content"}, nil
					}
				}
			}

			return map[string]any{"passed": true, "confidence": run.Intent.Confidence}, nil
		},
	}
}

// resolutionStage maps the final bucket onto downstream behavior: whether
// the memory stages run, and which quick replies suit the intent.
func resolutionStage() stageDef {
	return stageDef{
		stage: StageIntentResolution,
		skip:  skipWhenBlocked,
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			if run.Intent == nil {
				run.Intent = &Intent{Bucket: run.Config.Intent.DefaultBucket}
			}

			switch run.Intent.Bucket {
			case BucketMemoryStore:
				run.Intent.NeedsQuery = true
				run.Intent.NeedsExtraction = true
				run.QuickReplies = []string{"What do you remember about me?", "Show my saved notes"}
			case BucketMemoryRecall:
				run.Intent.NeedsQuery = true
				run.QuickReplies = []string{"Tell me more", "Anything else?"}
			case BucketSchedule:
				run.Intent.NeedsQuery = true
				run.Intent.NeedsExtraction = true
				run.QuickReplies = []string{"What's on my calendar?", "Add another event"}
			case BucketTask:
				run.Intent.NeedsExtraction = true
				run.QuickReplies = []string{"Show my tasks", "Remind me later"}
			default:
				run.QuickReplies = []string{"What can you do?", "What do you know about me?"}
			}

			return map[string]any{
				"bucket":          run.Intent.Bucket,
				"needsQuery":      run.Intent.NeedsQuery,
				"needsExtraction": run.Intent.NeedsExtraction,
			}, nil
		},
	}
}

// skipWhenBlocked is the shared runtime skip for stages that must not run
// once a clarification short circuit is in effect.
func skipWhenBlocked(run *Run) (bool, string) {
	if run.Blocked {
		return true, "blocked"
	}
	return false, ""
}
