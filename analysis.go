package famulus

import (
	"context"
	"fmt"
	"strings"
)

// maxMessageTokens bounds the estimated size of an inbound message.
const maxMessageTokens = 2000

// Analysis is the input-analysis stage output: the normalized message plus
// cheap derived signals used by the classifier and context assembly.
type Analysis struct {
	Normalized    string `json:"normalized"`
	TokenEstimate int    `json:"tokenEstimate"`
	Language      string `json:"language"`
	Words         int    `json:"words"`
}

// quoteNormalizer maps typographic quotes to their ASCII forms.
var quoteNormalizer = strings.NewReplacer(
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// languageMarkers is a small keyword-based detector. Whole-word matches are
// counted per language; the message language defaults to English.
var languageMarkers = map[string][]string{
	"es": {"el", "la", "los", "las", "que", "gracias", "hola", "por", "para"},
	"fr": {"le", "la", "les", "est", "bonjour", "merci", "avec", "pour"},
	"de": {"der", "die", "das", "und", "ich", "nicht", "danke", "hallo"},
}

// NormalizeMessage collapses whitespace and straightens quotes.
func NormalizeMessage(message string) string {
	normalized := quoteNormalizer.Replace(message)
	return strings.Join(strings.Fields(normalized), " ")
}

// EstimateTokens applies the length/4 heuristic used throughout the
// pipeline's budgeting.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// DetectLanguage picks the language with the most marker-word hits.
func DetectLanguage(words []string) string {
	best := "en"
	bestHits := 0
	for lang, markers := range languageMarkers {
		hits := 0
		for _, w := range words {
			for _, m := range markers {
				if w == m {
					hits++
				}
			}
		}
		if hits > bestHits {
			best = lang
			bestHits = hits
		}
	}
	// A couple of stray matches should not flip the language.
	if bestHits < 2 {
		return "en"
	}
	return best
}

// analysisStage validates and normalizes the inbound message. Validation
// failure (empty after normalization, token limit exceeded) fails the stage.
func analysisStage() stageDef {
	return stageDef{
		stage: StageInputAnalysis,
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			normalized := NormalizeMessage(run.Input.Message)
			if normalized == "" {
				return nil, fmt.Errorf("message empty after normalization")
			}

			tokens := EstimateTokens(normalized)
			if tokens > maxMessageTokens {
				return nil, fmt.Errorf("message exceeds token limit: %d > %d", tokens, maxMessageTokens)
			}

			words := strings.Fields(strings.ToLower(normalized))
			run.Analysis = &Analysis{
				Normalized:    normalized,
				TokenEstimate: tokens,
				Language:      DetectLanguage(words),
				Words:         len(words),
			}

			return map[string]any{
				"tokenEstimate": tokens,
				"language":      run.Analysis.Language,
				"words":         len(words),
			}, nil
		},
	}
}
