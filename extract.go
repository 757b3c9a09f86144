package famulus

import (
	"context"
	"strings"
)

// Memory candidate types produced by extraction.
const (
	MemoryTypePreference = "preference"
	MemoryTypeFact       = "fact"
	MemoryTypeEvent      = "event"
	MemoryTypeNote       = "note"
)

// Provenance tags recorded on candidates.
const (
	ProvenanceExplicit = "explicit_command"
	ProvenanceInferred = "inferred"
)

// requiredSlots names the slots each memory type must fill before the
// candidate is save-eligible.
var requiredSlots = map[string][]string{
	MemoryTypePreference: {"subject", "sentiment"},
	MemoryTypeFact:       {"statement"},
	MemoryTypeEvent:      {"title", "when"},
	MemoryTypeNote:       {"statement"},
}

// preferenceMarkers map sentiment phrases to slot values.
var preferenceMarkers = []struct {
	phrase    string
	sentiment string
}{
	{"i love", "positive"},
	{"i really like", "positive"},
	{"i like", "positive"},
	{"my favorite", "positive"},
	{"i prefer", "positive"},
	{"i enjoy", "positive"},
	{"i hate", "negative"},
	{"i dislike", "negative"},
	{"i can't stand", "negative"},
}

// ExtractCandidates proposes zero or more memory candidates from a message.
// Extraction is heuristic: preference phrases, explicit remember commands,
// and schedule phrasing each yield a typed candidate with slots. Confidence
// reflects how direct the phrasing was.
func ExtractCandidates(message string, intent *Intent) []MemoryCandidate {
	lower := strings.ToLower(message)
	var out []MemoryCandidate

	provenance := ProvenanceInferred
	baseConfidence := 0.6
	if intent != nil && intent.Explicit {
		provenance = ProvenanceExplicit
		baseConfidence = 0.9
	}

	if c, ok := extractPreference(message, lower, provenance, baseConfidence); ok {
		out = append(out, c)
	}

	if c, ok := extractExplicitNote(message, lower, baseConfidence); ok {
		out = append(out, c)
	}

	if intent != nil && intent.Bucket == BucketSchedule {
		if c, ok := extractEvent(message, lower, provenance, baseConfidence); ok {
			out = append(out, c)
		}
	}

	return out
}

// extractPreference captures "I love hiking" style statements.
func extractPreference(message, lower, provenance string, confidence float64) (MemoryCandidate, bool) {
	for _, marker := range preferenceMarkers {
		idx := strings.Index(lower, marker.phrase)
		if idx < 0 {
			continue
		}

		subject := strings.TrimSpace(message[idx+len(marker.phrase):])
		subject = strings.Trim(subject, ".!? ")

		slots := map[string]Slot{
			"subject":   {Value: subject, Filled: subject != ""},
			"sentiment": {Value: marker.sentiment, Filled: true},
		}

		return finishCandidate(MemoryCandidate{
			Type:       MemoryTypePreference,
			Content:    strings.TrimSpace(message),
			Slots:      slots,
			Confidence: confidence,
			Provenance: provenance,
		}), true
	}
	return MemoryCandidate{}, false
}

// extractExplicitNote captures "remember that ..." commands verbatim.
func extractExplicitNote(message, lower string, confidence float64) (MemoryCandidate, bool) {
	for _, prefix := range []string{"remember that", "note that", "don't forget that", "dont forget that"} {
		idx := strings.Index(lower, prefix)
		if idx < 0 {
			continue
		}

		statement := strings.TrimSpace(message[idx+len(prefix):])
		statement = strings.Trim(statement, ".!? ")

		slots := map[string]Slot{
			"statement": {Value: statement, Filled: statement != ""},
		}

		return finishCandidate(MemoryCandidate{
			Type:       MemoryTypeNote,
			Content:    statement,
			Slots:      slots,
			Confidence: confidence,
			Provenance: ProvenanceExplicit,
		}), true
	}
	return MemoryCandidate{}, false
}

// extractEvent captures schedule phrasing. The "when" slot is only filled
// when the message names a day; a missing one makes the candidate
// incomplete and routes it to the completion gate.
func extractEvent(message, lower, provenance string, confidence float64) (MemoryCandidate, bool) {
	var trigger string
	for _, t := range []string{"meeting", "appointment", "event"} {
		if strings.Contains(lower, t) {
			trigger = t
			break
		}
	}
	if trigger == "" {
		return MemoryCandidate{}, false
	}

	when := ""
	for _, day := range []string{"today", "tomorrow", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday", "next week"} {
		if strings.Contains(lower, day) {
			when = day
			break
		}
	}

	slots := map[string]Slot{
		"title": {Value: strings.TrimSpace(message), Filled: true},
		"when":  {Value: when, Filled: when != ""},
	}

	return finishCandidate(MemoryCandidate{
		Type:       MemoryTypeEvent,
		Content:    strings.TrimSpace(message),
		Slots:      slots,
		Confidence: confidence,
		Provenance: provenance,
	}), true
}

// finishCandidate derives Complete and MissingRequiredSlots from the slots.
func finishCandidate(c MemoryCandidate) MemoryCandidate {
	c.MissingRequiredSlots = nil
	for _, name := range requiredSlots[c.Type] {
		slot, ok := c.Slots[name]
		if !ok || !slot.Filled {
			c.MissingRequiredSlots = append(c.MissingRequiredSlots, name)
		}
	}
	c.Complete = len(c.MissingRequiredSlots) == 0
	return c
}

// extractionStage proposes memory candidates from the message. Skipped when
// the resolved intent needs no extraction.
func extractionStage() stageDef {
	return stageDef{
		stage: StageMemoryExtraction,
		skip: func(run *Run) (bool, string) {
			if run.Blocked {
				return true, "blocked"
			}
			if run.Intent != nil && !run.Intent.NeedsExtraction {
				return true, "intent_no_extraction"
			}
			return false, ""
		},
		work: func(_ context.Context, run *Run) (map[string]any, error) {
			message := run.Input.Message
			if run.Analysis != nil {
				message = run.Analysis.Normalized
			}

			run.Candidates = ExtractCandidates(message, run.Intent)

			return map[string]any{
				"candidates": len(run.Candidates),
			}, nil
		},
	}
}
