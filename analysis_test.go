package famulus

import (
	"context"
	"strings"
	"testing"
)

func TestNormalizeMessage(t *testing.T) {
	got := NormalizeMessage("  “Hello”   there\n\n‘friend’  ")
	want := `"Hello" there 'friend'`
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("expected 2 tokens for 8 chars, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", got)
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := DetectLanguage(strings.Fields("hola gracias por la ayuda")); got != "es" {
		t.Errorf("expected es, got %s", got)
	}
	if got := DetectLanguage(strings.Fields("remember that i love hiking")); got != "en" {
		t.Errorf("expected en, got %s", got)
	}
	// A single stray marker word should not flip the language.
	if got := DetectLanguage(strings.Fields("send la report please")); got != "en" {
		t.Errorf("expected en for single stray marker, got %s", got)
	}
}

func TestAnalysisStageNormalizes(t *testing.T) {
	run := newTestRun("  remember   that I love hiking  ")
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, analysisStage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Analysis == nil {
		t.Fatal("expected analysis output")
	}
	if run.Analysis.Normalized != "remember that I love hiking" {
		t.Errorf("unexpected normalization: %q", run.Analysis.Normalized)
	}
	if run.Analysis.Words != 5 {
		t.Errorf("expected 5 words, got %d", run.Analysis.Words)
	}
}

func TestAnalysisStageRejectsEmptyMessage(t *testing.T) {
	run := newTestRun("   \n\t  ")
	run.Config.ErrorHandling.MaxRetries = 0
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, analysisStage()); err != nil {
		t.Fatalf("non-critical stage error should be absorbed: %v", err)
	}

	results := run.Results()
	if results[0].Success {
		t.Error("expected analysis to fail on whitespace-only message")
	}
}

func TestAnalysisStageRejectsOversizedMessage(t *testing.T) {
	run := newTestRun(strings.Repeat("word ", 3000))
	run.Config.ErrorHandling.MaxRetries = 0
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, analysisStage()); err != nil {
		t.Fatalf("unexpected fatal error: %v", err)
	}

	results := run.Results()
	if results[0].Success {
		t.Error("expected analysis to fail past the token limit")
	}
	if !strings.Contains(results[0].Error, "token limit") {
		t.Errorf("expected token-limit error, got %q", results[0].Error)
	}
}
