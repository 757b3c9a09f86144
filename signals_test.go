package famulus

import (
	"context"
	"sync"
	"testing"

	"github.com/zoobzio/capitan"
)

func TestStageSignalsCarryIdentity(t *testing.T) {
	var mu sync.Mutex
	var names []string

	listener := capitan.Hook(StageCompleted, func(_ context.Context, e *capitan.Event) {
		if name, ok := FieldStageName.From(e); ok {
			mu.Lock()
			names = append(names, name)
			mu.Unlock()
		}
	})
	defer listener.Close()

	run := newTestRun("hello")
	exec := NewExecutor(nil)
	_ = exec.Execute(context.Background(), run, analysisStage())

	mu.Lock()
	defer mu.Unlock()
	if len(names) != 1 || names[0] != "input_analysis" {
		t.Errorf("expected a completion signal for input_analysis, got %v", names)
	}
}

func TestRetrySignalsCountAttempts(t *testing.T) {
	var mu sync.Mutex
	var attempts []int

	listener := capitan.Hook(StageRetried, func(_ context.Context, e *capitan.Event) {
		if attempt, ok := FieldAttempt.From(e); ok {
			mu.Lock()
			attempts = append(attempts, attempt)
			mu.Unlock()
		}
	})
	defer listener.Close()

	run := newTestRun("   ")
	run.Config.ErrorHandling.MaxRetries = 2
	exec := NewExecutor(nil)
	_ = exec.Execute(context.Background(), run, analysisStage())

	mu.Lock()
	defer mu.Unlock()
	// Two retry signals: after attempts 1 and 2, none after the final one.
	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry signals, got %d", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("retry signals must carry the failed attempt number, got %v", attempts)
	}
}

func TestRejectionSignalCarriesReason(t *testing.T) {
	var mu sync.Mutex
	var reason string

	listener := capitan.Hook(PipelineRejected, func(_ context.Context, e *capitan.Event) {
		if r, ok := FieldReason.From(e); ok {
			mu.Lock()
			reason = r
			mu.Unlock()
		}
	})
	defer listener.Close()

	cfg := newTestConfig()
	cfg.Master.PipelineEnabled = false
	gate := NewGate(nil)
	_ = gate.Admit(context.Background(), cfg, "subject-1")

	mu.Lock()
	defer mu.Unlock()
	if reason != TagPipelineDisabled {
		t.Errorf("expected %s, got %q", TagPipelineDisabled, reason)
	}
}
