package famulus

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeTestConfig writes a config document tuned for fast tests.
func storeTestConfig(t *testing.T, store *mockDocStore, mutate func(*Config)) {
	t.Helper()
	cfg := newTestConfig()
	cfg.ErrorHandling.MaxRetries = 0
	if mutate != nil {
		mutate(cfg)
	}
	if err := store.Set(context.Background(), ConfigPath, cfg); err != nil {
		t.Fatalf("failed to store config: %v", err)
	}
}

func TestChatInvalidRequest(t *testing.T) {
	registry, _ := newTestRegistry("hi")
	pipeline := New(newMockDocStore(), newMockMemoryStore(), registry)

	resp := pipeline.Chat(context.Background(), Input{SubjectID: "", Message: "hello"})
	if resp.Success {
		t.Error("missing subject must fail validation")
	}
	if resp.Error != TagInvalidRequest {
		t.Errorf("expected %s, got %s", TagInvalidRequest, resp.Error)
	}

	resp = pipeline.Chat(context.Background(), Input{SubjectID: "subject-1", Message: "   "})
	if resp.Success || resp.Error != TagInvalidRequest {
		t.Errorf("blank message must fail validation, got %+v", resp)
	}
}

func TestChatMemoryStoreEndToEnd(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, nil)
	memories := newMockMemoryStore()
	registry, provider := newTestRegistry("Got it, I'll remember that!")
	pipeline := New(store, memories, registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "Remember that I love hiking",
		Debug:     true,
	})

	if !resp.Success {
		t.Fatalf("expected success, got error %s", resp.Error)
	}
	if resp.Response != "Got it, I'll remember that!" {
		t.Errorf("expected model reply, got %q", resp.Response)
	}
	if resp.Intent != BucketMemoryStore {
		t.Errorf("expected memory_store intent, got %s", resp.Intent)
	}
	if resp.MemoriesSaved == 0 {
		t.Error("expected memories saved")
	}
	if memories.savedCount() == 0 {
		t.Error("expected a save batch in the store")
	}
	if provider.callCount() == 0 {
		t.Error("expected a provider call")
	}
	if resp.ConversationID == "" {
		t.Error("a conversation id must be generated when absent")
	}

	// Debug mode exposes the full audit trail: one entry per stage.
	if len(resp.StageSummary) != len(Stages()) {
		t.Errorf("expected %d stage summaries, got %d", len(Stages()), len(resp.StageSummary))
	}
	for i, s := range resp.StageSummary {
		if s.Number != i+1 {
			t.Errorf("stage summaries out of order at %d: number %d", i, s.Number)
		}
	}
}

func TestChatAssemblyDisabledStillResponds(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, func(cfg *Config) {
		cfg.Stages[StageContextAssembly] = false
	})
	registry, provider := newTestRegistry("hello without context")
	pipeline := New(store, newMockMemoryStore(), registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "hello there",
	})

	if !resp.Success {
		t.Fatalf("expected success, got error %s", resp.Error)
	}
	if provider.callCount() == 0 {
		t.Fatal("the provider must still be called with assembly disabled")
	}
	if resp.Response != "hello without context" {
		t.Errorf("expected model reply, got %q", resp.Response)
	}
}

func TestChatMaintenanceModeZeroStages(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, func(cfg *Config) {
		cfg.Master.MaintenanceMode = true
	})
	registry, provider := newTestRegistry("hi")
	pipeline := New(store, newMockMemoryStore(), registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "hello",
		Debug:     true,
	})

	if resp.Success {
		t.Error("maintenance mode must reject")
	}
	if resp.Error != TagMaintenanceMode {
		t.Errorf("expected %s, got %s", TagMaintenanceMode, resp.Error)
	}
	if len(resp.StageSummary) != 0 {
		t.Errorf("rejected requests run zero stages, got %d", len(resp.StageSummary))
	}
	if provider.callCount() != 0 {
		t.Error("no provider call for rejected requests")
	}
}

func TestChatBlockedSensitiveContent(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, nil)
	memories := newMockMemoryStore()
	registry, provider := newTestRegistry("hi")
	pipeline := New(store, memories, registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "Remember that my password is hunter2",
	})

	if !resp.Success {
		t.Fatalf("blocked runs still succeed, got error %s", resp.Error)
	}
	if resp.Response == "" || resp.Response == "hi" {
		t.Errorf("expected a clarification prompt, got %q", resp.Response)
	}
	if provider.callCount() != 0 {
		t.Error("no model call for blocked content")
	}
	if memories.savedCount() != 0 {
		t.Error("credentials must never be persisted")
	}
}

func TestChatCriticalAbortFillsRemainingStages(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, func(cfg *Config) {
		cfg.ErrorHandling.CriticalStages = append(cfg.ErrorHandling.CriticalStages, StageMemoryQuery)
	})
	memories := newMockMemoryStore()
	memories.searchErr = errors.New("search down")
	registry, _ := newTestRegistry("hi")
	pipeline := New(store, memories, registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "What did I say about hiking?",
		Debug:     true,
	})

	if !resp.Success {
		t.Fatal("aborted runs still return a usable response")
	}
	if resp.Response == "" {
		t.Error("expected the fallback message")
	}

	// The audit trail still has one entry per stage: the abort point failed,
	// everything after is recorded as skipped.
	if len(resp.StageSummary) != len(Stages()) {
		t.Fatalf("expected %d stage summaries after abort, got %d", len(Stages()), len(resp.StageSummary))
	}
	failIdx := StageMemoryQuery.Number() - 1
	if resp.StageSummary[failIdx].Success {
		t.Error("the aborting stage must be recorded as failed")
	}
	for i := failIdx + 1; i < len(resp.StageSummary); i++ {
		if !resp.StageSummary[i].Skipped {
			t.Errorf("stage %d must be recorded as skipped after abort", i+1)
		}
	}
}

func TestChatRecallBuildsTimeline(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, nil)
	memories := newMockMemoryStore()
	memories.searchResults = []StoredMemory{
		{ID: "mem-1", Content: "I love hiking", Type: MemoryTypePreference, Created: time.Now()},
		{ID: "mem-2", Content: "I love sailing", Type: MemoryTypePreference, Created: time.Now()},
	}
	registry, _ := newTestRegistry("You love hiking and sailing.")
	pipeline := New(store, memories, registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "What did I say? Tell me about my hobbies",
	})

	if !resp.Success {
		t.Fatalf("expected success, got %s", resp.Error)
	}
	if resp.MemoriesUsed != 2 {
		t.Errorf("expected 2 memories used, got %d", resp.MemoriesUsed)
	}

	var hasTimeline, hasGrid bool
	for _, a := range resp.Actions {
		switch a.Tool {
		case ActionTimeline:
			hasTimeline = true
		case ActionSelectionGrid:
			hasGrid = true
		}
	}
	if !hasTimeline {
		t.Error("recall with results should render a timeline")
	}
	if !hasGrid {
		t.Error("multiple recalled memories should render a selection grid")
	}
}

func TestChatIncompleteCandidateHolds(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, nil)
	memories := newMockMemoryStore()
	registry, _ := newTestRegistry("When is it?")
	pipeline := New(store, memories, registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID: "subject-1",
		Message:   "Schedule a dentist appointment for me",
	})

	if !resp.Success {
		t.Fatalf("expected success, got %s", resp.Error)
	}
	if memories.savedCount() != 0 {
		t.Error("incomplete events must be held, never saved")
	}

	var hasCard bool
	for _, a := range resp.Actions {
		if a.Tool == ActionMemoryCard {
			hasCard = true
		}
		if a.Tool == ActionToast {
			t.Error("no success toast while holding")
		}
	}
	if !hasCard {
		t.Error("held candidates should render a pending memory card")
	}
}

func TestChatEchoesConversationID(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, nil)
	registry, _ := newTestRegistry("hi")
	pipeline := New(store, newMockMemoryStore(), registry)

	resp := pipeline.Chat(context.Background(), Input{
		SubjectID:      "subject-1",
		Message:        "hello",
		ConversationID: "conv-42",
	})

	if resp.ConversationID != "conv-42" {
		t.Errorf("expected echoed conversation id, got %q", resp.ConversationID)
	}
}

func TestChatDebugGatedBySubject(t *testing.T) {
	store := newMockDocStore()
	storeTestConfig(t, store, func(cfg *Config) {
		cfg.Debug.Subjects = []string{"debug-subject"}
	})
	registry, _ := newTestRegistry("hi")
	pipeline := New(store, newMockMemoryStore(), registry)

	resp := pipeline.Chat(context.Background(), Input{SubjectID: "subject-1", Message: "hello"})
	if len(resp.StageSummary) != 0 {
		t.Error("stage detail must be hidden without debug access")
	}

	resp = pipeline.Chat(context.Background(), Input{SubjectID: "debug-subject", Message: "hello"})
	if len(resp.StageSummary) == 0 {
		t.Error("configured debug subjects get stage detail")
	}
}
