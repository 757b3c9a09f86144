package famulus

import (
	"context"
	"testing"
)

func preferenceCandidate(content, sentiment string) MemoryCandidate {
	return MemoryCandidate{
		Type:    MemoryTypePreference,
		Content: content,
		Slots: map[string]Slot{
			"subject":   {Value: content, Filled: true},
			"sentiment": {Value: sentiment, Filled: true},
		},
		Complete:   true,
		Confidence: 0.8,
	}
}

func TestClassifyAgainstDuplicate(t *testing.T) {
	existing := StoredMemory{ID: "mem-1", Content: "I love hiking", Status: MemoryActive}
	verdict := ClassifyAgainst(preferenceCandidate("I love hiking", "positive"), existing)

	if verdict.Category != ConflictDuplicate {
		t.Errorf("expected DUPLICATE, got %s", verdict.Category)
	}
	if verdict.ExistingMemoryID != "mem-1" {
		t.Errorf("expected existing id attached, got %q", verdict.ExistingMemoryID)
	}
}

func TestClassifyAgainstConflictOnSentimentFlip(t *testing.T) {
	existing := StoredMemory{
		ID:      "mem-1",
		Content: "I love hiking",
		Type:    MemoryTypePreference,
		Slots:   map[string]string{"sentiment": "positive"},
	}
	verdict := ClassifyAgainst(preferenceCandidate("I hate hiking", "negative"), existing)

	if verdict.Category != ConflictConflict {
		t.Errorf("expected CONFLICT on sentiment flip, got %s", verdict.Category)
	}
}

func TestClassifyAgainstUpdate(t *testing.T) {
	existing := StoredMemory{
		ID:      "mem-1",
		Content: "love hiking trails",
		Type:    MemoryTypePreference,
		Slots:   map[string]string{"sentiment": "positive"},
	}
	verdict := ClassifyAgainst(preferenceCandidate("I love hiking", "positive"), existing)

	if verdict.Category != ConflictUpdate {
		t.Errorf("expected UPDATE for related agreeing content, got %s", verdict.Category)
	}
}

func TestClassifyAgainstAddition(t *testing.T) {
	existing := StoredMemory{ID: "mem-1", Content: "my birthday is in June"}
	verdict := ClassifyAgainst(preferenceCandidate("I love hiking", "positive"), existing)

	if verdict.Category != ConflictAddition {
		t.Errorf("expected ADDITION for unrelated content, got %s", verdict.Category)
	}
	if verdict.ExistingMemoryID != "" {
		t.Errorf("additions bind to no existing memory, got %q", verdict.ExistingMemoryID)
	}
}

func TestConflictStageDropsDuplicates(t *testing.T) {
	run := newTestRun("I love hiking")
	run.Candidates = []MemoryCandidate{preferenceCandidate("I love hiking", "positive")}
	run.Memories = []StoredMemory{{ID: "mem-1", Content: "I love hiking", Status: MemoryActive}}
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, conflictStage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !run.Candidates[0].Dropped {
		t.Error("duplicate candidate must be dropped")
	}
	if len(run.CleanCandidates()) != 0 {
		t.Error("duplicate must not reach the clean set")
	}
}

func TestConflictStageKeepsDuplicatesWhenConfigured(t *testing.T) {
	run := newTestRun("I love hiking")
	run.Config.Conflict.DropDuplicate = false
	run.Candidates = []MemoryCandidate{preferenceCandidate("I love hiking", "positive")}
	run.Memories = []StoredMemory{{ID: "mem-1", Content: "I love hiking", Status: MemoryActive}}
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, conflictStage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Candidates[0].Dropped {
		t.Error("duplicate must survive when auto-drop is off")
	}
}

func TestConflictStageQueuesConflicts(t *testing.T) {
	run := newTestRun("I hate hiking")
	run.Candidates = []MemoryCandidate{preferenceCandidate("I hate hiking", "negative")}
	run.Memories = []StoredMemory{{
		ID:      "mem-1",
		Content: "I love hiking",
		Type:    MemoryTypePreference,
		Slots:   map[string]string{"sentiment": "positive"},
		Status:  MemoryActive,
	}}
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, conflictStage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !run.Candidates[0].Dropped {
		t.Error("conflicted candidate must leave the clean set")
	}
	if len(run.Conflicts) != 1 {
		t.Fatalf("expected 1 pending conflict, got %d", len(run.Conflicts))
	}
	if run.Conflicts[0].ExistingMemoryID != "mem-1" {
		t.Errorf("pending conflict must name the existing memory, got %q", run.Conflicts[0].ExistingMemoryID)
	}
	if run.Conflicts[0].ExistingContent != "I love hiking" {
		t.Errorf("pending conflict must carry the existing content, got %q", run.Conflicts[0].ExistingContent)
	}
}

func TestConflictStageSkippedWithoutCandidates(t *testing.T) {
	run := newTestRun("hello")
	exec := NewExecutor(nil)

	if err := exec.Execute(context.Background(), run, conflictStage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.Results()[0].Skipped {
		t.Error("conflict check must be skipped with no candidates")
	}
}

func TestBestVerdictComparesOnlyMostSimilar(t *testing.T) {
	candidate := preferenceCandidate("I love hiking", "positive")

	// Ten unrelated memories plus one duplicate; with a compare limit of 5
	// the duplicate must still be found because ranking happens first.
	memories := make([]StoredMemory, 0, 11)
	for i := 0; i < 10; i++ {
		memories = append(memories, StoredMemory{ID: "other", Content: "completely unrelated gardening fact"})
	}
	memories = append(memories, StoredMemory{ID: "dup", Content: "I love hiking"})

	verdict := bestVerdict(candidate, memories, 5)
	if verdict.Category != ConflictDuplicate {
		t.Errorf("expected ranked comparison to find the duplicate, got %s", verdict.Category)
	}
}
