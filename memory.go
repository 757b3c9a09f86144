package famulus

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by DocStore.Get when no document exists at a path.
var ErrNotFound = errors.New("document not found")

// Write is one entry of an atomic batch commit.
type Write struct {
	Path string
	Doc  any
}

// DocStore is the keyed, hierarchical document store the orchestrator reads
// configuration, rate-limit windows, and session state from, and writes
// audit logs and counters to. Exact paths are a persistence-layer concern.
type DocStore interface {
	// Get loads the document at path into out. Returns ErrNotFound when
	// the path is empty.
	Get(ctx context.Context, path string, out any) error

	// Set writes the document at path, replacing any existing one.
	Set(ctx context.Context, path string, doc any) error

	// BatchCommit applies all writes as a single atomic operation.
	BatchCommit(ctx context.Context, writes []Write) error
}

// MemoryStatus is the lifecycle state of a stored fact.
type MemoryStatus string

const (
	MemoryActive   MemoryStatus = "active"
	MemoryInactive MemoryStatus = "inactive"
)

// StoredMemory is a persisted fact about a subject.
type StoredMemory struct {
	ID        string            `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()" json:"id"`
	SubjectID string            `db:"subject_id" type:"text" constraints:"notnull" json:"subjectId"`
	Type      string            `db:"type" type:"text" constraints:"notnull" json:"type"`
	Content   string            `db:"content" type:"text" constraints:"notnull" json:"content"`
	Slots     map[string]string `db:"slots" type:"jsonb" default:"'{}'" json:"slots"`
	Status    MemoryStatus      `db:"status" type:"text" constraints:"notnull" json:"status"`
	Created   time.Time         `db:"created" type:"timestamp" constraints:"notnull" json:"created"`
	Updated   time.Time         `db:"updated" type:"timestamp" constraints:"notnull" json:"updated"`
}

// Event is a persisted calendar entry used for the context lookahead layer.
type Event struct {
	ID        string    `db:"id" type:"uuid" constraints:"primarykey" default:"gen_random_uuid()" json:"id"`
	SubjectID string    `db:"subject_id" type:"text" constraints:"notnull" json:"subjectId"`
	Title     string    `db:"title" type:"text" constraints:"notnull" json:"title"`
	StartsAt  time.Time `db:"starts_at" type:"timestamp" constraints:"notnull" json:"startsAt"`
}

// MemoryStore is the persistence surface for stored facts and events. The
// batch commit is the only multi-record durability boundary in a run and
// must be atomic: partial persistence within one run cannot occur.
type MemoryStore interface {
	// Search returns up to limit stored facts for a subject, most relevant
	// to the query first.
	Search(ctx context.Context, subjectID, query string, limit int) ([]StoredMemory, error)

	// SaveBatch persists all memories in one atomic write and returns the
	// assigned ids in input order.
	SaveBatch(ctx context.Context, memories []StoredMemory) ([]string, error)

	// Update replaces the content and slots of an existing memory.
	Update(ctx context.Context, memory StoredMemory) error

	// Reactivate flips an inactive memory back to active.
	Reactivate(ctx context.Context, id string) error

	// UpcomingEvents returns events for a subject starting within the
	// lookahead window, soonest first.
	UpcomingEvents(ctx context.Context, subjectID string, within time.Duration) ([]Event, error)
}
