package famulus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/soy"
)

// PgStore implements DocStore and MemoryStore over Postgres. Typed tables go
// through soy; the document store and the atomic batch commit use the raw
// connection because they need jsonb-by-path and transactions.
type PgStore struct {
	memories *soy.Soy[StoredMemory]
	events   *soy.Soy[Event]
	db       *sqlx.DB
}

// NewPgStore creates a Postgres-backed store. The documents table is created
// on demand; soy manages the typed tables.
func NewPgStore(db *sqlx.DB) (*PgStore, error) {
	renderer := postgres.New()

	memories, err := soy.New[StoredMemory](db, "memories", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memories table: %w", err)
	}

	events, err := soy.New[Event](db, "events", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize events table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		path text PRIMARY KEY,
		doc jsonb NOT NULL,
		updated timestamp NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("failed to initialize documents table: %w", err)
	}

	return &PgStore{
		memories: memories,
		events:   events,
		db:       db,
	}, nil
}

// Get loads the document at path into out.
func (s *PgStore) Get(ctx context.Context, path string, out any) error {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT doc FROM documents WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get document %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return nil
}

// Set writes the document at path, replacing any existing one.
func (s *PgStore) Set(ctx context.Context, path string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (path, doc, updated)
		VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated = now()`,
		path, raw)
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", path, err)
	}
	return nil
}

// BatchCommit applies all writes in one transaction.
func (s *PgStore) BatchCommit(ctx context.Context, writes []Write) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, w := range writes {
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", w.Path, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (path, doc, updated)
			VALUES ($1, $2, now())
			ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated = now()`,
			w.Path, raw); err != nil {
			return fmt.Errorf("failed to write document %s: %w", w.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Search returns up to limit active memories for a subject ranked by keyword
// overlap with the query. Ranking happens in Go: the corpus per subject is
// small and the overlap metric matches the one conflict detection uses.
func (s *PgStore) Search(ctx context.Context, subjectID, query string, limit int) ([]StoredMemory, error) {
	rows, err := s.memories.Query().
		Where("subject_id", "=", "subject_id").
		Where("status", "=", "status").
		OrderBy("updated", "desc").
		Exec(ctx, map[string]any{
			"subject_id": subjectID,
			"status":     string(MemoryActive),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}

	results := make([]StoredMemory, len(rows))
	for i, m := range rows {
		results[i] = *m
	}

	sort.SliceStable(results, func(i, j int) bool {
		return keywordOverlap(query, results[i].Content) > keywordOverlap(query, results[j].Content)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SaveBatch persists all memories in one transaction and returns the assigned
// ids in input order. Either every memory lands or none do.
func (s *PgStore) SaveBatch(ctx context.Context, memories []StoredMemory) ([]string, error) {
	if len(memories) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin save batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]string, 0, len(memories))
	for _, m := range memories {
		slots, err := json.Marshal(m.Slots)
		if err != nil {
			return nil, fmt.Errorf("failed to encode slots: %w", err)
		}
		var id string
		err = tx.QueryRowxContext(ctx, `INSERT INTO memories
			(subject_id, type, content, slots, status, created, updated)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			m.SubjectID, m.Type, m.Content, slots, string(m.Status), m.Created, m.Updated,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert memory: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit save batch: %w", err)
	}
	return ids, nil
}

// Update replaces the content and slots of an existing memory.
func (s *PgStore) Update(ctx context.Context, memory StoredMemory) error {
	_, err := s.memories.Modify().
		Set("content", "content").
		Set("slots", "slots").
		Set("updated", "updated").
		Where("id", "=", "id").
		Exec(ctx, map[string]any{
			"content": memory.Content,
			"slots":   memory.Slots,
			"updated": time.Now(),
			"id":      memory.ID,
		})
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}
	return nil
}

// Reactivate flips an inactive memory back to active.
func (s *PgStore) Reactivate(ctx context.Context, id string) error {
	_, err := s.memories.Modify().
		Set("status", "status").
		Set("updated", "updated").
		Where("id", "=", "id").
		Exec(ctx, map[string]any{
			"status":  string(MemoryActive),
			"updated": time.Now(),
			"id":      id,
		})
	if err != nil {
		return fmt.Errorf("failed to reactivate memory: %w", err)
	}
	return nil
}

// UpcomingEvents returns events starting within the lookahead window,
// soonest first.
func (s *PgStore) UpcomingEvents(ctx context.Context, subjectID string, within time.Duration) ([]Event, error) {
	now := time.Now()
	rows, err := s.events.Query().
		Where("subject_id", "=", "subject_id").
		Where("starts_at", ">=", "from").
		Where("starts_at", "<", "until").
		OrderBy("starts_at", "asc").
		Exec(ctx, map[string]any{
			"subject_id": subjectID,
			"from":       now,
			"until":      now.Add(within),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming events: %w", err)
	}

	events := make([]Event, len(rows))
	for i, e := range rows {
		events[i] = *e
	}
	return events, nil
}

// Close closes the underlying database connection.
func (s *PgStore) Close() error {
	return s.db.Close()
}

var (
	_ DocStore    = (*PgStore)(nil)
	_ MemoryStore = (*PgStore)(nil)
)
