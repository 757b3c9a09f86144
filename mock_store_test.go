package famulus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/zyn"
)

// mockDocStore implements DocStore in memory for testing.
type mockDocStore struct {
	mu   sync.RWMutex
	docs map[string][]byte

	getErr   error
	setErr   error
	setCalls int
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{docs: make(map[string][]byte)}
}

func (m *mockDocStore) Get(_ context.Context, path string, out any) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (m *mockDocStore) Set(_ context.Context, path string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.docs[path] = raw
	return nil
}

func (m *mockDocStore) BatchCommit(ctx context.Context, writes []Write) error {
	for _, w := range writes {
		if err := m.Set(ctx, w.Path, w.Doc); err != nil {
			return err
		}
	}
	return nil
}

// mockMemoryStore implements MemoryStore in memory for testing.
type mockMemoryStore struct {
	mu sync.Mutex

	searchResults []StoredMemory
	searchErr     error
	saveErr       error

	savedBatches [][]StoredMemory
	updated      []StoredMemory
	reactivated  []string
	events       []Event
}

func newMockMemoryStore() *mockMemoryStore {
	return &mockMemoryStore{}
}

func (m *mockMemoryStore) Search(_ context.Context, _, _ string, limit int) ([]StoredMemory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.searchErr != nil {
		return nil, m.searchErr
	}
	results := append([]StoredMemory(nil), m.searchResults...)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *mockMemoryStore) SaveBatch(_ context.Context, memories []StoredMemory) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.savedBatches = append(m.savedBatches, append([]StoredMemory(nil), memories...))
	ids := make([]string, len(memories))
	for i := range memories {
		ids[i] = uuid.New().String()
	}
	return ids, nil
}

func (m *mockMemoryStore) Update(_ context.Context, memory StoredMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, memory)
	return nil
}

func (m *mockMemoryStore) Reactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactivated = append(m.reactivated, id)
	return nil
}

func (m *mockMemoryStore) UpcomingEvents(_ context.Context, _ string, _ time.Duration) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...), nil
}

func (m *mockMemoryStore) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, batch := range m.savedBatches {
		total += len(batch)
	}
	return total
}

// mockProvider implements Provider for testing without a real endpoint.
type mockProvider struct {
	mu    sync.Mutex
	name  string
	reply string
	err   error
	delay time.Duration
	calls int
}

func (m *mockProvider) Call(ctx context.Context, _ []zyn.Message, _ float32) (*zyn.ProviderResponse, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &zyn.ProviderResponse{
		Content: m.reply,
		Usage:   zyn.TokenUsage{Prompt: 10, Completion: 20, Total: 30},
	}, nil
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// newTestConfig returns defaults with timeouts shortened for tests.
func newTestConfig() *Config {
	cfg := DefaultConfig()
	cfg.ErrorHandling.RetryDelay = time.Millisecond
	cfg.Performance.GlobalTimeout = 5 * time.Second
	cfg.Performance.StageTimeout = 500 * time.Millisecond
	cfg.Performance.LLMTimeout = 100 * time.Millisecond
	return cfg
}

// newTestRun creates a run without going through the admission gate.
func newTestRun(message string) *Run {
	return NewRun(Input{SubjectID: "subject-1", Message: message}, newTestConfig())
}

// newTestRegistry registers a single always-succeeding provider under the
// default provider names.
func newTestRegistry(reply string) (*Registry, *mockProvider) {
	provider := &mockProvider{name: "openai", reply: reply}
	registry := NewRegistry()
	registry.Register("openai", provider)
	registry.Register("anthropic", provider)
	return registry, provider
}

var (
	_ DocStore    = (*mockDocStore)(nil)
	_ MemoryStore = (*mockMemoryStore)(nil)
	_ Provider    = (*mockProvider)(nil)
)
