package famulus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zoobzio/zyn"
)

// Provider defines the interface for LLM providers.
// This matches zyn.Provider interface for compatibility.
type Provider interface {
	Call(ctx context.Context, messages []zyn.Message, temperature float32) (*zyn.ProviderResponse, error)
	Name() string
}

// ErrNoProvider is returned when no provider can be resolved for a name.
var ErrNoProvider = errors.New("no provider configured")

// Registry maps configured provider names to implementations. Safe for
// concurrent use; registrations normally happen once at startup but config
// hot reloads may reference names registered later.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under a configuration name.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Resolve returns the provider registered under name.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// GenerateParams carries the per-call provider settings.
type GenerateParams struct {
	Provider    string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generation is the result of one provider call.
type Generation struct {
	Text         string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generate performs one LLM call through a named provider. The assembled
// system context and conversation window arrive as messages; the model name
// travels in the system message metadata by convention of the provider
// adapters.
func (r *Registry) Generate(ctx context.Context, messages []zyn.Message, params GenerateParams) (*Generation, error) {
	provider, err := r.Resolve(params.Provider)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Call(ctx, messages, params.Temperature)
	if err != nil {
		return nil, fmt.Errorf("provider %q call failed: %w", params.Provider, err)
	}

	return &Generation{
		Text:         resp.Content,
		Provider:     params.Provider,
		Model:        params.Model,
		InputTokens:  resp.Usage.Prompt,
		OutputTokens: resp.Usage.Completion,
	}, nil
}
