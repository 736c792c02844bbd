// Package llmregistry maps provider names to llmclient.Client factories, so
// a RuntimePlan's declared provider/model can be resolved to a live client
// without the executor importing every provider package directly.
package llmregistry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/webllm/renderify/internal/llmclient"
)

// Factory builds a Client for the given model identifier and options.
type Factory func(model string, options map[string]any) (llmclient.Client, error)

// Registry is a case-insensitive provider-name to Factory map.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// ErrProviderNotRegistered is returned by Build for an unknown provider name.
var ErrProviderNotRegistered = fmt.Errorf("llmregistry: provider not registered")

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Register adds or replaces the factory for provider.
func (r *Registry) Register(provider string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[normalize(provider)] = factory
}

// Build constructs a Client for provider/model via its registered factory.
func (r *Registry) Build(provider, model string, options map[string]any) (llmclient.Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[normalize(provider)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, provider)
	}
	return factory(model, options)
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
