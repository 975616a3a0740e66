package modelbackend

import (
	"fmt"
	"sync"
)

// Registry holds the configured Backend per provider. It is assembled once
// at startup; lookups at call time go by the provider identifier the routing
// layer resolved.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend for its provider. Duplicate registration is a
// wiring bug and panics, matching startup-time expectations.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := b.Provider()
	if _, exists := r.backends[name]; exists {
		panic(fmt.Sprintf("modelbackend: duplicate registration for %q", name))
	}
	r.backends[name] = b
}

// Get returns the backend for the given provider.
func (r *Registry) Get(provider string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[provider]
	if !ok {
		return nil, fmt.Errorf("modelbackend: unknown provider %q: %w", provider, ErrUnavailable)
	}
	return b, nil
}

// Providers returns the identifiers of all registered backends.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
