package dictprov

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a provider instance from its configuration.
type Factory func(cfg Config, tr Transport) (Provider, error)

// Registry manages provider factories and instances.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		providers: make(map[string]Provider),
	}
}

// RegisterFactory registers a factory for a provider type. Called
// during initialization for every supported provider.
func (r *Registry) RegisterFactory(providerType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[providerType] = factory
}

// Create instantiates a provider from config using the registered
// factory and stores it under its configured name.
func (r *Registry) Create(cfg Config, tr Transport) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}

	p, err := factory(cfg, tr)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", cfg.Name, err)
	}

	r.mu.Lock()
	r.providers[cfg.Name] = p
	r.mu.Unlock()
	return p, nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterBuiltins wires the factories for every shipped adapter.
func RegisterBuiltins(r *Registry) {
	r.RegisterFactory(TypeFreedict, NewFreedict)
	r.RegisterFactory(TypeWiktionary, NewWiktionary)
	r.RegisterFactory(TypeWordnik, NewWordnik)
}
