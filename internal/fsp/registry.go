package fsp

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to their integrations.
type Registry struct {
	mu           sync.RWMutex
	integrations map[string]Integration
}

func NewRegistry() *Registry {
	return &Registry{integrations: make(map[string]Integration)}
}

func (r *Registry) Register(integration Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.integrations[integration.Provider()] = integration
}

func (r *Registry) Get(provider string) (Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	integration, ok := r.integrations[provider]
	if !ok {
		return nil, fmt.Errorf("no integration registered for provider %q", provider)
	}
	return integration, nil
}

func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.integrations))
	for name := range r.integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
