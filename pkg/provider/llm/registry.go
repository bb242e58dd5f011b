package llm

import (
	"sort"
	"sync"
)

// Registry maps provider names to [Generator] implementations. Stage specs
// reference providers by string ("openai:gpt-4o-mini"), so the orchestrator
// resolves backends through a registry instead of a sum type; adding a vendor
// is a Register call, not an API change.
//
// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Generator
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Generator)}
}

// Register adds or replaces the generator for name.
func (r *Registry) Register(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = g
}

// Lookup returns the generator registered under name.
func (r *Registry) Lookup(name string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.entries[name]
	return g, ok
}

// Names returns all registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
