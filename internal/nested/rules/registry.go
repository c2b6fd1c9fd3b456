package rules

import (
	"context"
	"sync"
)

// Handler produces the rules of one node of a payload. Generator is the default
// Handler; custom handlers are registered under the ref named by a relation's
// validator option.
type Handler interface {
	NodeRules(ctx context.Context, f *Frame, data map[string]interface{}) (RuleMap, error)
}

// Factory builds a Handler
type Factory func(deps Deps) Handler

// Registry maps validator refs to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new handler registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under ref, replacing any earlier one
func (r *Registry) Register(ref string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[ref] = factory
}

// Lookup returns the factory registered under ref
func (r *Registry) Lookup(ref string) (Factory, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[ref]
	return factory, ok
}
