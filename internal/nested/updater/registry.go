package updater

import (
	"context"
	"sort"
	"sync"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
)

// Handler writes one node of a payload. Writer is the default Handler; custom
// handlers are registered under the ref named by a relation's updater option.
type Handler interface {
	Create(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error)
	Update(ctx context.Context, f *Frame, data map[string]interface{}, record *crud.Record) (*nested.Result, error)
}

// Factory builds the Handler for a resource
type Factory func(deps Deps, resource string) Handler

// Registry maps updater refs to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new handler registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
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

// Refs returns the registered refs in sorted order
func (r *Registry) Refs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.factories))
	for ref := range r.factories {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
