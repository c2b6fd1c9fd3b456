package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all resource schemas in the application
type Registry struct {
	schemas   map[string]*ResourceSchema
	validator *SchemaValidator
	mu        sync.RWMutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		schemas:   make(map[string]*ResourceSchema),
		validator: NewSchemaValidator(),
	}
}

// Register registers a new resource schema
func (r *Registry) Register(schema *ResourceSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("resource %s is already registered", schema.Name)
	}

	// Relationship targets may be registered later; cross-resource checks run in ValidateAll
	if err := r.validator.ValidateStructural(schema); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", schema.Name, err)
	}

	r.schemas[schema.Name] = schema
	return nil
}

// Get retrieves a resource schema by name
func (r *Registry) Get(name string) (*ResourceSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schema, exists := r.schemas[name]
	return schema, exists
}

// MustGet retrieves a resource schema by name and returns an error if it is unknown
func (r *Registry) MustGet(name string) (*ResourceSchema, error) {
	schema, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("resource %s not found", name)
	}
	return schema, nil
}

// All returns a copy of all registered schemas
func (r *Registry) All() map[string]*ResourceSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*ResourceSchema, len(r.schemas))
	for k, v := range r.schemas {
		result[k] = v
	}
	return result
}

// List returns all resource names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAll performs cross-resource validation on all registered schemas
func (r *Registry) ValidateAll() error {
	graph := NewRelationshipGraph(r.All())
	if err := graph.ValidateGraph(); err != nil {
		return fmt.Errorf("relationship validation failed: %w", err)
	}
	return nil
}

// AnalyzeDependencies returns a dependency analysis report
func (r *Registry) AnalyzeDependencies() *DependencyReport {
	return NewRelationshipGraph(r.All()).Analyze()
}

// GetRelationship returns a named relationship of a resource
func (r *Registry) GetRelationship(resourceName, name string) (*Relationship, error) {
	schema, err := r.MustGet(resourceName)
	if err != nil {
		return nil, err
	}

	rel, exists := schema.Relationships[name]
	if !exists {
		return nil, fmt.Errorf("resource %s has no relationship %s", resourceName, name)
	}
	return rel, nil
}

// Count returns the number of registered schemas
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.schemas)
}

// Exists checks if a resource schema exists
func (r *Registry) Exists(name string) bool {
	_, exists := r.Get(name)
	return exists
}

// Load builds and registers every declaration, then validates the whole set
func (r *Registry) Load(decls []ResourceDecl) error {
	builder := NewBuilder()
	for _, decl := range decls {
		schema, err := builder.Build(decl)
		if err != nil {
			return err
		}
		if err := r.Register(schema); err != nil {
			return err
		}
	}
	return r.ValidateAll()
}
