// Package relation answers whether an attribute of a resource is a nested relation
// and describes it: cardinality, which side holds the foreign key, and which nested
// operations are allowed.
package relation

import (
	"fmt"
	"sync"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
)

// Descriptor describes one nested relation attribute. It is immutable once built.
type Descriptor struct {
	// Name is the attribute key in payloads
	Name string
	// Resource is the resource owning the attribute
	Resource string
	// Method is the schema relationship the attribute maps to
	Method       string
	Relationship *schema.Relationship

	RelatedType         string
	RelatedPrimaryKey   string
	RelatedKeyGenerated bool
	RelatedKeyType      schema.KeyType

	Updater   string
	Validator string

	UpdateAllowed  bool
	CreateAllowed  bool
	Detach         *bool
	DeleteDetached bool

	Rules       string
	RulesMethod string
}

// Kind returns the relationship type
func (d *Descriptor) Kind() schema.RelationType {
	return d.Relationship.Type
}

// Singular returns true if the relation holds at most one record
func (d *Descriptor) Singular() bool {
	return d.Relationship.Singular()
}

// OwnsForeignKey returns true if the owning record stores the foreign key
func (d *Descriptor) OwnsForeignKey() bool {
	return d.Relationship.OwnsForeignKey()
}

// UpdateOnly returns true if nested records may be updated but never created
func (d *Descriptor) UpdateOnly() bool {
	return d.UpdateAllowed && !d.CreateAllowed
}

// DetachMissing reports whether related records missing from a payload are detached.
// Unset defaults to true for belongs_to_many and false otherwise.
func (d *Descriptor) DetachMissing() bool {
	if d.Detach != nil {
		return *d.Detach
	}
	return d.Relationship.Type == schema.RelationshipBelongsToMany
}

// Resolver builds Descriptors from the relation configuration and the schema registry.
// It is safe for concurrent use.
type Resolver struct {
	config   Config
	registry *schema.Registry

	mu    sync.RWMutex
	cache map[string]*Descriptor
}

// NewResolver creates a Resolver
func NewResolver(config Config, registry *schema.Registry) *Resolver {
	return &Resolver{
		config:   config,
		registry: registry,
		cache:    make(map[string]*Descriptor),
	}
}

// Resolve returns the descriptor of an attribute, or nested.ErrNotARelation if the
// attribute is not configured as a nested relation
func (r *Resolver) Resolve(resource, key string) (*Descriptor, error) {
	cacheKey := resource + "\x00" + key

	r.mu.RLock()
	desc, ok := r.cache[cacheKey]
	r.mu.RUnlock()
	if ok {
		return desc, nil
	}

	opts, ok := r.config.Lookup(resource, key)
	if !ok {
		return nil, nested.ErrNotARelation
	}

	desc, err := r.build(resource, key, opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[cacheKey] = desc
	r.mu.Unlock()

	return desc, nil
}

// Relations returns the descriptors of every configured attribute of a resource
func (r *Resolver) Relations(resource string) ([]*Descriptor, error) {
	var descs []*Descriptor
	for _, key := range r.config.Keys(resource) {
		desc, err := r.Resolve(resource, key)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

// Validate resolves every configured attribute of every registered resource so that
// configuration errors surface at startup
func (r *Resolver) Validate() error {
	for _, resource := range r.registry.List() {
		if _, err := r.Relations(resource); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) build(resource, key string, opts *Options) (*Descriptor, error) {
	if opts == nil {
		opts = &Options{}
	}

	owner, exists := r.registry.Get(resource)
	if !exists {
		return nil, &nested.ConfigurationError{Resource: resource, Attribute: key, Message: "resource is not registered"}
	}

	method := opts.Method
	if method == "" {
		method = key
	}
	rel, exists := owner.Relationships[method]
	if !exists {
		return nil, &nested.ConfigurationError{
			Resource:  resource,
			Attribute: key,
			Message:   fmt.Sprintf("no relationship named %s", method),
		}
	}

	related, exists := r.registry.Get(rel.TargetResource)
	if !exists {
		return nil, &nested.ConfigurationError{
			Resource:  resource,
			Attribute: key,
			Message:   fmt.Sprintf("related resource %s is not registered", rel.TargetResource),
		}
	}

	updateAllowed := !opts.LinkOnly
	return &Descriptor{
		Name:                key,
		Resource:            resource,
		Method:              method,
		Relationship:        rel,
		RelatedType:         related.Name,
		RelatedPrimaryKey:   related.PrimaryKey,
		RelatedKeyGenerated: related.KeyGenerated,
		RelatedKeyType:      related.KeyType,
		Updater:             opts.Updater,
		Validator:           opts.Validator,
		UpdateAllowed:       updateAllowed,
		CreateAllowed:       updateAllowed && !opts.UpdateOnly,
		Detach:              opts.Detach,
		DeleteDetached:      opts.DeleteDetached,
		Rules:               opts.Rules,
		RulesMethod:         opts.RulesMethod,
	}, nil
}
