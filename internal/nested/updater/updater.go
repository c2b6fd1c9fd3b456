// Package updater writes nested payloads. Every node of the payload becomes a create,
// update, link or dissociation of one record, and one top-level call runs inside a
// single transaction: records whose key the current record stores are written first,
// records that store the current record's key are written after it.
package updater

import (
	"context"
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/tempid"
	"github.com/conduit-lang/nestwrite/internal/nested/tree"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"go.uber.org/zap"
)

// Store is the record collaborator, implemented by crud.Store
type Store interface {
	Find(ctx context.Context, resource string, key interface{}) (*crud.Record, error)
	FindBy(ctx context.Context, resource, field string, value interface{}) (*crud.Record, error)
	Exists(ctx context.Context, resource, field string, value interface{}) (bool, error)
	New(resource string) (*crud.Record, error)
	Fill(record *crud.Record, attrs map[string]interface{})
	Save(ctx context.Context, record *crud.Record) error
	DeleteKeys(ctx context.Context, resource string, keys []interface{}) error
	Associate(ctx context.Context, resource string, key interface{}, column string, value interface{}) error
	Dissociate(ctx context.Context, resource, column string, keys []interface{}) error
	RelatedKeys(ctx context.Context, rel *schema.Relationship, ownerKey interface{}) ([]interface{}, error)
	Attach(ctx context.Context, rel *schema.Relationship, ownerKey, relatedKey interface{}) error
	Detach(ctx context.Context, rel *schema.Relationship, ownerKey interface{}, relatedKeys []interface{}) error
}

// Transactor runs fn inside a transaction carried by the context it passes on.
// Implemented by transaction.Manager.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps are the collaborators shared by every handler of one updater tree
type Deps struct {
	Schemas    *schema.Registry
	Resolver   tree.Resolver
	Store      Store
	Transactor Transactor
	Handlers   *Registry
	Logger     *zap.Logger
	Options    nested.Options
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Options = d.Options.WithDefaults()
	return d
}

// handler returns the handler writing the related records of desc
func (d Deps) handler(desc *relation.Descriptor) (Handler, error) {
	if desc.Updater == "" {
		return NewWriter(d, desc.RelatedType), nil
	}
	factory, ok := d.Handlers.Lookup(desc.Updater)
	if !ok {
		return nil, &nested.ConfigurationError{
			Resource:  desc.Resource,
			Attribute: desc.Name,
			Message:   fmt.Sprintf("unknown updater %q", desc.Updater),
		}
	}
	return factory(d, desc.RelatedType), nil
}

// Frame is the traversal state of one node
type Frame struct {
	// Resource is the resource written at this node
	Resource string
	// Key is the path of the node; empty at the top level
	Key nested.Key
	// Parent is the record that owns the relation leading here; nil at the top level
	Parent *crud.Record
	// Relation is the relation leading here; nil at the top level
	Relation *relation.Descriptor
	// TempIDs is shared by every frame of one top-level call
	TempIDs *tempid.Registry
	// Assign holds attributes the parent forces onto this node's record
	Assign map[string]interface{}
}

// ModelUpdater is the entry point for writing nested payloads of one resource
type ModelUpdater struct {
	deps     Deps
	resource string
	logger   *zap.Logger
}

// New creates a ModelUpdater for resource
func New(deps Deps, resource string) *ModelUpdater {
	deps = deps.withDefaults()
	return &ModelUpdater{
		deps:     deps,
		resource: resource,
		logger:   deps.Logger.With(zap.String("resource", resource)),
	}
}

// Create writes a new record and everything nested in data
func (u *ModelUpdater) Create(ctx context.Context, data map[string]interface{}) (*nested.Result, error) {
	return u.run(ctx, data, func(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error) {
		return NewWriter(u.deps, u.resource).Create(ctx, f, data)
	})
}

// Update writes data onto an existing record. recordOrID is either a *crud.Record or
// a key value, looked up by the primary key or by lookupField when given.
func (u *ModelUpdater) Update(ctx context.Context, data map[string]interface{}, recordOrID interface{}, lookupField ...string) (*nested.Result, error) {
	return u.run(ctx, data, func(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error) {
		record, err := u.find(ctx, recordOrID, lookupField)
		if err != nil {
			return nil, err
		}
		return NewWriter(u.deps, u.resource).Update(ctx, f, data, record)
	})
}

type topFunc func(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error)

func (u *ModelUpdater) run(ctx context.Context, data map[string]interface{}, fn topFunc) (*nested.Result, error) {
	if data == nil {
		data = make(map[string]interface{})
	}

	registry := tempid.New()
	if err := tempid.Collect(u.deps.Resolver, registry, u.resource, data, u.deps.Options.TempIDAttribute); err != nil {
		return nil, err
	}

	frame := &Frame{Resource: u.resource, TempIDs: registry}

	var result *nested.Result
	err := u.deps.Transactor.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx, frame, data)
		return err
	})
	if err != nil {
		u.logger.Debug("nested write rolled back", zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (u *ModelUpdater) find(ctx context.Context, recordOrID interface{}, lookupField []string) (*crud.Record, error) {
	if record, ok := recordOrID.(*crud.Record); ok && record != nil {
		return record, nil
	}

	res, ok := u.deps.Schemas.Get(u.resource)
	if !ok {
		return nil, &nested.ConfigurationError{Resource: u.resource, Message: "resource is not registered"}
	}
	field := res.PrimaryKey
	if len(lookupField) > 0 && lookupField[0] != "" {
		field = lookupField[0]
	}

	record, err := u.deps.Store.FindBy(ctx, u.resource, field, recordOrID)
	if crud.IsNotFound(err) {
		return nil, &nested.NotFoundError{Resource: u.resource, Field: field, Value: recordOrID}
	}
	return record, err
}
