package updater

import (
	"context"
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/tree"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"go.uber.org/zap"
)

// Writer is the default Handler. Custom handlers usually embed one and wrap its
// methods.
type Writer struct {
	deps     Deps
	resource string
	logger   *zap.Logger
}

// NewWriter creates the default handler for resource
func NewWriter(deps Deps, resource string) *Writer {
	deps = deps.withDefaults()
	return &Writer{
		deps:     deps,
		resource: resource,
		logger:   deps.Logger.With(zap.String("resource", resource)),
	}
}

// Create writes a new record
func (w *Writer) Create(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error) {
	record, err := w.deps.Store.New(w.resource)
	if err != nil {
		return nil, err
	}
	return w.write(ctx, f, data, record, nested.ActionCreate)
}

// Update writes data onto an existing record
func (w *Writer) Update(ctx context.Context, f *Frame, data map[string]interface{}, record *crud.Record) (*nested.Result, error) {
	return w.write(ctx, f, data, record, nested.ActionUpdate)
}

func (w *Writer) write(ctx context.Context, f *Frame, data map[string]interface{}, record *crud.Record, action nested.Action) (*nested.Result, error) {
	store := w.deps.Store

	level, err := tree.Partition(w.deps.Resolver, w.resource, f.Key, data, w.deps.Options.TempIDAttribute)
	if err != nil {
		return nil, err
	}
	if level.TempID != "" {
		return nil, &nested.InvalidDataError{Key: f.Key, Token: level.TempID, Message: "temporary id inside a record that is already being written"}
	}

	// the foreign key is always assigned, nil when the relation was dissociated
	for _, name := range level.Owning() {
		desc := level.Relations[name]
		res, err := w.node(ctx, f, desc, f.Key.Child(name), data[name], record, nil)
		if err != nil {
			return nil, err
		}
		var value interface{}
		if res.Record != nil {
			value = referenced(desc.Relationship, res.Record)
		}
		record.Set(desc.Relationship.ForeignKey, value)
	}

	store.Fill(record, level.Direct)
	store.Fill(record, f.Assign)
	if err := store.Save(ctx, record); err != nil {
		return nil, &nested.PersistFailure{Key: f.Key, Resource: w.resource, Err: err}
	}
	w.logger.Debug("record saved",
		zap.String("key", string(f.Key)),
		zap.String("action", action.String()),
		zap.Any("id", record.Key()),
	)

	for _, name := range level.Dependent() {
		desc := level.Relations[name]
		if desc.Singular() {
			err = w.hasOne(ctx, f, desc, record, data[name])
		} else {
			err = w.plural(ctx, f, desc, record, data[name])
		}
		if err != nil {
			return nil, err
		}
	}

	return &nested.Result{Record: record, Success: true, Action: action}, nil
}

func (w *Writer) node(ctx context.Context, f *Frame, desc *relation.Descriptor, key nested.Key, raw interface{}, owner *crud.Record, assign map[string]interface{}) (*nested.Result, error) {
	node, err := tree.Normalize(desc, key, raw)
	if err != nil {
		return nil, err
	}
	return w.resolve(ctx, f, desc, key, node, owner, assign)
}

func (w *Writer) resolve(ctx context.Context, f *Frame, desc *relation.Descriptor, key nested.Key, node tree.Node, owner *crud.Record, assign map[string]interface{}) (*nested.Result, error) {
	action, err := tree.Classify(ctx, w.deps.Store, desc, node, w.deps.Options.TempIDAttribute)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("nested node",
		zap.String("key", string(key)),
		zap.String("relation", desc.Name),
		zap.String("action", action.String()),
	)

	child := &Frame{
		Resource: desc.RelatedType,
		Key:      key,
		Parent:   owner,
		Relation: desc,
		TempIDs:  f.TempIDs,
		Assign:   assign,
	}

	switch action {
	case nested.ActionDissociate:
		return nested.Dissociated(), nil
	case nested.ActionTemporary:
		return w.temporary(ctx, child, node.Data)
	case nested.ActionLink:
		return w.link(ctx, child, node.Data)
	}

	handler, err := w.deps.handler(desc)
	if err != nil {
		return nil, err
	}

	if action == nested.ActionCreate {
		if !desc.CreateAllowed {
			return nil, &nested.InvalidDataError{
				Key:     key,
				Message: fmt.Sprintf("%s only updates existing records and needs %s", desc.Name, desc.RelatedPrimaryKey),
			}
		}
		return handler.Create(ctx, child, node.Data)
	}

	value, _ := tree.KeyValue(desc, node.Data)
	record, err := w.deps.Store.Find(ctx, desc.RelatedType, value)
	if err != nil {
		return nil, notFound(key, desc, value, err)
	}
	return handler.Update(ctx, child, node.Data, record)
}

// link points the relation at an existing record. Only the key of data is used.
func (w *Writer) link(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error) {
	desc := f.Relation
	value, _ := tree.KeyValue(desc, data)

	if err := w.associate(ctx, f, value); err != nil {
		return nil, err
	}
	record, err := w.deps.Store.Find(ctx, desc.RelatedType, value)
	if err != nil {
		return nil, notFound(f.Key, desc, value, err)
	}
	return &nested.Result{Record: record, Success: true, Action: nested.ActionLink}, nil
}

// associate applies the parent's assignments to an existing record
func (w *Writer) associate(ctx context.Context, f *Frame, key interface{}) error {
	desc := f.Relation
	for column, value := range f.Assign {
		err := w.deps.Store.Associate(ctx, desc.RelatedType, key, column, value)
		if crud.IsNotFound(err) {
			return notFound(f.Key, desc, key, err)
		}
		if err != nil {
			return &nested.PersistFailure{Key: f.Key, Resource: desc.RelatedType, Err: err}
		}
	}
	return nil
}

// temporary creates the record of a token the first time it is needed and links
// to it afterwards
func (w *Writer) temporary(ctx context.Context, f *Frame, data map[string]interface{}) (*nested.Result, error) {
	token, _ := data[w.deps.Options.TempIDAttribute].(string)
	entry, ok := f.TempIDs.Get(token)
	if !ok {
		return nil, &nested.InvalidDataError{Key: f.Key, Token: token, Message: "unknown temporary id"}
	}

	if entry.Created {
		w.logger.Debug("temporary id reused", zap.String("key", string(f.Key)), zap.String("token", token))
		if err := w.associate(ctx, f, entry.Record.Key()); err != nil {
			return nil, err
		}
		return &nested.Result{Record: entry.Record, Success: true, Action: nested.ActionTemporary}, nil
	}

	if err := f.TempIDs.Begin(f.Key, token); err != nil {
		return nil, err
	}
	handler, err := w.deps.handler(f.Relation)
	if err != nil {
		return nil, err
	}
	res, err := handler.Create(ctx, f, entry.Data)
	if err != nil {
		return nil, err
	}
	f.TempIDs.MarkCreated(token, res.Record)
	w.logger.Debug("temporary id created", zap.String("key", string(f.Key)), zap.String("token", token))

	return &nested.Result{Record: res.Record, Success: true, Action: nested.ActionTemporary}, nil
}

// hasOne writes a singular relation whose foreign key lives on the related record
func (w *Writer) hasOne(ctx context.Context, f *Frame, desc *relation.Descriptor, owner *crud.Record, raw interface{}) error {
	key := f.Key.Child(desc.Name)
	rel := desc.Relationship
	assign := map[string]interface{}{rel.ForeignKey: referenced(rel, owner)}

	res, err := w.node(ctx, f, desc, key, raw, owner, assign)
	if err != nil {
		return err
	}
	if res.Record != nil && !desc.DetachMissing() {
		return nil
	}

	var keep []interface{}
	if res.Record != nil {
		keep = append(keep, res.Record.Key())
	}
	return w.detachMissing(ctx, desc, key, owner, keep)
}

// plural writes a has_many or belongs_to_many relation, items in index order
func (w *Writer) plural(ctx context.Context, f *Frame, desc *relation.Descriptor, owner *crud.Record, raw interface{}) error {
	key := f.Key.Child(desc.Name)
	items, err := tree.Items(desc, key, raw)
	if err != nil {
		return err
	}

	rel := desc.Relationship
	ownerValue := referenced(rel, owner)
	joined := rel.Type == schema.RelationshipBelongsToMany

	var assign map[string]interface{}
	attached := make(map[string]bool)
	if joined {
		current, err := w.deps.Store.RelatedKeys(ctx, rel, ownerValue)
		if err != nil {
			return err
		}
		for _, k := range current {
			attached[crud.KeyString(k)] = true
		}
	} else {
		assign = map[string]interface{}{rel.ForeignKey: ownerValue}
	}

	var keep []interface{}
	for i, item := range items {
		itemKey := key.Index(i)
		node, err := tree.Normalize(desc, itemKey, item)
		if err != nil {
			return err
		}
		if node.Empty {
			continue
		}

		res, err := w.resolve(ctx, f, desc, itemKey, node, owner, assign)
		if err != nil {
			return err
		}
		if res.Record == nil {
			// a link-only item without a key resolves to nothing
			continue
		}
		related := res.Record.Key()
		keep = append(keep, related)

		if joined && !attached[crud.KeyString(related)] {
			if err := w.deps.Store.Attach(ctx, rel, ownerValue, related); err != nil {
				return &nested.PersistFailure{Key: itemKey, Resource: desc.RelatedType, Err: err}
			}
			attached[crud.KeyString(related)] = true
		}
	}

	if !desc.DetachMissing() {
		return nil
	}
	return w.detachMissing(ctx, desc, key, owner, keep)
}

// detachMissing dissociates, or deletes, every related record not in keep
func (w *Writer) detachMissing(ctx context.Context, desc *relation.Descriptor, key nested.Key, owner *crud.Record, keep []interface{}) error {
	store := w.deps.Store
	rel := desc.Relationship
	ownerValue := referenced(rel, owner)

	current, err := store.RelatedKeys(ctx, rel, ownerValue)
	if err != nil {
		return err
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[crud.KeyString(k)] = true
	}
	var missing []interface{}
	for _, k := range current {
		if !kept[crud.KeyString(k)] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	w.logger.Debug("detaching missing records",
		zap.String("key", string(key)),
		zap.Int("count", len(missing)),
		zap.Bool("delete", desc.DeleteDetached),
	)

	switch {
	case rel.Type == schema.RelationshipBelongsToMany:
		err = store.Detach(ctx, rel, ownerValue, missing)
		if err == nil && desc.DeleteDetached {
			err = store.DeleteKeys(ctx, desc.RelatedType, missing)
		}
	case desc.DeleteDetached:
		err = store.DeleteKeys(ctx, desc.RelatedType, missing)
	default:
		err = store.Dissociate(ctx, desc.RelatedType, rel.ForeignKey, missing)
	}
	if err != nil {
		return &nested.PersistFailure{Key: key, Resource: desc.RelatedType, Err: err}
	}
	return nil
}

// referenced returns the value a foreign key of rel stores for record
func referenced(rel *schema.Relationship, record *crud.Record) interface{} {
	if rel.OwnerKey != "" {
		return record.Get(rel.OwnerKey)
	}
	return record.Key()
}

func notFound(key nested.Key, desc *relation.Descriptor, value interface{}, err error) error {
	if crud.IsNotFound(err) {
		return &nested.NotFoundError{Key: key, Resource: desc.RelatedType, Field: desc.RelatedPrimaryKey, Value: value}
	}
	return err
}
