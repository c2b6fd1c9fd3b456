// Package tree splits one level of a nested payload into direct attributes and
// relation attributes, and classifies relation nodes. Both the write traversal and the
// rule traversal go through this package so that they never disagree on a node.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
)

// Resolver resolves relation attributes
type Resolver interface {
	Resolve(resource, key string) (*relation.Descriptor, error)
}

// Exister checks natural keys against storage
type Exister interface {
	Exists(ctx context.Context, resource, field string, value interface{}) (bool, error)
}

// Level is one partitioned level of a payload
type Level struct {
	// Direct holds the attributes written verbatim onto the record
	Direct map[string]interface{}
	// Relations holds the descriptors of relation attributes present in the data
	Relations map[string]*relation.Descriptor
	// Keys lists the relation attributes in traversal order
	Keys []string
	// TempID is the temporary id token of this level, if any
	TempID string
}

// Owning returns the relation attributes whose foreign key lives on this level's record
func (l *Level) Owning() []string {
	var keys []string
	for _, key := range l.Keys {
		if l.Relations[key].OwnsForeignKey() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Dependent returns the relation attributes that store a key back to this level's record
func (l *Level) Dependent() []string {
	var keys []string
	for _, key := range l.Keys {
		if !l.Relations[key].OwnsForeignKey() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Partition splits data into direct and relation attributes. The temporary id
// attribute is never a direct attribute.
func Partition(resolver Resolver, resource string, key nested.Key, data map[string]interface{}, tempIDAttr string) (*Level, error) {
	level := &Level{
		Direct:    make(map[string]interface{}),
		Relations: make(map[string]*relation.Descriptor),
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := data[name]
		if name == tempIDAttr {
			token, ok := value.(string)
			if !ok || token == "" {
				return nil, &nested.InvalidDataError{Key: key.Child(name), Message: "temporary id must be a non-empty string"}
			}
			level.TempID = token
			continue
		}

		desc, err := resolver.Resolve(resource, name)
		if errors.Is(err, nested.ErrNotARelation) {
			level.Direct[name] = value
			continue
		}
		if err != nil {
			return nil, err
		}
		level.Relations[name] = desc
		level.Keys = append(level.Keys, name)
	}

	return level, nil
}

// Node is a normalized relation value
type Node struct {
	// Data is the payload of the node; nil when Empty
	Data map[string]interface{}
	// Empty marks a null, blank or empty value, which dissociates
	Empty bool
	// Scalar marks a bare key value, which links
	Scalar bool
}

// Normalize turns a raw singular relation value into a Node: a scalar becomes
// {pk: scalar}, null/""/{} become empty, a map is taken as payload.
func Normalize(desc *relation.Descriptor, key nested.Key, raw interface{}) (Node, error) {
	switch v := raw.(type) {
	case nil:
		return Node{Empty: true}, nil
	case string:
		if v == "" {
			return Node{Empty: true}, nil
		}
	case map[string]interface{}:
		if len(v) == 0 {
			return Node{Empty: true}, nil
		}
		return Node{Data: v}, nil
	}

	if crud.IsScalar(raw) {
		return Node{Data: map[string]interface{}{desc.RelatedPrimaryKey: raw}, Scalar: true}, nil
	}
	return Node{}, &nested.InvalidDataError{
		Key:     key,
		Message: fmt.Sprintf("%s expects a key, an object or null, got %T", desc.Name, raw),
	}
}

// Items returns the elements of a plural relation value. Null is an empty list.
func Items(desc *relation.Descriptor, key nested.Key, raw interface{}) ([]interface{}, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	}
	return nil, &nested.InvalidDataError{
		Key:     key,
		Message: fmt.Sprintf("%s expects an array, got %T", desc.Name, raw),
	}
}

// KeyValue returns the related primary key carried by a node's data, if present
func KeyValue(desc *relation.Descriptor, data map[string]interface{}) (interface{}, bool) {
	value, ok := data[desc.RelatedPrimaryKey]
	if !ok || value == nil || value == "" {
		return nil, false
	}
	return value, true
}

// Classify decides the fate of a normalized node:
//   - empty: dissociate
//   - temporary id token present: temporary
//   - scalar, or a link-only relation: link, or dissociate when no key is given
//   - key present: update for generated keys; for natural keys update if the record
//     exists, else create with that key (update-only relations always update)
//   - no key: create
func Classify(ctx context.Context, exister Exister, desc *relation.Descriptor, node Node, tempIDAttr string) (nested.Action, error) {
	if node.Empty {
		return nested.ActionDissociate, nil
	}
	if _, ok := node.Data[tempIDAttr]; ok {
		return nested.ActionTemporary, nil
	}

	keyValue, hasKey := KeyValue(desc, node.Data)
	if node.Scalar || !desc.UpdateAllowed {
		if !hasKey {
			return nested.ActionDissociate, nil
		}
		return nested.ActionLink, nil
	}

	if !hasKey {
		return nested.ActionCreate, nil
	}
	if desc.RelatedKeyGenerated || desc.UpdateOnly() {
		return nested.ActionUpdate, nil
	}

	exists, err := exister.Exists(ctx, desc.RelatedType, desc.RelatedPrimaryKey, keyValue)
	if err != nil {
		return 0, err
	}
	if exists {
		return nested.ActionUpdate, nil
	}
	return nested.ActionCreate, nil
}

// IsUpdate reports whether a link-only payload refers to an existing record. Generated
// keys only need to be present; natural keys are checked against storage.
func IsUpdate(ctx context.Context, exister Exister, desc *relation.Descriptor, data map[string]interface{}) (bool, error) {
	keyValue, hasKey := KeyValue(desc, data)
	if !hasKey {
		return false, nil
	}
	if desc.RelatedKeyGenerated {
		return true, nil
	}
	return exister.Exists(ctx, desc.RelatedType, desc.RelatedPrimaryKey, keyValue)
}
