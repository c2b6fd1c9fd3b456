// Package schema describes the resources nestwrite writes to: their tables, primary
// keys and the relationships between them. Schemas are declared once at startup and
// treated as read-only afterwards.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// KeyType represents how a resource's primary key values look
type KeyType int

const (
	// KeyInt is an integer key, usually assigned by the database
	KeyInt KeyType = iota
	// KeyUUID is a UUID key
	KeyUUID
	// KeyString is a caller-assigned string key
	KeyString
)

// String returns the string representation of the key type
func (k KeyType) String() string {
	switch k {
	case KeyInt:
		return "int"
	case KeyUUID:
		return "uuid"
	case KeyString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseKeyType converts a string to a KeyType
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "", "int", "integer", "bigint":
		return KeyInt, nil
	case "uuid":
		return KeyUUID, nil
	case "string", "text":
		return KeyString, nil
	default:
		return 0, fmt.Errorf("unknown key type: %s", s)
	}
}

// RelationType represents the type of relationship
type RelationType int

const (
	RelationshipBelongsTo RelationType = iota
	RelationshipHasOne
	RelationshipHasMany
	RelationshipBelongsToMany
)

// String returns the string representation of the relationship type
func (r RelationType) String() string {
	switch r {
	case RelationshipBelongsTo:
		return "belongs_to"
	case RelationshipHasOne:
		return "has_one"
	case RelationshipHasMany:
		return "has_many"
	case RelationshipBelongsToMany:
		return "belongs_to_many"
	default:
		return "unknown"
	}
}

// ParseRelationType converts a string to a RelationType
func ParseRelationType(s string) (RelationType, error) {
	switch s {
	case "belongs_to":
		return RelationshipBelongsTo, nil
	case "has_one":
		return RelationshipHasOne, nil
	case "has_many":
		return RelationshipHasMany, nil
	case "belongs_to_many", "many_to_many":
		return RelationshipBelongsToMany, nil
	default:
		return 0, fmt.Errorf("unknown relationship type: %s", s)
	}
}

// Field represents a column of a resource
type Field struct {
	Name     string
	Nullable bool
}

// Relationship represents a relationship between resources.
//
// ForeignKey is the column holding the reference: on the owning resource for
// belongs_to, on the target for has_one/has_many, and on the join table (pointing
// at the owner) for belongs_to_many. AssociationKey is the join table column
// pointing at the target. OwnerKey is the column the foreign key references; empty
// means the primary key of the referenced resource.
type Relationship struct {
	Type           RelationType
	TargetResource string
	FieldName      string
	Nullable       bool

	ForeignKey string
	OwnerKey   string

	// For belongs_to_many
	JoinTable      string
	AssociationKey string
}

// Singular returns true if the relationship resolves to at most one record
func (r *Relationship) Singular() bool {
	return r.Type == RelationshipBelongsTo || r.Type == RelationshipHasOne
}

// OwnsForeignKey returns true if the owning record stores the foreign key itself,
// which means the related record must exist before the owner is saved.
func (r *Relationship) OwnsForeignKey() bool {
	return r.Type == RelationshipBelongsTo
}

// ResourceSchema represents the complete schema for a resource
type ResourceSchema struct {
	Name          string
	Documentation string

	TableName    string
	PrimaryKey   string
	KeyType      KeyType
	KeyGenerated bool

	Fields        map[string]*Field
	Relationships map[string]*Relationship
}

// NewResourceSchema creates a new ResourceSchema with an auto-incrementing "id" key
func NewResourceSchema(name string) *ResourceSchema {
	return &ResourceSchema{
		Name:          name,
		TableName:     pluralize(toSnakeCase(name)),
		PrimaryKey:    "id",
		KeyType:       KeyInt,
		KeyGenerated:  true,
		Fields:        make(map[string]*Field),
		Relationships: make(map[string]*Relationship),
	}
}

// HasField returns true if the resource has a field with the given name
func (r *ResourceSchema) HasField(name string) bool {
	_, exists := r.Fields[name]
	return exists
}

// HasRelationship returns true if the resource has a relationship with the given name
func (r *ResourceSchema) HasRelationship(name string) bool {
	_, exists := r.Relationships[name]
	return exists
}

// Columns returns the declared field names in sorted order. Resources declared
// without fields return nil, meaning every attribute is written as-is.
func (r *ResourceSchema) Columns() []string {
	if len(r.Fields) == 0 {
		return nil
	}
	columns := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		columns = append(columns, name)
	}
	sort.Strings(columns)
	return columns
}

// IsColumn reports whether an attribute may be written to the resource's table
func (r *ResourceSchema) IsColumn(name string) bool {
	if len(r.Fields) == 0 {
		return true
	}
	return name == r.PrimaryKey || r.HasField(name)
}

// ForeignKeyName returns the conventional foreign key column pointing at this resource
func (r *ResourceSchema) ForeignKeyName() string {
	return toSnakeCase(r.Name) + "_" + r.PrimaryKey
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// camelCase boundary, or the end of an acronym ("HTTPServer" -> "http_server")
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}

// pluralize adds simple pluralization
func pluralize(s string) string {
	if strings.HasSuffix(s, "s") ||
		strings.HasSuffix(s, "x") ||
		strings.HasSuffix(s, "z") {
		return s + "es"
	}
	if strings.HasSuffix(s, "y") {
		return s[:len(s)-1] + "ies"
	}
	return s + "s"
}
