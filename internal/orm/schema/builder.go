package schema

import (
	"fmt"
	"sort"
	"strings"
)

// ResourceDecl is the declarative form of a resource, as read from configuration
type ResourceDecl struct {
	Name          string             `mapstructure:"name"`
	Documentation string             `mapstructure:"doc"`
	Table         string             `mapstructure:"table"`
	PrimaryKey    string             `mapstructure:"primary_key"`
	KeyType       string             `mapstructure:"key_type"`
	Generated     *bool              `mapstructure:"generated"`
	Fields        []string           `mapstructure:"fields"`
	Relationships []RelationshipDecl `mapstructure:"relationships"`
}

// RelationshipDecl is the declarative form of a relationship
type RelationshipDecl struct {
	Name           string `mapstructure:"name"`
	Type           string `mapstructure:"type"`
	Target         string `mapstructure:"target"`
	Nullable       bool   `mapstructure:"nullable"`
	ForeignKey     string `mapstructure:"foreign_key"`
	OwnerKey       string `mapstructure:"owner_key"`
	JoinTable      string `mapstructure:"join_table"`
	AssociationKey string `mapstructure:"association_key"`
}

// Builder builds ResourceSchemas from declarations
type Builder struct {
	errors []error
}

// NewBuilder creates a new schema builder
func NewBuilder() *Builder {
	return &Builder{
		errors: make([]error, 0),
	}
}

// Build converts a ResourceDecl to a ResourceSchema
func (b *Builder) Build(decl ResourceDecl) (*ResourceSchema, error) {
	b.errors = b.errors[:0]

	if decl.Name == "" {
		return nil, fmt.Errorf("resource declaration is missing a name")
	}

	schema := NewResourceSchema(decl.Name)
	schema.Documentation = decl.Documentation
	if decl.Table != "" {
		schema.TableName = decl.Table
	}
	if decl.PrimaryKey != "" {
		schema.PrimaryKey = decl.PrimaryKey
	}

	keyType, err := ParseKeyType(decl.KeyType)
	if err != nil {
		b.errors = append(b.errors, err)
	}
	schema.KeyType = keyType

	// Integer keys default to database-generated, everything else to caller-assigned
	schema.KeyGenerated = keyType == KeyInt
	if decl.Generated != nil {
		schema.KeyGenerated = *decl.Generated
	}
	if schema.KeyGenerated && keyType == KeyString {
		b.errors = append(b.errors, fmt.Errorf("string primary key %s cannot be generated", schema.PrimaryKey))
	}

	for _, name := range decl.Fields {
		nullable := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		schema.Fields[name] = &Field{Name: name, Nullable: nullable}
	}

	for _, relDecl := range decl.Relationships {
		rel, err := b.buildRelationship(schema, relDecl)
		if err != nil {
			b.errors = append(b.errors, err)
			continue
		}
		if _, exists := schema.Relationships[rel.FieldName]; exists {
			b.errors = append(b.errors, fmt.Errorf("relationship %s is declared twice", rel.FieldName))
			continue
		}
		schema.Relationships[rel.FieldName] = rel
	}

	if len(b.errors) > 0 {
		var errMsgs []string
		for _, err := range b.errors {
			errMsgs = append(errMsgs, err.Error())
		}
		return nil, fmt.Errorf("schema building failed for %s with %d errors:\n%s",
			decl.Name, len(b.errors), strings.Join(errMsgs, "\n"))
	}

	return schema, nil
}

// buildRelationship converts a RelationshipDecl and fills in conventional column names
func (b *Builder) buildRelationship(owner *ResourceSchema, decl RelationshipDecl) (*Relationship, error) {
	if decl.Name == "" {
		return nil, fmt.Errorf("relationship on %s is missing a name", owner.Name)
	}
	if decl.Target == "" {
		return nil, fmt.Errorf("relationship %s: target resource is required", decl.Name)
	}

	relType, err := ParseRelationType(decl.Type)
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", decl.Name, err)
	}

	rel := &Relationship{
		Type:           relType,
		TargetResource: decl.Target,
		FieldName:      decl.Name,
		Nullable:       decl.Nullable,
		ForeignKey:     decl.ForeignKey,
		OwnerKey:       decl.OwnerKey,
		JoinTable:      decl.JoinTable,
		AssociationKey: decl.AssociationKey,
	}

	switch relType {
	case RelationshipBelongsTo:
		if rel.ForeignKey == "" {
			rel.ForeignKey = toSnakeCase(decl.Name) + "_id"
		}
	case RelationshipHasOne, RelationshipHasMany:
		if rel.ForeignKey == "" {
			rel.ForeignKey = owner.ForeignKeyName()
		}
	case RelationshipBelongsToMany:
		if rel.ForeignKey == "" {
			rel.ForeignKey = owner.ForeignKeyName()
		}
		if rel.AssociationKey == "" {
			rel.AssociationKey = toSnakeCase(decl.Target) + "_id"
		}
		if rel.JoinTable == "" {
			names := []string{toSnakeCase(owner.Name), toSnakeCase(decl.Target)}
			sort.Strings(names)
			rel.JoinTable = strings.Join(names, "_")
		}
	}

	return rel, nil
}
