package schema

import (
	"fmt"
	"strings"
)

// ValidationError represents a schema validation error with context
type ValidationError struct {
	Resource string
	Field    string
	Message  string
	Hint     string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Resource != "" {
		b.WriteString(e.Resource)
		if e.Field != "" {
			b.WriteString(".")
			b.WriteString(e.Field)
		}
		b.WriteString(": ")
	}

	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// SchemaValidator validates resource schemas
type SchemaValidator struct {
	errors []*ValidationError
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		errors: make([]*ValidationError, 0),
	}
}

// ValidateStructural validates a single resource schema without cross-resource checks.
// This is used during registration to allow forward references.
func (v *SchemaValidator) ValidateStructural(schema *ResourceSchema) error {
	v.errors = make([]*ValidationError, 0)

	if schema.Name == "" {
		v.addError("", "", "resource name is required", "")
	}
	if schema.TableName == "" {
		v.addError(schema.Name, "", "table name is required", "")
	}
	if schema.PrimaryKey == "" {
		v.addError(schema.Name, "", "primary key is required", "set primary_key in the resource declaration")
	}

	for name, rel := range schema.Relationships {
		if schema.HasField(name) {
			v.addError(schema.Name, name, "relationship shadows a field of the same name",
				"rename the relationship or the field")
		}
		if rel.ForeignKey == "" {
			v.addError(schema.Name, name, "relationship has no foreign key", "")
		}
		if rel.Type == RelationshipBelongsTo && len(schema.Fields) > 0 && !schema.HasField(rel.ForeignKey) {
			v.addError(schema.Name, name,
				fmt.Sprintf("foreign key %s is not a declared field", rel.ForeignKey),
				fmt.Sprintf("add %s to fields", rel.ForeignKey))
		}
		if rel.Type == RelationshipBelongsToMany && (rel.JoinTable == "" || rel.AssociationKey == "") {
			v.addError(schema.Name, name, "belongs_to_many requires a join table and association key", "")
		}
	}

	return v.result()
}

// Errors returns the errors of the last validation run
func (v *SchemaValidator) Errors() []*ValidationError {
	return v.errors
}

func (v *SchemaValidator) addError(resource, field, message, hint string) {
	v.errors = append(v.errors, &ValidationError{
		Resource: resource,
		Field:    field,
		Message:  message,
		Hint:     hint,
	})
}

func (v *SchemaValidator) result() error {
	if len(v.errors) == 0 {
		return nil
	}
	if len(v.errors) == 1 {
		return v.errors[0]
	}
	var msgs []string
	for _, err := range v.errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Errorf("%d schema errors:\n%s", len(v.errors), strings.Join(msgs, "\n"))
}
