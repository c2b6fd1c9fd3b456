package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrors_Add(t *testing.T) {
	errs := NewValidationErrors()

	errs.Add("title", "is required")
	errs.Add("comments.0.body", "must be a string")
	errs.Add("title", "must be at least 5 characters")
	errs.Add("title", "is required")

	assert.Len(t, errs.Fields, 2)
	assert.Equal(t, []string{"is required", "must be at least 5 characters"}, errs.Fields["title"])
	assert.Equal(t, 3, errs.Count())
	assert.Equal(t, []string{"comments.0.body", "title"}, errs.Paths())
}

func TestValidationErrors_Error(t *testing.T) {
	errs := NewValidationErrors()
	assert.Equal(t, "validation failed", errs.Error())

	errs.AddFieldError(FieldError{Field: "title", Rule: "required", Message: "is required"})
	assert.Equal(t, "validation failed: title: is required", errs.Error())

	errs.Add("genre.id", "does not exist")
	assert.Equal(t, "validation failed:\n  - genre.id: does not exist\n  - title: is required", errs.Error())
}

func TestValidationErrors_Merge(t *testing.T) {
	errs := NewValidationErrors()
	errs.Add("title", "is required")

	other := NewValidationErrors()
	other.Add("title", "is required")
	other.Add("genre", "must be an integer")

	errs.Merge(other)
	errs.Merge(nil)
	assert.Equal(t, 2, errs.Count())
}

func TestValidationErrors_MarshalJSON(t *testing.T) {
	errs := NewValidationErrors()
	errs.Add("title", "is required")

	data, err := json.Marshal(errs)
	require.NoError(t, err)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, "validation_failed", result["error"])
	assert.Len(t, result["fields"], 1)
}
