package rules_test

import (
	"context"
	"testing"

	"github.com/conduit-lang/nestwrite/internal/nested/nestedtest"
	"github.com/conduit-lang/nestwrite/internal/nested/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Valid(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO users (id, name) VALUES (1, 'Ann')")
	v := rules.NewValidator(rulesDeps(t, env))

	ok, err := v.Validate(context.Background(), "Post", map[string]interface{}{
		"title":    "t",
		"genre":    map[string]interface{}{"name": "G"},
		"author":   float64(1),
		"comments": []interface{}{map[string]interface{}{"body": "b", "author": map[string]interface{}{"id": float64(1)}}},
	}, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, v.Messages().HasErrors())
}

func TestValidator_CollectsEveryFailure(t *testing.T) {
	env := nestedtest.NewEnv(t)
	v := rules.NewValidator(rulesDeps(t, env))

	ok, err := v.Validate(context.Background(), "Post", map[string]interface{}{
		"title":    float64(5),
		"genre":    map[string]interface{}{},
		"author":   "abc",
		"comments": []interface{}{map[string]interface{}{"id": float64(99)}, map[string]interface{}{"title": "no body"}},
	}, true)
	require.NoError(t, err)
	assert.False(t, ok)

	messages := v.Messages()
	assert.Equal(t, []string{"author", "comments.0.id", "comments.1.body", "title"}, messages.Paths())
	assert.Equal(t, []string{"must be a string"}, messages.Fields["title"])
	assert.Equal(t, []string{"must be an integer"}, messages.Fields["author"])
	assert.Equal(t, []string{"is required"}, messages.Fields["comments.1.body"])
}

func TestValidator_TemporaryIDMismatch(t *testing.T) {
	env := nestedtest.NewEnv(t)
	v := rules.NewValidator(rulesDeps(t, env))

	ok, err := v.Validate(context.Background(), "Post", map[string]interface{}{
		"title": "t",
		"comments": []interface{}{
			map[string]interface{}{"body": "a", "author": map[string]interface{}{tmp: "ann", "name": "Ann"}},
			map[string]interface{}{"body": "b", "author": map[string]interface{}{tmp: "ann", "name": "Anne"}},
		},
	}, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, v.Messages().Paths(), "comments.1.author")
}

func TestValidator_ShapeError(t *testing.T) {
	env := nestedtest.NewEnv(t)
	v := rules.NewValidator(rulesDeps(t, env))

	ok, err := v.Validate(context.Background(), "Post", map[string]interface{}{"title": "t", "genre": true}, true)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"genre"}, v.Messages().Paths())

	ok, err = v.Validate(context.Background(), "Post", map[string]interface{}{"title": "t"}, true)
	require.NoError(t, err)
	assert.True(t, ok, "messages are reset between calls")
	assert.False(t, v.Messages().HasErrors())
}

func TestValidator_ShapeErrorDoesNotHideOtherFailures(t *testing.T) {
	env := nestedtest.NewEnv(t)
	v := rules.NewValidator(rulesDeps(t, env))

	ok, err := v.Validate(context.Background(), "Post", map[string]interface{}{
		"title": float64(5),
		"genre": []interface{}{float64(1)},
		"comments": []interface{}{
			"oops",
			map[string]interface{}{"author": true},
			map[string]interface{}{"title": "no body"},
		},
	}, true)
	require.NoError(t, err)
	assert.False(t, ok)

	messages := v.Messages()
	assert.Equal(t, []string{"comments.0", "comments.1.author", "comments.1.body", "comments.2.body", "genre", "title"}, messages.Paths())
	assert.Equal(t, []string{"must be a string"}, messages.Fields["title"])
	assert.Len(t, messages.Fields["genre"], 1)
}

func TestValidator_ConfigurationErrorsAreReturned(t *testing.T) {
	env := nestedtest.NewEnv(t)
	deps := rulesDeps(t, env)
	deps.Providers = rules.NewProviders()

	_, err := rules.NewValidator(deps).Validate(context.Background(), "Post", map[string]interface{}{"title": "t"}, true)
	assert.Error(t, err)
}
