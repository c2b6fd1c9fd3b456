// Package validation evaluates rule maps (path -> rule tokens) against nested
// payloads and collects every failure into one ValidationErrors value.
package validation

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Exister answers storage existence checks for the "exists" rule
type Exister interface {
	Exists(ctx context.Context, resource, field string, value interface{}) (bool, error)
}

// Evaluator checks values against rule tokens
type Evaluator struct {
	exister  Exister
	validate *validator.Validate
}

// NewEvaluator creates an Evaluator. exister may be nil when no rule map uses "exists".
func NewEvaluator(exister Exister) *Evaluator {
	return &Evaluator{
		exister:  exister,
		validate: validator.New(),
	}
}

// Evaluate checks every path of rules against data. Failures are collected; the
// returned error is reserved for malformed rules and storage failures.
func (e *Evaluator) Evaluate(ctx context.Context, rules map[string][]string, data map[string]interface{}) (*ValidationErrors, error) {
	errs := NewValidationErrors()

	paths := make([]string, 0, len(rules))
	for path := range rules {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		value, present := Lookup(data, path)
		fieldErrs, err := e.EvaluatePath(ctx, path, rules[path], value, present)
		if err != nil {
			return nil, err
		}
		for _, fe := range fieldErrs {
			errs.AddFieldError(fe)
		}
	}

	return errs, nil
}

// EvaluatePath checks one value against its rule tokens
func (e *Evaluator) EvaluatePath(ctx context.Context, path string, tokens []string, value interface{}, present bool) ([]FieldError, error) {
	rules := make([]Rule, 0, len(tokens))
	for _, token := range tokens {
		rule := ParseRule(token)
		// null values skip every rule but required, so nullable needs no check
		if rule.Name == "" || rule.Name == "nullable" {
			continue
		}
		rules = append(rules, rule)
	}

	var failures []FieldError
	fail := func(rule Rule, message string) {
		failures = append(failures, FieldError{Field: path, Rule: rule.Name, Message: message})
	}

	for _, rule := range rules {
		switch rule.Name {
		case "required":
			if !present || isEmpty(value) {
				fail(rule, "is required")
				return failures, nil
			}
		case "present":
			if !present {
				fail(rule, "must be present")
				return failures, nil
			}
		}
	}

	if value == nil {
		return failures, nil
	}

	for _, rule := range rules {
		if rule.Name == "required" || rule.Name == "present" {
			continue
		}
		message, err := e.check(ctx, rule, value)
		if err != nil {
			return nil, err
		}
		if message != "" {
			fail(rule, message)
		}
	}

	return failures, nil
}

// Lookup resolves a dot path ("comments.1.body") inside nested maps and arrays
func Lookup(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

func isEmpty(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []interface{}:
		return len(v) == 0
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}
