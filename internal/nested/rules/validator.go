package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/tempid"
	"github.com/conduit-lang/nestwrite/internal/orm/validation"
)

// Validator checks whole payloads. It keeps the messages of its last Validate call
// and is not safe for concurrent use.
type Validator struct {
	deps      Deps
	generator *Generator
	evaluator *validation.Evaluator
	messages  *validation.ValidationErrors
}

// NewValidator creates a Validator
func NewValidator(deps Deps) *Validator {
	deps = deps.withDefaults()
	v := &Validator{
		deps:      deps,
		generator: NewGenerator(deps),
		evaluator: validation.NewEvaluator(deps.Exister),
		messages:  validation.NewValidationErrors(),
	}
	v.generator.invalid = func(err *nested.InvalidDataError) { v.collect(err) }
	return v
}

// Validate builds the rule map of data and evaluates it. Every failure is collected
// into Messages. The error is reserved for configuration and storage failures.
func (v *Validator) Validate(ctx context.Context, resource string, data map[string]interface{}, creating bool) (bool, error) {
	v.messages = validation.NewValidationErrors()
	if data == nil {
		data = make(map[string]interface{})
	}

	err := tempid.Collect(v.deps.Resolver, tempid.New(), resource, data, v.deps.Options.TempIDAttribute)
	if err != nil && !v.collect(err) {
		return false, err
	}

	ruleMap, err := v.generator.Rules(ctx, resource, data, creating)
	if err != nil {
		if v.collect(err) {
			return false, nil
		}
		return false, err
	}

	errs, err := v.evaluator.Evaluate(ctx, ruleMap.Tokens(), data)
	if err != nil {
		return false, err
	}
	v.messages.Merge(errs)

	return !v.messages.HasErrors(), nil
}

// Messages returns the failures of the last Validate call
func (v *Validator) Messages() *validation.ValidationErrors {
	return v.messages
}

// collect turns an invalid data error into a message
func (v *Validator) collect(err error) bool {
	var invalid *nested.InvalidDataError
	if !errors.As(err, &invalid) {
		return false
	}
	message := invalid.Message
	if invalid.Token != "" {
		message = fmt.Sprintf("temporary id %q: %s", invalid.Token, invalid.Message)
	}
	v.messages.Add(invalid.Key.String(), message)
	return true
}
