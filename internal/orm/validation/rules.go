package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// ErrUnknownRule is returned for a rule token the evaluator does not implement
var ErrUnknownRule = errors.New("unknown validation rule")

// Rule is one parsed rule token such as "exists:Genre,id"
type Rule struct {
	Name   string
	Params []string
}

// ParseRule splits a token into its name and comma-separated parameters
func ParseRule(token string) Rule {
	name, params, found := strings.Cut(strings.TrimSpace(token), ":")
	rule := Rule{Name: name}
	if found && params != "" {
		rule.Params = strings.Split(params, ",")
	}
	return rule
}

// String returns the token form of the rule
func (r Rule) String() string {
	if len(r.Params) == 0 {
		return r.Name
	}
	return r.Name + ":" + strings.Join(r.Params, ",")
}

// check validates a present, non-null value against one rule. It returns the failure
// message, or "" when the value passes.
func (e *Evaluator) check(ctx context.Context, rule Rule, value interface{}) (string, error) {
	switch rule.Name {
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return "must be an array", nil
		}
	case "integer":
		if !isInteger(value) {
			return "must be an integer", nil
		}
	case "numeric":
		if !isNumeric(value) {
			return "must be a number", nil
		}
	case "string":
		if _, ok := value.(string); !ok {
			return "must be a string", nil
		}
	case "boolean":
		if !isBoolean(value) {
			return "must be true or false", nil
		}
	case "email":
		if s, ok := value.(string); !ok || e.validate.Var(s, "email") != nil {
			return "must be a valid email address", nil
		}
	case "url":
		if s, ok := value.(string); !ok || e.validate.Var(s, "url") != nil {
			return "must be a valid URL", nil
		}
	case "uuid":
		if s, ok := value.(string); !ok || e.validate.Var(s, "uuid") != nil {
			return "must be a valid UUID", nil
		}
	case "min", "max":
		return e.checkBound(rule, value)
	case "in":
		for _, allowed := range rule.Params {
			if cast.ToString(value) == allowed {
				return "", nil
			}
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(rule.Params, ", ")), nil
	case "exists":
		return e.checkExists(ctx, rule, value)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownRule, rule.Name)
	}
	return "", nil
}

// checkBound applies min/max through the validator's length-or-value semantics:
// string length, array length, or numeric value
func (e *Evaluator) checkBound(rule Rule, value interface{}) (string, error) {
	if len(rule.Params) != 1 {
		return "", fmt.Errorf("rule %s needs exactly one parameter", rule.Name)
	}
	if _, err := strconv.ParseFloat(rule.Params[0], 64); err != nil {
		return "", fmt.Errorf("rule %s: invalid bound %q", rule.Name, rule.Params[0])
	}

	word := "at least"
	if rule.Name == "max" {
		word = "at most"
	}

	switch v := value.(type) {
	case string:
		if e.validate.Var(v, rule.Name+"="+rule.Params[0]) != nil {
			return fmt.Sprintf("must be %s %s characters", word, rule.Params[0]), nil
		}
	case []interface{}:
		if e.validate.Var(v, rule.Name+"="+rule.Params[0]) != nil {
			return fmt.Sprintf("must have %s %s items", word, rule.Params[0]), nil
		}
	default:
		if !isNumeric(value) {
			return fmt.Sprintf("must be %s %s", word, rule.Params[0]), nil
		}
		if e.validate.Var(cast.ToFloat64(value), rule.Name+"="+rule.Params[0]) != nil {
			return fmt.Sprintf("must be %s %s", word, rule.Params[0]), nil
		}
	}
	return "", nil
}

func (e *Evaluator) checkExists(ctx context.Context, rule Rule, value interface{}) (string, error) {
	if len(rule.Params) != 2 {
		return "", fmt.Errorf("rule exists needs a resource and a field, got %q", rule.String())
	}
	if e.exister == nil {
		return "", fmt.Errorf("rule %s needs storage access", rule.String())
	}

	found, err := e.exister.Exists(ctx, rule.Params[0], rule.Params[1], value)
	if err != nil {
		return "", fmt.Errorf("rule %s: %w", rule.String(), err)
	}
	if !found {
		return "does not exist", nil
	}
	return "", nil
}

func isInteger(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return err == nil
	}
	return false
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case bool, nil:
		return false
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		_, err := cast.ToFloat64E(value)
		return err == nil
	}
	return false
}

func isBoolean(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return true
	case float64:
		return v == 0 || v == 1
	case int, int64:
		n := cast.ToInt64(v)
		return n == 0 || n == 1
	case string:
		switch v {
		case "true", "false", "0", "1":
			return true
		}
	}
	return false
}
