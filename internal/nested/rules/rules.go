// Package rules derives validation rule maps from nested payloads. The traversal
// partitions and classifies every node exactly like the updater does, so a payload
// is validated against the same create, update and link decisions it would be
// written with.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/nested"
)

// Rules is an ordered, duplicate-free list of rule tokens
type Rules []string

// RuleMap maps payload paths to their rules
type RuleMap map[string]Rules

// Keys returns the paths of m in sorted order
func (m RuleMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Add appends tokens to the rules of path, skipping duplicates
func (m RuleMap) Add(path string, tokens ...string) {
	m[path] = dedupe(append(append(Rules{}, m[path]...), tokens...))
}

// Prefix returns a copy of m with every path moved below key
func (m RuleMap) Prefix(key nested.Key) RuleMap {
	out := make(RuleMap, len(m))
	for path, rules := range m {
		out[string(key.Child(path))] = rules
	}
	return out
}

// Tokens converts m into the plain form the evaluator consumes
func (m RuleMap) Tokens() map[string][]string {
	out := make(map[string][]string, len(m))
	for path, rules := range m {
		out[path] = []string(rules)
	}
	return out
}

// ParseRules normalizes a rule declaration: a "a|b" string, a list of strings, or nil
func ParseRules(raw interface{}) (Rules, error) {
	var tokens []string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case Rules:
		tokens = v
	case string:
		tokens = strings.Split(v, "|")
	case []string:
		tokens = v
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("rule must be a string, got %T", item)
			}
			tokens = append(tokens, s)
		}
	default:
		return nil, fmt.Errorf("rules must be a string or a list, got %T", raw)
	}

	var rules Rules
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			rules = append(rules, token)
		}
	}
	return dedupe(rules), nil
}

// ParseRuleMap normalizes a raw path -> rules declaration
func ParseRuleMap(raw map[string]interface{}) (RuleMap, error) {
	m := make(RuleMap, len(raw))
	for path, value := range raw {
		rules, err := ParseRules(value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		m[path] = rules
	}
	return m, nil
}

// Merge combines an inherent rule map with a custom one. Paths on one side pass
// through; paths on both get the inherent tokens followed by the custom ones, with
// duplicates removed by first occurrence. Neither input is modified.
func Merge(inherent, custom RuleMap) RuleMap {
	out := make(RuleMap, len(inherent)+len(custom))
	for path, rules := range inherent {
		out[path] = rules
	}
	for path, rules := range custom {
		if existing, ok := out[path]; ok {
			out[path] = dedupe(append(append(Rules{}, existing...), rules...))
			continue
		}
		out[path] = rules
	}
	return out
}

func dedupe(rules Rules) Rules {
	seen := make(map[string]bool, len(rules))
	out := rules[:0:0]
	for _, token := range rules {
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}
