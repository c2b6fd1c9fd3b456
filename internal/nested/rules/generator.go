package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/tree"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"go.uber.org/zap"
)

// Deps are the collaborators of rule generation
type Deps struct {
	Resolver   tree.Resolver
	Exister    tree.Exister
	Providers  *Providers
	Validators *Registry
	Logger     *zap.Logger
	Options    nested.Options
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Options = d.Options.WithDefaults()
	return d
}

// Frame is the traversal state of one node
type Frame struct {
	Resource string
	Key      nested.Key
	// Relation is the relation leading here; nil at the top level
	Relation *relation.Descriptor
	Creating bool
}

// Generator builds rule maps. It is the default Handler and holds no per-call state.
type Generator struct {
	deps   Deps
	logger *zap.Logger
	// invalid, when set, receives malformed nodes so the walk can go on with
	// their siblings; otherwise the first one is returned
	invalid func(err *nested.InvalidDataError)
}

// NewGenerator creates a Generator
func NewGenerator(deps Deps) *Generator {
	deps = deps.withDefaults()
	return &Generator{deps: deps, logger: deps.Logger}
}

// Rules returns the rule map of a whole payload
func (g *Generator) Rules(ctx context.Context, resource string, data map[string]interface{}, creating bool) (RuleMap, error) {
	if data == nil {
		data = make(map[string]interface{})
	}
	return g.NodeRules(ctx, &Frame{Resource: resource, Creating: creating}, data)
}

// DirectRules returns the provider rules of a resource with every path moved below
// prefix
func (g *Generator) DirectRules(resource string, prefix nested.Key, creating bool) (RuleMap, error) {
	return g.directRules(&Frame{Resource: resource, Key: prefix, Creating: creating})
}

// NodeRules returns the rules of one node and everything below it
func (g *Generator) NodeRules(ctx context.Context, f *Frame, data map[string]interface{}) (RuleMap, error) {
	level, err := tree.Partition(g.deps.Resolver, f.Resource, f.Key, data, g.deps.Options.TempIDAttribute)
	if err != nil {
		return nil, err
	}

	acc, err := g.directRules(f)
	if err != nil {
		return nil, err
	}

	for _, name := range level.Keys {
		desc := level.Relations[name]
		key := f.Key.Child(name)

		if desc.Singular() {
			nodeRules, err := g.relationRules(ctx, desc, key, data[name])
			if g.skip(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			acc = Merge(acc, nodeRules)
			continue
		}

		acc = Merge(acc, RuleMap{string(key): Rules{"array"}})
		items, err := tree.Items(desc, key, data[name])
		if err != nil {
			// the array rule reports it
			continue
		}
		for i, item := range items {
			itemRules, err := g.relationRules(ctx, desc, key.Index(i), item)
			if g.skip(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			acc = Merge(acc, itemRules)
		}
	}

	return acc, nil
}

// skip hands a malformed node to the invalid callback
func (g *Generator) skip(err error) bool {
	var invalid *nested.InvalidDataError
	if err == nil || g.invalid == nil || !errors.As(err, &invalid) {
		return false
	}
	g.invalid(invalid)
	return true
}

func (g *Generator) relationRules(ctx context.Context, desc *relation.Descriptor, key nested.Key, raw interface{}) (RuleMap, error) {
	node, err := tree.Normalize(desc, key, raw)
	if err != nil {
		return nil, err
	}
	if node.Empty && !desc.Singular() {
		return RuleMap{}, nil
	}

	action, err := tree.Classify(ctx, g.deps.Exister, desc, node, g.deps.Options.TempIDAttribute)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("nested node",
		zap.String("key", string(key)),
		zap.String("relation", desc.Name),
		zap.String("action", action.String()),
	)

	out := RuleMap{}
	pkPath := string(key.Child(desc.RelatedPrimaryKey))

	switch {
	case node.Empty:
		return out, nil

	case node.Scalar:
		if rule := keyFormat(desc); rule != "" {
			out.Add(string(key), rule)
		}
		return out, nil

	case action == nested.ActionTemporary:
		attr := g.deps.Options.TempIDAttribute
		out.Add(string(key.Child(attr)), "string")
		payload := withoutAttribute(node.Data, attr)
		if len(payload) == 0 {
			return out, nil
		}
		nodeRules, err := g.childRules(ctx, desc, key, payload, true)
		if err != nil {
			return nil, err
		}
		return Merge(out, nodeRules), nil

	case !desc.UpdateAllowed:
		update, err := tree.IsUpdate(ctx, g.deps.Exister, desc, node.Data)
		if err != nil {
			return nil, err
		}
		g.keyRules(out, desc, pkPath, update)
		return out, nil
	}

	update := action == nested.ActionUpdate
	g.keyRules(out, desc, pkPath, update)
	nodeRules, err := g.childRules(ctx, desc, key, node.Data, !update)
	if err != nil {
		return nil, err
	}
	return Merge(out, nodeRules), nil
}

// keyRules adds the primary key rules of a related record
func (g *Generator) keyRules(out RuleMap, desc *relation.Descriptor, path string, update bool) {
	if desc.UpdateOnly() || !desc.RelatedKeyGenerated {
		out.Add(path, "required")
	}
	if rule := keyFormat(desc); rule != "" {
		out.Add(path, rule)
	}
	if update {
		out.Add(path, fmt.Sprintf("exists:%s,%s", desc.RelatedType, desc.RelatedPrimaryKey))
	}
}

// keyFormat returns the format rule of a generated related key
func keyFormat(desc *relation.Descriptor) string {
	if !desc.RelatedKeyGenerated {
		return ""
	}
	switch desc.RelatedKeyType {
	case schema.KeyInt:
		return "integer"
	case schema.KeyUUID:
		return "uuid"
	default:
		return ""
	}
}

func (g *Generator) childRules(ctx context.Context, desc *relation.Descriptor, key nested.Key, data map[string]interface{}, creating bool) (RuleMap, error) {
	handler, err := g.handler(desc)
	if err != nil {
		return nil, err
	}
	return handler.NodeRules(ctx, &Frame{
		Resource: desc.RelatedType,
		Key:      key,
		Relation: desc,
		Creating: creating,
	}, data)
}

func (g *Generator) handler(desc *relation.Descriptor) (Handler, error) {
	if desc.Validator == "" {
		return g, nil
	}
	factory, ok := g.deps.Validators.Lookup(desc.Validator)
	if !ok {
		return nil, &nested.ConfigurationError{
			Resource:  desc.Resource,
			Attribute: desc.Name,
			Message:   fmt.Sprintf("unknown validator %q", desc.Validator),
		}
	}
	return factory(g.deps), nil
}

// directRules asks the rules provider of a frame for its direct attribute rules.
// A relation may name another provider ref and method.
func (g *Generator) directRules(f *Frame) (RuleMap, error) {
	ref, method := f.Resource, DefaultMethod
	attribute := ""
	if f.Relation != nil {
		attribute = f.Relation.Name
		if f.Relation.Rules != "" {
			ref = f.Relation.Rules
		}
		if f.Relation.RulesMethod != "" {
			method = f.Relation.RulesMethod
		}
	}

	fn, err := g.deps.Providers.Lookup(ref, method)
	if err != nil {
		if g.deps.Options.TolerateMissingRules && (errors.Is(err, ErrNoProvider) || errors.Is(err, ErrNoMethod)) {
			return RuleMap{}, nil
		}
		return nil, &nested.ConfigurationError{Resource: f.Resource, Attribute: attribute, Message: err.Error()}
	}

	m, err := fn(ModeFor(f.Creating))
	if err != nil {
		return nil, &nested.ConfigurationError{
			Resource:  f.Resource,
			Attribute: attribute,
			Message:   fmt.Sprintf("rules provider %s.%s failed: %v", ref, method, err),
		}
	}
	return m.Prefix(f.Key), nil
}

func withoutAttribute(data map[string]interface{}, attr string) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if k != attr {
			out[k] = v
		}
	}
	return out
}
