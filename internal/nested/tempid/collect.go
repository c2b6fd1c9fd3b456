package tempid

import (
	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/tree"
)

// Collect walks a whole payload before anything is written, records every token
// sighting, and runs Check. Inconsistent token usage fails the operation here.
func Collect(resolver tree.Resolver, registry *Registry, resource string, data map[string]interface{}, tempIDAttr string) error {
	if err := collect(resolver, registry, resource, "", data, tempIDAttr); err != nil {
		return err
	}
	return registry.Check()
}

func collect(resolver tree.Resolver, registry *Registry, resource string, key nested.Key, data map[string]interface{}, tempIDAttr string) error {
	level, err := tree.Partition(resolver, resource, key, data, tempIDAttr)
	if err != nil {
		return err
	}
	if key.IsTop() && level.TempID != "" {
		return &nested.InvalidDataError{Key: key, Token: level.TempID, Message: "the top-level record cannot carry a temporary id"}
	}

	for _, name := range level.Keys {
		desc := level.Relations[name]
		childKey := key.Child(name)

		if desc.Singular() {
			if err := collectNode(resolver, registry, desc, childKey, data[name], tempIDAttr); err != nil {
				return err
			}
			continue
		}

		items, err := tree.Items(desc, childKey, data[name])
		if err != nil {
			return err
		}
		for i, item := range items {
			if err := collectNode(resolver, registry, desc, childKey.Index(i), item, tempIDAttr); err != nil {
				return err
			}
		}
	}

	return nil
}

func collectNode(resolver tree.Resolver, registry *Registry, desc *relation.Descriptor, key nested.Key, raw interface{}, tempIDAttr string) error {
	node, err := tree.Normalize(desc, key, raw)
	if err != nil {
		return err
	}
	if node.Empty || node.Scalar {
		return nil
	}

	rawToken, hasToken := node.Data[tempIDAttr]
	if hasToken {
		token, ok := rawToken.(string)
		if !ok || token == "" {
			return &nested.InvalidDataError{Key: key.Child(tempIDAttr), Message: "temporary id must be a non-empty string"}
		}
		if err := registry.See(Sighting{
			Key:        key,
			Token:      token,
			Descriptor: desc,
			Data:       withoutAttribute(node.Data, tempIDAttr),
		}); err != nil {
			return err
		}
	} else if !desc.UpdateAllowed {
		// link-only payloads are never written, so nothing below them matters
		return nil
	}

	return collect(resolver, registry, desc.RelatedType, key, node.Data, tempIDAttr)
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
