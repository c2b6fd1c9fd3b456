package schema

import (
	"strings"
	"testing"
)

func blogDecls() []ResourceDecl {
	return []ResourceDecl{
		{
			Name:   "Post",
			Fields: []string{"title", "genre_id?"},
			Relationships: []RelationshipDecl{
				{Name: "genre", Type: "belongs_to", Target: "Genre"},
				{Name: "comments", Type: "has_many", Target: "Comment"},
			},
		},
		{Name: "Genre", Fields: []string{"name"}},
		{Name: "Comment", Fields: []string{"body", "post_id?"}},
	}
}

func TestRegistry(t *testing.T) {
	t.Run("register and get schema", func(t *testing.T) {
		registry := NewRegistry()

		if err := registry.Register(NewResourceSchema("Post")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		retrieved, exists := registry.Get("Post")
		if !exists {
			t.Fatal("schema should exist")
		}
		if retrieved.Name != "Post" {
			t.Errorf("expected Post, got %s", retrieved.Name)
		}
	})

	t.Run("duplicate registration", func(t *testing.T) {
		registry := NewRegistry()

		registry.Register(NewResourceSchema("Post"))
		if err := registry.Register(NewResourceSchema("Post")); err == nil {
			t.Error("expected error for duplicate registration")
		}
	})

	t.Run("structural validation rejects missing primary key", func(t *testing.T) {
		registry := NewRegistry()

		schema := NewResourceSchema("Post")
		schema.PrimaryKey = ""
		if err := registry.Register(schema); err == nil {
			t.Error("expected error")
		}
		if registry.Exists("Post") {
			t.Error("invalid schema must not be registered")
		}
	})

	t.Run("list is sorted", func(t *testing.T) {
		registry := NewRegistry()
		for _, name := range []string{"User", "Post", "Comment"} {
			registry.Register(NewResourceSchema(name))
		}

		names := registry.List()
		if strings.Join(names, ",") != "Comment,Post,User" {
			t.Errorf("unexpected order: %v", names)
		}
		if registry.Count() != 3 {
			t.Errorf("expected 3 schemas, got %d", registry.Count())
		}
	})

	t.Run("load validates relationships", func(t *testing.T) {
		registry := NewRegistry()
		if err := registry.Load(blogDecls()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rel, err := registry.GetRelationship("Post", "comments")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rel.Type != RelationshipHasMany {
			t.Errorf("expected has_many, got %s", rel.Type)
		}

		if _, err := registry.GetRelationship("Post", "author"); err == nil {
			t.Error("expected error for unknown relationship")
		}
	})

	t.Run("load rejects unknown targets", func(t *testing.T) {
		registry := NewRegistry()
		decls := blogDecls()[:1]
		if err := registry.Load(decls); err == nil {
			t.Error("expected error for unknown target resources")
		}
	})

	t.Run("load rejects undeclared foreign key columns", func(t *testing.T) {
		registry := NewRegistry()
		decls := blogDecls()
		decls[2].Fields = []string{"body"}
		err := registry.Load(decls)
		if err == nil || !strings.Contains(err.Error(), "post_id") {
			t.Errorf("expected foreign key error, got %v", err)
		}
	})
}
