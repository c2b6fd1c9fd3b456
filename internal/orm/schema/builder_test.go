package schema

import (
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func TestBuilder_Build(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		schema, err := NewBuilder().Build(ResourceDecl{Name: "BlogPost"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if schema.TableName != "blog_posts" {
			t.Errorf("expected table blog_posts, got %s", schema.TableName)
		}
		if schema.PrimaryKey != "id" {
			t.Errorf("expected primary key id, got %s", schema.PrimaryKey)
		}
		if schema.KeyType != KeyInt || !schema.KeyGenerated {
			t.Errorf("expected generated int key, got %s generated=%v", schema.KeyType, schema.KeyGenerated)
		}
	})

	t.Run("natural string key", func(t *testing.T) {
		schema, err := NewBuilder().Build(ResourceDecl{
			Name:       "Country",
			PrimaryKey: "code",
			KeyType:    "string",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if schema.KeyGenerated {
			t.Error("string keys must not be generated")
		}
	})

	t.Run("generated string key is rejected", func(t *testing.T) {
		_, err := NewBuilder().Build(ResourceDecl{
			Name:      "Country",
			KeyType:   "string",
			Generated: boolPtr(true),
		})
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("nullable fields", func(t *testing.T) {
		schema, err := NewBuilder().Build(ResourceDecl{
			Name:   "Post",
			Fields: []string{"title", "genre_id?"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if schema.Fields["title"].Nullable {
			t.Error("title should not be nullable")
		}
		if !schema.Fields["genre_id"].Nullable {
			t.Error("genre_id should be nullable")
		}
	})

	t.Run("relationship conventions", func(t *testing.T) {
		schema, err := NewBuilder().Build(ResourceDecl{
			Name: "Post",
			Relationships: []RelationshipDecl{
				{Name: "genre", Type: "belongs_to", Target: "Genre"},
				{Name: "comments", Type: "has_many", Target: "Comment"},
				{Name: "tags", Type: "belongs_to_many", Target: "Tag"},
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if fk := schema.Relationships["genre"].ForeignKey; fk != "genre_id" {
			t.Errorf("expected genre_id, got %s", fk)
		}
		if fk := schema.Relationships["comments"].ForeignKey; fk != "post_id" {
			t.Errorf("expected post_id, got %s", fk)
		}

		tags := schema.Relationships["tags"]
		if tags.JoinTable != "post_tag" {
			t.Errorf("expected join table post_tag, got %s", tags.JoinTable)
		}
		if tags.ForeignKey != "post_id" || tags.AssociationKey != "tag_id" {
			t.Errorf("unexpected join columns %s/%s", tags.ForeignKey, tags.AssociationKey)
		}
		if !schema.Relationships["genre"].OwnsForeignKey() || schema.Relationships["comments"].OwnsForeignKey() {
			t.Error("only belongs_to owns its foreign key")
		}
		if schema.Relationships["tags"].Singular() {
			t.Error("belongs_to_many is plural")
		}
	})

	t.Run("errors are accumulated", func(t *testing.T) {
		_, err := NewBuilder().Build(ResourceDecl{
			Name:    "Post",
			KeyType: "blob",
			Relationships: []RelationshipDecl{
				{Name: "genre", Type: "owns", Target: "Genre"},
				{Name: "author", Type: "belongs_to"},
			},
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "3 errors") {
			t.Errorf("expected 3 errors, got: %v", err)
		}
	})
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Post":       "post",
		"BlogPost":   "blog_post",
		"HTTPServer": "http_server",
		"genre":      "genre",
	}
	for input, expected := range tests {
		if got := toSnakeCase(input); got != expected {
			t.Errorf("toSnakeCase(%q) = %q, want %q", input, got, expected)
		}
	}
}
