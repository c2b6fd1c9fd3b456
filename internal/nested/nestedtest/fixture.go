// Package nestedtest provides a blog schema backed by in-memory SQLite for tests of
// the nested traversals.
package nestedtest

import (
	"testing"

	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/conduit-lang/nestwrite/internal/orm/transaction"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// DDL creates the blog tables
const DDL = `
CREATE TABLE genres (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT);
CREATE TABLE countries (code TEXT PRIMARY KEY, name TEXT);
CREATE TABLE badges (id TEXT PRIMARY KEY, name TEXT);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT,
	genre_id INTEGER REFERENCES genres(id),
	author_id INTEGER REFERENCES users(id),
	editor_id INTEGER REFERENCES users(id),
	country_code TEXT REFERENCES countries(code),
	badge_id TEXT REFERENCES badges(id)
);
CREATE TABLE comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	body TEXT,
	post_id INTEGER REFERENCES posts(id),
	author_id INTEGER REFERENCES users(id)
);
CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT);
CREATE TABLE post_tag (post_id INTEGER NOT NULL, tag_id INTEGER NOT NULL);
`

// Resources declares the blog schema. Badge has a generated UUID key.
func Resources() []schema.ResourceDecl {
	generated := true
	return []schema.ResourceDecl{
		{
			Name:   "Post",
			Fields: []string{"title", "genre_id?", "author_id?", "editor_id?", "country_code?", "badge_id?"},
			Relationships: []schema.RelationshipDecl{
				{Name: "genre", Type: "belongs_to", Target: "Genre"},
				{Name: "author", Type: "belongs_to", Target: "User"},
				{Name: "editor", Type: "belongs_to", Target: "User"},
				{Name: "country", Type: "belongs_to", Target: "Country", ForeignKey: "country_code"},
				{Name: "comments", Type: "has_many", Target: "Comment"},
				{Name: "tags", Type: "belongs_to_many", Target: "Tag"},
				{Name: "badge", Type: "belongs_to", Target: "Badge"},
			},
		},
		{Name: "Genre", Fields: []string{"name"}},
		{Name: "User", Fields: []string{"name", "email?"}},
		{Name: "Country", PrimaryKey: "code", KeyType: "string", Fields: []string{"name"}},
		{
			Name:   "Comment",
			Fields: []string{"body", "post_id?", "author_id?"},
			Relationships: []schema.RelationshipDecl{
				{Name: "author", Type: "belongs_to", Target: "User"},
			},
		},
		{Name: "Tag", Fields: []string{"name"}},
		{Name: "Badge", KeyType: "uuid", Generated: &generated, Fields: []string{"name"}},
	}
}

// Config declares which blog relations accept nested data. author is link-only,
// editor is update-only, comments detach missing items.
func Config() relation.MapConfig {
	detach := true
	config := relation.MapConfig{}
	config.Set("Post", "genre", nil)
	config.Set("Post", "author", &relation.Options{LinkOnly: true})
	config.Set("Post", "editor", &relation.Options{UpdateOnly: true})
	config.Set("Post", "country", nil)
	config.Set("Post", "comments", &relation.Options{Detach: &detach})
	config.Set("Post", "tags", nil)
	config.Set("Post", "badge", nil)
	config.Set("Comment", "author", nil)
	return config
}

// Env bundles the collaborators of the traversals over one database
type Env struct {
	DB           *sqlx.DB
	Registry     *schema.Registry
	Config       relation.MapConfig
	Resolver     *relation.Resolver
	Store        *crud.Store
	Transactions *transaction.Manager
}

// NewEnv opens a fresh in-memory database with the blog schema
func NewEnv(t *testing.T) *Env {
	return NewEnvWithConfig(t, Config())
}

// NewEnvWithConfig is NewEnv with a custom relation configuration
func NewEnvWithConfig(t *testing.T, config relation.MapConfig) *Env {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(DDL)
	require.NoError(t, err)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Load(Resources()))

	return &Env{
		DB:           db,
		Registry:     registry,
		Config:       config,
		Resolver:     relation.NewResolver(config, registry),
		Store:        crud.NewStore(db, registry, zaptest.NewLogger(t)),
		Transactions: transaction.NewManager(db),
	}
}

// Exec runs a statement and fails the test on error
func (e *Env) Exec(t *testing.T, query string, args ...interface{}) {
	t.Helper()
	_, err := e.DB.Exec(query, args...)
	require.NoError(t, err)
}

// Count returns the number of rows matching a query
func (e *Env) Count(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, e.DB.Get(&n, query, args...))
	return n
}

// Value returns a single column value
func (e *Env) Value(t *testing.T, query string, args ...interface{}) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, e.DB.QueryRowx(query, args...).Scan(&v))
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
