package updater_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/nestedtest"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/updater"
	"github.com/conduit-lang/nestwrite/internal/orm/crud"
	"github.com/conduit-lang/nestwrite/internal/orm/schema"
	"github.com/conduit-lang/nestwrite/internal/orm/transaction"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const tmp = nested.DefaultTempIDAttribute

func depsFor(t *testing.T, env *nestedtest.Env) updater.Deps {
	return updater.Deps{
		Schemas:    env.Registry,
		Resolver:   env.Resolver,
		Store:      env.Store,
		Transactor: env.Transactions,
		Logger:     zaptest.NewLogger(t),
	}
}

func newUpdater(t *testing.T, env *nestedtest.Env, resource string) *updater.ModelUpdater {
	return updater.New(depsFor(t, env), resource)
}

func TestCreate_DirectAttributesOnly(t *testing.T) {
	env := nestedtest.NewEnv(t)

	res, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{"title": "plain"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, nested.ActionCreate, res.Action)
	assert.Equal(t, int64(1), res.Record.Key())
	assert.Equal(t, "plain", env.Value(t, "SELECT title FROM posts WHERE id = 1"))
}

func TestCreate_BelongsToCreatesRelatedFirst(t *testing.T) {
	env := nestedtest.NewEnv(t)

	res, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
		"title": "t",
		"genre": map[string]interface{}{"name": "G"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM genres"))
	genreID := env.Value(t, "SELECT id FROM genres WHERE name = 'G'")
	assert.Equal(t, genreID, env.Value(t, "SELECT genre_id FROM posts WHERE id = ?", res.Record.Key()))
}

func TestCreate_BelongsToInOneTransaction(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	env := nestedtest.NewEnv(t)
	db := sqlx.NewDb(mockDB, "sqlite3")
	deps := depsFor(t, env)
	deps.Store = crud.NewStore(db, env.Registry, zaptest.NewLogger(t))
	deps.Transactor = transaction.NewManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO genres \(name\) VALUES \(\?\)`).
		WithArgs("G").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(`INSERT INTO posts \(genre_id, title\) VALUES \(\?, \?\)`).
		WithArgs(int64(7), "t").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err = updater.New(deps, "Post").Create(context.Background(), map[string]interface{}{
		"title": "t",
		"genre": map[string]interface{}{"name": "G"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_HasManySavesParentFirst(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	env := nestedtest.NewEnv(t)
	db := sqlx.NewDb(mockDB, "sqlite3")
	deps := depsFor(t, env)
	deps.Store = crud.NewStore(db, env.Registry, zaptest.NewLogger(t))
	deps.Transactor = transaction.NewManager(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO posts \(title\) VALUES \(\?\)`).
		WithArgs("t").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT \* FROM comments WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "post_id"}).AddRow(int64(5), "old", nil))
	mock.ExpectExec(`UPDATE comments SET body = \?, post_id = \? WHERE id = \?`).
		WithArgs("x", int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO comments \(body, post_id\) VALUES \(\?, \?\)`).
		WithArgs("new", int64(1)).
		WillReturnResult(sqlmock.NewResult(6, 1))
	mock.ExpectQuery(`SELECT id FROM comments WHERE post_id = \? ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)).AddRow(int64(6)))
	mock.ExpectCommit()

	_, err = updater.New(deps, "Post").Create(context.Background(), map[string]interface{}{
		"title": "t",
		"comments": []interface{}{
			map[string]interface{}{"id": float64(5), "body": "x"},
			map[string]interface{}{"body": "new"},
		},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_HasMany(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO comments (id, body) VALUES (5, 'old')")

	res, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
		"title": "t",
		"comments": []interface{}{
			map[string]interface{}{"id": float64(5), "body": "x"},
			map[string]interface{}{"body": "new"},
		},
	})
	require.NoError(t, err)

	postID := res.Record.Key()
	assert.Equal(t, "x", env.Value(t, "SELECT body FROM comments WHERE id = 5"))
	assert.Equal(t, postID, env.Value(t, "SELECT post_id FROM comments WHERE id = 5"))
	assert.Equal(t, postID, env.Value(t, "SELECT post_id FROM comments WHERE body = 'new'"))
}

func TestUpdate_NullDissociatesBelongsTo(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO genres (id, name) VALUES (1, 'G')")
	env.Exec(t, "INSERT INTO posts (id, title, genre_id) VALUES (1, 't', 1)")

	res, err := newUpdater(t, env, "Post").Update(context.Background(), map[string]interface{}{"genre": nil}, float64(1))
	require.NoError(t, err)

	assert.Equal(t, nested.ActionUpdate, res.Action)
	assert.Nil(t, env.Value(t, "SELECT genre_id FROM posts WHERE id = 1"))
	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM genres"))
}

func TestUpdate_Lookup(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO posts (id, title) VALUES (1, 'first')")
	u := newUpdater(t, env, "Post")

	_, err := u.Update(context.Background(), map[string]interface{}{"title": "renamed"}, "first", "title")
	require.NoError(t, err)
	assert.Equal(t, "renamed", env.Value(t, "SELECT title FROM posts WHERE id = 1"))

	_, err = u.Update(context.Background(), map[string]interface{}{"title": "x"}, int64(42))
	var notFound *nested.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Post", notFound.Resource)
	assert.True(t, notFound.Key.IsTop())

	record, err := env.Store.Find(context.Background(), "Post", 1)
	require.NoError(t, err)
	_, err = u.Update(context.Background(), map[string]interface{}{"title": "by record"}, record)
	require.NoError(t, err)
	assert.Equal(t, "by record", env.Value(t, "SELECT title FROM posts WHERE id = 1"))
}

func TestLinkOnly_NeverTouchesRelatedRecord(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO users (id, name) VALUES (1, 'Ann')")
	u := newUpdater(t, env, "Post")

	res, err := u.Create(context.Background(), map[string]interface{}{
		"title":  "t",
		"author": map[string]interface{}{"id": float64(1), "name": "Changed"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), env.Value(t, "SELECT author_id FROM posts WHERE id = ?", res.Record.Key()))
	assert.Equal(t, "Ann", env.Value(t, "SELECT name FROM users WHERE id = 1"))
	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM users"))

	_, err = u.Create(context.Background(), map[string]interface{}{
		"title":  "t",
		"author": map[string]interface{}{"name": "Nobody"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM users"), "link-only without a key dissociates")

	_, err = u.Create(context.Background(), map[string]interface{}{"title": "t", "author": float64(99)})
	var notFound *nested.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, nested.Key("author"), notFound.Key)
	assert.Equal(t, "User", notFound.Resource)
	assert.Equal(t, 2, env.Count(t, "SELECT COUNT(*) FROM posts"))
}

func TestLinkOnly_PluralItemWithoutKey(t *testing.T) {
	detach := true
	config := nestedtest.Config()
	config.Set("Post", "comments", &relation.Options{LinkOnly: true, Detach: &detach})
	env := nestedtest.NewEnvWithConfig(t, config)
	seedComments(t, env)
	u := newUpdater(t, env, "Post")

	var res *nested.Result
	var err error
	require.NotPanics(t, func() {
		res, err = u.Create(context.Background(), map[string]interface{}{
			"title":    "t",
			"comments": []interface{}{map[string]interface{}{"body": "no key"}},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM comments WHERE post_id = ?", res.Record.Key()))
	assert.Equal(t, 4, env.Count(t, "SELECT COUNT(*) FROM comments"), "nothing is created")

	require.NotPanics(t, func() {
		_, err = u.Update(context.Background(), map[string]interface{}{
			"comments": []interface{}{
				map[string]interface{}{"id": float64(1)},
				map[string]interface{}{"body": "no key"},
			},
		}, int64(1))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.Value(t, "SELECT post_id FROM comments WHERE id = 1"))
	assert.Nil(t, env.Value(t, "SELECT post_id FROM comments WHERE id = 2"), "keyless item is not kept")
	assert.Nil(t, env.Value(t, "SELECT post_id FROM comments WHERE id = 3"))
	assert.Equal(t, "a", env.Value(t, "SELECT body FROM comments WHERE id = 1"))
}

func TestUpdateOnly(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO users (id, name) VALUES (1, 'Ed')")
	u := newUpdater(t, env, "Post")

	res, err := u.Create(context.Background(), map[string]interface{}{
		"editor": map[string]interface{}{"id": float64(1), "name": "Edward"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Edward", env.Value(t, "SELECT name FROM users WHERE id = 1"))
	assert.Equal(t, int64(1), env.Value(t, "SELECT editor_id FROM posts WHERE id = ?", res.Record.Key()))

	_, err = u.Create(context.Background(), map[string]interface{}{
		"editor": map[string]interface{}{"name": "New"},
	})
	var invalid *nested.InvalidDataError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, nested.Key("editor"), invalid.Key)
	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM users"))
}

func TestNaturalKeys(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO countries (code, name) VALUES ('NL', 'Netherlands')")
	u := newUpdater(t, env, "Post")

	_, err := u.Create(context.Background(), map[string]interface{}{
		"country": map[string]interface{}{"code": "NL", "name": "Holland"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Holland", env.Value(t, "SELECT name FROM countries WHERE code = 'NL'"))

	res, err := u.Create(context.Background(), map[string]interface{}{
		"country": map[string]interface{}{"code": "BE", "name": "Belgium"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Belgium", env.Value(t, "SELECT name FROM countries WHERE code = 'BE'"))
	assert.Equal(t, "BE", env.Value(t, "SELECT country_code FROM posts WHERE id = ?", res.Record.Key()))
}

func seedComments(t *testing.T, env *nestedtest.Env) {
	env.Exec(t, "INSERT INTO posts (id, title) VALUES (1, 'one'), (2, 'two')")
	env.Exec(t, "INSERT INTO comments (id, body, post_id) VALUES (1, 'a', 1), (2, 'b', 1), (3, 'c', 1), (4, 'd', 2)")
}

func TestDetach_HasMany(t *testing.T) {
	payload := func() map[string]interface{} {
		return map[string]interface{}{
			"comments": []interface{}{
				map[string]interface{}{"id": float64(1)},
				map[string]interface{}{"id": float64(3), "body": "c3"},
			},
		}
	}

	t.Run("dissociates exactly the missing records", func(t *testing.T) {
		env := nestedtest.NewEnv(t)
		seedComments(t, env)

		_, err := newUpdater(t, env, "Post").Update(context.Background(), payload(), int64(1))
		require.NoError(t, err)

		assert.Nil(t, env.Value(t, "SELECT post_id FROM comments WHERE id = 2"))
		assert.Equal(t, 2, env.Count(t, "SELECT COUNT(*) FROM comments WHERE post_id = 1"))
		assert.Equal(t, int64(2), env.Value(t, "SELECT post_id FROM comments WHERE id = 4"))
		assert.Equal(t, "c3", env.Value(t, "SELECT body FROM comments WHERE id = 3"))
		assert.Equal(t, 4, env.Count(t, "SELECT COUNT(*) FROM comments"))
	})

	t.Run("deletes when configured", func(t *testing.T) {
		detach := true
		config := nestedtest.Config()
		config.Set("Post", "comments", &relation.Options{Detach: &detach, DeleteDetached: true})
		env := nestedtest.NewEnvWithConfig(t, config)
		seedComments(t, env)

		_, err := newUpdater(t, env, "Post").Update(context.Background(), payload(), int64(1))
		require.NoError(t, err)

		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM comments WHERE id = 2"))
		assert.Equal(t, 3, env.Count(t, "SELECT COUNT(*) FROM comments"))
	})

	t.Run("keeps missing records when detach is off", func(t *testing.T) {
		config := nestedtest.Config()
		config.Set("Post", "comments", nil)
		env := nestedtest.NewEnvWithConfig(t, config)
		seedComments(t, env)

		_, err := newUpdater(t, env, "Post").Update(context.Background(), payload(), int64(1))
		require.NoError(t, err)

		assert.Equal(t, int64(1), env.Value(t, "SELECT post_id FROM comments WHERE id = 2"))
	})

	t.Run("null detaches everything", func(t *testing.T) {
		env := nestedtest.NewEnv(t)
		seedComments(t, env)

		_, err := newUpdater(t, env, "Post").Update(context.Background(), map[string]interface{}{"comments": nil}, int64(1))
		require.NoError(t, err)

		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM comments WHERE post_id = 1"))
		assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM comments WHERE post_id = 2"))
	})
}

func TestBelongsToMany(t *testing.T) {
	env := nestedtest.NewEnv(t)
	env.Exec(t, "INSERT INTO posts (id, title) VALUES (1, 'one')")
	env.Exec(t, "INSERT INTO tags (id, name) VALUES (1, 'go'), (2, 'sql')")
	env.Exec(t, "INSERT INTO post_tag (post_id, tag_id) VALUES (1, 1), (1, 2)")

	_, err := newUpdater(t, env, "Post").Update(context.Background(), map[string]interface{}{
		"tags": []interface{}{float64(2), map[string]interface{}{"name": "new"}},
	}, int64(1))
	require.NoError(t, err)

	assert.Equal(t, 2, env.Count(t, "SELECT COUNT(*) FROM post_tag WHERE post_id = 1"))
	assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM post_tag WHERE tag_id = 1"))
	assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM post_tag WHERE tag_id = 2"), "already attached tags are not attached twice")
	assert.Equal(t, 3, env.Count(t, "SELECT COUNT(*) FROM tags"), "detached tags are kept")
}

func TestTemporaryIDs(t *testing.T) {
	t.Run("one record shared by every branch", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		res, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title":  "t",
			"author": map[string]interface{}{tmp: "ann"},
			"comments": []interface{}{
				map[string]interface{}{"body": "a", "author": map[string]interface{}{tmp: "ann", "name": "Ann"}},
				map[string]interface{}{"body": "b", "author": map[string]interface{}{tmp: "ann"}},
			},
		})
		require.NoError(t, err)

		assert.Equal(t, 1, env.Count(t, "SELECT COUNT(*) FROM users"))
		userID := env.Value(t, "SELECT id FROM users WHERE name = 'Ann'")
		assert.Equal(t, userID, env.Value(t, "SELECT author_id FROM posts WHERE id = ?", res.Record.Key()))
		assert.Equal(t, 2, env.Count(t, "SELECT COUNT(*) FROM comments WHERE author_id = ?", userID))
	})

	t.Run("different payloads fail before any write", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title": "t",
			"comments": []interface{}{
				map[string]interface{}{"author": map[string]interface{}{tmp: "ann", "name": "Ann"}},
				map[string]interface{}{"author": map[string]interface{}{tmp: "ann", "name": "Anne"}},
			},
		})
		assert.True(t, nested.IsInvalidData(err))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM posts"))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM users"))
	})

	t.Run("token never allowed to create", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title":  "t",
			"author": map[string]interface{}{tmp: "ann", "name": "Ann"},
		})
		assert.True(t, nested.IsInvalidData(err))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM posts"))
	})
}

func TestRollback(t *testing.T) {
	t.Run("missing link deep in the tree", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title": "t",
			"genre": map[string]interface{}{"name": "G"},
			"comments": []interface{}{
				map[string]interface{}{"body": "b", "author": float64(999)},
			},
		})
		var notFound *nested.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, nested.Key("comments.0.author"), notFound.Key)

		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM genres"))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM posts"))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM comments"))
	})

	t.Run("storage rejects a write", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title": "t",
			"genre": map[string]interface{}{"name": nil},
		})
		var failure *nested.PersistFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, nested.Key("genre"), failure.Key)
		assert.Equal(t, "Genre", failure.Resource)
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM posts"))
	})

	t.Run("malformed node", func(t *testing.T) {
		env := nestedtest.NewEnv(t)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"title": "t",
			"genre": true,
		})
		assert.True(t, nested.IsInvalidData(err))
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM posts"))
	})
}

type countingHandler struct {
	*updater.Writer
	creates *int
}

func (h countingHandler) Create(ctx context.Context, f *updater.Frame, data map[string]interface{}) (*nested.Result, error) {
	*h.creates++
	return h.Writer.Create(ctx, f, data)
}

func TestHandlerRegistry(t *testing.T) {
	config := nestedtest.Config()
	config.Set("Post", "genre", &relation.Options{Updater: "counting"})

	t.Run("custom handler", func(t *testing.T) {
		env := nestedtest.NewEnvWithConfig(t, config)
		creates := 0

		handlers := updater.NewRegistry()
		handlers.Register("counting", func(deps updater.Deps, resource string) updater.Handler {
			return countingHandler{Writer: updater.NewWriter(deps, resource), creates: &creates}
		})
		deps := depsFor(t, env)
		deps.Handlers = handlers

		_, err := updater.New(deps, "Post").Create(context.Background(), map[string]interface{}{
			"genre": map[string]interface{}{"name": "G"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, creates)
		assert.Equal(t, []string{"counting"}, handlers.Refs())
	})

	t.Run("unknown ref", func(t *testing.T) {
		env := nestedtest.NewEnvWithConfig(t, config)

		_, err := newUpdater(t, env, "Post").Create(context.Background(), map[string]interface{}{
			"genre": map[string]interface{}{"name": "G"},
		})
		var cfgErr *nested.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "genre", cfgErr.Attribute)
		assert.Equal(t, 0, env.Count(t, "SELECT COUNT(*) FROM genres"))
	})
}

func TestFrameCarriesParent(t *testing.T) {
	config := nestedtest.Config()
	config.Set("Post", "comments", &relation.Options{Updater: "inspect"})
	env := nestedtest.NewEnvWithConfig(t, config)

	var seen *updater.Frame
	handlers := updater.NewRegistry()
	handlers.Register("inspect", func(deps updater.Deps, resource string) updater.Handler {
		return inspectHandler{Writer: updater.NewWriter(deps, resource), seen: &seen}
	})
	deps := depsFor(t, env)
	deps.Handlers = handlers

	res, err := updater.New(deps, "Post").Create(context.Background(), map[string]interface{}{
		"comments": []interface{}{map[string]interface{}{"body": "b"}},
	})
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "Comment", seen.Resource)
	assert.Equal(t, nested.Key("comments.0"), seen.Key)
	assert.Same(t, res.Record, seen.Parent)
	assert.Equal(t, schema.RelationshipHasMany, seen.Relation.Kind())
	assert.Equal(t, map[string]interface{}{"post_id": res.Record.Key()}, seen.Assign)
}

type inspectHandler struct {
	*updater.Writer
	seen **updater.Frame
}

func (h inspectHandler) Create(ctx context.Context, f *updater.Frame, data map[string]interface{}) (*nested.Result, error) {
	*h.seen = f
	return h.Writer.Create(ctx, f, data)
}
