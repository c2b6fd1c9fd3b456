package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBlogRouter(t *testing.T) *Router {
	t.Helper()
	cfg, err := config.Load(filepath.Join("..", "..", "cli", "config", "testdata", "blog.yaml"))
	require.NoError(t, err)

	a, err := app.Open(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return New(a, zaptest.NewLogger(t))
}

func do(t *testing.T, r *Router, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestRouter_Create(t *testing.T) {
	r := newBlogRouter(t)

	rec, out := do(t, r, http.MethodPost, "/Post", `{
		"title": "Hello",
		"genre": {"name": "News"},
		"author": 1,
		"comments": [{"body": "first"}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Post", out["resource"])
	assert.Equal(t, "create", out["action"])
	record := out["record"].(map[string]interface{})
	assert.Equal(t, "Hello", record["title"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_CreateRefusedByValidation(t *testing.T) {
	r := newBlogRouter(t)

	rec, out := do(t, r, http.MethodPost, "/Post", `{"comments": [{"author": {"id": 9}}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", out["code"])

	fields := out["fields"].(map[string]interface{})
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "comments.0.body")
	assert.Contains(t, fields, "comments.0.author.id")
}

func TestRouter_Update(t *testing.T) {
	r := newBlogRouter(t)
	rec, _ := do(t, r, http.MethodPost, "/Post", `{"title": "Hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, out := do(t, r, http.MethodPut, "/Post/1", `{"title": "Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "update", out["action"])

	rec, _ = do(t, r, http.MethodPut, "/Post/Renamed?by=title", `{"comments": [{"body": "late"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, out = do(t, r, http.MethodPut, "/Post/99", `{"title": "x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", out["code"])
}

func TestRouter_NestedErrors(t *testing.T) {
	r := newBlogRouter(t)

	rec, out := do(t, r, http.MethodPost, "/Post", `{"title": "t", "genre": true}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", out["code"], "shape errors surface through validation first")

	rec, out = do(t, r, http.MethodPost, "/Post", `{"title": "t", "_tmp_id": "x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouter_ValidateAndRules(t *testing.T) {
	r := newBlogRouter(t)

	rec, out := do(t, r, http.MethodPost, "/Post/validate", `{"title": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["valid"])
	assert.Contains(t, out["errors"], "title")

	rec, out = do(t, r, http.MethodPost, "/Post/validate?mode=update", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["valid"])

	rec, out = do(t, r, http.MethodPost, "/Post/rules?mode=update", `{"genre": {"id": 1}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ruleMap := out["rules"].(map[string]interface{})
	assert.Equal(t, []interface{}{"string"}, ruleMap["title"])
	assert.Equal(t, []interface{}{"integer", "exists:Genre,id"}, ruleMap["genre.id"])
}

func TestRouter_Relations(t *testing.T) {
	r := newBlogRouter(t)

	rec, out := do(t, r, http.MethodGet, "/Post/relations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	relations := out["relations"].([]interface{})
	require.Len(t, relations, 3)
	comments := relations[1].(map[string]interface{})
	assert.Equal(t, "comments", comments["name"])
	assert.Equal(t, "has_many", comments["kind"])
	assert.Equal(t, true, comments["detach"])
}

func TestRouter_RequestErrors(t *testing.T) {
	r := newBlogRouter(t)

	rec, _ := do(t, r, http.MethodPost, "/Planet", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out := do(t, r, http.MethodPost, "/Post", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", out["code"])

	rec, _ = do(t, r, http.MethodDelete, "/Post/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec, out = do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestRouter_Routes(t *testing.T) {
	r := New(nil, nil)

	routes := r.Routes()
	require.Len(t, routes, 6)
	assert.Equal(t, "update", routes[2].Operation)
	assert.Equal(t, []string{"resource", "id"}, routes[2].Parameters)
}
