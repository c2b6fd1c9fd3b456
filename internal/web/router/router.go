// Package router exposes the nested write operations over HTTP
package router

import (
	"context"
	"net/http"
	"strings"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/nested/relation"
	"github.com/conduit-lang/nestwrite/internal/nested/rules"
	"github.com/conduit-lang/nestwrite/internal/orm/validation"
	"github.com/conduit-lang/nestwrite/internal/web/middleware"
	"github.com/conduit-lang/nestwrite/internal/web/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Service is the set of operations the router exposes
type Service interface {
	Create(ctx context.Context, resource string, data map[string]interface{}) (*nested.Result, error)
	Update(ctx context.Context, resource string, id interface{}, by string, data map[string]interface{}) (*nested.Result, error)
	Validate(ctx context.Context, resource string, data map[string]interface{}, creating bool) (*validation.ValidationErrors, error)
	Rules(ctx context.Context, resource string, data map[string]interface{}, creating bool) (rules.RuleMap, error)
	Relations(resource string) ([]*relation.Descriptor, error)
}

// RouteInfo describes a registered route for introspection
type RouteInfo struct {
	Method     string
	Pattern    string
	Operation  string
	Parameters []string
}

// Router routes requests to a Service using chi
type Router struct {
	mux     chi.Router
	service Service
	logger  *zap.Logger
	routes  []RouteInfo
}

// New creates a Router with request IDs, access logging and panic recovery
func New(service Service, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		mux:     chi.NewRouter(),
		service: service,
		logger:  logger,
	}

	r.mux.Use(
		middleware.RequestID(logger),
		middleware.Logging(logger, "/health"),
		middleware.Recovery(logger),
	)
	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.RenderNotFound(w, "no route for "+req.Method+" "+req.URL.Path)
	})
	r.mux.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.add(http.MethodGet, "/health", "health", r.health)
	r.add(http.MethodPost, "/{resource}", "create", r.create)
	r.add(http.MethodPut, "/{resource}/{id}", "update", r.update)
	r.add(http.MethodPost, "/{resource}/validate", "validate", r.validate)
	r.add(http.MethodPost, "/{resource}/rules", "rules", r.rules)
	r.add(http.MethodGet, "/{resource}/relations", "relations", r.relations)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Routes returns the registered routes in registration order
func (r *Router) Routes() []RouteInfo {
	return r.routes
}

func (r *Router) add(method, pattern, operation string, handler http.HandlerFunc) {
	r.mux.Method(method, pattern, handler)
	r.routes = append(r.routes, RouteInfo{
		Method:     method,
		Pattern:    pattern,
		Operation:  operation,
		Parameters: extractParameters(pattern),
	})
}

// extractParameters returns the path parameter names of a route pattern
func extractParameters(pattern string) []string {
	var params []string
	for _, part := range strings.Split(pattern, "/") {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			params = append(params, strings.Trim(part, "{}"))
		}
	}
	return params
}
