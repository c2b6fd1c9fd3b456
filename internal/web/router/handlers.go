package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/web/middleware"
	"github.com/conduit-lang/nestwrite/internal/web/response"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds the size of a payload
const MaxBodyBytes = 1 << 20

var errMethodNotAllowed = errors.New("method not allowed")

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) create(w http.ResponseWriter, req *http.Request) {
	resource := chi.URLParam(req, "resource")
	data, ok := decodeBody(w, req)
	if !ok {
		return
	}

	result, err := r.service.Create(req.Context(), resource, data)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	response.RenderJSON(w, http.StatusCreated, app.NewOutput(resource, result))
}

func (r *Router) update(w http.ResponseWriter, req *http.Request) {
	resource := chi.URLParam(req, "resource")
	data, ok := decodeBody(w, req)
	if !ok {
		return
	}

	result, err := r.service.Update(req.Context(), resource, chi.URLParam(req, "id"), req.URL.Query().Get("by"), data)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, app.NewOutput(resource, result))
}

// ValidateResult is the body of a validate response
type ValidateResult struct {
	Valid  bool                `json:"valid"`
	Errors map[string][]string `json:"errors"`
}

func (r *Router) validate(w http.ResponseWriter, req *http.Request) {
	resource := chi.URLParam(req, "resource")
	data, ok := decodeBody(w, req)
	if !ok {
		return
	}

	messages, err := r.service.Validate(req.Context(), resource, data, creating(req))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, &ValidateResult{
		Valid:  !messages.HasErrors(),
		Errors: messages.Fields,
	})
}

func (r *Router) rules(w http.ResponseWriter, req *http.Request) {
	resource := chi.URLParam(req, "resource")
	data, ok := decodeBody(w, req)
	if !ok {
		return
	}

	ruleMap, err := r.service.Rules(req.Context(), resource, data, creating(req))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{"rules": ruleMap.Tokens()})
}

func (r *Router) relations(w http.ResponseWriter, req *http.Request) {
	descs, err := r.service.Relations(chi.URLParam(req, "resource"))
	if err != nil {
		r.fail(w, req, err)
		return
	}

	out := make([]app.RelationInfo, len(descs))
	for i, desc := range descs {
		out[i] = app.Describe(desc)
	}
	response.RenderJSON(w, http.StatusOK, map[string]interface{}{"relations": out})
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, app.ErrUnknownResource) {
		response.RenderNotFound(w, err.Error())
		return
	}
	middleware.Logger(req.Context(), r.logger).Debug("request failed", zap.Error(err))
	response.RenderFailure(w, err)
}

// creating reads the mode query parameter; anything but update means create
func creating(req *http.Request) bool {
	return req.URL.Query().Get("mode") != "update"
}

// decodeBody reads a JSON object. An empty body is an empty payload.
func decodeBody(w http.ResponseWriter, req *http.Request) (map[string]interface{}, bool) {
	body := http.MaxBytesReader(w, req.Body, MaxBodyBytes)
	defer body.Close()

	var data map[string]interface{}
	err := json.NewDecoder(body).Decode(&data)
	switch {
	case err == nil:
		return data, true
	case errors.Is(err, io.EOF):
		return map[string]interface{}{}, true
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.RenderError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("payload exceeds %d bytes", MaxBodyBytes))
			return nil, false
		}
		response.RenderBadRequest(w, fmt.Sprintf("body must be a JSON object: %v", err))
		return nil, false
	}
}
