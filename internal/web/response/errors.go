package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/orm/validation"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse represents validation errors
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields"`
}

// RenderJSON renders v with the given status
func RenderJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	RenderErrorWithCode(w, statusCode, err, "")
}

// RenderErrorWithCode renders an error with a specific error code
func RenderErrorWithCode(w http.ResponseWriter, statusCode int, err error, code string) {
	// Check if it's a validation error
	var validationErr *validation.ValidationErrors
	if errors.As(err, &validationErr) {
		RenderValidationError(w, validationErr)
		return
	}

	// Generate error code from status if not provided
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}

	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
	})
}

// RenderErrorWithDetails renders an error with additional details
func RenderErrorWithDetails(w http.ResponseWriter, statusCode int, err error, code string, details map[string]interface{}) {
	if code == "" {
		code = errorCodeFromStatus(statusCode)
	}
	RenderJSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    code,
		Details: details,
	})
}

// RenderValidationError renders validation errors
func RenderValidationError(w http.ResponseWriter, validationErr *validation.ValidationErrors) {
	RenderJSON(w, http.StatusUnprocessableEntity, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Fields:  validationErr.Fields,
	})
}

// RenderFailure renders an error returned by a nested write, validation or rules
// call. The status follows the kind of error.
func RenderFailure(w http.ResponseWriter, err error) {
	var (
		validationErr *validation.ValidationErrors
		invalid       *nested.InvalidDataError
		notFound      *nested.NotFoundError
		persist       *nested.PersistFailure
		configErr     *nested.ConfigurationError
	)

	switch {
	case errors.As(err, &validationErr):
		RenderValidationError(w, validationErr)
	case errors.As(err, &invalid):
		details := map[string]interface{}{"path": invalid.Key.String()}
		if invalid.Token != "" {
			details["temporary_id"] = invalid.Token
		}
		RenderErrorWithDetails(w, http.StatusUnprocessableEntity, err, "invalid_data", details)
	case errors.As(err, &notFound):
		RenderErrorWithDetails(w, http.StatusNotFound, err, "", map[string]interface{}{
			"path":     notFound.Key.String(),
			"resource": notFound.Resource,
			"field":    notFound.Field,
		})
	case errors.As(err, &persist):
		RenderErrorWithDetails(w, http.StatusInternalServerError, err, "persist_failure", map[string]interface{}{
			"path":     persist.Key.String(),
			"resource": persist.Resource,
		})
	case errors.As(err, &configErr):
		RenderErrorWithCode(w, http.StatusInternalServerError, err, "configuration_error")
	default:
		RenderInternalError(w, err)
	}
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, fmt.Errorf("%s", message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, fmt.Errorf("%s", message))
}

// RenderInternalError renders a 500 Internal Server Error
func RenderInternalError(w http.ResponseWriter, err error) {
	message := "Internal server error"
	if err != nil {
		message = err.Error()
	}
	RenderError(w, http.StatusInternalServerError, fmt.Errorf("%s", message))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}
