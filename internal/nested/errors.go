package nested

import (
	"errors"
	"fmt"
)

// ErrNotARelation signals that an attribute is not a configured relation and must be
// treated as a direct attribute. It never reaches callers of the traversals.
var ErrNotARelation = errors.New("not a relation")

// InvalidDataError reports a payload whose shape or temporary id usage is wrong
type InvalidDataError struct {
	Key     Key
	Token   string
	Message string
}

// Error implements the error interface
func (e *InvalidDataError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("invalid data at %s: temporary id %q: %s", e.Key, e.Token, e.Message)
	}
	return fmt.Sprintf("invalid data at %s: %s", e.Key, e.Message)
}

// NotFoundError reports a referenced record that does not exist
type NotFoundError struct {
	Key      Key
	Resource string
	Field    string
	Value    interface{}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s %v not found at %s", e.Resource, e.Field, e.Value, e.Key)
}

// PersistFailure reports a write the storage layer rejected
type PersistFailure struct {
	Key      Key
	Resource string
	Err      error
}

// Error implements the error interface
func (e *PersistFailure) Error() string {
	return fmt.Sprintf("failed to persist %s at %s: %v", e.Resource, e.Key, e.Err)
}

// Unwrap returns the storage error
func (e *PersistFailure) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing or malformed relation or rules configuration
type ConfigurationError struct {
	Resource  string
	Attribute string
	Message   string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("configuration error for %s.%s: %s", e.Resource, e.Attribute, e.Message)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Resource, e.Message)
}

// IsInvalidData returns true if err is or wraps an InvalidDataError
func IsInvalidData(err error) bool {
	var target *InvalidDataError
	return errors.As(err, &target)
}

// IsNotFound returns true if err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsPersistFailure returns true if err is or wraps a PersistFailure
func IsPersistFailure(err error) bool {
	var target *PersistFailure
	return errors.As(err, &target)
}

// IsConfiguration returns true if err is or wraps a ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
