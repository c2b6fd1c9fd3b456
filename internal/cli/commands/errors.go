package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/conduit-lang/nestwrite/internal/app"
	"github.com/conduit-lang/nestwrite/internal/cli/ui"
	"github.com/conduit-lang/nestwrite/internal/nested"
	"github.com/conduit-lang/nestwrite/internal/orm/validation"
)

// configFailure wraps an error raised while loading the configuration or opening
// the database
type configFailure struct {
	err error
}

func (e *configFailure) Error() string { return e.err.Error() }
func (e *configFailure) Unwrap() error { return e.err }

// report writes err the way the ui package formats it and returns errReported.
// declared lists the known resources for suggestions.
func report(w io.Writer, err error, resource string, declared []string, noColor bool) error {
	var (
		cfgErr        *configFailure
		validationErr *validation.ValidationErrors
		invalid       *nested.InvalidDataError
		notFound      *nested.NotFoundError
		persist       *nested.PersistFailure
		configErr     *nested.ConfigurationError
	)

	var message string
	switch {
	case errors.As(err, &cfgErr):
		message = ui.ConfigError(cfgErr.Error(), nil, noColor)
	case errors.Is(err, app.ErrUnknownResource):
		message = ui.ResourceNotFoundError(resource, declared, noColor)
	case errors.As(err, &validationErr):
		message = ui.ValidationError(validationErr.Fields, noColor)
	case errors.As(err, &invalid):
		message = ui.InvalidDataError(invalid.Error(), noColor)
	case errors.As(err, &notFound):
		message = ui.RecordNotFoundError(notFound.Error(), noColor)
	case errors.As(err, &persist):
		message = ui.WriteFailedError(persist.Error(), noColor)
	case errors.As(err, &configErr):
		message = ui.ConfigError(configErr.Error(), nil, noColor)
	default:
		return err
	}

	fmt.Fprint(w, message)
	return errReported
}
