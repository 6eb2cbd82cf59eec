// Package cortexerr defines the error taxonomy shared across the core and
// the HTTP layer. Core packages return these sentinel-wrapped
// errors; internal/httpapi maps them to status codes.
package cortexerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("%w: ...") to add context; callers
// match with errors.Is.
var (
	// ErrNotFound: the addressed entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: invalid state transition (e.g. completing a non-pending
	// transaction).
	ErrConflict = errors.New("conflict")

	// ErrValidation: malformed body or out-of-range numeric input.
	ErrValidation = errors.New("validation error")

	// ErrStore: transport/transient store failure.
	ErrStore = errors.New("store error")

	// ErrEmbed: embedding collaborator failure.
	ErrEmbed = errors.New("embed error")

	// ErrInvariant: an internal invariant was violated. Must be logged with
	// full context; the enclosing operation aborts without touching the
	// store.
	ErrInvariant = errors.New("invariant violation")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Storef wraps ErrStore with a formatted message.
func Storef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStore}, args...)...)
}

// Embedf wraps ErrEmbed with a formatted message.
func Embedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrEmbed}, args...)...)
}

// Invariantf wraps ErrInvariant with a formatted message.
func Invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvariant}, args...)...)
}

// HTTPStatus maps a core error to the HTTP status code from.
// Unrecognized errors default to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrValidation):
		return 422
	case errors.Is(err, ErrStore):
		return 503
	case errors.Is(err, ErrEmbed):
		return 502
	case errors.Is(err, ErrInvariant):
		return 500
	default:
		return 500
	}
}
