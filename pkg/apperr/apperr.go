// Package apperr defines the error taxonomy shared by every component:
// a handful of sentinel errors plus a StatusError wrapper that pins the
// HTTP status an API handler should map the error to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput indicates a request-shape or parameter violation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProfileNotFound indicates a lookup miss.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrConfigError indicates a required external dependency is unconfigured.
	ErrConfigError = errors.New("configuration error")
	// ErrExternalTransient indicates a retriable upstream failure.
	ErrExternalTransient = errors.New("external service temporarily unavailable")
	// ErrExternalPermanent indicates a non-retriable upstream failure.
	ErrExternalPermanent = errors.New("external service rejected request")
	// ErrVendorSnapshotFailed indicates the vendor reported failed/expired.
	ErrVendorSnapshotFailed = errors.New("vendor snapshot failed")
	// ErrJobTimeout indicates a job exceeded its wall-clock budget.
	ErrJobTimeout = errors.New("job timeout")
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")
)

// StatusError pins an HTTP status code and caller-facing detail to an
// underlying sentinel error.
type StatusError struct {
	Err    error
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Detail)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error { return e.Err }

// New wraps a sentinel error with an HTTP status and detail string.
func New(status int, err error, detail string) *StatusError {
	return &StatusError{Err: err, Status: status, Detail: detail}
}

// Invalid builds a 400 StatusError.
func Invalid(format string, args ...any) *StatusError {
	return New(http.StatusBadRequest, ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound builds a 404 StatusError.
func NotFound(format string, args ...any) *StatusError {
	return New(http.StatusNotFound, ErrProfileNotFound, fmt.Sprintf(format, args...))
}

// Config builds a 503 StatusError for an unconfigured dependency.
func Config(format string, args ...any) *StatusError {
	return New(http.StatusServiceUnavailable, ErrConfigError, fmt.Sprintf(format, args...))
}

// HTTPStatus maps an error to the status code an API handler should return,
// defaulting to 500 for anything not in the taxonomy.
func HTTPStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrProfileNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConfigError):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
