// Package apperr defines the error taxonomy shared by every layer.
// Handlers map these sentinels to HTTP status codes; services wrap them
// with %w so callers can test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")
)
