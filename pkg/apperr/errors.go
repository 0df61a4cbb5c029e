package apperr

import (
	"errors"
	"net/http"
)

// HTTPError is implemented by errors that carry their own HTTP status.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinels, matched with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

type (
	// ValidationError rejects input before any work starts.
	ValidationError struct {
		Message string
	}

	// NotFoundError reports a missing resource.
	NotFoundError struct {
		Message string
	}

	// ConflictError reports a request that clashes with current state.
	ConflictError struct {
		Message string
	}
)

func (e *ValidationError) Error() string { return e.Message }
func (e *NotFoundError) Error() string   { return e.Message }
func (e *ConflictError) Error() string   { return e.Message }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *ConflictError) StatusCode() int   { return http.StatusConflict }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *ConflictError) Is(target error) bool   { return target == ErrConflict }

func Validation(msg string) error { return &ValidationError{Message: msg} }
func NotFound(msg string) error   { return &NotFoundError{Message: msg} }
func Conflict(msg string) error   { return &ConflictError{Message: msg} }

// StatusOf maps err to an HTTP status, defaulting to 500.
func StatusOf(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
