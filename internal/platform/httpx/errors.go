// Package httpx provides HTTP response utilities and the service error taxonomy.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the service layer.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("conflict")
	ErrDatabase   = errors.New("database error")
)

// Error carries a caller-facing message on top of a sentinel kind.
// The message is returned to clients for 4xx responses; 5xx responses stay
// generic and the real cause is only ever logged.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Validation builds a 400-class error with a client-safe message.
func Validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

// NotFound builds a 404-class error naming the missing entity.
func NotFound(msg string) error { return &Error{Kind: ErrNotFound, Message: msg} }

// Conflict builds a 409-class error.
func Conflict(msg string) error { return &Error{Kind: ErrConflict, Message: msg} }

// Database builds a 500-class error. The message is logged by callers but the
// HTTP body stays generic.
func Database(msg string) error { return &Error{Kind: ErrDatabase, Message: msg} }

// RespondError maps service errors to HTTP responses. Anything outside the
// taxonomy maps to an opaque 500.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Fail(w, http.StatusBadRequest, CodeValidation, clientMessage(err, "invalid request"))
	case errors.Is(err, ErrNotFound):
		Fail(w, http.StatusNotFound, CodeNotFound, clientMessage(err, "resource not found"))
	case errors.Is(err, ErrConflict):
		Fail(w, http.StatusConflict, CodeConflict, clientMessage(err, "conflict"))
	default:
		Fail(w, http.StatusInternalServerError, CodeDatabase, "an internal error occurred")
	}
}

// clientMessage extracts the typed message when present, falling back to a
// generic one so raw collaborator errors never reach clients.
func clientMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
