// Package chaterr defines the error taxonomy shared by the orchestrator,
// persistence, and security packages, and maps it to transport-level status
// codes in one place.
package chaterr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error categories from the system's error taxonomy.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindAuthz       Kind = "authz"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindStorage     Kind = "storage"
	KindPersistence Kind = "persistence"
	KindConfig      Kind = "config"
)

// Error is a structured error carrying a Kind, a user-facing message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(msg string) *Error        { return new_(KindValidation, msg) }
func Auth(msg string) *Error              { return new_(KindAuth, msg) }
func Authz(msg string) *Error             { return new_(KindAuthz, msg) }
func NotFound(msg string) *Error          { return new_(KindNotFound, msg) }
func Conflict(msg string) *Error          { return new_(KindConflict, msg) }
func Storage(msg string, err error) *Error     { return wrap(KindStorage, msg, err) }
func Persistence(msg string, err error) *Error { return wrap(KindPersistence, msg, err) }
func Config(msg string) *Error             { return new_(KindConfig, msg) }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps err to the status code from the transport table. Unknown
// errors fall back to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthz:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindStorage:
		return http.StatusInternalServerError
	case KindPersistence:
		return http.StatusServiceUnavailable
	case KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
