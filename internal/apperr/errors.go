// Package apperr classifies failures so callers can tell whether to retry,
// fix their input, or give up.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind sentinels. Every *Error unwraps to exactly one of these.
var (
	ErrNotFound    = errors.New("not found")
	ErrBadState    = errors.New("bad state")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")

	ErrUnauthenticated = errors.New("unauthenticated")
)

type Error struct {
	kind    error
	Message string
	Details []string
	err     error
}

func New(kind error, message string) *Error {
	return &Error{kind: kind, Message: message}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies a lower-level error under kind.
func Wrap(kind error, err error, message string) *Error {
	return &Error{kind: kind, Message: message, err: err}
}

// WithDetails returns a copy of e carrying the given violation list.
func (e *Error) WithDetails(details []string) *Error {
	cp := *e
	cp.Details = append([]string(nil), details...)
	return &cp
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.err != nil {
		return []error{e.kind, e.err}
	}
	return []error{e.kind}
}

// Is matches copies made by WithDetails against the original.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.kind == e.kind && t.Message == e.Message
}

func (e *Error) Kind() error {
	return e.kind
}

// KindOf returns the kind sentinel of err, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrBadState, ErrValidation, ErrConflict, ErrUnavailable, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName is the short machine-readable name used in API responses.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrBadState:
		return "bad_state"
	case ErrValidation:
		return "validation"
	case ErrConflict:
		return "conflict"
	case ErrUnavailable:
		return "unavailable"
	case ErrUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Details collects violation details from the first *Error in the chain.
func Details(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	kind := KindOf(err)
	return kind == ErrConflict || kind == ErrUnavailable
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrBadState, ErrConflict:
		return http.StatusConflict
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrUnavailable:
		return http.StatusServiceUnavailable
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
