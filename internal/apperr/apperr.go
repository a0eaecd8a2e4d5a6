// Package apperr defines the error taxonomy shared by the services and the
// HTTP boundary. Every expected failure is an *Error with a Kind and a
// machine-readable Code; anything else is treated as internal.
package apperr

import (
	"errors"
	"time"
)

type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuth          Kind = "auth"
	KindSession       Kind = "session"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindRateLimit     Kind = "rate_limit"
	KindUnavailable   Kind = "unavailable"
	KindInternal      Kind = "internal"
)

type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Fields     map[string]string
	RetryAfter time.Duration
	Err        error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind and Code. A target without a Code matches every error
// of its Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// Wrap returns a copy of e carrying cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

// WithRetryAfter returns a copy of e with a retry hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	c := *e
	c.RetryAfter = d
	return &c
}

// Validation builds a validation error from per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_FAILED",
		Message: "The given data was invalid",
		Fields:  fields,
	}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Sentinel kinds for errors.Is checks on a whole category.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrSession       = &Error{Kind: KindSession}
	ErrAuthorization = &Error{Kind: KindAuthorization}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrRateLimit     = &Error{Kind: KindRateLimit}
	ErrUnavailable   = &Error{Kind: KindUnavailable}
)
