// Package apierr classifies failures of the journaling core so that callers
// (the HTTP layer, the CLI) can decide on status codes and retries without
// inspecting error strings.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindStorage     Kind = "storage"
	KindUnavailable Kind = "unavailable"
	KindBusy        Kind = "busy"
	KindBadOutput   Kind = "bad_output"
	KindInternal    Kind = "internal"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + string(e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation reports rejected input; nothing was written.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, fmt.Errorf(format, args...))
}

// Storage wraps a failed (and rolled back) write or read.
func Storage(op string, err error) *Error {
	return New(KindStorage, op, err)
}

func Unavailable(op string, err error) *Error {
	return New(KindUnavailable, op, err)
}

func Busy(op string, err error) *Error {
	return New(KindBusy, op, err)
}

// BadOutput reports a model answer that could not be parsed into a result.
func BadOutput(op string, err error) *Error {
	return New(KindBadOutput, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindBusy, KindUnavailable, KindBadOutput:
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBusy:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindBadOutput:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
