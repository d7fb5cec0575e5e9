// Package errors provides file/line-tagged, optionally coded errors used
// throughout amcp instead of bare fmt.Errorf.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Code is a stable, machine-readable error classification surfaced over
// HTTP/WS/SSE alongside the human-readable wrapped message chain.
type Code string

const (
	CodeNotFound        Code = "not_found"
	CodeInvalidArgument Code = "invalid_argument"
	CodePermissionDenied Code = "permission_denied"
	CodeAlreadyExists   Code = "already_exists"
	CodeBusy            Code = "busy"
	CodeCanceled        Code = "canceled"
	CodeInternal        Code = "internal"
	CodeUnavailable     Code = "unavailable"
	CodeTimeout         Code = "timeout"
)

// codedError attaches a Code to a wrapped error without losing the chain.
type codedError struct {
	code Code
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

// WithCode tags err with a Code. Passing a nil err returns nil.
func WithCode(err error, code Code) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// CodeOf extracts the Code attached via WithCode, defaulting to
// CodeInternal when none was attached.
func CodeOf(err error) Code {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	return CodeInternal
}

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}

// Is is a re-export of the standard errors.Is for callers that only import
// this package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is a re-export of the standard errors.As for callers that only import
// this package.
func As(err error, target interface{}) bool { return errors.As(err, target) }
