// Package errors defines the stable error codes shared by the build engine.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure mode with a stable, machine-readable name.
type Code string

const (
	// CacheReadFailed indicates a persisted cache entry could not be read.
	// Non-fatal: callers treat it as a cache miss.
	CacheReadFailed Code = "CACHE_READ_FAILED"
	// CacheWriteFailed indicates a cache entry could not be persisted.
	CacheWriteFailed Code = "CACHE_WRITE_FAILED"
	// ScanFailed indicates a file could not be stat'd during a scan.
	// Non-fatal: the path is skipped.
	ScanFailed Code = "SCAN_FAILED"
	// ModuleEvaluationFailed indicates a definition failed evaluation or
	// validation. Fatal: aborts the current build pass.
	ModuleEvaluationFailed Code = "MODULE_EVALUATION_FAILED"
	// WriteFailed indicates an I/O error while persisting build output.
	WriteFailed Code = "WRITE_FAILED"
	// InternalError indicates an unexpected failure.
	InternalError Code = "INTERNAL_ERROR"
)

// Error is a typed error carrying a stable code plus optional detail fields.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a typed error.
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a typed error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches a named detail value and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// As is a passthrough to the standard library, so callers matching on *Error
// need only one errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a passthrough to the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// HasCode reports whether err is (or wraps) an *Error with the given code.
func HasCode(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or InternalError if err carries none.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return InternalError
}
