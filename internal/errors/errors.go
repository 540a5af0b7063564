// Package errors provides coded domain errors for watch-module.
//
// Usage:
//
//	// In the core - return typed errors
//	if name == "" {
//	    return errors.Manifestf("%s has no name", manifestPath)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrManifest) {
//	    feed.Emit(feed.LevelError, moduleName, err.Error())
//	    return
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeCommandCancelled:
//	        // superseded, stay silent
//	    case errors.CodeCommandFailure:
//	        // report captured output
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeManifest         Code = "MANIFEST"
	CodeConfigValidation Code = "CONFIG_VALIDATION"
	CodeCommandFailure   Code = "COMMAND_FAILURE"
	CodeCommandCancelled Code = "COMMAND_CANCELLED"
	CodeCopyFailure      Code = "COPY_FAILURE"
	CodeWatchPath        Code = "WATCH_PATH"
	CodeInternal         Code = "INTERNAL"
)

// Silent reports whether errors with this code represent an expected
// outcome that must not be surfaced to the user as a failure.
func (c Code) Silent() bool {
	return c == CodeCommandCancelled
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrManifest         = &Error{Code: CodeManifest, Message: "invalid module manifest"}
	ErrConfigValidation = &Error{Code: CodeConfigValidation, Message: "invalid configuration"}
	ErrCommandFailure   = &Error{Code: CodeCommandFailure, Message: "command failed"}
	ErrCommandCancelled = &Error{Code: CodeCommandCancelled, Message: "command cancelled"}
	ErrCopyFailure      = &Error{Code: CodeCopyFailure, Message: "copy failed"}
	ErrWatchPath        = &Error{Code: CodeWatchPath, Message: "unable to watch path"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
)

// Constructor functions for creating errors with custom messages.

// Manifest creates a manifest error.
func Manifest(msg string) *Error {
	return &Error{Code: CodeManifest, Message: msg}
}

// Manifestf creates a manifest error with formatted message.
func Manifestf(format string, args ...any) *Error {
	return &Error{Code: CodeManifest, Message: fmt.Sprintf(format, args...)}
}

// ConfigValidation creates a configuration validation error.
func ConfigValidation(msg string) *Error {
	return &Error{Code: CodeConfigValidation, Message: msg}
}

// ConfigValidationWithDetails creates a configuration validation error with details.
func ConfigValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeConfigValidation, Message: msg, Details: details}
}

// CommandFailuref creates a command failure error with formatted message.
func CommandFailuref(format string, args ...any) *Error {
	return &Error{Code: CodeCommandFailure, Message: fmt.Sprintf(format, args...)}
}

// CommandCancelledf creates a command cancelled error with formatted message.
func CommandCancelledf(format string, args ...any) *Error {
	return &Error{Code: CodeCommandCancelled, Message: fmt.Sprintf(format, args...)}
}

// CopyFailuref creates a copy failure error with formatted message.
func CopyFailuref(format string, args ...any) *Error {
	return &Error{Code: CodeCopyFailure, Message: fmt.Sprintf(format, args...)}
}

// WatchPathf creates a watch path error with formatted message.
func WatchPathf(format string, args ...any) *Error {
	return &Error{Code: CodeWatchPath, Message: fmt.Sprintf(format, args...)}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
