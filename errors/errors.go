// Package errors defines the chronicle error taxonomy. Every failure
// surfaced across storage, event, entity, commit, manifest and sync
// operations maps onto one of these codes so adapters (HTTP, CLI, MCP)
// can translate them to protocol-specific statuses without inspecting
// message text.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a chronicle error.
type Code string

const (
	NotFound         Code = "NOT_FOUND"
	Validation       Code = "VALIDATION"
	Conflict         Code = "CONFLICT"
	VersionConflict  Code = "VERSION_CONFLICT"
	PermissionDenied Code = "PERMISSION_DENIED"
	Unauthorized     Code = "UNAUTHORIZED"
	Network          Code = "NETWORK"
	Timeout          Code = "TIMEOUT"
	LockHeld         Code = "LOCK_HELD"
	HashMismatch     Code = "HASH_MISMATCH"
	ReadOnly         Code = "READ_ONLY"
	Internal         Code = "INTERNAL"
)

// Error is a chronicle error carrying a taxonomy code and the path or
// identifier it concerns, per the "surfaced with path/context" rule for
// NOT_FOUND, VALIDATION, CONFLICT and HASH_MISMATCH.
type Error struct {
	Code Code
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Msg, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no path context.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// WithPath attaches a path or identifier to an Error.
func WithPath(code Code, path, msg string) *Error {
	return &Error{Code: code, Path: path, Msg: msg}
}

// Wrap attaches a taxonomy code to an underlying error, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(code Code, path string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Path: path, Msg: err.Error(), Err: err}
}

// CodeOf extracts the taxonomy code from err, defaulting to Internal for
// errors that never went through this package.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
