// Package werrors defines the wire error taxonomy shared by every component:
// the project registry, lock manager, synchronizer, and task manager all
// return *Error so tool handlers can map a failure to a stable error code
// without inspecting message text.
package werrors

import (
	"errors"
	"fmt"
)

// Code is a stable, wire-visible error identifier.
type Code string

// Error codes surfaced to MCP tool callers.
const (
	CodeNoProjectBound      Code = "NO_PROJECT_BOUND"
	CodeProjectNotFound     Code = "PROJECT_NOT_FOUND"
	CodeTaskNotFound        Code = "TASK_NOT_FOUND"
	CodePlanNotFound        Code = "PLAN_NOT_FOUND"
	CodeStepNotFound        Code = "STEP_NOT_FOUND"
	CodeEVRNotFound         Code = "EVR_NOT_FOUND"
	CodeEVRNotReady         Code = "EVR_NOT_READY"
	CodeSyncConflict        Code = "SYNC_CONFLICT"
	CodeCorruptedLock       Code = "CORRUPTED_LOCK"
	CodeForeignLock         Code = "FOREIGN_LOCK"
	CodeLockTimeout         Code = "LOCK_TIMEOUT"
	CodeLockHeld            Code = "LOCK_HELD"
	CodeDeadlockDetected    Code = "DEADLOCK_DETECTED"
	CodeStateVersionConflict Code = "STATE_VERSION_CONFLICT"
	CodeValidationError     Code = "VALIDATION_ERROR"
	CodeInvalidTransition   Code = "INVALID_TRANSITION"
	CodeFileSystemError     Code = "FILE_SYSTEM_ERROR"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// Error is the error type returned across all wavetask components.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New constructs an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error that wraps an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the Code carried by err, or CodeInternal if err is not
// (or does not wrap) a *Error.
func CodeOf(err error) Code {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
