package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss  = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Lifecycle rejections are terminal for the attempted operation but
	// never fatal to the process.
	ErrLifecycle        = New("LIFECYCLE_VIOLATION", http.StatusConflict, "operation not allowed in current configuration status")
	ErrConfigFrozen     = New("CONFIG_FROZEN", http.StatusConflict, "configuration is locked or archived")
	ErrRowLocked        = New("ROW_LOCKED", http.StatusConflict, "assignment is locked")
	ErrBelowThreshold   = New("COMPLETENESS_BELOW_THRESHOLD", http.StatusPreconditionFailed, "completeness below publish threshold")
	ErrSessionBusy      = New("EDIT_SESSION_BUSY", http.StatusConflict, "another edit session holds this configuration")
	ErrQuotaExceeded    = New("QUOTA_EXCEEDED", http.StatusConflict, "teaching hour quota exceeded")
	ErrAssignmentExists = New("ASSIGNMENT_EXISTS", http.StatusConflict, "assignment id already present")

	// ErrInvariant signals a data-integrity bug (dangling id, negative
	// workload total). The engine refuses to proceed on it.
	ErrInvariant = New("INVARIANT_VIOLATED", http.StatusInternalServerError, "engine invariant violated")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the given predefined code.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
