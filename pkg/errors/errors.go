package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error following the Problem Details shape
// (RFC 9457): a stable machine-readable code, a short title, the HTTP status
// and a human-readable detail.
type Error struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
	Err    error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, title, detail string) *Error {
	return &Error{Code: code, Status: status, Title: title, Detail: detail}
}

// Wrap attaches context to an existing error, preserving the original message
// for operators via Unwrap.
func Wrap(err error, code string, status int, detail string) *Error {
	return &Error{Code: code, Status: status, Title: detail, Detail: detail, Err: err}
}

// Predefined errors for common scenarios. Codes are part of the API contract:
// clients branch on them, never on prose.
var (
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "Unauthorized", "unauthorized")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "Forbidden", "caller lacks the required role")
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "Not found", "resource not found")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "Validation failed", "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "Internal server error", "internal server error")

	ErrApplyBlocked = New("PLANNING_APPLY_BLOCKED", http.StatusConflict, "Apply blocked",
		"one or more blocking conflicts prevent this apply")
	ErrAckRequired = New("PLANNING_ACK_REQUIRED", http.StatusConflict, "Acknowledgment required",
		"warning conflicts must be acknowledged before apply")
	ErrOverrideRequired = New("PLANNING_OVERRIDE_REQUIRED", http.StatusConflict, "Override reason required",
		"a non-empty override reason is required to apply into a locked period")
	ErrVersionConflict = New("VERSION_CONFLICT", http.StatusConflict, "Concurrent modification",
		"the resource was modified by another writer; re-read and retry")
	ErrInvalidTransition = New("INVALID_TRANSITION", http.StatusConflict, "Invalid transition",
		"the requested state transition is not allowed")
	ErrAlreadyApplied = New("ALREADY_APPLIED", http.StatusConflict, "Already applied",
		"this proposal has already been applied")
	ErrTradeBlocked = New("TRADE_BLOCKED", http.StatusConflict, "Trade blocked",
		"blocking conflicts prevent this trade")

	// ErrCacheMiss is an internal sentinel, never surfaced to callers.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "Cache miss", "cache miss")
)

// FromError normalises any error into an *Error. Unexpected store errors are
// wrapped as INTERNAL_ERROR, preserving the original message via Err.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Detail)
}

// Clone returns a copy of the error allowing for detail overrides.
func Clone(err *Error, detail string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if detail != "" {
		clone.Detail = detail
	}
	return &clone
}
