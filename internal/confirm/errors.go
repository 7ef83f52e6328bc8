package confirm

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes errors surfaced to callers of the coordinator.
type ErrorCode string

const (
	// ErrCodeAlreadyInFlight indicates Start was called while another
	// identifier is still processing. The in-flight one is untouched.
	ErrCodeAlreadyInFlight ErrorCode = "ALREADY_IN_FLIGHT"

	// ErrCodeNotTimedOut indicates Retry was requested outside Timeout.
	ErrCodeNotTimedOut ErrorCode = "NOT_TIMED_OUT"

	// ErrCodeNoPending indicates an operation needed a pending confirmation
	// and there was none.
	ErrCodeNoPending ErrorCode = "NO_PENDING"

	// ErrCodeConsumed indicates the identifier already reached Success.
	ErrCodeConsumed ErrorCode = "CONSUMED"

	// ErrCodeInvalidIdentifier indicates an empty identifier.
	ErrCodeInvalidIdentifier ErrorCode = "INVALID_IDENTIFIER"

	// ErrCodeStopped indicates the coordinator loop is no longer running.
	ErrCodeStopped ErrorCode = "STOPPED"
)

// Error is a coordinator error with a stable code.
type Error struct {
	Code       ErrorCode
	Message    string
	Identifier string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Identifier != "" {
		return fmt.Sprintf("%s: %s (identifier=%s)", e.Code, e.Message, e.Identifier)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates an Error.
func NewError(code ErrorCode, identifier, message string) *Error {
	return &Error{Code: code, Message: message, Identifier: identifier}
}

// IsCode reports whether err (or anything it wraps) is an *Error with code.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsInFlight reports whether err signals a rejected double start.
func IsInFlight(err error) bool {
	return IsCode(err, ErrCodeAlreadyInFlight)
}
