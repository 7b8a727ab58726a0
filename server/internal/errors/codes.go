package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type surfaced to API clients.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeBadRequest indicates a validation or guard failure.
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"
	// ErrCodeInvalidCursor indicates a pagination cursor that cannot be applied.
	ErrCodeInvalidCursor ErrorCode = "INVALID_CURSOR"
	// ErrCodeAlreadyLocked indicates a lock on a locked thread.
	ErrCodeAlreadyLocked ErrorCode = "ALREADY_LOCKED"
	// ErrCodeAlreadyUnlocked indicates an unlock on an unlocked thread.
	ErrCodeAlreadyUnlocked ErrorCode = "ALREADY_UNLOCKED"
	// ErrCodeThreadLocked indicates a write to a thread whose chain is locked.
	ErrCodeThreadLocked ErrorCode = "THREAD_LOCKED"
	// ErrCodeAlreadyVerifier indicates a repeated event verification by the same user.
	ErrCodeAlreadyVerifier ErrorCode = "ALREADY_VERIFIER"
	// ErrCodeConflict indicates a uniqueness violation.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeForbidden indicates the caller may not perform the operation.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error is a coded domain error.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus returns the status code the error is rendered with.
func (e *Error) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// HTTPStatus maps a code to an HTTP status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeBadRequest, ErrCodeInvalidCursor, ErrCodeAlreadyLocked, ErrCodeAlreadyUnlocked,
		ErrCodeThreadLocked, ErrCodeAlreadyVerifier:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors for common error types.

// NotFound creates a not found error for an entity kind and id.
func NotFound(kind string, id any) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %v not found", kind, id)}
}

// BadRequest creates a bad request error.
func BadRequest(msg string) *Error {
	return &Error{Code: ErrCodeBadRequest, Message: msg}
}

// InvalidCursor creates an invalid cursor error.
func InvalidCursor(cause error) *Error {
	return &Error{Code: ErrCodeInvalidCursor, Message: "invalid pagination cursor", Cause: cause}
}

// AlreadyLocked creates an already locked error.
func AlreadyLocked() *Error {
	return &Error{Code: ErrCodeAlreadyLocked, Message: "Thread is already locked"}
}

// AlreadyUnlocked creates an already unlocked error.
func AlreadyUnlocked() *Error {
	return &Error{Code: ErrCodeAlreadyUnlocked, Message: "Thread is already unlocked"}
}

// ThreadLocked creates a thread locked error.
func ThreadLocked() *Error {
	return &Error{Code: ErrCodeThreadLocked, Message: "Thread is locked"}
}

// AlreadyVerifier creates an already verifier error.
func AlreadyVerifier() *Error {
	return &Error{Code: ErrCodeAlreadyVerifier, Message: "You have already verified this event"}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: ErrCodeConflict, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: ErrCodeForbidden, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: ErrCodeUnauthorized, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *Error {
	return &Error{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return &Error{Code: ErrCodeInternal, Message: "internal error", Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// As returns the coded error in err's chain, if any.
func As(err error) (*Error, bool) {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	coded, ok := As(err)
	return ok && coded.Code == code
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not coded.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if coded, ok := As(err); ok {
		return coded.Code
	}
	return defaultCode
}
