package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/internal/pagination"
	"github.com/hrygo/plaza/store"
)

// From converts any error into a coded error. Store sentinels, cursor errors and
// echo HTTP errors keep their meaning; everything else is INTERNAL.
func From(err error) *Error {
	if coded, ok := As(err); ok {
		return coded
	}
	switch {
	case stderrors.Is(err, store.ErrNotFound):
		return &Error{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	case stderrors.Is(err, store.ErrConflict):
		return &Error{Code: ErrCodeConflict, Message: "Resource already exists", Cause: err}
	case stderrors.Is(err, pagination.ErrInvalidCursor):
		return &Error{Code: ErrCodeInvalidCursor, Message: err.Error(), Cause: err}
	}

	var httpErr *echo.HTTPError
	if stderrors.As(err, &httpErr) {
		return fromHTTPError(httpErr)
	}
	return Internal(err)
}

func fromHTTPError(httpErr *echo.HTTPError) *Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}
	var code ErrorCode
	switch {
	case httpErr.Code == http.StatusNotFound:
		code = ErrCodeNotFound
	case httpErr.Code == http.StatusUnauthorized:
		code = ErrCodeUnauthorized
	case httpErr.Code == http.StatusForbidden:
		code = ErrCodeForbidden
	case httpErr.Code == http.StatusTooManyRequests:
		code = ErrCodeRateLimitExceeded
	case httpErr.Code >= 400 && httpErr.Code < 500:
		code = ErrCodeBadRequest
	default:
		code = ErrCodeInternal
	}
	return &Error{Code: code, Message: message, Cause: httpErr}
}
