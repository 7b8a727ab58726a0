package v1

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/hrygo/plaza/server/internal/errors"
	"github.com/hrygo/plaza/server/internal/observability"
)

// Envelope wraps every response body.
type Envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody is the error half of an envelope.
type ErrorBody struct {
	Code    apierrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
	Details map[string]any      `json:"details,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

func ok(c echo.Context, data any) error {
	return respond(c, http.StatusOK, data)
}

func created(c echo.Context, data any) error {
	return respond(c, http.StatusCreated, data)
}

// deleted answers mutations that return nothing.
func deleted(c echo.Context) error {
	return ok(c, map[string]bool{"ok": true})
}

func badRequest(msg string) error {
	return apierrors.BadRequest(msg)
}

// HTTPErrorHandler renders any handler error as an envelope.
// Internal failures hide their cause from the client.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	coded := apierrors.From(err)
	status := coded.HTTPStatus()
	body := &ErrorBody{Code: coded.Code, Message: coded.Message, Details: coded.Context}
	if coded.Code == apierrors.ErrCodeInternal {
		body.Message = "Internal server error"
		body.Details = nil
		observability.Logger(c.Request().Context()).Error("unhandled error", "error", err)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, Envelope{Error: body})
	}
	if writeErr != nil {
		observability.Logger(c.Request().Context()).Warn("failed to write error response", "error", writeErr)
	}
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validator *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validator: v}
}

// Validate returns a BAD_REQUEST error listing the failed fields.
func (v *Validator) Validate(i any) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}
	validationErrors, isValidation := err.(validator.ValidationErrors)
	if !isValidation {
		return apierrors.Wrap(err, apierrors.ErrCodeBadRequest, "Invalid request")
	}
	coded := apierrors.BadRequest("Validation failed")
	fields := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return coded.WithContext("fields", fields)
}

// bind decodes the request into req and validates it.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return apierrors.Wrap(err, apierrors.ErrCodeBadRequest, "Invalid request body")
	}
	return c.Validate(req)
}
