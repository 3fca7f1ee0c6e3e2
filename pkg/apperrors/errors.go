// Package apperrors defines the failure taxonomy shared by the request
// pipeline, the ORM and the validation layer. Every error type carries the
// HTTP status it maps to.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// FieldError is a structured per-field validation failure. Message values are
// translation keys until the pipeline's translator is applied.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the base type for all application failures.
type Error struct {
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// HTTPStatus returns the status an error maps to. Unknown errors map to 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	var valErr *ValidationFailure
	if errors.As(err, &valErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ValidationFailure carries structured per-field errors. It maps to 400.
type ValidationFailure struct {
	Errors []FieldError
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed: %d error(s)", len(e.Errors))
}

func NewValidationFailure(errs []FieldError) *ValidationFailure {
	return &ValidationFailure{Errors: errs}
}

func AuthenticationFailure(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

func PermissionDenied(message string) *Error {
	return &Error{Status: http.StatusForbidden, Message: message}
}

func ResourceNotFound(message string) *Error {
	return &Error{Status: http.StatusNotFound, Message: message}
}

func MethodNotAllowed(message string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Message: message}
}

// DuplicateResource reports a unique-constraint conflict on the named
// resource. The conventional body is "Duplicate resource found: <resource>".
func DuplicateResource(resource string) *Error {
	return &Error{
		Status:  http.StatusConflict,
		Message: fmt.Sprintf("Duplicate resource found: %s", resource),
	}
}

func TooManyRequests(message string) *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: message}
}

func InternalServerError(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message}
}

func ServiceUnavailable(message string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Message: message}
}

// PrivateFieldAccess reports a read of a private field outside projection
// with include_private set.
func PrivateFieldAccess(entity, field string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("private field %s.%s is not accessible", entity, field),
	}
}

// TranslationKeyMissing reports a lookup of an absent translation key.
func TranslationKeyMissing(key string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Message: fmt.Sprintf("missing translation key: %s", key),
	}
}

// ConfigurationError reports invalid or missing runtime configuration.
func ConfigurationError(message string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: message}
}

// Wrap attaches a cause to an application error for %w chains.
func Wrap(appErr *Error, cause error) *Error {
	return &Error{Status: appErr.Status, Message: appErr.Message, cause: cause}
}

// Matching helpers used by the pipeline and tests.

func IsStatus(err error, status int) bool {
	return HTTPStatus(err) == status
}

func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

func IsDuplicate(err error) bool {
	return IsStatus(err, http.StatusConflict)
}
