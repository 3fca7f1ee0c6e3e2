// Package validate decorates route handlers with request validation.
//
// A validated handler receives a typed input decoded from the request: query
// parameters for GET, the JSON body otherwise. Struct tags drive the
// declarative rules via go-playground/validator; inputs may also implement
// Checker for cross-field rules. Failures short-circuit the handler with a
// validation error whose messages are translation keys, translated by the
// pipeline before the response is built.
package validate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/cuemby/burrow/pkg/apperrors"
	"github.com/cuemby/burrow/pkg/router"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their json names so error payloads match the wire
	// format.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Checker adds cross-field rules on top of struct tags. Returned errors use
// translation keys as messages.
type Checker interface {
	Check() []apperrors.FieldError
}

// ValidatedHandler is a route handler receiving a decoded, validated input.
type ValidatedHandler[T any] func(ctx context.Context, r *http.Request, params router.Params, input T) ([]byte, error)

// With wraps a handler with decode and validate steps for input type T.
func With[T any](handler ValidatedHandler[T]) router.Handler {
	return func(ctx context.Context, r *http.Request, params router.Params) ([]byte, error) {
		var input T
		if err := decode(r, &input); err != nil {
			return nil, err
		}
		if errs := run(input); len(errs) > 0 {
			return nil, apperrors.NewValidationFailure(errs)
		}
		return handler(ctx, r, params, input)
	}
}

// decode fills the input from the request source: query parameters for GET,
// JSON body for everything else.
func decode(r *http.Request, input any) error {
	if r.Method == http.MethodGet {
		return decodeQuery(r, input)
	}
	if r.Body == nil {
		return nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, input); err != nil {
		return apperrors.NewValidationFailure([]apperrors.FieldError{
			{Field: "body", Message: "validationErrors.invalidJson"},
		})
	}
	return nil
}

// decodeQuery maps query parameters through a JSON round trip so typed
// struct fields decode from their string form. Values that parse as JSON
// literals keep their type; everything else stays a string.
func decodeQuery(r *http.Request, input any) error {
	values := r.URL.Query()
	flat := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		flat[key] = coerce(vals[0])
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return fmt.Errorf("failed to encode query parameters: %w", err)
	}
	if err := json.Unmarshal(raw, input); err != nil {
		return apperrors.NewValidationFailure([]apperrors.FieldError{
			{Field: "query", Message: "validationErrors.invalidQuery"},
		})
	}
	return nil
}

func coerce(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	var n json.Number
	if err := json.Unmarshal([]byte(s), &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return s
}

// run collects struct-tag failures, then Checker failures.
func run(input any) []apperrors.FieldError {
	var errs []apperrors.FieldError

	if err := structValidator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		// Non-struct inputs report InvalidValidationError; only the Checker
		// applies to those.
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				// Field() is already the json name via RegisterTagNameFunc.
				errs = append(errs, apperrors.FieldError{
					Field:   fe.Field(),
					Message: "validationErrors." + fe.Tag(),
				})
			}
		}
	}

	if checker, ok := input.(Checker); ok {
		errs = append(errs, checker.Check()...)
	}
	return errs
}
