package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"upkeep/internal/quota"
	"upkeep/internal/workorder"
)

var (
	// ErrValidation marks caller input that can never succeed as given.
	ErrValidation = errors.New("validation failed")
	// ErrNotFoundOrForbidden covers both a missing record and one owned by
	// another account; callers cannot tell the two apart.
	ErrNotFoundOrForbidden = errors.New("not found or access denied")
	// ErrNotFound marks a missing related entity such as an account or template.
	ErrNotFound = errors.New("not found")
	// ErrInvalidStatus rejects a work order status outside the enumeration.
	ErrInvalidStatus = workorder.ErrInvalidStatus
	// ErrBackend is the only thing a caller sees of a datastore failure.
	ErrBackend = errors.New("backend unavailable")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFoundOrForbidden(kind string) error {
	return fmt.Errorf("%s %w", kind, ErrNotFoundOrForbidden)
}

func notFound(kind string) error {
	return fmt.Errorf("%s %w", kind, ErrNotFound)
}

// IsQuotaExceeded unwraps a quota rejection.
func IsQuotaExceeded(err error) (*quota.ExceededError, bool) {
	var qe *quota.ExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

func isDomainError(err error) bool {
	if _, ok := IsQuotaExceeded(err); ok {
		return true
	}
	for _, target := range []error{ErrValidation, ErrNotFoundOrForbidden, ErrNotFound, ErrInvalidStatus, ErrBackend} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fail passes domain errors through and replaces anything else with
// ErrBackend after logging the detail.
func (e Engine) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	e.log(ctx).Error("operation failed", slog.String("op", op), slog.String("error", err.Error()))
	return fmt.Errorf("%s: %w", op, ErrBackend)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct converts the first validator failure into a ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", err.Error())
	}
	fe := verrs[0]
	return invalid(fe.Field(), reasonFor(fe))
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
