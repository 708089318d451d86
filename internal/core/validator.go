package core

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"aidflow/internal/types"
)

// errCodeValidationInvalidValue is the generic code for constraint violations
// that are not missing-field errors. Domain-specific codes (invalid model,
// invalid horizon) are assigned by handlers that know the field semantics.
const errCodeValidationInvalidValue types.ErrorCode = "validation_invalid_value"

// ValidationError describes a single field-level validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult aggregates validation errors and non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether the result contains no errors. Warnings alone do
// not invalidate a request.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator to apply struct tag rules and
// translate failures into the platform's AppError shape.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator. Struct field names in error output
// use the json tag rather than the Go field name.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the struct tags on s and returns a *types.AppError
// (code validation_missing_required_field or validation_invalid_value) if any
// rule fails. The Details map carries the full list of field errors under the
// key "validation_errors".
func (v *Validator) ValidateStruct(s interface{}) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings validates s and returns the full result rather
// than a single error, for callers that want to surface every failure.
func (v *Validator) ValidateStructWithWarnings(s interface{}) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed a non-struct.
		v.logger.Error("validator received non-struct input", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeInternalUnexpected),
			Message: "validation could not be performed",
		})
		return result
	}

	for _, fe := range verrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(codeForTag(fe.Tag())),
			Message: messageForFieldError(fe),
		})
	}

	return result
}

// codeForTag maps a validation tag to the platform error code.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_without", "required_with":
		return types.ErrCodeValidationMissingField
	default:
		return errCodeValidationInvalidValue
	}
}

// messageForFieldError builds a human-readable message for a field error.
func messageForFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without", "required_with":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation rule '%s'", fe.Field(), fe.Tag())
	}
}
