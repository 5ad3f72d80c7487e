package mapping

import (
	"errors"
	"fmt"
)

// Mapping error codes
const (
	ErrCodeRequiredField = "ERR_MAPPING_REQUIRED_FIELD"
	ErrCodeInvalidType   = "ERR_MAPPING_INVALID_TYPE"
	ErrCodeInvalidValue  = "ERR_MAPPING_INVALID_VALUE"
	ErrCodeValidation    = "ERR_MAPPING_VALIDATION"
	ErrCodeDuplicate     = "ERR_MAPPING_DUPLICATE"
	ErrCodeDecode        = "ERR_MAPPING_DECODE"
)

// ErrInvalidMapping is returned when a mapping definition cannot be registered.
var ErrInvalidMapping = errors.New("invalid mapping")

// ErrCategoryExists is returned by RegisterNew when the category already has a mapping.
var ErrCategoryExists = errors.New("category already registered")

// FieldError reports why a single source value could not be mapped.
type FieldError struct {
	Field   string `json:"field"`
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

func requiredError(f Field) *FieldError {
	return &FieldError{
		Field:   f.Column,
		Path:    f.Path,
		Code:    ErrCodeRequiredField,
		Message: fmt.Sprintf("field '%s' is required (path %s)", f.Column, f.Path),
	}
}

func typeError(f Field, value any) *FieldError {
	return &FieldError{
		Field:   f.Column,
		Path:    f.Path,
		Code:    ErrCodeInvalidType,
		Message: fmt.Sprintf("expected %s, got %T", f.Type, value),
	}
}

func valueError(f Field, format string, args ...any) *FieldError {
	return &FieldError{
		Field:   f.Column,
		Path:    f.Path,
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf(format, args...),
	}
}
