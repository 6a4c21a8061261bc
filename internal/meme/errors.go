package meme

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrResolutionGap marks a like whose meme id is not in the catalog cache.
// It is only ever logged: orphaned likes are dropped from rankings.
var ErrResolutionGap = errors.New("meme not in catalog cache")

// ValidationError rejects input before any state is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NetworkError wraps a failed call to a remote collaborator (catalog,
// image host, caption service). No state is mutated when one is returned.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNetwork reports whether err is or wraps a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate checks struct tags on v and converts the first failure into a
// ValidationError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return formatFieldError(fieldErrs[0])
}

func formatFieldError(e validator.FieldError) *ValidationError {
	field := strings.ToLower(e.Field())

	switch e.Tag() {
	case "required":
		return Invalid(field, "is required")
	case "max":
		return Invalid(field, fmt.Sprintf("must be at most %s characters", e.Param()))
	case "url", "uri":
		return Invalid(field, "must be a valid URL")
	default:
		return Invalid(field, "is invalid")
	}
}
