package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single failed field rule.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// RequestValidator validates request DTOs.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	validate := validator.New()

	rv := &RequestValidator{validate: validate}
	rv.registerRules()

	return rv
}

// Validate validates a struct's tags; returns nil when everything passes.
func (rv *RequestValidator) Validate(s interface{}) ValidationErrors {
	var errors ValidationErrors

	err := rv.validate.Struct(s)
	if err != nil {
		for _, err := range err.(validator.ValidationErrors) {
			errors = append(errors, ValidationError{
				Field:   err.Field(),
				Message: rv.getErrorMessage(err),
				Value:   err.Value(),
				Rule:    err.Tag(),
			})
		}
	}

	return errors
}

// registerRules registers custom field validators.
func (rv *RequestValidator) registerRules() {
	// Names must have visible characters after trimming.
	rv.validate.RegisterValidation("person_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 255
	})

	// Room names, same trim rule but shorter.
	rv.validate.RegisterValidation("room_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 1 && len(name) <= 100
	})

	// Password policy: minimum 8 characters.
	rv.validate.RegisterValidation("student_password", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) >= 8
	})
}

// getErrorMessage returns user-friendly error messages.
func (rv *RequestValidator) getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "person_name":
		return "must be between 1 and 255 characters"
	case "room_name":
		return "must be between 1 and 100 characters"
	case "student_password":
		return "must be at least 8 characters"
	case "eqfield":
		return "must match " + err.Param()
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}
