package common

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError is one failed rule for one field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// Validator collects rule failures across fields so callers can report them all at once.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value in order and records every failure.
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage joins all failures with "; ".
func (v *Validator) ErrorMessage() string {
	msgs := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Err returns the collected failures as an ErrInvalidInput AppError, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewAppError("INVALID_INPUT", v.ErrorMessage(), ErrInvalidInput)
}

// ValidationRule returns nil when value passes.
type ValidationRule func(fieldName string, value interface{}) *ValidationError

func invalid(fieldName string, value interface{}, msg string) *ValidationError {
	return &ValidationError{Field: fieldName, Value: value, Message: msg}
}

// Required rejects nil and blank strings.
func Required(fieldName string, value interface{}) *ValidationError {
	switch v := value.(type) {
	case nil:
		return invalid(fieldName, value, "is required")
	case string:
		if strings.TrimSpace(v) == "" {
			return invalid(fieldName, value, "is required")
		}
	}
	return nil
}

// MaxLength limits a string to max runes. Non-strings pass.
func MaxLength(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > max {
			return invalid(fieldName, value, fmt.Sprintf("must be at most %d characters", max))
		}
		return nil
	}
}

func Positive(fieldName string, value interface{}) *ValidationError {
	if n, ok := value.(int); !ok || n <= 0 {
		return invalid(fieldName, value, "must be a positive integer")
	}
	return nil
}

func PositiveDuration(fieldName string, value interface{}) *ValidationError {
	if d, ok := value.(time.Duration); !ok || d <= 0 {
		return invalid(fieldName, value, "must be a positive duration")
	}
	return nil
}

// OneOf accepts only the listed string values.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		s, _ := value.(string)
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return invalid(fieldName, value, "must be one of "+strings.Join(allowed, ", "))
	}
}

// HTTPURL requires an absolute http or https URL with a host.
func HTTPURL(fieldName string, value interface{}) *ValidationError {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fieldName, value, "must be an http(s) URL")
	}
	return nil
}
