package config

import (
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// ValidationError reports one rejected option. Field is the config key
// ("fetch.max_attempts", "fetch.collections[0]") or "flags" / "config" for
// parse and decode failures. Rule, Param and Value are set when the error
// came from a struct tag check.
type ValidationError struct {
	Field   string
	Rule    string
	Param   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a validation error that is not tied to a tag
// rule, such as an unknown flag.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// fieldError maps a failed validator tag onto the config key space.
func fieldError(fe validator.FieldError, trans ut.Translator) *ValidationError {
	return &ValidationError{
		Field:   fieldKey(fe.Namespace()),
		Rule:    fe.Tag(),
		Param:   fe.Param(),
		Value:   fe.Value(),
		Message: fe.Translate(trans),
	}
}

// fieldKey drops the root struct name: "Config.fetch.max_attempts" becomes
// "fetch.max_attempts".
func fieldKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

// ConflictError reports two options that cannot be combined. Left and Right
// are the flag spellings; Reason says what the combination would break.
type ConflictError struct {
	Left   string
	Right  string
	Reason string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("options %s and %s cannot be used together", e.Left, e.Right)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NewConflictError builds an option conflict error.
func NewConflictError(left, right, reason string) error {
	return &ConflictError{Left: left, Right: right, Reason: reason}
}

// FileError reports a config file that exists but could not be read or
// parsed. Path is empty when no file was found at an explicit location.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// WrapError prefixes err with the config step that failed.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("config %s: %w", op, err)
}
