package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Common error types for categorization and handling

var (
	// ErrNotFound indicates a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedOperation indicates an operation outside the known set
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrInvalidWorkspace indicates a workspace path that may not be scanned
	ErrInvalidWorkspace = errors.New("invalid workspace path")

	// ErrCollaborator indicates an external collaborator failed
	ErrCollaborator = errors.New("collaborator failure")

	// ErrStore indicates a session store operation failed
	ErrStore = errors.New("session store operation failed")

	// ErrInvalidConfig indicates a configuration value outside its documented bounds
	ErrInvalidConfig = errors.New("invalid configuration")
)

// FieldError describes a single rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError collects every violated field of a request.
// It matches ErrInvalidInput under errors.Is.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput.Error(), strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrInvalidInput) match a ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with context message and stack
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapErrorf wraps an error with formatted context message
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsUnsupportedOperation checks if error is an unsupported operation error
func IsUnsupportedOperation(err error) bool {
	return errors.Is(err, ErrUnsupportedOperation)
}

// IsInvalidWorkspace checks if error is an invalid workspace error
func IsInvalidWorkspace(err error) bool {
	return errors.Is(err, ErrInvalidWorkspace)
}

// AsValidation extracts the ValidationError from err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
