package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when a natural-key lookup
	// matches nothing. Callers that can tolerate a miss check for it with
	// errors.Is; everything else propagates.
	ErrNotFound = errors.New("record not found")
)

// ValidationError rejects a submission before any of its side effects are
// committed. Field, when set, is a JSON-pointer-ish path into the submitted
// data, e.g. "/version/parents/2/post".
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func NewFieldValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
