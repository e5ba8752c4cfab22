package errclass

import (
	"errors"
	"fmt"
)

// LiveError is a machine-readable error class surfaced to clients of a live session.
type LiveError struct {
	Code    string
	Message string
}

func (e *LiveError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LiveError) Is(target error) bool {
	t, ok := target.(*LiveError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new LiveError with the same Code but a specific message.
func (e *LiveError) WithMessage(msg string) *LiveError {
	return &LiveError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new LiveError with a formatted message.
func (e *LiveError) WithMessagef(format string, args ...any) *LiveError {
	return &LiveError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNotFound     = &LiveError{Code: "E_NOT_FOUND"}
	ErrConflict     = &LiveError{Code: "E_CONFLICT"}
	ErrInvalidState = &LiveError{Code: "E_INVALID_STATE"}
	ErrValidation   = &LiveError{Code: "E_VALIDATION"}
)

// Classify returns the LiveError in err's chain, or nil when err carries no class.
func Classify(err error) *LiveError {
	var le *LiveError
	if errors.As(err, &le) {
		return le
	}
	return nil
}
