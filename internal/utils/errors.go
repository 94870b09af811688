package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ValidationError.
type ErrorKind string

const (
	// InvalidArgument covers nil/empty/malformed input, dimension mismatches and
	// timestamps that do not exist in a series.
	InvalidArgument ErrorKind = "invalid_argument"
	// EmptyInput is returned by statistics computed over an empty collection.
	EmptyInput ErrorKind = "empty_input"
	// DivisionByZero is returned when an operation requires a non-zero divisor.
	DivisionByZero ErrorKind = "division_by_zero"
	// InvalidWindow is returned when a window bound is absent from a series or
	// the bounds are out of order.
	InvalidWindow ErrorKind = "invalid_window"
)

// Sentinels for errors.Is matching against a ValidationError of the same kind.
var (
	ErrInvalidArgument = errors.New(string(InvalidArgument))
	ErrEmptyInput      = errors.New(string(EmptyInput))
	ErrDivisionByZero  = errors.New(string(DivisionByZero))
	ErrInvalidWindow   = errors.New(string(InvalidWindow))
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ValidationError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ValidationError) sentinel() error {
	switch e.Kind {
	case EmptyInput:
		return ErrEmptyInput
	case DivisionByZero:
		return ErrDivisionByZero
	case InvalidWindow:
		return ErrInvalidWindow
	default:
		return ErrInvalidArgument
	}
}

// NewValidationError creates a new InvalidArgument ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Kind:    InvalidArgument,
		Message: message,
	}
}

// NewValidationErrorf creates a new InvalidArgument ValidationError with a formatted message.
//
// Parameters:
//   - format: The format string.
//   - args: Arguments for the format string.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Kind:    InvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewKindError creates a ValidationError of the given kind with a formatted message.
func NewKindError(kind ErrorKind, format string, args ...interface{}) error {
	return &ValidationError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the first ValidationError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		if verr.Kind == "" {
			return InvalidArgument, true
		}
		return verr.Kind, true
	}
	return "", false
}
