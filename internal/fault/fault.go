// Package fault defines the typed error taxonomy shared by the telemetry
// components. None of these errors reach the host: the scheduler logs them
// and callers treat the operation as not having happened.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes an Error.
type Code string

const (
	// CodeValidation marks an event or setting rejected by a validator.
	CodeValidation Code = "VALIDATION"

	// CodeStorage marks a failed local store operation.
	CodeStorage Code = "STORAGE"

	// CodeTransport marks a collector call that produced no usable outcome.
	CodeTransport Code = "TRANSPORT"

	// CodeConfigDecode marks an unreadable cached or live config document.
	CodeConfigDecode Code = "CONFIG_DECODE"
)

// Error carries a category, the failing operation and an optional cause.
type Error struct {
	Code    Code
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a CodeValidation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a store failure.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Op: op, Message: "store operation failed", Err: err}
}

// Transport wraps a collector failure.
func Transport(op string, err error) *Error {
	return &Error{Code: CodeTransport, Op: op, Message: "collector request failed", Err: err}
}

// ConfigDecode wraps a config document decode failure.
func ConfigDecode(op string, err error) *Error {
	return &Error{Code: CodeConfigDecode, Op: op, Message: "config document unreadable", Err: err}
}

// Is reports whether err wraps an *Error with the given code.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// IsValidation returns true for validation errors.
func IsValidation(err error) bool { return Is(err, CodeValidation) }

// IsStorage returns true for store errors.
func IsStorage(err error) bool { return Is(err, CodeStorage) }

// IsTransport returns true for transport errors.
func IsTransport(err error) bool { return Is(err, CodeTransport) }

// IsConfigDecode returns true for config decode errors.
func IsConfigDecode(err error) bool { return Is(err, CodeConfigDecode) }
