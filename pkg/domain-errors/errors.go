// Package domainerrors provides coded errors shared across domain services.
// Codes classify failures for transport mapping and retry policy without
// leaking storage or wire details into business logic.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeBadRequest marks malformed or invalid caller input.
	CodeBadRequest Code = "bad_request"

	// CodeNotFound marks a missing record. Not-found is frequently a
	// legitimate no-op in reconciliation flows, not an exceptional state.
	CodeNotFound Code = "not_found"

	// CodeConflict marks a state invariant violation, e.g. creating a second
	// active donation for the same donor.
	CodeConflict Code = "conflict"

	// CodeDataQuality marks an unrecognized value in an upstream record.
	// These require human correction and must not be retried automatically.
	CodeDataQuality Code = "data_quality"

	// CodeUnavailable marks a record-store communication failure. Safe to
	// retry on the next trigger or sweep.
	CodeUnavailable Code = "unavailable"

	// CodeInternal marks unexpected failures. Details are logged but never
	// surfaced on the wire.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the domain message from an error chain. Unrecognized
// errors yield an empty message so internals stay off the wire.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// Is reports whether any error in the chain carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
