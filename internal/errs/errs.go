// Package errs defines the error-kind taxonomy shared across the memory core
// (§7). Every component that surfaces an error to the verb dispatcher wraps
// one of these sentinels with [errors.Is]-compatible %w so that the HTTP
// layer (internal/api) and the dispatcher (internal/verbs) can map it to a
// machine-readable code without inspecting message text.
package errs

import "errors"

// Kind is one of the closed set of error kinds named in §7. It is the
// machine-readable code returned alongside a human-readable message.
type Kind string

const (
	InvalidParameter    Kind = "InvalidParameter"
	NotFound            Kind = "NotFound"
	Busy                Kind = "Busy"
	Timeout             Kind = "Timeout"
	Cancelled           Kind = "Cancelled"
	ProviderError       Kind = "ProviderError"
	ParseError          Kind = "ParseError"
	DimensionMismatch   Kind = "DimensionMismatch"
	EndpointUnavailable Kind = "EndpointUnavailable"
	MalformedResponse   Kind = "MalformedResponse"
	ConstraintViolation Kind = "ConstraintViolation"
	TemplateNotFound    Kind = "TemplateNotFound"
	Internal            Kind = "Internal"
)

// Error pairs a [Kind] with a human-readable message and an optional
// underlying cause. Stack traces are never attached — §7 forbids surfacing
// them to the wire.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind with message stored as given.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the [Kind] from err if it (or something it wraps) is an
// *Error. Returns [Internal] for any other error, matching §7's "everything
// else" HTTP mapping.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
