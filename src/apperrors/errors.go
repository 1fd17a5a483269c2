// Package apperrors defines the failure taxonomy shared by the financial core.
//
// Every failure is scoped to the session that produced it. Callers classify errors
// with errors.Is against the sentinel kinds below and read the user-facing text with
// UserMessage.
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrNotFound is returned when an entity is absent. Recoverable: the operator may
	// continue with manual entry.
	ErrNotFound = errors.New("not found")

	// ErrTransient is returned for network or service faults. Recoverable by retry.
	ErrTransient = errors.New("temporarily unavailable")

	// ErrValidation is returned when submission preconditions are unmet.
	ErrValidation = errors.New("validation failed")

	// ErrInvariantViolation is returned when a mutation would break a numeric invariant.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConflict is returned when an operation collides with one already in progress
	// or already completed.
	ErrConflict = errors.New("conflict")

	// ErrMalformedResponse is returned when an external response does not match its
	// contract. It is also an ErrTransient.
	ErrMalformedResponse = errors.New("malformed response")
)

// Error wraps a kind with the failing operation and a user-facing message.
type Error struct {
	// Op is the operation that failed (e.g. "ResolveCustomer", "SubmitPayment").
	Op string

	// Kind is one of the sentinel kinds above.
	Kind error

	// Err is the underlying cause, if any.
	Err error

	// Message is safe to show to the operator.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the error kind, so errors.Is(err, ErrNotFound) works through wrapping.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrMalformedResponse && target == ErrTransient
}

// New creates an Error of the given kind.
func New(op string, kind error, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around a cause. A nil cause returns nil.
func Wrap(op string, kind error, err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Op: op, Kind: kind, Err: err, Message: message}
}

// Validationf builds a validation error with a formatted user-facing message.
func Validationf(op, format string, args ...any) *Error {
	return New(op, ErrValidation, fmt.Sprintf(format, args...))
}

// Invariantf builds an invariant violation with a formatted message.
func Invariantf(op, format string, args ...any) *Error {
	return New(op, ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// UserMessage extracts the operator-facing text of an error.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		switch appErr.Kind {
		case ErrNotFound:
			return "The requested record was not found."
		case ErrTransient, ErrMalformedResponse:
			return "The ledger service is temporarily unavailable. Please try again."
		case ErrConflict:
			return "Another operation is already in progress."
		}
		return appErr.Kind.Error()
	}
	return "An unexpected error occurred."
}

// KindOf returns the sentinel kind of err, or nil when err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrMalformedResponse, ErrTransient, ErrValidation, ErrInvariantViolation, ErrConflict} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a stable machine-readable name for the kind of err.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrTransient:
		return "transient"
	case ErrValidation:
		return "validation"
	case ErrInvariantViolation:
		return "invariant_violation"
	case ErrConflict:
		return "conflict"
	}
	if err == nil {
		return ""
	}
	return "internal"
}
