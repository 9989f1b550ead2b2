package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed command.
type ErrorKind string

// Error kinds.
const (
	KindForbidden         ErrorKind = "Forbidden"
	KindNotFound          ErrorKind = "NotFound"
	KindIllegalTransition ErrorKind = "IllegalTransition"
	KindAlreadyPending    ErrorKind = "AlreadyPending"
	KindAlreadyRated      ErrorKind = "AlreadyRated"
	KindValidationFailed  ErrorKind = "ValidationFailed"
	KindStoreUnavailable  ErrorKind = "StoreUnavailable"
	KindCapacityExceeded  ErrorKind = "CapacityExceeded"
)

// Error is the domain error carried by every failed command.
type Error struct {
	Kind    ErrorKind
	Field   string // offending field for ValidationFailed
	Message string
	// NoOp marks a failure where the target was already in the requested state.
	NoOp  bool
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

var (
	// ErrForbidden is returned when the policy denies an action.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
	// ErrNotFound is returned when the target entity does not exist.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrIllegalTransition is returned when no state-machine arc matches.
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition, Message: "illegal transition"}
	// ErrAlreadyPending is returned when a non-terminal enrolment request exists.
	ErrAlreadyPending = &Error{Kind: KindAlreadyPending, Message: "request already pending"}
	// ErrAlreadyRated is returned when the actor has rated the course before.
	ErrAlreadyRated = &Error{Kind: KindAlreadyRated, Message: "course already rated"}
	// ErrValidationFailed is returned when a field fails validation.
	ErrValidationFailed = &Error{Kind: KindValidationFailed, Message: "validation failed"}
	// ErrStoreUnavailable is returned when persistence fails; retryable.
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Message: "store unavailable, try again"}
	// ErrCapacityExceeded is returned when a course has no seats left.
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded, Message: "course is at capacity"}
)

// Forbidden builds a Forbidden error. The message never names the target.
func Forbidden() error {
	return &Error{Kind: KindForbidden, Message: "forbidden"}
}

// NotFound builds a NotFound error for the named entity kind.
func NotFound(what EntityKind) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", what)}
}

// IllegalTransition builds an IllegalTransition error for action applied in state from.
func IllegalTransition(action string, from string) error {
	return &Error{Kind: KindIllegalTransition, Message: fmt.Sprintf("cannot %s from state %q", action, from)}
}

// AlreadyInState builds the IllegalTransition returned when the target state already holds.
func AlreadyInState(action string, state string) error {
	return &Error{Kind: KindIllegalTransition, NoOp: true, Message: fmt.Sprintf("cannot %s: already %s", action, state)}
}

// AlreadyPending builds an AlreadyPending error.
func AlreadyPending(msg string) error {
	return &Error{Kind: KindAlreadyPending, Message: msg}
}

// AlreadyRated builds an AlreadyRated error.
func AlreadyRated() error {
	return &Error{Kind: KindAlreadyRated, Message: "course already rated"}
}

// ValidationFailed builds a ValidationFailed error naming field.
func ValidationFailed(field, msg string) error {
	return &Error{Kind: KindValidationFailed, Field: field, Message: msg}
}

// StoreUnavailable wraps a persistence failure.
func StoreUnavailable(cause error) error {
	return &Error{Kind: KindStoreUnavailable, Message: "store unavailable, try again", Cause: cause}
}

// CapacityExceeded builds a CapacityExceeded error.
func CapacityExceeded(courseTitle string) error {
	return &Error{Kind: KindCapacityExceeded, Message: fmt.Sprintf("course %q is at capacity", courseTitle)}
}

// AsError returns the *Error in err's chain. Errors that are not domain
// errors are reported as StoreUnavailable.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindStoreUnavailable, Message: "store unavailable, try again", Cause: err}
}

// KindOf classifies err; nil yields the empty kind.
func KindOf(err error) ErrorKind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the failed command may succeed on retry.
func (k ErrorKind) Retryable() bool {
	return k == KindStoreUnavailable
}
