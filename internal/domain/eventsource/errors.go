package eventsource

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no events exist for the requested aggregate.
	ErrNotFound = errors.New("aggregate not found")

	// ErrVersionConflict indicates the stream advanced since the aggregate was loaded.
	ErrVersionConflict = errors.New("aggregate version conflict")

	// ErrUnknownEvent indicates an event outside an aggregate's closed event set.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrEmptyID indicates a blank aggregate identifier.
	ErrEmptyID = errors.New("aggregate id is required")

	// ErrTypeMismatch indicates a stream recorded for a different aggregate type.
	ErrTypeMismatch = errors.New("aggregate type mismatch")

	// ErrInvalidState indicates an operation not allowed in the aggregate's current state.
	ErrInvalidState = errors.New("invalid state transition")
)

// ConflictError describes an optimistic concurrency failure on append.
type ConflictError struct {
	AggregateID ID
	Expected    int64
	Actual      int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("aggregate %s: expected version %d but stream is at version %d",
		e.AggregateID, e.Expected, e.Actual)
}

// Unwrap returns ErrVersionConflict for errors.Is compatibility.
func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}

// UnknownEventError reports an event that an aggregate or decoder does not handle.
type UnknownEventError struct {
	Aggregate string
	EventName string
}

// Error implements the error interface.
func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("%s: unknown event %q", e.Aggregate, e.EventName)
}

// Unwrap returns ErrUnknownEvent for errors.Is compatibility.
func (e *UnknownEventError) Unwrap() error {
	return ErrUnknownEvent
}

// RuleError is a business rule violation raised by a domain operation.
// Message is user-facing and returned verbatim by command handlers.
type RuleError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return e.Message
}

// Unwrap returns the package sentinel identifying the violated rule.
func (e *RuleError) Unwrap() error {
	return e.Err
}

// Violation creates a RuleError for sentinel with a formatted message.
func Violation(sentinel error, format string, args ...any) *RuleError {
	return &RuleError{
		Message: fmt.Sprintf(format, args...),
		Err:     sentinel,
	}
}

// AsRuleError extracts a RuleError from err.
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
