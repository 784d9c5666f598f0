// Package eventsource provides the shared kernel for event-sourced aggregates:
// domain events, the aggregate root base, stored records and the event store port.
package eventsource

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID uniquely identifies an aggregate instance.
type ID string

// NewID returns a fresh random aggregate ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID trims and validates a user supplied identifier.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyID
	}
	return ID(s), nil
}

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// Short returns the first 8 characters of the ID for display.
func (id ID) Short() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool {
	return id == ""
}

// Event is an immutable fact recorded by an aggregate.
type Event interface {
	EventName() string
	OccurredAt() time.Time
	AggregateID() ID
}

// Decoder turns a stored payload back into a typed event.
type Decoder func(eventName string, payload []byte) (Event, error)
