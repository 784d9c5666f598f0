package todos

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Status is the lifecycle state of a todo.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeleted   Status = "deleted"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Lifecycle events.
const (
	LifecycleComplete statekit.EventType = "COMPLETE"
	LifecycleReopen   statekit.EventType = "REOPEN"
	LifecycleDelete   statekit.EventType = "DELETE"
)

type lifecycleContext struct{}

// Lifecycle validates todo status transitions against a statekit machine:
// active <-> completed, and either -> deleted (final).
type Lifecycle struct {
	spawn func() *statekit.Interpreter[lifecycleContext]
}

var lifecycle = mustLifecycle()

// NewLifecycle builds the todo lifecycle machine.
func NewLifecycle() (*Lifecycle, error) {
	machine, err := statekit.NewMachine[lifecycleContext]("todo").
		WithInitial(statekit.StateID(StatusActive)).
		State(statekit.StateID(StatusActive)).
		On(LifecycleComplete).Target(statekit.StateID(StatusCompleted)).
		On(LifecycleDelete).Target(statekit.StateID(StatusDeleted)).
		Done().
		State(statekit.StateID(StatusCompleted)).
		On(LifecycleReopen).Target(statekit.StateID(StatusActive)).
		On(LifecycleDelete).Target(statekit.StateID(StatusDeleted)).
		Done().
		State(statekit.StateID(StatusDeleted)).
		Final().
		Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build todo lifecycle: %w", err)
	}

	return &Lifecycle{
		spawn: func() *statekit.Interpreter[lifecycleContext] {
			return statekit.NewInterpreter(machine)
		},
	}, nil
}

func mustLifecycle() *Lifecycle {
	l, err := NewLifecycle()
	if err != nil {
		panic(err)
	}
	return l
}

// Next returns the status reached from `from` via event, or ErrInvalidTransition.
func (l *Lifecycle) Next(from Status, event statekit.EventType) (Status, error) {
	interp := l.spawn()
	interp.Start()
	for _, step := range pathTo(from) {
		interp.Send(statekit.Event{Type: step})
	}

	before := interp.State().Value
	interp.Send(statekit.Event{Type: event})
	after := interp.State().Value
	if after == before {
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, from)
	}
	return Status(after), nil
}

// pathTo returns the events leading from the initial state to s.
func pathTo(s Status) []statekit.EventType {
	switch s {
	case StatusCompleted:
		return []statekit.EventType{LifecycleComplete}
	case StatusDeleted:
		return []statekit.EventType{LifecycleDelete}
	default:
		return nil
	}
}
