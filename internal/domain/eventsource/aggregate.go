package eventsource

// Aggregate is an entity whose state is derived only from its event stream.
type Aggregate interface {
	// ID returns the aggregate identity.
	ID() ID
	// Version returns the number of committed events applied to the aggregate.
	Version() int64
	// PendingEvents returns a copy of the events recorded since the last commit.
	PendingEvents() []Event
	// MarkCommitted advances the version past the pending events and clears them.
	MarkCommitted()
	// Replayed advances the version by one after a historical event was applied.
	Replayed()
	// Apply mutates state for a single event. It must not perform I/O or read
	// the clock; every input comes from the event payload.
	Apply(event Event) error
}

// Root carries identity, version and the uncommitted event buffer.
// Aggregates embed it and call Record after a successful Apply.
type Root struct {
	id      ID
	version int64
	pending []Event
}

// ID returns the aggregate identity.
func (r *Root) ID() ID {
	return r.id
}

// SetID assigns the identity. Called from Apply when folding a creation event.
func (r *Root) SetID(id ID) {
	r.id = id
}

// Version returns the committed version.
func (r *Root) Version() int64 {
	return r.version
}

// PendingEvents returns a copy of the uncommitted events.
func (r *Root) PendingEvents() []Event {
	if len(r.pending) == 0 {
		return nil
	}
	out := make([]Event, len(r.pending))
	copy(out, r.pending)
	return out
}

// HasPendingEvents reports whether any events await persistence.
func (r *Root) HasPendingEvents() bool {
	return len(r.pending) > 0
}

// Record buffers an event that has already been applied.
func (r *Root) Record(event Event) {
	r.pending = append(r.pending, event)
}

// MarkCommitted advances the version by the buffer length and clears the buffer.
// Only call it once the event store durably accepted the buffer.
func (r *Root) MarkCommitted() {
	r.version += int64(len(r.pending))
	r.pending = nil
}

// Replayed advances the version by one during reconstruction from history.
func (r *Root) Replayed() {
	r.version++
}
