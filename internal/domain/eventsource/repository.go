package eventsource

import (
	"context"
	"errors"
	"fmt"
)

// Commit is the outcome of a successful save: the stored records and the
// events they were encoded from, in append order. Callers publish from the
// commit rather than from the aggregate, whose buffer is already cleared.
type Commit struct {
	Records []Record
	Events  []Event
}

// Empty reports whether nothing was persisted.
func (c Commit) Empty() bool {
	return len(c.Events) == 0
}

// Repository loads and saves aggregates of one type through an EventStore.
// Aggregates are rebuilt from their stream on every load and never cached.
type Repository[T Aggregate] struct {
	store         EventStore
	aggregateType string
	newEmpty      func() T
	decode        Decoder
}

// NewRepository creates a repository for aggregateType.
// newEmpty must return a fresh zero-state aggregate for replay.
func NewRepository[T Aggregate](store EventStore, aggregateType string, newEmpty func() T, decode Decoder) *Repository[T] {
	return &Repository[T]{
		store:         store,
		aggregateType: aggregateType,
		newEmpty:      newEmpty,
		decode:        decode,
	}
}

// AggregateType returns the aggregate type name this repository persists.
func (r *Repository[T]) AggregateType() string {
	return r.aggregateType
}

// Load rebuilds the aggregate by replaying its stream onto an empty instance.
func (r *Repository[T]) Load(ctx context.Context, id ID) (T, error) {
	var zero T
	if id.IsZero() {
		return zero, ErrEmptyID
	}

	records, version, err := r.store.Load(ctx, id)
	if err != nil {
		return zero, err
	}
	if len(records) == 0 {
		return zero, ErrNotFound
	}
	if records[0].AggregateType != r.aggregateType {
		return zero, fmt.Errorf("%w: %s is a %s, not a %s", ErrTypeMismatch, id, records[0].AggregateType, r.aggregateType)
	}

	agg, err := Replay(r.newEmpty(), records, r.decode)
	if err != nil {
		return zero, fmt.Errorf("replay %s %s: %w", r.aggregateType, id, err)
	}
	if agg.Version() != version {
		return zero, fmt.Errorf("replay %s %s: rebuilt version %d does not match stream version %d",
			r.aggregateType, id, agg.Version(), version)
	}
	return agg, nil
}

// Save appends the aggregate's pending events using its version as the
// expected version. On success the aggregate is marked committed and the
// commit is returned. A save with no pending events is a no-op.
func (r *Repository[T]) Save(ctx context.Context, agg T) (Commit, error) {
	pending := agg.PendingEvents()
	if len(pending) == 0 {
		return Commit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Commit{}, err
	}

	records, err := r.store.Append(ctx, r.aggregateType, agg.ID(), agg.Version(), pending)
	if err != nil {
		return Commit{}, err
	}
	agg.MarkCommitted()

	return Commit{Records: records, Events: pending}, nil
}

// Replay applies records in order onto agg and returns it.
func Replay[T Aggregate](agg T, records []Record, decode Decoder) (T, error) {
	for _, rec := range records {
		event, err := decode(rec.EventName, rec.Payload)
		if err != nil {
			return agg, fmt.Errorf("decode %s #%d: %w", rec.EventName, rec.Sequence, err)
		}
		if err := agg.Apply(event); err != nil {
			return agg, fmt.Errorf("apply %s #%d: %w", rec.EventName, rec.Sequence, err)
		}
		agg.Replayed()
	}
	return agg, nil
}

// IsNotFound reports whether err means the aggregate has no stream.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is an optimistic concurrency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
