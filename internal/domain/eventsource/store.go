package eventsource

import "context"

// EventStore is the durable append-only log of domain events.
type EventStore interface {
	// Load returns the ordered stream for id and its current version.
	// Returns ErrNotFound when the stream has no events.
	Load(ctx context.Context, id ID) ([]Record, int64, error)

	// Append adds events to the stream for id. It fails with an error wrapping
	// ErrVersionConflict when the stream version differs from expectedVersion.
	// It returns the committed records with sequence and position assigned.
	Append(ctx context.Context, aggregateType string, id ID, expectedVersion int64, events []Event) ([]Record, error)

	// ReadAll returns up to limit records with Position greater than after,
	// in global append order.
	ReadAll(ctx context.Context, after int64, limit int) ([]Record, error)

	// Head returns the position of the most recently appended record.
	Head(ctx context.Context) (int64, error)

	// Close releases resources held by the store.
	Close() error
}
