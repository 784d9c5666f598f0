// Package eventstore provides EventStore adapters: in-memory, an append-only
// JSONL journal and SQLite.
package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// MemoryStore keeps the event log in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	log     []eventsource.Record
	streams map[eventsource.ID][]int
	now     func() time.Time
}

var _ eventsource.EventStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[eventsource.ID][]int),
		now:     time.Now,
	}
}

// Load returns the stream for id.
func (s *MemoryStore) Load(ctx context.Context, id eventsource.ID) ([]eventsource.Record, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.streams[id]
	if len(idx) == 0 {
		return nil, 0, eventsource.ErrNotFound
	}
	out := make([]eventsource.Record, len(idx))
	for i, n := range idx {
		out[i] = s.log[n]
	}
	return out, eventsource.Version(out), nil
}

// Append adds events to the stream for id after checking expectedVersion.
func (s *MemoryStore) Append(ctx context.Context, aggregateType string, id eventsource.ID, expectedVersion int64, events []eventsource.Event) ([]eventsource.Record, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[id]))
	if current != expectedVersion {
		return nil, &eventsource.ConflictError{AggregateID: id, Expected: expectedVersion, Actual: current}
	}

	records, err := eventsource.EncodeRecords(aggregateType, id, current, events, s.now())
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Position = int64(len(s.log)) + 1
		s.streams[id] = append(s.streams[id], len(s.log))
		s.log = append(s.log, records[i])
	}
	return records, nil
}

// ReadAll returns up to limit records after the given position.
func (s *MemoryStore) ReadAll(ctx context.Context, after int64, limit int) ([]eventsource.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Positions are dense and 1-based, so the log index is position-1.
	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.log)) {
		return nil, nil
	}
	end := int64(len(s.log))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]eventsource.Record, end-after)
	copy(out, s.log[after:end])
	return out, nil
}

// Head returns the position of the last record.
func (s *MemoryStore) Head(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.log)), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
