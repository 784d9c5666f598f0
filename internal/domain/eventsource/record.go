package eventsource

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is the persisted form of a domain event.
type Record struct {
	// Position is the global append position across all streams (1-based).
	Position int64 `json:"position"`
	// AggregateID identifies the stream.
	AggregateID ID `json:"aggregate_id"`
	// AggregateType names the aggregate kind owning the stream.
	AggregateType string `json:"aggregate_type"`
	// Sequence is the per-stream sequence number (1-based, gap-free).
	Sequence int64 `json:"sequence"`
	// EventName is the event kind tag used to decode Payload.
	EventName string `json:"event_name"`
	// Payload is the JSON encoded event.
	Payload json.RawMessage `json:"payload"`
	// OccurredAt is the event's own timestamp.
	OccurredAt time.Time `json:"occurred_at"`
	// StoredAt is when the store accepted the event.
	StoredAt time.Time `json:"stored_at"`
}

// EncodeRecords serializes events for an append starting after version.
// Position is left for the store to assign.
func EncodeRecords(aggregateType string, id ID, version int64, events []Event, storedAt time.Time) ([]Record, error) {
	records := make([]Record, 0, len(events))
	seq := version
	for _, event := range events {
		if event.AggregateID() != id {
			return nil, fmt.Errorf("event %s belongs to aggregate %s, not %s", event.EventName(), event.AggregateID(), id)
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event %s: %w", event.EventName(), err)
		}
		seq++
		records = append(records, Record{
			AggregateID:   id,
			AggregateType: aggregateType,
			Sequence:      seq,
			EventName:     event.EventName(),
			Payload:       payload,
			OccurredAt:    event.OccurredAt().UTC(),
			StoredAt:      storedAt.UTC(),
		})
	}
	return records, nil
}

// Version returns the stream version represented by records, i.e. the last sequence.
func Version(records []Record) int64 {
	if len(records) == 0 {
		return 0
	}
	return records[len(records)-1].Sequence
}
