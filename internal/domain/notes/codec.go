package notes

import (
	"encoding/json"
	"fmt"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Aggregate type names as recorded in the event store.
const (
	AggregateCategory = "category"
	AggregateNote     = "note"
)

// CategoryEventNames lists every variant of CategoryEvent.
func CategoryEventNames() []string {
	return []string{EventCategoryCreated, EventCategoryRenamed, EventCategoryMoved, EventCategoryDeleted}
}

// NoteEventNames lists every variant of NoteEvent.
func NoteEventNames() []string {
	return []string{
		EventNoteCreated,
		EventNoteRenamed,
		EventNoteMoved,
		EventNoteContentUpdated,
		EventNotePinned,
		EventNoteUnpinned,
		EventNoteDeleted,
	}
}

// DecodeCategoryEvent converts a stored payload back to a CategoryEvent.
func DecodeCategoryEvent(eventName string, payload []byte) (eventsource.Event, error) {
	var (
		event eventsource.Event
		err   error
	)
	switch eventName {
	case EventCategoryCreated:
		var e CategoryCreated
		err = json.Unmarshal(payload, &e)
		event = e
	case EventCategoryRenamed:
		var e CategoryRenamed
		err = json.Unmarshal(payload, &e)
		event = e
	case EventCategoryMoved:
		var e CategoryMoved
		err = json.Unmarshal(payload, &e)
		event = e
	case EventCategoryDeleted:
		var e CategoryDeleted
		err = json.Unmarshal(payload, &e)
		event = e
	default:
		return nil, &eventsource.UnknownEventError{Aggregate: AggregateCategory, EventName: eventName}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", eventName, err)
	}
	return event, nil
}

// DecodeNoteEvent converts a stored payload back to a NoteEvent.
func DecodeNoteEvent(eventName string, payload []byte) (eventsource.Event, error) {
	var (
		event eventsource.Event
		err   error
	)
	switch eventName {
	case EventNoteCreated:
		var e NoteCreated
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNoteRenamed:
		var e NoteRenamed
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNoteMoved:
		var e NoteMoved
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNoteContentUpdated:
		var e NoteContentUpdated
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNotePinned:
		var e NotePinned
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNoteUnpinned:
		var e NoteUnpinned
		err = json.Unmarshal(payload, &e)
		event = e
	case EventNoteDeleted:
		var e NoteDeleted
		err = json.Unmarshal(payload, &e)
		event = e
	default:
		return nil, &eventsource.UnknownEventError{Aggregate: AggregateNote, EventName: eventName}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", eventName, err)
	}
	return event, nil
}
