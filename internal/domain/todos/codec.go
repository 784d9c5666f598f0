package todos

import (
	"encoding/json"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Aggregate type names as recorded in the event store.
const (
	AggregateTodo     = "todo"
	AggregateCategory = "todo_category"
)

// TodoEventNames lists every variant of TodoEvent.
func TodoEventNames() []string {
	return []string{
		EventTodoCreated,
		EventTodoTextUpdated,
		EventTodoCompleted,
		EventTodoReopened,
		EventTodoFavoriteToggled,
		EventTodoTagAdded,
		EventTodoTagRemoved,
		EventTodoDueDateSet,
		EventTodoPrioritySet,
		EventTodoMoved,
		EventTodoDeleted,
	}
}

// CategoryEventNames lists every variant of CategoryEvent.
func CategoryEventNames() []string {
	return []string{
		EventCategoryCreated,
		EventCategoryRenamed,
		EventCategoryMoved,
		EventCategoryDeleted,
	}
}

// DecodeTodoEvent converts a stored payload back to a TodoEvent.
func DecodeTodoEvent(eventName string, payload []byte) (eventsource.Event, error) {
	switch eventName {
	case EventTodoCreated:
		return decodeAs[TodoCreated](payload)
	case EventTodoTextUpdated:
		return decodeAs[TodoTextUpdated](payload)
	case EventTodoCompleted:
		return decodeAs[TodoCompleted](payload)
	case EventTodoReopened:
		return decodeAs[TodoReopened](payload)
	case EventTodoFavoriteToggled:
		return decodeAs[TodoFavoriteToggled](payload)
	case EventTodoTagAdded:
		return decodeAs[TodoTagAdded](payload)
	case EventTodoTagRemoved:
		return decodeAs[TodoTagRemoved](payload)
	case EventTodoDueDateSet:
		return decodeAs[TodoDueDateSet](payload)
	case EventTodoPrioritySet:
		return decodeAs[TodoPrioritySet](payload)
	case EventTodoMoved:
		return decodeAs[TodoMoved](payload)
	case EventTodoDeleted:
		return decodeAs[TodoDeleted](payload)
	default:
		return nil, &eventsource.UnknownEventError{Aggregate: AggregateTodo, EventName: eventName}
	}
}

// DecodeCategoryEvent converts a stored payload back to a CategoryEvent.
func DecodeCategoryEvent(eventName string, payload []byte) (eventsource.Event, error) {
	switch eventName {
	case EventCategoryCreated:
		return decodeAs[CategoryCreated](payload)
	case EventCategoryRenamed:
		return decodeAs[CategoryRenamed](payload)
	case EventCategoryMoved:
		return decodeAs[CategoryMoved](payload)
	case EventCategoryDeleted:
		return decodeAs[CategoryDeleted](payload)
	default:
		return nil, &eventsource.UnknownEventError{Aggregate: AggregateCategory, EventName: eventName}
	}
}

func decodeAs[E eventsource.Event](payload []byte) (eventsource.Event, error) {
	var e E
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, err
	}
	return e, nil
}
