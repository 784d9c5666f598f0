// Package todos provides the todo plugin's domain model: todos and the
// hierarchy of todo categories they are filed under.
package todos

import (
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Event names for the todo aggregate.
const (
	EventTodoCreated         = "todo.created"
	EventTodoTextUpdated     = "todo.text_updated"
	EventTodoCompleted       = "todo.completed"
	EventTodoReopened        = "todo.reopened"
	EventTodoFavoriteToggled = "todo.favorite_toggled"
	EventTodoTagAdded        = "todo.tag_added"
	EventTodoTagRemoved      = "todo.tag_removed"
	EventTodoDueDateSet      = "todo.due_date_set"
	EventTodoPrioritySet     = "todo.priority_set"
	EventTodoMoved           = "todo.moved"
	EventTodoDeleted         = "todo.deleted"
)

// TodoEvent is the closed set of events recorded by a Todo.
type TodoEvent interface {
	eventsource.Event
	isTodoEvent()
}

// TodoCreated is emitted when a todo is added.
type TodoCreated struct {
	TodoID     eventsource.ID `json:"todo_id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	Text       string         `json:"text"`
	At         time.Time      `json:"at"`
}

// TodoTextUpdated is emitted when the todo text changes.
type TodoTextUpdated struct {
	TodoID eventsource.ID `json:"todo_id"`
	Text   string         `json:"text"`
	At     time.Time      `json:"at"`
}

// TodoCompleted is emitted when an active todo is checked off.
type TodoCompleted struct {
	TodoID eventsource.ID `json:"todo_id"`
	At     time.Time      `json:"at"`
}

// TodoReopened is emitted when a completed todo is unchecked.
type TodoReopened struct {
	TodoID eventsource.ID `json:"todo_id"`
	At     time.Time      `json:"at"`
}

// TodoFavoriteToggled is emitted when the favorite flag changes.
type TodoFavoriteToggled struct {
	TodoID     eventsource.ID `json:"todo_id"`
	IsFavorite bool           `json:"is_favorite"`
	At         time.Time      `json:"at"`
}

// TodoTagAdded is emitted when a tag is attached.
type TodoTagAdded struct {
	TodoID eventsource.ID `json:"todo_id"`
	Tag    string         `json:"tag"`
	At     time.Time      `json:"at"`
}

// TodoTagRemoved is emitted when a tag is detached.
type TodoTagRemoved struct {
	TodoID eventsource.ID `json:"todo_id"`
	Tag    string         `json:"tag"`
	At     time.Time      `json:"at"`
}

// TodoDueDateSet is emitted when the due date is set or cleared (nil).
type TodoDueDateSet struct {
	TodoID  eventsource.ID `json:"todo_id"`
	DueDate *time.Time     `json:"due_date,omitempty"`
	At      time.Time      `json:"at"`
}

// TodoPrioritySet is emitted when the priority changes.
type TodoPrioritySet struct {
	TodoID   eventsource.ID `json:"todo_id"`
	Priority Priority       `json:"priority"`
	At       time.Time      `json:"at"`
}

// TodoMoved is emitted when a todo is filed under another category (empty = uncategorized).
type TodoMoved struct {
	TodoID     eventsource.ID `json:"todo_id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	At         time.Time      `json:"at"`
}

// TodoDeleted is emitted when a todo is removed.
type TodoDeleted struct {
	TodoID eventsource.ID `json:"todo_id"`
	At     time.Time      `json:"at"`
}

func (e TodoCreated) EventName() string         { return EventTodoCreated }
func (e TodoTextUpdated) EventName() string     { return EventTodoTextUpdated }
func (e TodoCompleted) EventName() string       { return EventTodoCompleted }
func (e TodoReopened) EventName() string        { return EventTodoReopened }
func (e TodoFavoriteToggled) EventName() string { return EventTodoFavoriteToggled }
func (e TodoTagAdded) EventName() string        { return EventTodoTagAdded }
func (e TodoTagRemoved) EventName() string      { return EventTodoTagRemoved }
func (e TodoDueDateSet) EventName() string      { return EventTodoDueDateSet }
func (e TodoPrioritySet) EventName() string     { return EventTodoPrioritySet }
func (e TodoMoved) EventName() string           { return EventTodoMoved }
func (e TodoDeleted) EventName() string         { return EventTodoDeleted }

func (e TodoCreated) OccurredAt() time.Time         { return e.At }
func (e TodoTextUpdated) OccurredAt() time.Time     { return e.At }
func (e TodoCompleted) OccurredAt() time.Time       { return e.At }
func (e TodoReopened) OccurredAt() time.Time        { return e.At }
func (e TodoFavoriteToggled) OccurredAt() time.Time { return e.At }
func (e TodoTagAdded) OccurredAt() time.Time        { return e.At }
func (e TodoTagRemoved) OccurredAt() time.Time      { return e.At }
func (e TodoDueDateSet) OccurredAt() time.Time      { return e.At }
func (e TodoPrioritySet) OccurredAt() time.Time     { return e.At }
func (e TodoMoved) OccurredAt() time.Time           { return e.At }
func (e TodoDeleted) OccurredAt() time.Time         { return e.At }

func (e TodoCreated) AggregateID() eventsource.ID         { return e.TodoID }
func (e TodoTextUpdated) AggregateID() eventsource.ID     { return e.TodoID }
func (e TodoCompleted) AggregateID() eventsource.ID       { return e.TodoID }
func (e TodoReopened) AggregateID() eventsource.ID        { return e.TodoID }
func (e TodoFavoriteToggled) AggregateID() eventsource.ID { return e.TodoID }
func (e TodoTagAdded) AggregateID() eventsource.ID        { return e.TodoID }
func (e TodoTagRemoved) AggregateID() eventsource.ID      { return e.TodoID }
func (e TodoDueDateSet) AggregateID() eventsource.ID      { return e.TodoID }
func (e TodoPrioritySet) AggregateID() eventsource.ID     { return e.TodoID }
func (e TodoMoved) AggregateID() eventsource.ID           { return e.TodoID }
func (e TodoDeleted) AggregateID() eventsource.ID         { return e.TodoID }

func (TodoCreated) isTodoEvent()         {}
func (TodoTextUpdated) isTodoEvent()     {}
func (TodoCompleted) isTodoEvent()       {}
func (TodoReopened) isTodoEvent()        {}
func (TodoFavoriteToggled) isTodoEvent() {}
func (TodoTagAdded) isTodoEvent()        {}
func (TodoTagRemoved) isTodoEvent()      {}
func (TodoDueDateSet) isTodoEvent()      {}
func (TodoPrioritySet) isTodoEvent()     {}
func (TodoMoved) isTodoEvent()           {}
func (TodoDeleted) isTodoEvent()         {}

// Event names for the todo category aggregate.
const (
	EventCategoryCreated = "todo_category.created"
	EventCategoryRenamed = "todo_category.renamed"
	EventCategoryMoved   = "todo_category.moved"
	EventCategoryDeleted = "todo_category.deleted"
)

// CategoryEvent is the closed set of events recorded by a todo Category.
type CategoryEvent interface {
	eventsource.Event
	isCategoryEvent()
}

// CategoryCreated is emitted when a todo category is created.
type CategoryCreated struct {
	CategoryID eventsource.ID `json:"category_id"`
	ParentID   eventsource.ID `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	At         time.Time      `json:"at"`
}

// CategoryRenamed is emitted when a todo category is renamed.
type CategoryRenamed struct {
	CategoryID eventsource.ID `json:"category_id"`
	Name       string         `json:"name"`
	At         time.Time      `json:"at"`
}

// CategoryMoved is emitted when a todo category is reparented (empty = root).
type CategoryMoved struct {
	CategoryID eventsource.ID `json:"category_id"`
	ParentID   eventsource.ID `json:"parent_id,omitempty"`
	At         time.Time      `json:"at"`
}

// CategoryDeleted is emitted when a todo category is removed.
type CategoryDeleted struct {
	CategoryID eventsource.ID `json:"category_id"`
	At         time.Time      `json:"at"`
}

func (e CategoryCreated) EventName() string { return EventCategoryCreated }
func (e CategoryRenamed) EventName() string { return EventCategoryRenamed }
func (e CategoryMoved) EventName() string   { return EventCategoryMoved }
func (e CategoryDeleted) EventName() string { return EventCategoryDeleted }

func (e CategoryCreated) OccurredAt() time.Time { return e.At }
func (e CategoryRenamed) OccurredAt() time.Time { return e.At }
func (e CategoryMoved) OccurredAt() time.Time   { return e.At }
func (e CategoryDeleted) OccurredAt() time.Time { return e.At }

func (e CategoryCreated) AggregateID() eventsource.ID { return e.CategoryID }
func (e CategoryRenamed) AggregateID() eventsource.ID { return e.CategoryID }
func (e CategoryMoved) AggregateID() eventsource.ID   { return e.CategoryID }
func (e CategoryDeleted) AggregateID() eventsource.ID { return e.CategoryID }

func (CategoryCreated) isCategoryEvent() {}
func (CategoryRenamed) isCategoryEvent() {}
func (CategoryMoved) isCategoryEvent()   {}
func (CategoryDeleted) isCategoryEvent() {}
