// Package notes provides the notebook domain model: a tree of categories and
// the notes filed under them.
package notes

import (
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Event names for the category aggregate.
const (
	EventCategoryCreated = "category.created"
	EventCategoryRenamed = "category.renamed"
	EventCategoryMoved   = "category.moved"
	EventCategoryDeleted = "category.deleted"
)

// CategoryEvent is the closed set of events recorded by a Category.
type CategoryEvent interface {
	eventsource.Event
	isCategoryEvent()
}

// CategoryCreated is emitted when a category is created.
type CategoryCreated struct {
	CategoryID eventsource.ID `json:"category_id"`
	ParentID   eventsource.ID `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	At         time.Time      `json:"at"`
}

// CategoryRenamed is emitted when a category is renamed.
type CategoryRenamed struct {
	CategoryID eventsource.ID `json:"category_id"`
	Name       string         `json:"name"`
	At         time.Time      `json:"at"`
}

// CategoryMoved is emitted when a category is reparented (empty = root).
type CategoryMoved struct {
	CategoryID eventsource.ID `json:"category_id"`
	ParentID   eventsource.ID `json:"parent_id,omitempty"`
	At         time.Time      `json:"at"`
}

// CategoryDeleted is emitted when a category is removed.
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

// Event names for the note aggregate.
const (
	EventNoteCreated        = "note.created"
	EventNoteRenamed        = "note.renamed"
	EventNoteMoved          = "note.moved"
	EventNoteContentUpdated = "note.content_updated"
	EventNotePinned         = "note.pinned"
	EventNoteUnpinned       = "note.unpinned"
	EventNoteDeleted        = "note.deleted"
)

// NoteEvent is the closed set of events recorded by a Note.
type NoteEvent interface {
	eventsource.Event
	isNoteEvent()
}

// NoteCreated is emitted when a note is created.
type NoteCreated struct {
	NoteID     eventsource.ID `json:"note_id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	Title      string         `json:"title"`
	At         time.Time      `json:"at"`
}

// NoteRenamed is emitted when the note title changes.
type NoteRenamed struct {
	NoteID eventsource.ID `json:"note_id"`
	Title  string         `json:"title"`
	At     time.Time      `json:"at"`
}

// NoteMoved is emitted when a note is filed under another category (empty = root).
type NoteMoved struct {
	NoteID     eventsource.ID `json:"note_id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	At         time.Time      `json:"at"`
}

// NoteContentUpdated is emitted when the note body is saved.
type NoteContentUpdated struct {
	NoteID  eventsource.ID `json:"note_id"`
	Content string         `json:"content"`
	At      time.Time      `json:"at"`
}

// NotePinned is emitted when a note is pinned.
type NotePinned struct {
	NoteID eventsource.ID `json:"note_id"`
	At     time.Time      `json:"at"`
}

// NoteUnpinned is emitted when a note is unpinned.
type NoteUnpinned struct {
	NoteID eventsource.ID `json:"note_id"`
	At     time.Time      `json:"at"`
}

// NoteDeleted is emitted when a note is removed.
type NoteDeleted struct {
	NoteID eventsource.ID `json:"note_id"`
	At     time.Time      `json:"at"`
}

func (e NoteCreated) EventName() string        { return EventNoteCreated }
func (e NoteRenamed) EventName() string        { return EventNoteRenamed }
func (e NoteMoved) EventName() string          { return EventNoteMoved }
func (e NoteContentUpdated) EventName() string { return EventNoteContentUpdated }
func (e NotePinned) EventName() string         { return EventNotePinned }
func (e NoteUnpinned) EventName() string       { return EventNoteUnpinned }
func (e NoteDeleted) EventName() string        { return EventNoteDeleted }

func (e NoteCreated) OccurredAt() time.Time        { return e.At }
func (e NoteRenamed) OccurredAt() time.Time        { return e.At }
func (e NoteMoved) OccurredAt() time.Time          { return e.At }
func (e NoteContentUpdated) OccurredAt() time.Time { return e.At }
func (e NotePinned) OccurredAt() time.Time         { return e.At }
func (e NoteUnpinned) OccurredAt() time.Time       { return e.At }
func (e NoteDeleted) OccurredAt() time.Time        { return e.At }

func (e NoteCreated) AggregateID() eventsource.ID        { return e.NoteID }
func (e NoteRenamed) AggregateID() eventsource.ID        { return e.NoteID }
func (e NoteMoved) AggregateID() eventsource.ID          { return e.NoteID }
func (e NoteContentUpdated) AggregateID() eventsource.ID { return e.NoteID }
func (e NotePinned) AggregateID() eventsource.ID         { return e.NoteID }
func (e NoteUnpinned) AggregateID() eventsource.ID       { return e.NoteID }
func (e NoteDeleted) AggregateID() eventsource.ID        { return e.NoteID }

func (NoteCreated) isNoteEvent()        {}
func (NoteRenamed) isNoteEvent()        {}
func (NoteMoved) isNoteEvent()          {}
func (NoteContentUpdated) isNoteEvent() {}
func (NotePinned) isNoteEvent()         {}
func (NoteUnpinned) isNoteEvent()       {}
func (NoteDeleted) isNoteEvent()        {}
