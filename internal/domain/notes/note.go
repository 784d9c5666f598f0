package notes

import (
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// MaxContentBytes bounds the note body.
const MaxContentBytes = 1 << 20

// Note is a single document in the notebook.
type Note struct {
	eventsource.Root

	categoryID eventsource.ID
	title      string
	content    string
	pinned     bool
	deleted    bool
	createdAt  time.Time
	updatedAt  time.Time
}

// EmptyNote returns a zero-state note for replay.
func EmptyNote() *Note {
	return &Note{}
}

// NewNote creates an empty note in categoryID (empty = root).
func NewNote(id, categoryID eventsource.ID, title string, at time.Time) (*Note, error) {
	if id.IsZero() {
		return nil, eventsource.ErrEmptyID
	}
	title, err := cleanName("Note title", title)
	if err != nil {
		return nil, err
	}

	n := EmptyNote()
	if err := n.raise(NoteCreated{NoteID: id, CategoryID: categoryID, Title: title, At: at}); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Note) CategoryID() eventsource.ID { return n.categoryID }
func (n *Note) Title() string              { return n.title }
func (n *Note) Content() string            { return n.content }
func (n *Note) IsPinned() bool             { return n.pinned }
func (n *Note) IsDeleted() bool            { return n.deleted }
func (n *Note) CreatedAt() time.Time       { return n.createdAt }
func (n *Note) UpdatedAt() time.Time       { return n.updatedAt }

// Rename changes the note title.
func (n *Note) Rename(title string, at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	title, err := cleanName("Note title", title)
	if err != nil {
		return err
	}
	if title == n.title {
		return eventsource.Violation(ErrUnchanged, "Note is already titled '%s'", title)
	}
	return n.raise(NoteRenamed{NoteID: n.ID(), Title: title, At: at})
}

// MoveTo files the note under categoryID (empty = root).
func (n *Note) MoveTo(categoryID eventsource.ID, at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	if categoryID == n.categoryID {
		return eventsource.Violation(ErrUnchanged, "Note is already in that category")
	}
	return n.raise(NoteMoved{NoteID: n.ID(), CategoryID: categoryID, At: at})
}

// UpdateContent replaces the note body. Saving identical content is a no-op
// that records nothing.
func (n *Note) UpdateContent(content string, at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	if len(content) > MaxContentBytes {
		return eventsource.Violation(ErrInvalidContent, "Note content cannot exceed %d bytes", MaxContentBytes)
	}
	if content == n.content {
		return nil
	}
	return n.raise(NoteContentUpdated{NoteID: n.ID(), Content: content, At: at})
}

// Pin marks the note as pinned.
func (n *Note) Pin(at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	if n.pinned {
		return eventsource.Violation(ErrAlreadyPinned, "Note is already pinned")
	}
	return n.raise(NotePinned{NoteID: n.ID(), At: at})
}

// Unpin clears the pinned flag.
func (n *Note) Unpin(at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	if !n.pinned {
		return eventsource.Violation(ErrNotPinned, "Note is not pinned")
	}
	return n.raise(NoteUnpinned{NoteID: n.ID(), At: at})
}

// Delete removes the note.
func (n *Note) Delete(at time.Time) error {
	if err := n.live(); err != nil {
		return err
	}
	return n.raise(NoteDeleted{NoteID: n.ID(), At: at})
}

// Apply folds one event into state.
func (n *Note) Apply(event eventsource.Event) error {
	switch e := event.(type) {
	case NoteCreated:
		n.SetID(e.NoteID)
		n.categoryID = e.CategoryID
		n.title = e.Title
		n.createdAt = e.At
	case NoteRenamed:
		n.title = e.Title
	case NoteMoved:
		n.categoryID = e.CategoryID
	case NoteContentUpdated:
		n.content = e.Content
	case NotePinned:
		n.pinned = true
	case NoteUnpinned:
		n.pinned = false
	case NoteDeleted:
		n.deleted = true
	default:
		return &eventsource.UnknownEventError{Aggregate: AggregateNote, EventName: event.EventName()}
	}
	n.updatedAt = event.OccurredAt()
	return nil
}

func (n *Note) raise(e NoteEvent) error {
	if err := n.Apply(e); err != nil {
		return err
	}
	n.Record(e)
	return nil
}

func (n *Note) live() error {
	if n.deleted {
		return eventsource.Violation(ErrDeleted, "Note has been deleted")
	}
	return nil
}
