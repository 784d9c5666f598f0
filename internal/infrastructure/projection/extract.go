package projection

import (
	"fmt"
	"log/slog"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/domain/todos"
)

// Projector names, used as watermark keys.
const (
	NoteTreeProjection         = "note_tree"
	TodoCategoryTreeProjection = "todo_category_tree"
	TodoProjection             = "todos"
	NoteProjection             = "notes"
)

// NewNoteTreeProjector projects categories and notes into note_tree.
func NewNoteTreeProjector(logger *slog.Logger) *TreeProjector {
	return NewTreeProjector(NoteTreeProjection, NoteTreeTable,
		[]string{notes.AggregateCategory, notes.AggregateNote}, NoteTreeChange, logger)
}

// NewTodoCategoryTreeProjector projects todo categories into todo_category_tree.
func NewTodoCategoryTreeProjector(logger *slog.Logger) *TreeProjector {
	return NewTreeProjector(TodoCategoryTreeProjection, TodoCategoryTreeTable,
		[]string{todos.AggregateCategory}, TodoCategoryTreeChange, logger)
}

// NoteTreeChange maps a category or note record onto note_tree.
func NoteTreeChange(rec eventsource.Record) (TreeChange, error) {
	switch rec.AggregateType {
	case notes.AggregateCategory:
		event, err := notes.DecodeCategoryEvent(rec.EventName, rec.Payload)
		if err != nil {
			return TreeChange{}, err
		}
		switch e := event.(type) {
		case notes.CategoryCreated:
			return TreeChange{Kind: ChangeUpsert, ID: e.CategoryID, ParentID: e.ParentID, Name: e.Name, NodeType: NodeCategory, At: e.At}, nil
		case notes.CategoryRenamed:
			return TreeChange{Kind: ChangeRename, ID: e.CategoryID, Name: e.Name, At: e.At}, nil
		case notes.CategoryMoved:
			return TreeChange{Kind: ChangeMove, ID: e.CategoryID, ParentID: e.ParentID, At: e.At}, nil
		case notes.CategoryDeleted:
			return TreeChange{Kind: ChangeDelete, ID: e.CategoryID, At: e.At}, nil
		}
	case notes.AggregateNote:
		event, err := notes.DecodeNoteEvent(rec.EventName, rec.Payload)
		if err != nil {
			return TreeChange{}, err
		}
		switch e := event.(type) {
		case notes.NoteCreated:
			return TreeChange{Kind: ChangeUpsert, ID: e.NoteID, ParentID: e.CategoryID, Name: e.Title, NodeType: NodeNote, At: e.At}, nil
		case notes.NoteRenamed:
			return TreeChange{Kind: ChangeRename, ID: e.NoteID, Name: e.Title, At: e.At}, nil
		case notes.NoteMoved:
			return TreeChange{Kind: ChangeMove, ID: e.NoteID, ParentID: e.CategoryID, At: e.At}, nil
		case notes.NoteContentUpdated:
			return TreeChange{Kind: ChangeTouch, ID: e.NoteID, At: e.At}, nil
		case notes.NotePinned, notes.NoteUnpinned:
			return TreeChange{Kind: ChangeNone}, nil
		case notes.NoteDeleted:
			return TreeChange{Kind: ChangeDelete, ID: e.NoteID, At: e.At}, nil
		}
	}
	return TreeChange{}, fmt.Errorf("note tree cannot project %s/%s", rec.AggregateType, rec.EventName)
}

// TodoCategoryTreeChange maps a todo category record onto todo_category_tree.
func TodoCategoryTreeChange(rec eventsource.Record) (TreeChange, error) {
	event, err := todos.DecodeCategoryEvent(rec.EventName, rec.Payload)
	if err != nil {
		return TreeChange{}, err
	}
	switch e := event.(type) {
	case todos.CategoryCreated:
		return TreeChange{Kind: ChangeUpsert, ID: e.CategoryID, ParentID: e.ParentID, Name: e.Name, NodeType: NodeCategory, At: e.At}, nil
	case todos.CategoryRenamed:
		return TreeChange{Kind: ChangeRename, ID: e.CategoryID, Name: e.Name, At: e.At}, nil
	case todos.CategoryMoved:
		return TreeChange{Kind: ChangeMove, ID: e.CategoryID, ParentID: e.ParentID, At: e.At}, nil
	case todos.CategoryDeleted:
		return TreeChange{Kind: ChangeDelete, ID: e.CategoryID, At: e.At}, nil
	}
	return TreeChange{}, fmt.Errorf("todo category tree cannot project %s", rec.EventName)
}

// DefaultProjectors returns every read model projector.
func DefaultProjectors(logger *slog.Logger) []Projector {
	return []Projector{
		NewNoteTreeProjector(logger),
		NewTodoCategoryTreeProjector(logger),
		NewTodoProjector(),
		NewNoteProjector(),
	}
}
