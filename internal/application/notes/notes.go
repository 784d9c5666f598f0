// Package notes provides application use cases for the notebook: categories
// and the notes filed under them.
package notes

import (
	"time"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/query"
)

// Dependencies are shared by every notebook use case.
type Dependencies struct {
	Runner     *command.Runner
	Categories command.Repository[*notes.Category]
	Notes      command.Repository[*notes.Note]
	// Tree answers sibling and ancestry questions. Nil skips those checks.
	Tree command.TreeReader
	// Clock defaults to time.Now.
	Clock func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d Dependencies) placement() command.Placement {
	return command.Placement{Reader: d.Tree, Kind: query.NoteTree}
}

// CategoryOutput describes a category after a command.
type CategoryOutput struct {
	ID       eventsource.ID `json:"id"`
	ParentID eventsource.ID `json:"parent_id,omitempty"`
	Name     string         `json:"name"`
	Version  int64          `json:"version"`
	Deleted  bool           `json:"deleted,omitempty"`
}

func categoryOutput(c *notes.Category) *CategoryOutput {
	return &CategoryOutput{
		ID:       c.ID(),
		ParentID: c.ParentID(),
		Name:     c.Name(),
		Version:  c.Version(),
		Deleted:  c.IsDeleted(),
	}
}

// NoteOutput describes a note after a command.
type NoteOutput struct {
	ID         eventsource.ID `json:"id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	Title      string         `json:"title"`
	Pinned     bool           `json:"pinned"`
	Version    int64          `json:"version"`
	Deleted    bool           `json:"deleted,omitempty"`
}

func noteOutput(n *notes.Note) *NoteOutput {
	return &NoteOutput{
		ID:         n.ID(),
		CategoryID: n.CategoryID(),
		Title:      n.Title(),
		Pinned:     n.IsPinned(),
		Version:    n.Version(),
		Deleted:    n.IsDeleted(),
	}
}

func requireID(op, label string, id eventsource.ID) error {
	if id.IsZero() {
		return rperrors.Validation(op, label+" id is required")
	}
	return nil
}
