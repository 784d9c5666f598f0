// Package todos provides application use cases for todos and their categories.
package todos

import (
	"time"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/query"
)

// Dependencies are shared by every todo use case.
type Dependencies struct {
	Runner     *command.Runner
	Todos      command.Repository[*todos.Todo]
	Categories command.Repository[*todos.Category]
	// Tree answers sibling and ancestry questions. Nil skips those checks.
	Tree  command.TreeReader
	Clock func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

func (d Dependencies) placement() command.Placement {
	return command.Placement{Reader: d.Tree, Kind: query.TodoCategoryTree}
}

// TodoOutput describes a todo after a command.
type TodoOutput struct {
	ID          eventsource.ID `json:"id"`
	CategoryID  eventsource.ID `json:"category_id,omitempty"`
	Text        string         `json:"text"`
	Status      string         `json:"status"`
	Favorite    bool           `json:"favorite"`
	Tags        []string       `json:"tags"`
	Priority    string         `json:"priority"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Version     int64          `json:"version"`
}

// Completed reports whether the todo is checked off.
func (o *TodoOutput) Completed() bool {
	return o.Status == todos.StatusCompleted.String()
}

func todoOutput(t *todos.Todo) *TodoOutput {
	return &TodoOutput{
		ID:          t.ID(),
		CategoryID:  t.CategoryID(),
		Text:        t.Text(),
		Status:      t.Status().String(),
		Favorite:    t.IsFavorite(),
		Tags:        t.Tags(),
		Priority:    string(t.Priority()),
		DueDate:     t.DueDate(),
		CompletedAt: t.CompletedAt(),
		Version:     t.Version(),
	}
}

// CategoryOutput describes a todo category after a command.
type CategoryOutput struct {
	ID       eventsource.ID `json:"id"`
	ParentID eventsource.ID `json:"parent_id,omitempty"`
	Name     string         `json:"name"`
	Version  int64          `json:"version"`
	Deleted  bool           `json:"deleted,omitempty"`
}

func categoryOutput(c *todos.Category) *CategoryOutput {
	return &CategoryOutput{
		ID:       c.ID(),
		ParentID: c.ParentID(),
		Name:     c.Name(),
		Version:  c.Version(),
		Deleted:  c.IsDeleted(),
	}
}

func requireID(op, label string, id eventsource.ID) error {
	if id.IsZero() {
		return rperrors.Validation(op, label+" id is required")
	}
	return nil
}
