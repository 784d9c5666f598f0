package todos

import (
	"context"
	"time"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
)

// CreateTodoInput represents the input for the CreateTodo use case.
type CreateTodoInput struct {
	// ID is generated when empty.
	ID         eventsource.ID
	CategoryID eventsource.ID
	Text       string
	// Optional initial attributes, recorded as follow-up events in the same commit.
	Priority string
	DueDate  *time.Time
	Tags     []string
	Favorite bool
}

// CreateTodoUseCase creates a todo.
type CreateTodoUseCase struct {
	deps Dependencies
}

// NewCreateTodoUseCase creates a new CreateTodoUseCase.
func NewCreateTodoUseCase(deps Dependencies) *CreateTodoUseCase {
	return &CreateTodoUseCase{deps: deps}
}

// Execute creates the todo. Either every initial attribute is accepted or
// nothing is stored.
func (uc *CreateTodoUseCase) Execute(ctx context.Context, input CreateTodoInput) (*TodoOutput, error) {
	const op = "todos.CreateTodo"

	id := input.ID
	if id.IsZero() {
		id = eventsource.NewID()
	}
	if err := command.Exists(ctx, uc.deps.Categories, op, "Category", input.CategoryID); err != nil {
		return nil, err
	}

	td, err := command.Create(ctx, uc.deps.Runner, uc.deps.Todos, op, func() (*todos.Todo, error) {
		at := uc.deps.now()
		td, err := todos.NewTodo(id, input.CategoryID, input.Text, at)
		if err != nil {
			return nil, err
		}
		if input.Priority != "" {
			p, err := todos.ParsePriority(input.Priority)
			if err != nil {
				return nil, err
			}
			if p != todos.PriorityNone {
				if err := td.SetPriority(p, at); err != nil {
					return nil, err
				}
			}
		}
		if input.DueDate != nil {
			if err := td.SetDueDate(input.DueDate, at); err != nil {
				return nil, err
			}
		}
		for _, tag := range input.Tags {
			if err := td.AddTag(tag, at); err != nil {
				return nil, err
			}
		}
		if input.Favorite {
			if err := td.SetFavorite(true, at); err != nil {
				return nil, err
			}
		}
		return td, nil
	})
	if err != nil {
		return nil, err
	}
	return todoOutput(td), nil
}

// UpdateTodoTextInput represents the input for the UpdateTodoText use case.
type UpdateTodoTextInput struct {
	ID   eventsource.ID
	Text string
}

// Validate validates the UpdateTodoTextInput.
func (i UpdateTodoTextInput) Validate() error {
	return requireID("todos.UpdateTodoText", "Todo", i.ID)
}

// UpdateTodoTextUseCase edits a todo's text.
type UpdateTodoTextUseCase struct {
	deps Dependencies
}

// NewUpdateTodoTextUseCase creates a new UpdateTodoTextUseCase.
func NewUpdateTodoTextUseCase(deps Dependencies) *UpdateTodoTextUseCase {
	return &UpdateTodoTextUseCase{deps: deps}
}

// Execute updates the text.
func (uc *UpdateTodoTextUseCase) Execute(ctx context.Context, input UpdateTodoTextInput) (*TodoOutput, error) {
	const op = "todos.UpdateTodoText"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, op, input.ID, func(td *todos.Todo, at time.Time) error {
		return td.UpdateText(input.Text, at)
	})
}

// ToggleTodoCompletionInput represents the input for the ToggleTodoCompletion use case.
type ToggleTodoCompletionInput struct {
	ID eventsource.ID
}

// Validate validates the ToggleTodoCompletionInput.
func (i ToggleTodoCompletionInput) Validate() error {
	return requireID("todos.ToggleTodoCompletion", "Todo", i.ID)
}

// ToggleTodoCompletionUseCase checks a todo off or reopens it.
type ToggleTodoCompletionUseCase struct {
	deps Dependencies
}

// NewToggleTodoCompletionUseCase creates a new ToggleTodoCompletionUseCase.
func NewToggleTodoCompletionUseCase(deps Dependencies) *ToggleTodoCompletionUseCase {
	return &ToggleTodoCompletionUseCase{deps: deps}
}

// Execute toggles completion.
func (uc *ToggleTodoCompletionUseCase) Execute(ctx context.Context, input ToggleTodoCompletionInput) (*TodoOutput, error) {
	const op = "todos.ToggleTodoCompletion"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, op, input.ID, func(td *todos.Todo, at time.Time) error {
		return td.ToggleCompletion(at)
	})
}

// ToggleFavoriteInput represents the input for the ToggleFavorite use case.
type ToggleFavoriteInput struct {
	ID eventsource.ID
	// Favorite sets an explicit value; nil flips the current one.
	Favorite *bool
}

// Validate validates the ToggleFavoriteInput.
func (i ToggleFavoriteInput) Validate() error {
	return requireID("todos.ToggleFavorite", "Todo", i.ID)
}

// ToggleFavoriteUseCase marks or unmarks a todo as favorite.
type ToggleFavoriteUseCase struct {
	deps Dependencies
}

// NewToggleFavoriteUseCase creates a new ToggleFavoriteUseCase.
func NewToggleFavoriteUseCase(deps Dependencies) *ToggleFavoriteUseCase {
	return &ToggleFavoriteUseCase{deps: deps}
}

// Execute flips or sets the favorite flag.
func (uc *ToggleFavoriteUseCase) Execute(ctx context.Context, input ToggleFavoriteInput) (*TodoOutput, error) {
	const op = "todos.ToggleFavorite"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, op, input.ID, func(td *todos.Todo, at time.Time) error {
		if input.Favorite == nil {
			return td.ToggleFavorite(at)
		}
		return td.SetFavorite(*input.Favorite, at)
	})
}

// TagInput represents the input for the AddTag and RemoveTag use cases.
type TagInput struct {
	ID  eventsource.ID
	Tag string
}

// Validate validates the TagInput.
func (i TagInput) Validate() error {
	return requireID("todos.Tag", "Todo", i.ID)
}

// AddTagUseCase attaches a tag to a todo.
type AddTagUseCase struct {
	deps Dependencies
}

// NewAddTagUseCase creates a new AddTagUseCase.
func NewAddTagUseCase(deps Dependencies) *AddTagUseCase {
	return &AddTagUseCase{deps: deps}
}

// Execute adds the tag.
func (uc *AddTagUseCase) Execute(ctx context.Context, input TagInput) (*TodoOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, "todos.AddTag", input.ID, func(td *todos.Todo, at time.Time) error {
		return td.AddTag(input.Tag, at)
	})
}

// RemoveTagUseCase detaches a tag from a todo.
type RemoveTagUseCase struct {
	deps Dependencies
}

// NewRemoveTagUseCase creates a new RemoveTagUseCase.
func NewRemoveTagUseCase(deps Dependencies) *RemoveTagUseCase {
	return &RemoveTagUseCase{deps: deps}
}

// Execute removes the tag.
func (uc *RemoveTagUseCase) Execute(ctx context.Context, input TagInput) (*TodoOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, "todos.RemoveTag", input.ID, func(td *todos.Todo, at time.Time) error {
		return td.RemoveTag(input.Tag, at)
	})
}

// SetDueDateInput represents the input for the SetDueDate use case.
type SetDueDateInput struct {
	ID eventsource.ID
	// DueDate nil clears the due date.
	DueDate *time.Time
}

// Validate validates the SetDueDateInput.
func (i SetDueDateInput) Validate() error {
	return requireID("todos.SetDueDate", "Todo", i.ID)
}

// SetDueDateUseCase sets or clears a todo's due date.
type SetDueDateUseCase struct {
	deps Dependencies
}

// NewSetDueDateUseCase creates a new SetDueDateUseCase.
func NewSetDueDateUseCase(deps Dependencies) *SetDueDateUseCase {
	return &SetDueDateUseCase{deps: deps}
}

// Execute sets the due date.
func (uc *SetDueDateUseCase) Execute(ctx context.Context, input SetDueDateInput) (*TodoOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, "todos.SetDueDate", input.ID, func(td *todos.Todo, at time.Time) error {
		return td.SetDueDate(input.DueDate, at)
	})
}

// SetPriorityInput represents the input for the SetPriority use case.
type SetPriorityInput struct {
	ID       eventsource.ID
	Priority string
}

// Validate validates the SetPriorityInput.
func (i SetPriorityInput) Validate() error {
	return requireID("todos.SetPriority", "Todo", i.ID)
}

// SetPriorityUseCase changes a todo's priority.
type SetPriorityUseCase struct {
	deps Dependencies
}

// NewSetPriorityUseCase creates a new SetPriorityUseCase.
func NewSetPriorityUseCase(deps Dependencies) *SetPriorityUseCase {
	return &SetPriorityUseCase{deps: deps}
}

// Execute sets the priority.
func (uc *SetPriorityUseCase) Execute(ctx context.Context, input SetPriorityInput) (*TodoOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, "todos.SetPriority", input.ID, func(td *todos.Todo, at time.Time) error {
		return td.SetPriority(todos.Priority(input.Priority), at)
	})
}

// MoveTodoInput represents the input for the MoveTodo use case.
type MoveTodoInput struct {
	ID eventsource.ID
	// CategoryID empty leaves the todo uncategorized.
	CategoryID eventsource.ID
}

// Validate validates the MoveTodoInput.
func (i MoveTodoInput) Validate() error {
	return requireID("todos.MoveTodo", "Todo", i.ID)
}

// MoveTodoUseCase files a todo under another category.
type MoveTodoUseCase struct {
	deps Dependencies
}

// NewMoveTodoUseCase creates a new MoveTodoUseCase.
func NewMoveTodoUseCase(deps Dependencies) *MoveTodoUseCase {
	return &MoveTodoUseCase{deps: deps}
}

// Execute moves the todo into an existing category.
func (uc *MoveTodoUseCase) Execute(ctx context.Context, input MoveTodoInput) (*TodoOutput, error) {
	const op = "todos.MoveTodo"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, op, input.ID, func(td *todos.Todo, at time.Time) error {
		if input.CategoryID != td.CategoryID() {
			if err := command.Exists(ctx, uc.deps.Categories, op, "Category", input.CategoryID); err != nil {
				return err
			}
		}
		return td.MoveTo(input.CategoryID, at)
	})
}

// DeleteTodoInput represents the input for the DeleteTodo use case.
type DeleteTodoInput struct {
	ID eventsource.ID
}

// Validate validates the DeleteTodoInput.
func (i DeleteTodoInput) Validate() error {
	return requireID("todos.DeleteTodo", "Todo", i.ID)
}

// DeleteTodoUseCase deletes a todo.
type DeleteTodoUseCase struct {
	deps Dependencies
}

// NewDeleteTodoUseCase creates a new DeleteTodoUseCase.
func NewDeleteTodoUseCase(deps Dependencies) *DeleteTodoUseCase {
	return &DeleteTodoUseCase{deps: deps}
}

// Execute deletes the todo.
func (uc *DeleteTodoUseCase) Execute(ctx context.Context, input DeleteTodoInput) (*TodoOutput, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	return uc.deps.mutate(ctx, "todos.DeleteTodo", input.ID, func(td *todos.Todo, at time.Time) error {
		return td.Delete(at)
	})
}

func (d Dependencies) mutate(ctx context.Context, op string, id eventsource.ID, operation func(*todos.Todo, time.Time) error) (*TodoOutput, error) {
	td, err := command.Execute(ctx, d.Runner, d.Todos, op, id, func(td *todos.Todo) error {
		return operation(td, d.now())
	})
	if err != nil {
		return nil, err
	}
	return todoOutput(td), nil
}
