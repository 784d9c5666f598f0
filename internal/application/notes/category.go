package notes

import (
	"context"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
)

// CreateCategoryInput represents the input for the CreateCategory use case.
type CreateCategoryInput struct {
	// ID is generated when empty.
	ID       eventsource.ID
	ParentID eventsource.ID
	Name     string
}

// CreateCategoryUseCase creates a notebook category.
type CreateCategoryUseCase struct {
	deps Dependencies
}

// NewCreateCategoryUseCase creates a new CreateCategoryUseCase.
func NewCreateCategoryUseCase(deps Dependencies) *CreateCategoryUseCase {
	return &CreateCategoryUseCase{deps: deps}
}

// Execute creates the category after checking that the parent exists and
// holds no sibling with the same name.
func (uc *CreateCategoryUseCase) Execute(ctx context.Context, input CreateCategoryInput) (*CategoryOutput, error) {
	const op = "notes.CreateCategory"

	id := input.ID
	if id.IsZero() {
		id = eventsource.NewID()
	}
	if err := command.Exists(ctx, uc.deps.Categories, op, "Parent category", input.ParentID); err != nil {
		return nil, err
	}
	if err := uc.deps.placement().UniqueName(ctx, op, input.ParentID, input.Name, ""); err != nil {
		return nil, err
	}

	c, err := command.Create(ctx, uc.deps.Runner, uc.deps.Categories, op, func() (*notes.Category, error) {
		return notes.NewCategory(id, input.ParentID, input.Name, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return categoryOutput(c), nil
}

// RenameCategoryInput represents the input for the RenameCategory use case.
type RenameCategoryInput struct {
	ID   eventsource.ID
	Name string
}

// Validate validates the RenameCategoryInput.
func (i RenameCategoryInput) Validate() error {
	return requireID("notes.RenameCategory", "Category", i.ID)
}

// RenameCategoryUseCase renames a notebook category.
type RenameCategoryUseCase struct {
	deps Dependencies
}

// NewRenameCategoryUseCase creates a new RenameCategoryUseCase.
func NewRenameCategoryUseCase(deps Dependencies) *RenameCategoryUseCase {
	return &RenameCategoryUseCase{deps: deps}
}

// Execute renames the category.
func (uc *RenameCategoryUseCase) Execute(ctx context.Context, input RenameCategoryInput) (*CategoryOutput, error) {
	const op = "notes.RenameCategory"
	if err := input.Validate(); err != nil {
		return nil, err
	}

	c, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Categories, op, input.ID, func(c *notes.Category) error {
		parent, err := uc.deps.placement().Parent(ctx, op, c.ID(), c.ParentID())
		if err != nil {
			return err
		}
		if err := uc.deps.placement().UniqueName(ctx, op, parent, input.Name, c.ID()); err != nil {
			return err
		}
		return c.Rename(input.Name, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return categoryOutput(c), nil
}

// MoveCategoryInput represents the input for the MoveCategory use case.
type MoveCategoryInput struct {
	ID eventsource.ID
	// ParentID is the new parent; empty moves the category to the root.
	ParentID eventsource.ID
}

// Validate validates the MoveCategoryInput.
func (i MoveCategoryInput) Validate() error {
	return requireID("notes.MoveCategory", "Category", i.ID)
}

// MoveCategoryUseCase re-parents a notebook category.
type MoveCategoryUseCase struct {
	deps Dependencies
}

// NewMoveCategoryUseCase creates a new MoveCategoryUseCase.
func NewMoveCategoryUseCase(deps Dependencies) *MoveCategoryUseCase {
	return &MoveCategoryUseCase{deps: deps}
}

// Execute moves the category. The new parent must exist, must not lie in the
// category's own subtree and must not already hold a category of that name.
func (uc *MoveCategoryUseCase) Execute(ctx context.Context, input MoveCategoryInput) (*CategoryOutput, error) {
	const op = "notes.MoveCategory"
	if err := input.Validate(); err != nil {
		return nil, err
	}

	c, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Categories, op, input.ID, func(c *notes.Category) error {
		if input.ParentID != c.ID() {
			if err := command.Exists(ctx, uc.deps.Categories, op, "Parent category", input.ParentID); err != nil {
				return err
			}
			if err := uc.deps.placement().NotIntoDescendant(ctx, op, c.ID(), input.ParentID); err != nil {
				return err
			}
			current, err := uc.deps.placement().Parent(ctx, op, c.ID(), c.ParentID())
			if err != nil {
				return err
			}
			if input.ParentID != current {
				if err := uc.deps.placement().UniqueName(ctx, op, input.ParentID, c.Name(), c.ID()); err != nil {
					return err
				}
			}
		}
		return c.MoveTo(input.ParentID, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return categoryOutput(c), nil
}

// DeleteCategoryInput represents the input for the DeleteCategory use case.
type DeleteCategoryInput struct {
	ID eventsource.ID
}

// Validate validates the DeleteCategoryInput.
func (i DeleteCategoryInput) Validate() error {
	return requireID("notes.DeleteCategory", "Category", i.ID)
}

// DeleteCategoryUseCase deletes a notebook category. Its children are
// promoted to the root by the tree projection.
type DeleteCategoryUseCase struct {
	deps Dependencies
}

// NewDeleteCategoryUseCase creates a new DeleteCategoryUseCase.
func NewDeleteCategoryUseCase(deps Dependencies) *DeleteCategoryUseCase {
	return &DeleteCategoryUseCase{deps: deps}
}

// Execute deletes the category.
func (uc *DeleteCategoryUseCase) Execute(ctx context.Context, input DeleteCategoryInput) (*CategoryOutput, error) {
	const op = "notes.DeleteCategory"
	if err := input.Validate(); err != nil {
		return nil, err
	}

	c, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Categories, op, input.ID, func(c *notes.Category) error {
		if err := uc.deps.placement().PromotableChildren(ctx, op, c.ID()); err != nil {
			return err
		}
		return c.Delete(uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return categoryOutput(c), nil
}
