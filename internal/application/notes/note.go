package notes

import (
	"context"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
)

// CreateNoteInput represents the input for the CreateNote use case.
type CreateNoteInput struct {
	// ID is generated when empty.
	ID         eventsource.ID
	CategoryID eventsource.ID
	Title      string
	// Content is optional initial body text.
	Content string
}

// CreateNoteUseCase creates a note.
type CreateNoteUseCase struct {
	deps Dependencies
}

// NewCreateNoteUseCase creates a new CreateNoteUseCase.
func NewCreateNoteUseCase(deps Dependencies) *CreateNoteUseCase {
	return &CreateNoteUseCase{deps: deps}
}

// Execute creates the note in an existing category (or at the root).
func (uc *CreateNoteUseCase) Execute(ctx context.Context, input CreateNoteInput) (*NoteOutput, error) {
	const op = "notes.CreateNote"

	id := input.ID
	if id.IsZero() {
		id = eventsource.NewID()
	}
	if err := command.Exists(ctx, uc.deps.Categories, op, "Category", input.CategoryID); err != nil {
		return nil, err
	}

	n, err := command.Create(ctx, uc.deps.Runner, uc.deps.Notes, op, func() (*notes.Note, error) {
		at := uc.deps.now()
		n, err := notes.NewNote(id, input.CategoryID, input.Title, at)
		if err != nil {
			return nil, err
		}
		if input.Content != "" {
			if err := n.UpdateContent(input.Content, at); err != nil {
				return nil, err
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}

// RenameNoteInput represents the input for the RenameNote use case.
type RenameNoteInput struct {
	ID    eventsource.ID
	Title string
}

// Validate validates the RenameNoteInput.
func (i RenameNoteInput) Validate() error {
	return requireID("notes.RenameNote", "Note", i.ID)
}

// RenameNoteUseCase changes a note title.
type RenameNoteUseCase struct {
	deps Dependencies
}

// NewRenameNoteUseCase creates a new RenameNoteUseCase.
func NewRenameNoteUseCase(deps Dependencies) *RenameNoteUseCase {
	return &RenameNoteUseCase{deps: deps}
}

// Execute renames the note.
func (uc *RenameNoteUseCase) Execute(ctx context.Context, input RenameNoteInput) (*NoteOutput, error) {
	const op = "notes.RenameNote"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	n, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Notes, op, input.ID, func(n *notes.Note) error {
		return n.Rename(input.Title, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}

// MoveNoteInput represents the input for the MoveNote use case.
type MoveNoteInput struct {
	ID eventsource.ID
	// CategoryID is the destination; empty files the note at the root.
	CategoryID eventsource.ID
}

// Validate validates the MoveNoteInput.
func (i MoveNoteInput) Validate() error {
	return requireID("notes.MoveNote", "Note", i.ID)
}

// MoveNoteUseCase files a note under another category.
type MoveNoteUseCase struct {
	deps Dependencies
}

// NewMoveNoteUseCase creates a new MoveNoteUseCase.
func NewMoveNoteUseCase(deps Dependencies) *MoveNoteUseCase {
	return &MoveNoteUseCase{deps: deps}
}

// Execute moves the note.
func (uc *MoveNoteUseCase) Execute(ctx context.Context, input MoveNoteInput) (*NoteOutput, error) {
	const op = "notes.MoveNote"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	n, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Notes, op, input.ID, func(n *notes.Note) error {
		if input.CategoryID != n.CategoryID() {
			if err := command.Exists(ctx, uc.deps.Categories, op, "Category", input.CategoryID); err != nil {
				return err
			}
		}
		return n.MoveTo(input.CategoryID, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}

// UpdateNoteContentInput represents the input for the UpdateNoteContent use case.
type UpdateNoteContentInput struct {
	ID      eventsource.ID
	Content string
}

// Validate validates the UpdateNoteContentInput.
func (i UpdateNoteContentInput) Validate() error {
	return requireID("notes.UpdateNoteContent", "Note", i.ID)
}

// UpdateNoteContentUseCase replaces a note body.
type UpdateNoteContentUseCase struct {
	deps Dependencies
}

// NewUpdateNoteContentUseCase creates a new UpdateNoteContentUseCase.
func NewUpdateNoteContentUseCase(deps Dependencies) *UpdateNoteContentUseCase {
	return &UpdateNoteContentUseCase{deps: deps}
}

// Execute saves the content. Identical content records nothing.
func (uc *UpdateNoteContentUseCase) Execute(ctx context.Context, input UpdateNoteContentInput) (*NoteOutput, error) {
	const op = "notes.UpdateNoteContent"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	n, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Notes, op, input.ID, func(n *notes.Note) error {
		return n.UpdateContent(input.Content, uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}

// PinNoteInput represents the input for the PinNote use case.
type PinNoteInput struct {
	ID eventsource.ID
	// Pinned selects pin (true) or unpin (false).
	Pinned bool
}

// Validate validates the PinNoteInput.
func (i PinNoteInput) Validate() error {
	return requireID("notes.PinNote", "Note", i.ID)
}

// PinNoteUseCase pins or unpins a note.
type PinNoteUseCase struct {
	deps Dependencies
}

// NewPinNoteUseCase creates a new PinNoteUseCase.
func NewPinNoteUseCase(deps Dependencies) *PinNoteUseCase {
	return &PinNoteUseCase{deps: deps}
}

// Execute pins or unpins the note.
func (uc *PinNoteUseCase) Execute(ctx context.Context, input PinNoteInput) (*NoteOutput, error) {
	op := "notes.UnpinNote"
	if input.Pinned {
		op = "notes.PinNote"
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	n, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Notes, op, input.ID, func(n *notes.Note) error {
		if input.Pinned {
			return n.Pin(uc.deps.now())
		}
		return n.Unpin(uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}

// DeleteNoteInput represents the input for the DeleteNote use case.
type DeleteNoteInput struct {
	ID eventsource.ID
}

// Validate validates the DeleteNoteInput.
func (i DeleteNoteInput) Validate() error {
	return requireID("notes.DeleteNote", "Note", i.ID)
}

// DeleteNoteUseCase deletes a note.
type DeleteNoteUseCase struct {
	deps Dependencies
}

// NewDeleteNoteUseCase creates a new DeleteNoteUseCase.
func NewDeleteNoteUseCase(deps Dependencies) *DeleteNoteUseCase {
	return &DeleteNoteUseCase{deps: deps}
}

// Execute deletes the note.
func (uc *DeleteNoteUseCase) Execute(ctx context.Context, input DeleteNoteInput) (*NoteOutput, error) {
	const op = "notes.DeleteNote"
	if err := input.Validate(); err != nil {
		return nil, err
	}
	n, err := command.Execute(ctx, uc.deps.Runner, uc.deps.Notes, op, input.ID, func(n *notes.Note) error {
		return n.Delete(uc.deps.now())
	})
	if err != nil {
		return nil, err
	}
	return noteOutput(n), nil
}
