package todos

import (
	"errors"
	"fmt"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Domain errors for todo operations. Operations return them wrapped in an
// eventsource.RuleError carrying the user-facing message.
var (
	// ErrEmptyText indicates blank todo text.
	ErrEmptyText = errors.New("todo text is empty")

	// ErrTextTooLong indicates todo text over MaxTextLength.
	ErrTextTooLong = errors.New("todo text is too long")

	// ErrTextUnchanged indicates an update that would not change the text.
	ErrTextUnchanged = errors.New("todo text is unchanged")

	// ErrDeleted indicates an operation on a deleted todo or category.
	ErrDeleted = errors.New("already deleted")

	// ErrFavoriteUnchanged indicates the favorite flag is already in the target state.
	ErrFavoriteUnchanged = errors.New("favorite flag unchanged")

	// ErrInvalidTag indicates a blank or oversized tag.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrTagExists indicates the tag is already attached.
	ErrTagExists = errors.New("tag already exists")

	// ErrTagNotFound indicates the tag is not attached.
	ErrTagNotFound = errors.New("tag not found")

	// ErrInvalidPriority indicates an unknown priority value.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrUnchanged indicates an operation that would not change state.
	ErrUnchanged = errors.New("nothing to change")

	// ErrInvalidName indicates a blank or oversized category name.
	ErrInvalidName = errors.New("invalid category name")

	// ErrSelfParent indicates a category placed under itself.
	ErrSelfParent = errors.New("category cannot be its own parent")

	// ErrInvalidTransition indicates a lifecycle transition the todo machine rejects.
	ErrInvalidTransition = fmt.Errorf("todo lifecycle: %w", eventsource.ErrInvalidState)
)
