package todos

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// MaxCategoryNameLength is the maximum todo category name length in characters.
const MaxCategoryNameLength = 255

// Category groups todos into a tree. Structural checks that need other
// categories (sibling names, descendants) live in the application layer.
type Category struct {
	eventsource.Root

	parentID  eventsource.ID
	name      string
	deleted   bool
	createdAt time.Time
	updatedAt time.Time
}

// EmptyCategory returns a zero-state category for replay.
func EmptyCategory() *Category {
	return &Category{}
}

// NewCategory creates a todo category under parentID (empty = root).
func NewCategory(id, parentID eventsource.ID, name string, at time.Time) (*Category, error) {
	if id.IsZero() {
		return nil, eventsource.ErrEmptyID
	}
	if parentID == id {
		return nil, eventsource.Violation(ErrSelfParent, "Category cannot be its own parent")
	}
	name, err := validateCategoryName(name)
	if err != nil {
		return nil, err
	}

	c := EmptyCategory()
	if err := c.raise(CategoryCreated{CategoryID: id, ParentID: parentID, Name: name, At: at}); err != nil {
		return nil, err
	}
	return c, nil
}

// ParentID returns the parent category, empty for a root.
func (c *Category) ParentID() eventsource.ID { return c.parentID }

// Name returns the category name.
func (c *Category) Name() string { return c.name }

// IsDeleted reports whether the category was deleted.
func (c *Category) IsDeleted() bool { return c.deleted }

// CreatedAt returns the creation time.
func (c *Category) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the time of the last change.
func (c *Category) UpdatedAt() time.Time { return c.updatedAt }

// Rename changes the category name.
func (c *Category) Rename(name string, at time.Time) error {
	if err := c.ensureNotDeleted(); err != nil {
		return err
	}
	name, err := validateCategoryName(name)
	if err != nil {
		return err
	}
	if name == c.name {
		return eventsource.Violation(ErrUnchanged, "Category is already named '%s'", name)
	}
	return c.raise(CategoryRenamed{CategoryID: c.ID(), Name: name, At: at})
}

// MoveTo reparents the category (empty = root).
func (c *Category) MoveTo(parentID eventsource.ID, at time.Time) error {
	if err := c.ensureNotDeleted(); err != nil {
		return err
	}
	if parentID == c.ID() {
		return eventsource.Violation(ErrSelfParent, "Category cannot be its own parent")
	}
	if parentID == c.parentID {
		return eventsource.Violation(ErrUnchanged, "Category is already there")
	}
	return c.raise(CategoryMoved{CategoryID: c.ID(), ParentID: parentID, At: at})
}

// Delete removes the category.
func (c *Category) Delete(at time.Time) error {
	if err := c.ensureNotDeleted(); err != nil {
		return err
	}
	return c.raise(CategoryDeleted{CategoryID: c.ID(), At: at})
}

// Apply folds one event into state.
func (c *Category) Apply(event eventsource.Event) error {
	e, ok := event.(CategoryEvent)
	if !ok {
		return &eventsource.UnknownEventError{Aggregate: AggregateCategory, EventName: event.EventName()}
	}

	switch e := e.(type) {
	case CategoryCreated:
		c.SetID(e.CategoryID)
		c.parentID = e.ParentID
		c.name = e.Name
		c.createdAt = e.At
	case CategoryRenamed:
		c.name = e.Name
	case CategoryMoved:
		c.parentID = e.ParentID
	case CategoryDeleted:
		c.deleted = true
	default:
		return &eventsource.UnknownEventError{Aggregate: AggregateCategory, EventName: event.EventName()}
	}
	c.updatedAt = e.OccurredAt()
	return nil
}

func (c *Category) raise(e CategoryEvent) error {
	if err := c.Apply(e); err != nil {
		return err
	}
	c.Record(e)
	return nil
}

func (c *Category) ensureNotDeleted() error {
	if c.deleted {
		return eventsource.Violation(ErrDeleted, "Category has been deleted")
	}
	return nil
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", eventsource.Violation(ErrInvalidName, "Category name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxCategoryNameLength {
		return "", eventsource.Violation(ErrInvalidName, "Category name cannot exceed %d characters", MaxCategoryNameLength)
	}
	return name, nil
}
