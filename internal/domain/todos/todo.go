package todos

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

const (
	// MaxTextLength is the maximum todo text length in characters.
	MaxTextLength = 500
	// MaxTagLength is the maximum tag length in characters.
	MaxTagLength = 50
)

// Priority ranks a todo.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority parses a priority name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	case "":
		return PriorityNone, nil
	default:
		return "", eventsource.Violation(ErrInvalidPriority,
			"Priority '%s' is not valid (use none, low, medium, high or urgent)", s)
	}
}

// Todo is the aggregate root for a single todo item.
type Todo struct {
	eventsource.Root

	categoryID  eventsource.ID
	text        string
	status      Status
	favorite    bool
	tags        []string
	dueDate     *time.Time
	priority    Priority
	createdAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time
}

// Empty returns a zero-state todo for replay.
func Empty() *Todo {
	return &Todo{}
}

// NewTodo creates a todo and records TodoCreated.
func NewTodo(id, categoryID eventsource.ID, text string, at time.Time) (*Todo, error) {
	if id.IsZero() {
		return nil, eventsource.ErrEmptyID
	}
	text, err := validateText(text)
	if err != nil {
		return nil, err
	}

	t := Empty()
	if err := t.raise(TodoCreated{TodoID: id, CategoryID: categoryID, Text: text, At: at}); err != nil {
		return nil, err
	}
	return t, nil
}

// CategoryID returns the owning todo category, empty when uncategorized.
func (t *Todo) CategoryID() eventsource.ID { return t.categoryID }

// Text returns the todo text.
func (t *Todo) Text() string { return t.text }

// Status returns the lifecycle status.
func (t *Todo) Status() Status { return t.status }

// IsCompleted reports whether the todo is checked off.
func (t *Todo) IsCompleted() bool { return t.status == StatusCompleted }

// IsDeleted reports whether the todo was deleted.
func (t *Todo) IsDeleted() bool { return t.status == StatusDeleted }

// IsFavorite reports whether the todo is marked as favorite.
func (t *Todo) IsFavorite() bool { return t.favorite }

// Tags returns a copy of the tags in insertion order.
func (t *Todo) Tags() []string { return slices.Clone(t.tags) }

// DueDate returns the due date, or nil.
func (t *Todo) DueDate() *time.Time { return t.dueDate }

// Priority returns the priority.
func (t *Todo) Priority() Priority { return t.priority }

// CreatedAt returns the creation time.
func (t *Todo) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the time of the last change.
func (t *Todo) UpdatedAt() time.Time { return t.updatedAt }

// CompletedAt returns when the todo was completed, or nil.
func (t *Todo) CompletedAt() *time.Time { return t.completedAt }

// UpdateText replaces the todo text.
func (t *Todo) UpdateText(text string, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	text, err := validateText(text)
	if err != nil {
		return err
	}
	if text == t.text {
		return eventsource.Violation(ErrTextUnchanged, "Todo text is unchanged")
	}
	return t.raise(TodoTextUpdated{TodoID: t.ID(), Text: text, At: at})
}

// ToggleCompletion checks off an active todo or reopens a completed one.
func (t *Todo) ToggleCompletion(at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	if t.status == StatusCompleted {
		if _, err := lifecycle.Next(t.status, LifecycleReopen); err != nil {
			return err
		}
		return t.raise(TodoReopened{TodoID: t.ID(), At: at})
	}
	if _, err := lifecycle.Next(t.status, LifecycleComplete); err != nil {
		return err
	}
	return t.raise(TodoCompleted{TodoID: t.ID(), At: at})
}

// ToggleFavorite flips the favorite flag.
func (t *Todo) ToggleFavorite(at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	return t.raise(TodoFavoriteToggled{TodoID: t.ID(), IsFavorite: !t.favorite, At: at})
}

// SetFavorite sets the favorite flag, rejecting a no-op.
func (t *Todo) SetFavorite(favorite bool, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	if t.favorite == favorite {
		if favorite {
			return eventsource.Violation(ErrFavoriteUnchanged, "Todo is already marked as favorite")
		}
		return eventsource.Violation(ErrFavoriteUnchanged, "Todo is not marked as favorite")
	}
	return t.raise(TodoFavoriteToggled{TodoID: t.ID(), IsFavorite: favorite, At: at})
}

// AddTag attaches a tag. Tags are case-insensitive and stored lower-case.
func (t *Todo) AddTag(tag string, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	tag, err := normalizeTag(tag)
	if err != nil {
		return err
	}
	if slices.Contains(t.tags, tag) {
		return eventsource.Violation(ErrTagExists, "Tag '%s' already exists", tag)
	}
	return t.raise(TodoTagAdded{TodoID: t.ID(), Tag: tag, At: at})
}

// RemoveTag detaches a tag.
func (t *Todo) RemoveTag(tag string, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	normalized, err := normalizeTag(tag)
	if err != nil {
		return err
	}
	if !slices.Contains(t.tags, normalized) {
		return eventsource.Violation(ErrTagNotFound, "Tag '%s' not found", normalized)
	}
	return t.raise(TodoTagRemoved{TodoID: t.ID(), Tag: normalized, At: at})
}

// SetDueDate sets or clears (nil) the due date.
func (t *Todo) SetDueDate(due *time.Time, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	if sameDueDate(t.dueDate, due) {
		return eventsource.Violation(ErrUnchanged, "Todo due date is unchanged")
	}
	var copied *time.Time
	if due != nil {
		d := due.UTC()
		copied = &d
	}
	return t.raise(TodoDueDateSet{TodoID: t.ID(), DueDate: copied, At: at})
}

// SetPriority changes the priority.
func (t *Todo) SetPriority(p Priority, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	p, err := ParsePriority(string(p))
	if err != nil {
		return err
	}
	if p == t.priority {
		return eventsource.Violation(ErrUnchanged, "Todo priority is already %s", p)
	}
	return t.raise(TodoPrioritySet{TodoID: t.ID(), Priority: p, At: at})
}

// MoveTo files the todo under another category (empty = uncategorized).
func (t *Todo) MoveTo(categoryID eventsource.ID, at time.Time) error {
	if err := t.ensureNotDeleted(); err != nil {
		return err
	}
	if categoryID == t.categoryID {
		return eventsource.Violation(ErrUnchanged, "Todo is already in that category")
	}
	return t.raise(TodoMoved{TodoID: t.ID(), CategoryID: categoryID, At: at})
}

// Delete removes the todo.
func (t *Todo) Delete(at time.Time) error {
	if _, err := lifecycle.Next(t.status, LifecycleDelete); err != nil {
		if t.status == StatusDeleted {
			return t.ensureNotDeleted()
		}
		return err
	}
	return t.raise(TodoDeleted{TodoID: t.ID(), At: at})
}

// Apply folds one event into state. It is used for live changes and replay.
func (t *Todo) Apply(event eventsource.Event) error {
	e, ok := event.(TodoEvent)
	if !ok {
		return &eventsource.UnknownEventError{Aggregate: AggregateTodo, EventName: event.EventName()}
	}

	switch e := e.(type) {
	case TodoCreated:
		t.SetID(e.TodoID)
		t.categoryID = e.CategoryID
		t.text = e.Text
		t.status = StatusActive
		t.priority = PriorityNone
		t.createdAt = e.At
	case TodoTextUpdated:
		t.text = e.Text
	case TodoCompleted:
		t.status = StatusCompleted
		at := e.At
		t.completedAt = &at
	case TodoReopened:
		t.status = StatusActive
		t.completedAt = nil
	case TodoFavoriteToggled:
		t.favorite = e.IsFavorite
	case TodoTagAdded:
		t.tags = append(slices.Clone(t.tags), e.Tag)
	case TodoTagRemoved:
		t.tags = slices.DeleteFunc(slices.Clone(t.tags), func(tag string) bool { return tag == e.Tag })
	case TodoDueDateSet:
		t.dueDate = e.DueDate
	case TodoPrioritySet:
		t.priority = e.Priority
	case TodoMoved:
		t.categoryID = e.CategoryID
	case TodoDeleted:
		t.status = StatusDeleted
	default:
		return &eventsource.UnknownEventError{Aggregate: AggregateTodo, EventName: event.EventName()}
	}
	t.updatedAt = e.OccurredAt()
	return nil
}

func (t *Todo) raise(e TodoEvent) error {
	if err := t.Apply(e); err != nil {
		return err
	}
	t.Record(e)
	return nil
}

func (t *Todo) ensureNotDeleted() error {
	if t.status == StatusDeleted {
		return eventsource.Violation(ErrDeleted, "Todo has been deleted")
	}
	return nil
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", eventsource.Violation(ErrEmptyText, "Todo text cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", eventsource.Violation(ErrTextTooLong, "Todo text cannot exceed %d characters", MaxTextLength)
	}
	return text, nil
}

func normalizeTag(tag string) (string, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.TrimPrefix(tag, "#")
	if tag == "" {
		return "", eventsource.Violation(ErrInvalidTag, "Tag cannot be empty")
	}
	if utf8.RuneCountInString(tag) > MaxTagLength {
		return "", eventsource.Violation(ErrInvalidTag, "Tag cannot exceed %d characters", MaxTagLength)
	}
	if strings.ContainsAny(tag, " \t\n,") {
		return "", eventsource.Violation(ErrInvalidTag, "Tag '%s' cannot contain spaces or commas", tag)
	}
	return tag, nil
}

func sameDueDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// IsRuleViolation reports whether err came from a todo business rule.
func IsRuleViolation(err error) bool {
	_, ok := eventsource.AsRuleError(err)
	return ok || errors.Is(err, ErrInvalidTransition)
}

// String implements fmt.Stringer for debugging output.
func (t *Todo) String() string {
	return fmt.Sprintf("Todo(%s v%d %q %s)", t.ID().Short(), t.Version(), t.text, t.status)
}
