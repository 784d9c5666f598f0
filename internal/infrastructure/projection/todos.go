package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// TodoProjector maintains the todos table. Each row stores the stream
// sequence it reflects, and events at or below it are skipped.
type TodoProjector struct{}

// NewTodoProjector creates the todos projector.
func NewTodoProjector() *TodoProjector { return &TodoProjector{} }

// Name implements Projector.
func (*TodoProjector) Name() string { return TodoProjection }

// Handles implements Projector.
func (*TodoProjector) Handles(aggregateType string) bool { return aggregateType == todos.AggregateTodo }

// Reset implements Projector.
func (*TodoProjector) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+TodosTable)
	return err
}

type todoRow struct {
	tags    []string
	version int64
}

// Apply implements Projector.
func (p *TodoProjector) Apply(ctx context.Context, tx *sql.Tx, rec eventsource.Record) error {
	event, err := todos.DecodeTodoEvent(rec.EventName, rec.Payload)
	if err != nil {
		return err
	}

	if e, ok := event.(todos.TodoCreated); ok {
		at := sqlitedb.ToMillis(e.At)
		_, err := tx.ExecContext(ctx, `INSERT INTO todos
			(id, category_id, text, status, favorite, tags, priority, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, 0, '[]', ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			string(e.TodoID), nullID(e.CategoryID), e.Text, string(todos.StatusActive),
			string(todos.PriorityNone), at, at, rec.Sequence)
		if err != nil {
			return fmt.Errorf("insert todo %s: %w", e.TodoID, err)
		}
		return nil
	}

	row, found, err := loadTodoRow(ctx, tx, rec.AggregateID)
	if err != nil {
		return err
	}
	if !found || rec.Sequence <= row.version {
		return nil
	}

	at := sqlitedb.ToMillis(event.OccurredAt())
	var (
		set  string
		args []any
	)
	switch e := event.(type) {
	case todos.TodoTextUpdated:
		set, args = "text = ?", []any{e.Text}
	case todos.TodoCompleted:
		set, args = "status = ?, completed_at = ?", []any{string(todos.StatusCompleted), at}
	case todos.TodoReopened:
		set, args = "status = ?, completed_at = NULL", []any{string(todos.StatusActive)}
	case todos.TodoFavoriteToggled:
		set, args = "favorite = ?", []any{e.IsFavorite}
	case todos.TodoTagAdded:
		if !slices.Contains(row.tags, e.Tag) {
			row.tags = append(row.tags, e.Tag)
		}
		set, args = "tags = ?", []any{encodeTags(row.tags)}
	case todos.TodoTagRemoved:
		row.tags = slices.DeleteFunc(row.tags, func(t string) bool { return t == e.Tag })
		set, args = "tags = ?", []any{encodeTags(row.tags)}
	case todos.TodoDueDateSet:
		var due any
		if e.DueDate != nil {
			due = sqlitedb.ToMillis(*e.DueDate)
		}
		set, args = "due_date = ?", []any{due}
	case todos.TodoPrioritySet:
		set, args = "priority = ?", []any{string(e.Priority)}
	case todos.TodoMoved:
		set, args = "category_id = ?", []any{nullID(e.CategoryID)}
	case todos.TodoDeleted:
		set, args = "status = ?", []any{string(todos.StatusDeleted)}
	default:
		return fmt.Errorf("todos projection cannot fold %s", rec.EventName)
	}

	args = append(args, at, rec.Sequence, string(rec.AggregateID))
	if _, err := tx.ExecContext(ctx, `UPDATE todos SET `+set+`, updated_at = ?, version = ? WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update todo %s: %w", rec.AggregateID, err)
	}
	return nil
}

func loadTodoRow(ctx context.Context, tx *sql.Tx, id eventsource.ID) (todoRow, bool, error) {
	var (
		row  todoRow
		tags string
	)
	err := tx.QueryRowContext(ctx, `SELECT tags, version FROM todos WHERE id = ?`, string(id)).Scan(&tags, &row.version)
	if errors.Is(err, sql.ErrNoRows) {
		return row, false, nil
	}
	if err != nil {
		return row, false, fmt.Errorf("read todo %s: %w", id, err)
	}
	row.tags, err = DecodeTags(tags)
	return row, err == nil, err
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// DecodeTags parses the JSON tags column.
func DecodeTags(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags %q: %w", raw, err)
	}
	return tags, nil
}
