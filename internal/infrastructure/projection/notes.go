package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// NoteProjector maintains the notes table with the same sequence guard as
// TodoProjector.
type NoteProjector struct{}

// NewNoteProjector creates the notes projector.
func NewNoteProjector() *NoteProjector { return &NoteProjector{} }

// Name implements Projector.
func (*NoteProjector) Name() string { return NoteProjection }

// Handles implements Projector.
func (*NoteProjector) Handles(aggregateType string) bool { return aggregateType == notes.AggregateNote }

// Reset implements Projector.
func (*NoteProjector) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+NotesTable)
	return err
}

// Apply implements Projector.
func (*NoteProjector) Apply(ctx context.Context, tx *sql.Tx, rec eventsource.Record) error {
	event, err := notes.DecodeNoteEvent(rec.EventName, rec.Payload)
	if err != nil {
		return err
	}

	if e, ok := event.(notes.NoteCreated); ok {
		at := sqlitedb.ToMillis(e.At)
		if _, err := tx.ExecContext(ctx, `INSERT INTO notes
			(id, category_id, title, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			string(e.NoteID), nullID(e.CategoryID), e.Title, at, at, rec.Sequence); err != nil {
			return fmt.Errorf("insert note %s: %w", e.NoteID, err)
		}
		return nil
	}

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT version FROM notes WHERE id = ?`, string(rec.AggregateID)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read note %s: %w", rec.AggregateID, err)
	}
	if rec.Sequence <= version {
		return nil
	}

	var (
		set  string
		args []any
	)
	switch e := event.(type) {
	case notes.NoteRenamed:
		set, args = "title = ?", []any{e.Title}
	case notes.NoteMoved:
		set, args = "category_id = ?", []any{nullID(e.CategoryID)}
	case notes.NoteContentUpdated:
		set, args = "content = ?", []any{e.Content}
	case notes.NotePinned:
		set = "pinned = 1"
	case notes.NoteUnpinned:
		set = "pinned = 0"
	case notes.NoteDeleted:
		set = "deleted = 1"
	default:
		return fmt.Errorf("notes projection cannot fold %s", rec.EventName)
	}

	args = append(args, sqlitedb.ToMillis(event.OccurredAt()), rec.Sequence, string(rec.AggregateID))
	if _, err := tx.ExecContext(ctx, `UPDATE notes SET `+set+`, updated_at = ?, version = ? WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update note %s: %w", rec.AggregateID, err)
	}
	return nil
}
