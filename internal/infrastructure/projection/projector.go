// Package projection folds the event log into the SQLite read database.
//
// Each Projector owns a set of read tables and a watermark: the global
// position of the last record it has processed. The Orchestrator advances
// watermarks in the same transaction as the row writes, so a failed fold is
// simply retried on the next catch-up.
package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection/migrations"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// Read table names.
const (
	NoteTreeTable         = "note_tree"
	TodoCategoryTreeTable = "todo_category_tree"
	TodosTable            = "todos"
	NotesTable            = "notes"
)

// ErrTreeViolation is returned when folding a record would write a
// self-reference or a cycle into a tree table.
var ErrTreeViolation = errors.New("tree integrity violation")

// Projector folds records into read tables.
type Projector interface {
	// Name identifies the projector's watermark.
	Name() string
	// Handles reports whether records of aggregateType concern this projector.
	Handles(aggregateType string) bool
	// Apply folds rec inside tx. Applying the same record twice must leave
	// the same rows as applying it once.
	Apply(ctx context.Context, tx *sql.Tx, rec eventsource.Record) error
	// Reset empties the projector's tables.
	Reset(ctx context.Context, tx *sql.Tx) error
}

// OpenReadDB opens the read database at path and applies the projection schema.
func OpenReadDB(path string) (*sql.DB, error) {
	db, err := sqlitedb.Open(path, migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open read database: %w", err)
	}
	return db, nil
}

// IsTreeTable reports whether name is one of the tree tables.
func IsTreeTable(name string) bool {
	return name == NoteTreeTable || name == TodoCategoryTreeTable
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTreeViolation, fmt.Sprintf(format, args...))
}

func nullID(id eventsource.ID) any {
	if id.IsZero() {
		return nil
	}
	return string(id)
}
