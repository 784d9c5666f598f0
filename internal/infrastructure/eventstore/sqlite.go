package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore/migrations"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// SQLiteStore persists the event log in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ eventsource.EventStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens the event database at path and applies migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(path, migrations.FS, ".")
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const selectRecord = `SELECT position, aggregate_id, aggregate_type, sequence, event_name, payload, occurred_at, stored_at FROM events`

// Load returns the stream for id.
func (s *SQLiteStore) Load(ctx context.Context, id eventsource.ID) ([]eventsource.Record, int64, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+` WHERE aggregate_id = ? ORDER BY sequence`, string(id))
	if err != nil {
		return nil, 0, fmt.Errorf("query stream %s: %w", id, err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, eventsource.ErrNotFound
	}
	return records, eventsource.Version(records), nil
}

// Append inserts events in one transaction after checking expectedVersion.
// A concurrent writer that slips past the version check trips the
// (aggregate_id, sequence) unique key and is reported as a conflict.
func (s *SQLiteStore) Append(ctx context.Context, aggregateType string, id eventsource.ID, expectedVersion int64, events []eventsource.Event) ([]eventsource.Record, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE aggregate_id = ?`, string(id),
	).Scan(&current); err != nil {
		return nil, fmt.Errorf("read stream version: %w", err)
	}
	if current != expectedVersion {
		return nil, &eventsource.ConflictError{AggregateID: id, Expected: expectedVersion, Actual: current}
	}

	records, err := eventsource.EncodeRecords(aggregateType, id, current, events, s.now())
	if err != nil {
		return nil, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events
		(aggregate_id, aggregate_type, sequence, event_name, payload, occurred_at, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		res, err := stmt.ExecContext(ctx,
			string(rec.AggregateID), rec.AggregateType, rec.Sequence, rec.EventName, []byte(rec.Payload),
			rec.OccurredAt.Format(time.RFC3339Nano), rec.StoredAt.Format(time.RFC3339Nano))
		if err != nil {
			if sqlitedb.IsConstraintError(err) {
				return nil, &eventsource.ConflictError{AggregateID: id, Expected: expectedVersion, Actual: rec.Sequence}
			}
			return nil, fmt.Errorf("insert event %s: %w", rec.EventName, err)
		}
		if rec.Position, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("read event position: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if sqlitedb.IsConstraintError(err) {
			return nil, fmt.Errorf("commit append: %w", eventsource.ErrVersionConflict)
		}
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return records, nil
}

// ReadAll returns up to limit records after the given position.
func (s *SQLiteStore) ReadAll(ctx context.Context, after int64, limit int) ([]eventsource.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectRecord+` WHERE position > ? ORDER BY position LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return scanRecords(rows)
}

// Head returns the position of the last record.
func (s *SQLiteStore) Head(ctx context.Context) (int64, error) {
	var head int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM events`).Scan(&head); err != nil {
		return 0, fmt.Errorf("query head: %w", err)
	}
	return head, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]eventsource.Record, error) {
	defer rows.Close()

	var out []eventsource.Record
	for rows.Next() {
		var (
			rec                  eventsource.Record
			id                   string
			payload              []byte
			occurredAt, storedAt string
		)
		if err := rows.Scan(&rec.Position, &id, &rec.AggregateType, &rec.Sequence, &rec.EventName,
			&payload, &occurredAt, &storedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.AggregateID = eventsource.ID(id)
		rec.Payload = payload

		var err error
		if rec.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return nil, fmt.Errorf("parse occurred_at: %w", err)
		}
		if rec.StoredAt, err = time.Parse(time.RFC3339Nano, storedAt); err != nil {
			return nil, fmt.Errorf("parse stored_at: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
