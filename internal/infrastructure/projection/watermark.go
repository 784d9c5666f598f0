package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Watermark returns the last position processed by projection, 0 if none.
func Watermark(ctx context.Context, q querier, projection string) (int64, error) {
	var pos int64
	err := q.QueryRowContext(ctx,
		`SELECT position FROM projection_watermarks WHERE projection = ?`, projection,
	).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark %s: %w", projection, err)
	}
	return pos, nil
}

// advanceWatermark moves the watermark forward. It never moves backwards.
func advanceWatermark(ctx context.Context, tx *sql.Tx, projection string, position int64, now time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projection_watermarks (projection, position, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(projection) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at
		WHERE excluded.position > projection_watermarks.position`,
		projection, position, sqlitedb.ToMillis(now))
	if err != nil {
		return fmt.Errorf("advance watermark %s to %d: %w", projection, position, err)
	}
	return nil
}
