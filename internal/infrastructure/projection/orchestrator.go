package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// DefaultBatchSize is the number of records read from the store per page.
const DefaultBatchSize = 256

// Status describes how far a projector trails the event store.
type Status struct {
	Name       string `json:"name"`
	Position   int64  `json:"position"`
	Head       int64  `json:"head"`
	Lag        int64  `json:"lag"`
	Rejections int    `json:"rejections"`
}

// Rejection is a record a projector refused to fold.
type Rejection struct {
	Projection  string         `json:"projection"`
	Position    int64          `json:"position"`
	AggregateID eventsource.ID `json:"aggregate_id"`
	EventName   string         `json:"event_name"`
	Reason      string         `json:"reason"`
	RejectedAt  time.Time      `json:"rejected_at"`
}

// Orchestrator drives catch-up for a set of projectors.
type Orchestrator struct {
	mu         sync.Mutex
	db         *sql.DB
	store      eventsource.EventStore
	projectors []Projector
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the store page size.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides time.Now for watermark and rejection timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator over the read database db.
func NewOrchestrator(db *sql.DB, store eventsource.EventStore, projectors []Projector, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		db:         db,
		store:      store,
		projectors: projectors,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Projectors returns the registered projectors.
func (o *Orchestrator) Projectors() []Projector {
	return append([]Projector(nil), o.projectors...)
}

// CatchUp folds every record not yet processed by each projector and returns
// the number of records folded. Records rejected for tree violations are
// quarantined, the watermark moves past them, and the returned error wraps
// ErrTreeViolation once the remaining records have been folded.
func (o *Orchestrator) CatchUp(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	head, err := o.store.Head(ctx)
	if err != nil {
		return 0, fmt.Errorf("read event store head: %w", err)
	}
	for _, p := range o.projectors {
		pos, err := Watermark(ctx, o.db, p.Name())
		if err != nil {
			return 0, err
		}
		if pos > head {
			o.logger.Warn("read database is ahead of the event store; rebuilding",
				"projection", p.Name(),
				"watermark", pos,
				"head", head)
			if err := o.reset(ctx); err != nil {
				return 0, err
			}
			break
		}
	}
	return o.catchUp(ctx)
}

// Rebuild drops all projected rows and watermarks and folds the log from the start.
func (o *Orchestrator) Rebuild(ctx context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.reset(ctx); err != nil {
		return 0, err
	}
	return o.catchUp(ctx)
}

func (o *Orchestrator) reset(ctx context.Context) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range o.projectors {
		if err := p.Reset(ctx, tx); err != nil {
			return fmt.Errorf("reset %s: %w", p.Name(), err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projection_watermarks`); err != nil {
		return fmt.Errorf("reset watermarks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM projection_rejections`); err != nil {
		return fmt.Errorf("reset rejections: %w", err)
	}
	return tx.Commit()
}

func (o *Orchestrator) catchUp(ctx context.Context) (int, error) {
	var (
		total    int
		rejected int
	)
	for _, p := range o.projectors {
		n, r, err := o.catchUpProjector(ctx, p)
		total += n
		rejected += r
		if err != nil {
			return total, err
		}
	}
	if rejected > 0 {
		return total, fmt.Errorf("%w: %d record(s) rejected", ErrTreeViolation, rejected)
	}
	return total, nil
}

func (o *Orchestrator) catchUpProjector(ctx context.Context, p Projector) (folded, rejected int, err error) {
	after, err := Watermark(ctx, o.db, p.Name())
	if err != nil {
		return 0, 0, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return folded, rejected, err
		}
		records, err := o.store.ReadAll(ctx, after, o.batchSize)
		if err != nil {
			return folded, rejected, fmt.Errorf("read events after %d: %w", after, err)
		}
		if len(records) == 0 {
			return folded, rejected, nil
		}

		for _, rec := range records {
			if !p.Handles(rec.AggregateType) {
				continue
			}
			err := o.fold(ctx, p, rec)
			switch {
			case err == nil:
				folded++
			case errors.Is(err, ErrTreeViolation):
				if qErr := o.quarantine(ctx, p, rec, err); qErr != nil {
					return folded, rejected, qErr
				}
				rejected++
			default:
				return folded, rejected, fmt.Errorf("%s: fold %s at position %d: %w", p.Name(), rec.EventName, rec.Position, err)
			}
		}

		// Records this projector ignores still move its watermark.
		last := records[len(records)-1].Position
		if err := o.advance(ctx, p.Name(), last); err != nil {
			return folded, rejected, err
		}
		after = last
	}
}

func (o *Orchestrator) fold(ctx context.Context, p Projector, rec eventsource.Record) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fold: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := p.Apply(ctx, tx, rec); err != nil {
		return err
	}
	if err := advanceWatermark(ctx, tx, p.Name(), rec.Position, o.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *Orchestrator) quarantine(ctx context.Context, p Projector, rec eventsource.Record, cause error) error {
	o.logger.Warn("projection rejected event",
		"projection", p.Name(),
		"position", rec.Position,
		"aggregate_id", rec.AggregateID,
		"event", rec.EventName,
		"error", cause)

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quarantine: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := o.now()
	if _, err := tx.ExecContext(ctx, `INSERT INTO projection_rejections
		(projection, position, aggregate_id, event_name, reason, rejected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(projection, position) DO UPDATE SET reason = excluded.reason, rejected_at = excluded.rejected_at`,
		p.Name(), rec.Position, string(rec.AggregateID), rec.EventName, cause.Error(), sqlitedb.ToMillis(now),
	); err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	if err := advanceWatermark(ctx, tx, p.Name(), rec.Position, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (o *Orchestrator) advance(ctx context.Context, name string, position int64) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin watermark: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := advanceWatermark(ctx, tx, name, position, o.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// Status reports each projector's watermark against the store head.
func (o *Orchestrator) Status(ctx context.Context) ([]Status, error) {
	head, err := o.store.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("read event store head: %w", err)
	}
	out := make([]Status, 0, len(o.projectors))
	for _, p := range o.projectors {
		pos, err := Watermark(ctx, o.db, p.Name())
		if err != nil {
			return nil, err
		}
		var rejected int
		if err := o.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM projection_rejections WHERE projection = ?`, p.Name(),
		).Scan(&rejected); err != nil {
			return nil, fmt.Errorf("count rejections: %w", err)
		}
		lag := head - pos
		if lag < 0 {
			lag = 0
		}
		out = append(out, Status{Name: p.Name(), Position: pos, Head: head, Lag: lag, Rejections: rejected})
	}
	return out, nil
}

// Rejections lists quarantined records, oldest first.
func (o *Orchestrator) Rejections(ctx context.Context) ([]Rejection, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT projection, position, aggregate_id, event_name, reason, rejected_at
		FROM projection_rejections ORDER BY position, projection`)
	if err != nil {
		return nil, fmt.Errorf("query rejections: %w", err)
	}
	defer rows.Close()

	var out []Rejection
	for rows.Next() {
		var (
			r  Rejection
			id string
			at int64
		)
		if err := rows.Scan(&r.Projection, &r.Position, &id, &r.EventName, &r.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		r.AggregateID = eventsource.ID(id)
		r.RejectedAt = sqlitedb.FromMillis(at)
		out = append(out, r)
	}
	return out, rows.Err()
}
