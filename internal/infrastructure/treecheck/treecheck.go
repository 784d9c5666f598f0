// Package treecheck audits and repairs the parent-pointer tree tables.
//
// Diagnostics are read-only. Repairs are operator actions: promoting nodes to
// root keeps every row, while deleting rows requires an explicit confirmation
// count matching the rows to be removed.
package treecheck

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
)

// ErrConfirmationRequired is returned when a destructive repair is not confirmed.
var ErrConfirmationRequired = errors.New("destructive repair requires confirmation")

// Node is a tree row as seen by the checker.
type Node struct {
	ID       eventsource.ID `json:"id"`
	ParentID eventsource.ID `json:"parent_id"`
	Name     string         `json:"name"`
}

// Counts summarises a tree table.
type Counts struct {
	Total int `json:"total"`
	Roots int `json:"roots"`
}

// Report is the outcome of a full diagnostic pass.
type Report struct {
	Table          string             `json:"table"`
	SelfReferences []Node             `json:"self_references"`
	Orphans        []Node             `json:"orphans"`
	Cycles         [][]eventsource.ID `json:"cycles"`
	Counts         Counts             `json:"counts"`
}

// Healthy reports whether the table is a forest.
func (r *Report) Healthy() bool {
	return len(r.SelfReferences) == 0 && len(r.Orphans) == 0 && len(r.Cycles) == 0
}

// Repairable returns the ids the default repair would promote to root.
func (r *Report) Repairable() []eventsource.ID {
	ids := make([]eventsource.ID, 0, len(r.SelfReferences)+len(r.Orphans))
	for _, n := range r.SelfReferences {
		ids = append(ids, n.ID)
	}
	for _, n := range r.Orphans {
		ids = append(ids, n.ID)
	}
	return ids
}

// Checker inspects one tree table.
type Checker struct {
	db    *sql.DB
	table string
}

// New returns a checker for table, which must be a projection tree table.
func New(db *sql.DB, table string) (*Checker, error) {
	if !projection.IsTreeTable(table) {
		return nil, fmt.Errorf("%q is not a tree table", table)
	}
	return &Checker{db: db, table: table}, nil
}

// Table returns the checked table.
func (c *Checker) Table() string { return c.table }

// SelfReferences returns rows whose parent is the row itself.
func (c *Checker) SelfReferences(ctx context.Context) ([]Node, error) {
	return c.nodes(ctx, `SELECT id, parent_id, name FROM `+c.table+` WHERE parent_id = id ORDER BY id`)
}

// Orphans returns rows whose parent does not exist.
func (c *Checker) Orphans(ctx context.Context) ([]Node, error) {
	return c.nodes(ctx, `SELECT t.id, t.parent_id, t.name FROM `+c.table+` t
		LEFT JOIN `+c.table+` p ON p.id = t.parent_id
		WHERE t.parent_id IS NOT NULL AND p.id IS NULL
		ORDER BY t.id`)
}

// Counts returns the number of rows and of root rows.
func (c *Checker) Counts(ctx context.Context) (Counts, error) {
	var out Counts
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN parent_id IS NULL THEN 1 ELSE 0 END), 0) FROM `+c.table).
		Scan(&out.Total, &out.Roots)
	if err != nil {
		return Counts{}, fmt.Errorf("count %s: %w", c.table, err)
	}
	return out, nil
}

// Cycles returns every parent-pointer cycle longer than one node. Each cycle
// is listed starting from its smallest id.
func (c *Checker) Cycles(ctx context.Context) ([][]eventsource.ID, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, parent_id FROM `+c.table+` WHERE parent_id IS NOT NULL AND parent_id <> id`)
	if err != nil {
		return nil, fmt.Errorf("query %s edges: %w", c.table, err)
	}
	defer rows.Close()

	parent := map[eventsource.ID]eventsource.ID{}
	for rows.Next() {
		var id, p string
		if err := rows.Scan(&id, &p); err != nil {
			return nil, err
		}
		parent[eventsource.ID(id)] = eventsource.ID(p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return findCycles(parent), nil
}

func findCycles(parent map[eventsource.ID]eventsource.ID) [][]eventsource.ID {
	const (
		unvisited = iota
		walking
		done
	)
	starts := make([]eventsource.ID, 0, len(parent))
	for id := range parent {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	state := make(map[eventsource.ID]int, len(parent))
	var cycles [][]eventsource.ID
	for _, start := range starts {
		var path []eventsource.ID
		cur := start
		for {
			if state[cur] == done {
				break
			}
			if state[cur] == walking {
				i := 0
				for path[i] != cur {
					i++
				}
				cycles = append(cycles, rotate(path[i:]))
				break
			}
			state[cur] = walking
			path = append(path, cur)
			next, ok := parent[cur]
			if !ok {
				break
			}
			cur = next
		}
		for _, id := range path {
			state[id] = done
		}
	}
	return cycles
}

// rotate starts cycle at its smallest id so reports are stable.
func rotate(cycle []eventsource.ID) []eventsource.ID {
	first := 0
	for i, id := range cycle {
		if id < cycle[first] {
			first = i
		}
	}
	out := make([]eventsource.ID, 0, len(cycle))
	out = append(out, cycle[first:]...)
	return append(out, cycle[:first]...)
}

// Diagnose runs every check concurrently.
func (c *Checker) Diagnose(ctx context.Context) (*Report, error) {
	report := &Report{Table: c.table}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.SelfReferences, err = c.SelfReferences(gCtx)
		return err
	})
	g.Go(func() (err error) {
		report.Orphans, err = c.Orphans(gCtx)
		return err
	})
	g.Go(func() (err error) {
		report.Cycles, err = c.Cycles(gCtx)
		return err
	})
	g.Go(func() (err error) {
		report.Counts, err = c.Counts(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// PromoteToRoot clears the parent of each id, recomputes the paths of the
// promoted subtrees and returns the rows changed.
func (c *Checker) PromoteToRoot(ctx context.Context, ids ...eventsource.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin promote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args := inClause(`UPDATE `+c.table+` SET parent_id = NULL WHERE parent_id IS NOT NULL AND id IN `, ids)
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("promote %s rows: %w", c.table, err)
	}
	changed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := projection.Repath(ctx, tx, c.table, id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit promote: %w", err)
	}
	return changed, nil
}

// Repair promotes every self-referencing and orphaned row to root. Cycles
// are left for the operator to break with PromoteToRoot.
func (c *Checker) Repair(ctx context.Context) ([]eventsource.ID, error) {
	report, err := c.Diagnose(ctx)
	if err != nil {
		return nil, err
	}
	ids := report.Repairable()
	if _, err := c.PromoteToRoot(ctx, ids...); err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteRows removes the given rows. confirm must equal len(ids).
func (c *Checker) DeleteRows(ctx context.Context, ids []eventsource.ID, confirm int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if confirm != len(ids) {
		return 0, fmt.Errorf("%w: deleting %d row(s) from %s needs confirmation %d, got %d",
			ErrConfirmationRequired, len(ids), c.table, len(ids), confirm)
	}
	query, args := inClause(`DELETE FROM `+c.table+` WHERE id IN `, ids)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s rows: %w", c.table, err)
	}
	return res.RowsAffected()
}

func (c *Checker) nodes(ctx context.Context, query string) ([]Node, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.table, err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var (
			n      Node
			id     string
			parent sql.NullString
		)
		if err := rows.Scan(&id, &parent, &n.Name); err != nil {
			return nil, err
		}
		n.ID = eventsource.ID(id)
		n.ParentID = eventsource.ID(parent.String)
		out = append(out, n)
	}
	return out, rows.Err()
}

func inClause(prefix string, ids []eventsource.ID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return prefix + "(" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")", args
}
