package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// PathSeparator joins ancestor names in the materialized path.
const PathSeparator = " / "

// Node types stored in tree tables.
const (
	NodeCategory = "category"
	NodeNote     = "note"
)

// ChangeKind is the structural effect of an event on a tree.
type ChangeKind int

// Tree change kinds.
const (
	ChangeNone ChangeKind = iota
	ChangeUpsert
	ChangeRename
	ChangeMove
	ChangeDelete
	ChangeTouch
)

// TreeChange is what a tree projector needs to know about one event.
type TreeChange struct {
	Kind     ChangeKind
	ID       eventsource.ID
	ParentID eventsource.ID
	Name     string
	NodeType string
	At       time.Time
}

// TreeExtractor maps a record onto a tree change.
type TreeExtractor func(rec eventsource.Record) (TreeChange, error)

// TreeProjector maintains a parent-pointer tree table. Every create and
// reparent is checked so that the table stays a forest.
type TreeProjector struct {
	name    string
	table   string
	types   map[string]bool
	extract TreeExtractor
	logger  *slog.Logger
}

// NewTreeProjector creates a projector writing table from records of the
// given aggregate types.
func NewTreeProjector(name, table string, aggregateTypes []string, extract TreeExtractor, logger *slog.Logger) *TreeProjector {
	if !IsTreeTable(table) {
		panic(fmt.Sprintf("projection: %q is not a tree table", table))
	}
	if logger == nil {
		logger = slog.Default()
	}
	types := make(map[string]bool, len(aggregateTypes))
	for _, t := range aggregateTypes {
		types[t] = true
	}
	return &TreeProjector{name: name, table: table, types: types, extract: extract, logger: logger}
}

// Name implements Projector.
func (p *TreeProjector) Name() string { return p.name }

// Table returns the tree table written by p.
func (p *TreeProjector) Table() string { return p.table }

// Handles implements Projector.
func (p *TreeProjector) Handles(aggregateType string) bool { return p.types[aggregateType] }

// Reset implements Projector.
func (p *TreeProjector) Reset(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+p.table)
	return err
}

// Apply implements Projector.
func (p *TreeProjector) Apply(ctx context.Context, tx *sql.Tx, rec eventsource.Record) error {
	change, err := p.extract(rec)
	if err != nil {
		return err
	}
	switch change.Kind {
	case ChangeUpsert:
		return p.upsert(ctx, tx, change)
	case ChangeRename:
		return p.rename(ctx, tx, change)
	case ChangeMove:
		return p.move(ctx, tx, change)
	case ChangeDelete:
		return p.remove(ctx, tx, change)
	case ChangeTouch:
		_, err := tx.ExecContext(ctx, `UPDATE `+p.table+` SET updated_at = ? WHERE id = ?`,
			sqlitedb.ToMillis(change.At), string(change.ID))
		return err
	default:
		return nil
	}
}

func (p *TreeProjector) upsert(ctx context.Context, tx *sql.Tx, c TreeChange) error {
	parent, err := p.checkParent(ctx, tx, c.ID, c.ParentID)
	if err != nil {
		return err
	}
	at := sqlitedb.ToMillis(c.At)
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+p.table+`
		(id, parent_id, name, node_type, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			node_type = excluded.node_type,
			updated_at = excluded.updated_at`,
		string(c.ID), nullID(parent), c.Name, c.NodeType, c.Name, at, at,
	); err != nil {
		return fmt.Errorf("upsert %s %s: %w", p.table, c.ID, err)
	}
	return p.repath(ctx, tx, c.ID)
}

func (p *TreeProjector) rename(ctx context.Context, tx *sql.Tx, c TreeChange) error {
	res, err := tx.ExecContext(ctx, `UPDATE `+p.table+` SET name = ?, updated_at = ? WHERE id = ?`,
		c.Name, sqlitedb.ToMillis(c.At), string(c.ID))
	if err != nil {
		return fmt.Errorf("rename %s %s: %w", p.table, c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.logger.Warn("rename of unknown tree node ignored", "table", p.table, "id", c.ID)
		return nil
	}
	return p.repath(ctx, tx, c.ID)
}

func (p *TreeProjector) move(ctx context.Context, tx *sql.Tx, c TreeChange) error {
	parent, err := p.checkParent(ctx, tx, c.ID, c.ParentID)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+p.table+` SET parent_id = ?, updated_at = ? WHERE id = ?`,
		nullID(parent), sqlitedb.ToMillis(c.At), string(c.ID))
	if err != nil {
		return fmt.Errorf("move %s %s: %w", p.table, c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p.logger.Warn("move of unknown tree node ignored", "table", p.table, "id", c.ID)
		return nil
	}
	return p.repath(ctx, tx, c.ID)
}

// remove deletes the node and promotes its direct children to root, so the
// table never holds an orphan.
func (p *TreeProjector) remove(ctx context.Context, tx *sql.Tx, c TreeChange) error {
	children, err := p.childIDs(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		p.logger.Warn("promoting children of deleted tree node to root",
			"table", p.table, "id", c.ID, "children", len(children))
	}
	if _, err := tx.ExecContext(ctx, `UPDATE `+p.table+` SET parent_id = NULL, updated_at = ? WHERE parent_id = ?`,
		sqlitedb.ToMillis(c.At), string(c.ID)); err != nil {
		return fmt.Errorf("promote children of %s: %w", c.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE id = ?`, string(c.ID)); err != nil {
		return fmt.Errorf("delete %s %s: %w", p.table, c.ID, err)
	}
	for _, child := range children {
		if child == c.ID {
			continue
		}
		if err := p.repath(ctx, tx, child); err != nil {
			return err
		}
	}
	return nil
}

// checkParent validates a proposed parent for id. A parent that does not
// exist yields a root node; a parent that is id itself or one of its
// descendants is a violation.
func (p *TreeProjector) checkParent(ctx context.Context, tx *sql.Tx, id, parent eventsource.ID) (eventsource.ID, error) {
	if parent.IsZero() {
		return "", nil
	}
	if parent == id {
		return "", violation("%s %s cannot be its own parent", p.table, id)
	}

	visited := map[eventsource.ID]bool{}
	cur := parent
	for !cur.IsZero() {
		if cur == id {
			return "", violation("%s %s cannot move under its descendant %s", p.table, id, parent)
		}
		if visited[cur] {
			return "", violation("%s already contains a cycle through %s", p.table, cur)
		}
		visited[cur] = true

		next, found, err := p.parentOf(ctx, tx, cur)
		if err != nil {
			return "", err
		}
		if !found {
			if cur == parent {
				p.logger.Warn("parent not projected; storing node as root",
					"table", p.table, "id", id, "parent_id", parent)
				return "", nil
			}
			break
		}
		cur = next
	}
	return parent, nil
}

func (p *TreeProjector) parentOf(ctx context.Context, tx *sql.Tx, id eventsource.ID) (eventsource.ID, bool, error) {
	var parent sql.NullString
	err := tx.QueryRowContext(ctx, `SELECT parent_id FROM `+p.table+` WHERE id = ?`, string(id)).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read parent of %s: %w", id, err)
	}
	return eventsource.ID(parent.String), true, nil
}

func (p *TreeProjector) childIDs(ctx context.Context, tx *sql.Tx, id eventsource.ID) ([]eventsource.ID, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM `+p.table+` WHERE parent_id = ? ORDER BY id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("query children of %s: %w", id, err)
	}
	defer rows.Close()
	var out []eventsource.ID
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		out = append(out, eventsource.ID(child))
	}
	return out, rows.Err()
}

func (p *TreeProjector) repath(ctx context.Context, tx *sql.Tx, id eventsource.ID) error {
	return Repath(ctx, tx, table, id)
}

// Repath recomputes the materialized path of id and its whole subtree in
// table. A missing row is not an error.
func Repath(ctx context.Context, tx *sql.Tx, table string, id eventsource.ID) error {
	var (
		name   string
		parent sql.NullString
	)
	err := tx.QueryRowContext(ctx, `SELECT name, parent_id FROM `+table+` WHERE id = ?`, string(id)).Scan(&name, &parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s %s: %w", table, id, err)
	}

	path := name
	if parent.Valid {
		var parentPath string
		err := tx.QueryRowContext(ctx, `SELECT path FROM `+table+` WHERE id = ?`, parent.String).Scan(&parentPath)
		switch {
		case err == nil:
			path = parentPath + PathSeparator + name
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("read path of %s: %w", parent.String, err)
		}
	}

	type pending struct {
		id   eventsource.ID
		path string
	}
	queue := []pending{{id, path}}
	visited := map[eventsource.ID]bool{}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.id] {
			continue
		}
		visited[n.id] = true

		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET path = ? WHERE id = ?`, n.path, string(n.id)); err != nil {
			return fmt.Errorf("update path of %s: %w", n.id, err)
		}
		rows, err := tx.QueryContext(ctx, `SELECT id, name FROM `+table+` WHERE parent_id = ?`, string(n.id))
		if err != nil {
			return fmt.Errorf("query children of %s: %w", n.id, err)
		}
		for rows.Next() {
			var childID, childName string
			if err := rows.Scan(&childID, &childName); err != nil {
				_ = rows.Close()
				return err
			}
			queue = append(queue, pending{eventsource.ID(childID), n.path + PathSeparator + childName})
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

// JoinPath renders names as a materialized path.
func JoinPath(names ...string) string {
	return strings.Join(names, PathSeparator)
}
