// Package query answers reads from the projected tables. Results are cached
// through an injected Cache which the post-command sync step invalidates.
package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/infrastructure/sqlitedb"
)

// Errors returned by the query service.
var (
	ErrNotFound = errors.New("not found")
	// ErrCycle means a tree walk revisited a node. Diagnose the table with treecheck.
	ErrCycle = errors.New("tree contains a cycle")
)

// maxDepth bounds any walk up a tree, independent of the visited set.
const maxDepth = 1024

// TreeKind selects one of the projected trees.
type TreeKind string

// Trees.
const (
	NoteTree         TreeKind = "notes"
	TodoCategoryTree TreeKind = "todos"
)

// Table returns the tree table for k.
func (k TreeKind) Table() (string, error) {
	switch k {
	case NoteTree, "":
		return projection.NoteTreeTable, nil
	case TodoCategoryTree:
		return projection.TodoCategoryTreeTable, nil
	default:
		return "", fmt.Errorf("unknown tree %q", string(k))
	}
}

// TreeNode is a row of a projected tree.
type TreeNode struct {
	ID        eventsource.ID `json:"id"`
	ParentID  eventsource.ID `json:"parent_id,omitempty"`
	Name      string         `json:"name"`
	NodeType  string         `json:"node_type"`
	Path      string         `json:"path"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TodoView is a projected todo.
type TodoView struct {
	ID          eventsource.ID `json:"id"`
	CategoryID  eventsource.ID `json:"category_id,omitempty"`
	Text        string         `json:"text"`
	Status      string         `json:"status"`
	Favorite    bool           `json:"favorite"`
	Tags        []string       `json:"tags"`
	Priority    string         `json:"priority"`
	DueDate     *time.Time     `json:"due_date,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Version     int64          `json:"version"`
}

// Completed reports whether the todo is checked off.
func (t TodoView) Completed() bool { return t.Status == "completed" }

// NoteView is a projected note.
type NoteView struct {
	ID         eventsource.ID `json:"id"`
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Pinned     bool           `json:"pinned"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Version    int64          `json:"version"`
}

// Filter narrows Todos.
type Filter struct {
	// CategoryID limits results to one category.
	CategoryID eventsource.ID `json:"category_id,omitempty"`
	// Uncategorized limits results to todos without a category.
	Uncategorized bool `json:"uncategorized,omitempty"`
	// Status is "active", "completed" or empty for both.
	Status string `json:"status,omitempty"`
	// Tag limits results to todos carrying the tag.
	Tag string `json:"tag,omitempty"`
	// FavoritesOnly limits results to favorites.
	FavoritesOnly bool `json:"favorites_only,omitempty"`
	// Priority limits results to one priority.
	Priority string `json:"priority,omitempty"`
	// Search matches a substring of the text, case-insensitively.
	Search string `json:"search,omitempty"`
}

// Service reads projections.
type Service struct {
	db     *sql.DB
	cache  Cache
	logger *slog.Logger
}

// NewService creates a query service. cache may be nil.
func NewService(db *sql.DB, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cache: cache, logger: logger}
}

// Invalidate drops cached results.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// cached serves key from the cache or computes it with load and stores it.
// The generation is read before load so a result computed across an
// invalidation is not stored. Cache failures degrade to an uncached read.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache == nil {
		return load()
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn("query cache read failed", "key", key, "error", err)
		return load()
	}
	var hit T
	found, err := s.cache.Get(ctx, gen, key, &hit)
	if err != nil {
		s.logger.Warn("query cache read failed", "key", key, "error", err)
	} else if found {
		return hit, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, gen, key, v); err != nil {
		s.logger.Warn("query cache write failed", "key", key, "error", err)
	}
	return v, nil
}

const selectNode = `SELECT id, parent_id, name, node_type, path, created_at, updated_at FROM `

// Tree returns every node of the tree ordered by path.
func (s *Service) Tree(ctx context.Context, kind TreeKind) ([]TreeNode, error) {
	table, err := kind.Table()
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "tree:"+table, func() ([]TreeNode, error) {
		return s.nodes(ctx, selectNode+table+` ORDER BY path, id`)
	})
}

// Children returns the direct children of parent, or the roots when parent is empty.
func (s *Service) Children(ctx context.Context, kind TreeKind, parent eventsource.ID) ([]TreeNode, error) {
	table, err := kind.Table()
	if err != nil {
		return nil, err
	}
	return cached(ctx, s, "children:"+table+":"+string(parent), func() ([]TreeNode, error) {
		if parent.IsZero() {
			return s.nodes(ctx, selectNode+table+` WHERE parent_id IS NULL ORDER BY node_type, name, id`)
		}
		return s.nodes(ctx, selectNode+table+` WHERE parent_id = ? ORDER BY node_type, name, id`, string(parent))
	})
}

// Node returns one tree node.
func (s *Service) Node(ctx context.Context, kind TreeKind, id eventsource.ID) (TreeNode, error) {
	table, err := kind.Table()
	if err != nil {
		return TreeNode{}, err
	}
	nodes, err := s.nodes(ctx, selectNode+table+` WHERE id = ?`, string(id))
	if err != nil {
		return TreeNode{}, err
	}
	if len(nodes) == 0 {
		return TreeNode{}, fmt.Errorf("%s node %s: %w", kind, id, ErrNotFound)
	}
	return nodes[0], nil
}

// Breadcrumb returns the nodes from the root down to id. A corrupted table
// that loops yields ErrCycle instead of walking forever.
func (s *Service) Breadcrumb(ctx context.Context, kind TreeKind, id eventsource.ID) ([]TreeNode, error) {
	var trail []TreeNode
	visited := map[eventsource.ID]bool{}
	cur := id
	for !cur.IsZero() {
		if visited[cur] || len(trail) >= maxDepth {
			return nil, fmt.Errorf("breadcrumb for %s: %w at %s", id, ErrCycle, cur)
		}
		visited[cur] = true

		node, err := s.Node(ctx, kind, cur)
		if errors.Is(err, ErrNotFound) && cur != id {
			// Dangling parent: the trail starts at the deepest known node.
			break
		}
		if err != nil {
			return nil, err
		}
		trail = append(trail, node)
		cur = node.ParentID
	}
	slices.Reverse(trail)
	return trail, nil
}

// Subtree returns id and all of its descendants in breadth-first order.
func (s *Service) Subtree(ctx context.Context, kind TreeKind, id eventsource.ID) ([]TreeNode, error) {
	root, err := s.Node(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	out := []TreeNode{root}
	visited := map[eventsource.ID]bool{id: true}
	for i := 0; i < len(out); i++ {
		children, err := s.Children(ctx, kind, out[i].ID)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if visited[c.ID] {
				return nil, fmt.Errorf("subtree of %s: %w at %s", id, ErrCycle, c.ID)
			}
			visited[c.ID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// IsDescendant reports whether candidate lies in the subtree rooted at ancestor
// (ancestor itself included).
func (s *Service) IsDescendant(ctx context.Context, kind TreeKind, ancestor, candidate eventsource.ID) (bool, error) {
	if candidate.IsZero() {
		return false, nil
	}
	trail, err := s.Breadcrumb(ctx, kind, candidate)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, n := range trail {
		if n.ID == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// SiblingNamed returns the category under parent named name (case-insensitive),
// ignoring except. It reports false when there is none.
func (s *Service) SiblingNamed(ctx context.Context, kind TreeKind, parent eventsource.ID, name string, except eventsource.ID) (TreeNode, bool, error) {
	children, err := s.Children(ctx, kind, parent)
	if err != nil {
		return TreeNode{}, false, err
	}
	name = strings.TrimSpace(name)
	for _, c := range children {
		if c.ID != except && c.NodeType == projection.NodeCategory && strings.EqualFold(c.Name, name) {
			return c, true, nil
		}
	}
	return TreeNode{}, false, nil
}

func (s *Service) nodes(ctx context.Context, query string, args ...any) ([]TreeNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tree: %w", err)
	}
	defer rows.Close()

	out := []TreeNode{}
	for rows.Next() {
		var (
			n                TreeNode
			id               string
			parent           sql.NullString
			created, updated int64
		)
		if err := rows.Scan(&id, &parent, &n.Name, &n.NodeType, &n.Path, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan tree node: %w", err)
		}
		n.ID = eventsource.ID(id)
		n.ParentID = eventsource.ID(parent.String)
		n.CreatedAt = sqlitedb.FromMillis(created)
		n.UpdatedAt = sqlitedb.FromMillis(updated)
		out = append(out, n)
	}
	return out, rows.Err()
}

const selectTodo = `SELECT id, category_id, text, status, favorite, tags, priority, due_date, completed_at, created_at, updated_at, version FROM todos`

// Todos returns the live todos matching f, favorites and higher priorities first.
func (s *Service) Todos(ctx context.Context, f Filter) ([]TodoView, error) {
	key, _ := json.Marshal(f)
	return cached(ctx, s, "todos:"+string(key), func() ([]TodoView, error) {
		where := []string{"status <> 'deleted'"}
		var args []any
		switch {
		case f.Uncategorized:
			where = append(where, "category_id IS NULL")
		case !f.CategoryID.IsZero():
			where = append(where, "category_id = ?")
			args = append(args, string(f.CategoryID))
		}
		if f.Status != "" {
			where = append(where, "status = ?")
			args = append(args, f.Status)
		}
		if f.Tag != "" {
			where = append(where, "EXISTS (SELECT 1 FROM json_each(todos.tags) WHERE json_each.value = ?)")
			args = append(args, strings.ToLower(strings.TrimPrefix(f.Tag, "#")))
		}
		if f.FavoritesOnly {
			where = append(where, "favorite = 1")
		}
		if f.Priority != "" {
			where = append(where, "priority = ?")
			args = append(args, f.Priority)
		}
		if f.Search != "" {
			where = append(where, "LOWER(text) LIKE ?")
			args = append(args, "%"+strings.ToLower(f.Search)+"%")
		}
		query := selectTodo + ` WHERE ` + strings.Join(where, " AND ") + `
			ORDER BY favorite DESC,
				CASE priority WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
				created_at, id`
		return s.todos(ctx, query, args...)
	})
}

// Todo returns one live todo.
func (s *Service) Todo(ctx context.Context, id eventsource.ID) (TodoView, error) {
	todos, err := s.todos(ctx, selectTodo+` WHERE id = ? AND status <> 'deleted'`, string(id))
	if err != nil {
		return TodoView{}, err
	}
	if len(todos) == 0 {
		return TodoView{}, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	return todos[0], nil
}

func (s *Service) todos(ctx context.Context, query string, args ...any) ([]TodoView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query todos: %w", err)
	}
	defer rows.Close()

	out := []TodoView{}
	for rows.Next() {
		var (
			t                TodoView
			id, tags         string
			category         sql.NullString
			due, completed   sql.NullInt64
			created, updated int64
		)
		if err := rows.Scan(&id, &category, &t.Text, &t.Status, &t.Favorite, &tags, &t.Priority,
			&due, &completed, &created, &updated, &t.Version); err != nil {
			return nil, fmt.Errorf("scan todo: %w", err)
		}
		t.ID = eventsource.ID(id)
		t.CategoryID = eventsource.ID(category.String)
		if t.Tags, err = projection.DecodeTags(tags); err != nil {
			return nil, err
		}
		if t.Tags == nil {
			t.Tags = []string{}
		}
		t.DueDate = optionalTime(due)
		t.CompletedAt = optionalTime(completed)
		t.CreatedAt = sqlitedb.FromMillis(created)
		t.UpdatedAt = sqlitedb.FromMillis(updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

const selectNote = `SELECT id, category_id, title, content, pinned, created_at, updated_at, version FROM notes`

// Notes returns the live notes filed under category, or at the root when
// category is empty. Pinned notes come first.
func (s *Service) Notes(ctx context.Context, category eventsource.ID) ([]NoteView, error) {
	return cached(ctx, s, "notes:"+string(category), func() ([]NoteView, error) {
		if category.IsZero() {
			return s.notes(ctx, selectNote+` WHERE deleted = 0 AND category_id IS NULL ORDER BY pinned DESC, title, id`)
		}
		return s.notes(ctx, selectNote+` WHERE deleted = 0 AND category_id = ? ORDER BY pinned DESC, title, id`, string(category))
	})
}

// Note returns one live note.
func (s *Service) Note(ctx context.Context, id eventsource.ID) (NoteView, error) {
	notes, err := s.notes(ctx, selectNote+` WHERE id = ? AND deleted = 0`, string(id))
	if err != nil {
		return NoteView{}, err
	}
	if len(notes) == 0 {
		return NoteView{}, fmt.Errorf("note %s: %w", id, ErrNotFound)
	}
	return notes[0], nil
}

func (s *Service) notes(ctx context.Context, query string, args ...any) ([]NoteView, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	out := []NoteView{}
	for rows.Next() {
		var (
			n                NoteView
			id               string
			category         sql.NullString
			created, updated int64
		)
		if err := rows.Scan(&id, &category, &n.Title, &n.Content, &n.Pinned, &created, &updated, &n.Version); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.ID = eventsource.ID(id)
		n.CategoryID = eventsource.ID(category.String)
		n.CreatedAt = sqlitedb.FromMillis(created)
		n.UpdatedAt = sqlitedb.FromMillis(updated)
		out = append(out, n)
	}
	return out, rows.Err()
}

func optionalTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := sqlitedb.FromMillis(v.Int64)
	return &t
}
