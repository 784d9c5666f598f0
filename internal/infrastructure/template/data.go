package template

import (
	"context"
	"fmt"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/query"
)

// Source is the part of the query service an export reads.
type Source interface {
	Tree(ctx context.Context, kind query.TreeKind) ([]query.TreeNode, error)
	Notes(ctx context.Context, category eventsource.ID) ([]query.NoteView, error)
	Todos(ctx context.Context, f query.Filter) ([]query.TodoView, error)
}

// Section is one category with the items filed directly under it.
type Section struct {
	Category query.TreeNode
	// Depth is 1 for root categories.
	Depth int
	Notes []query.NoteView
	Todos []query.TodoView
}

// ExportData is the value templates render.
type ExportData struct {
	Title       string
	Kind        query.TreeKind
	GeneratedAt time.Time
	// Unfiled holds the items with no category; its Category is zero.
	Unfiled  Section
	Sections []Section
}

// Collect reads one tree and its items into export order: categories depth
// first, siblings by name.
func Collect(ctx context.Context, src Source, kind query.TreeKind, now time.Time) (*ExportData, error) {
	nodes, err := src.Tree(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("read %s tree: %w", kind, err)
	}

	data := &ExportData{Kind: kind, GeneratedAt: now.UTC()}
	switch kind {
	case query.TodoCategoryTree:
		data.Title = "Todos"
	default:
		data.Title = "Notes"
	}

	known := make(map[eventsource.ID]bool, len(nodes))
	for _, n := range nodes {
		if n.NodeType == projection.NodeCategory {
			known[n.ID] = true
		}
	}
	children := make(map[eventsource.ID][]query.TreeNode)
	for _, n := range nodes {
		if n.NodeType != projection.NodeCategory {
			continue
		}
		parent := n.ParentID
		if !known[parent] {
			// Orphans are exported as roots.
			parent = ""
		}
		children[parent] = append(children[parent], n)
	}

	fill := func(s *Section) error {
		var err error
		switch kind {
		case query.TodoCategoryTree:
			f := query.Filter{CategoryID: s.Category.ID, Uncategorized: s.Category.ID.IsZero()}
			s.Todos, err = src.Todos(ctx, f)
		default:
			s.Notes, err = src.Notes(ctx, s.Category.ID)
		}
		return err
	}

	if err := fill(&data.Unfiled); err != nil {
		return nil, fmt.Errorf("read unfiled items: %w", err)
	}

	visited := make(map[eventsource.ID]bool, len(known))
	var walk func(parent eventsource.ID, depth int) error
	walk = func(parent eventsource.ID, depth int) error {
		for _, n := range children[parent] {
			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			s := Section{Category: n, Depth: depth}
			if err := fill(&s); err != nil {
				return fmt.Errorf("read items of %s: %w", n.Path, err)
			}
			data.Sections = append(data.Sections, s)
			if err := walk(n.ID, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", 1); err != nil {
		return nil, err
	}
	return data, nil
}
