package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/query"
	"github.com/relicta-tech/notebase/internal/ui"
)

var treeBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse a tree interactively",
	Long: `Open a full-screen browser over the notebook tree, or the todo
category tree with --todos. The journal is opened read-only.`,
	Args: cobra.NoArgs,
	RunE: runTreeBrowse,
}

func init() {
	treeCmd.AddCommand(treeBrowseCmd)
}

func runTreeBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openReadOnlyApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	kind := treeKind()
	title := "Notebook"
	if kind == query.TodoCategoryTree {
		title = "Todo categories"
	}
	return ui.RunBrowser(ctx, title, &treeSource{queries: app.Queries(), kind: kind})
}

// treeSource feeds the browser from the read model.
type treeSource struct {
	queries *query.Service
	kind    query.TreeKind
}

func (s *treeSource) Children(ctx context.Context, parent string) ([]ui.Node, error) {
	nodes, err := s.queries.Children(ctx, s.kind, eventsource.ID(parent))
	if err != nil {
		return nil, queryError(err, "tree browse")
	}
	out := make([]ui.Node, len(nodes))
	for i, n := range nodes {
		out[i] = ui.Node{
			ID:       n.ID.String(),
			Name:     n.Name,
			Category: n.NodeType == projection.NodeCategory,
			Kind:     n.NodeType,
		}
	}
	return out, nil
}

func (s *treeSource) Detail(ctx context.Context, node ui.Node) (string, error) {
	id := eventsource.ID(node.ID)
	if !node.Category {
		note, err := s.queries.Note(ctx, id)
		if err != nil {
			return "", queryError(err, "tree browse")
		}
		pin := ""
		if note.Pinned {
			pin = " (pinned)"
		}
		return fmt.Sprintf("%s%s\nupdated %s\n\n%s", note.Title, pin,
			note.UpdatedAt.Local().Format("2006-01-02 15:04"), note.Content), nil
	}

	crumbs, err := s.queries.Breadcrumb(ctx, s.kind, id)
	if err != nil {
		return "", queryError(err, "tree browse")
	}
	names := make([]string, len(crumbs))
	for i, c := range crumbs {
		names[i] = c.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nid %s\n\n", strings.Join(names, projection.PathSeparator), id.Short())

	if s.kind == query.TodoCategoryTree {
		todos, err := s.queries.Todos(ctx, query.Filter{CategoryID: id})
		if err != nil {
			return "", queryError(err, "tree browse")
		}
		if len(todos) == 0 {
			b.WriteString("No todos")
		}
		for _, t := range todos {
			box := "[ ]"
			if t.Status == "completed" {
				box = "[x]"
			}
			fmt.Fprintf(&b, "%s %s\n", box, t.Text)
		}
		return b.String(), nil
	}

	notes, err := s.queries.Notes(ctx, id)
	if err != nil {
		return "", queryError(err, "tree browse")
	}
	fmt.Fprintf(&b, "%d note(s)", len(notes))
	return b.String(), nil
}
