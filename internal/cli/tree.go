package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/treecheck"
	"github.com/relicta-tech/notebase/internal/query"
)

var (
	treeTodos     bool
	treeFrom      string
	treePromote   []string
	treeDelete    []string
	treeYesDelete int
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show and maintain category trees",
	Long: `Show the notebook tree (or the todo category tree with --todos) and
check or repair its integrity in the read database.

Repairs only touch the read database. Rebuilding projections from the
journal ('notebase projections rebuild') undoes them.`,
}

var treeShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the tree",
	Args:  cobra.NoArgs,
	RunE:  runTreeShow,
}

var treeCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Look for self-references, orphans and cycles",
	Args:  cobra.NoArgs,
	RunE:  runTreeCheck,
}

var treeRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair the tree",
	Long: `Repair the tree in the read database.

Without flags, self-referencing and orphaned rows are promoted to the top
level. Cycles are never broken automatically: pick the row to promote with
--promote. Rows can be deleted with --delete, which requires --yes-delete
set to the number of rows being deleted.

Examples:
  notebase tree repair
  notebase tree repair --promote <id>
  notebase tree repair --delete <id1> --delete <id2> --yes-delete 2`,
	Args: cobra.NoArgs,
	RunE: runTreeRepair,
}

func init() {
	rootCmd.AddCommand(treeCmd)
	treeCmd.AddCommand(treeShowCmd, treeCheckCmd, treeRepairCmd)

	treeCmd.PersistentFlags().BoolVar(&treeTodos, "todos", false, "use the todo category tree")
	treeShowCmd.Flags().StringVar(&treeFrom, "from", "", "only the subtree under this node")
	treeRepairCmd.Flags().StringSliceVar(&treePromote, "promote", nil, "promote these rows to the top level")
	treeRepairCmd.Flags().StringSliceVar(&treeDelete, "delete", nil, "delete these rows")
	treeRepairCmd.Flags().IntVar(&treeYesDelete, "yes-delete", 0, "confirm deleting this many rows")
}

func treeKind() query.TreeKind {
	if treeTodos {
		return query.TodoCategoryTree
	}
	return query.NoteTree
}

func parseIDs(label string, raw []string) ([]eventsource.ID, error) {
	ids := make([]eventsource.ID, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(label, r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runTreeShow(cmd *cobra.Command, args []string) error {
	from, err := parseOptionalID("node", treeFrom)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		var nodes []query.TreeNode
		if from.IsZero() {
			nodes, err = app.Queries().Tree(ctx, treeKind())
		} else {
			nodes, err = app.Queries().Subtree(ctx, treeKind(), from)
		}
		if err != nil {
			return queryError(err, "tree show")
		}
		if IsJSONOutput() {
			return printJSONOutput(nodes)
		}
		if len(nodes) == 0 {
			printSubtle("The tree is empty")
			return nil
		}
		fmt.Fprint(out(), renderTree(nodes, from))
		return nil
	})
}

// renderTree draws nodes as an indented outline starting at root (empty
// for the top level). Nodes unreachable from root are not drawn.
func renderTree(nodes []query.TreeNode, root eventsource.ID) string {
	children := map[eventsource.ID][]query.TreeNode{}
	byID := map[eventsource.ID]bool{}
	for _, n := range nodes {
		byID[n.ID] = true
	}
	for _, n := range nodes {
		parent := n.ParentID
		if n.ID == root || !byID[parent] {
			parent = ""
		}
		children[parent] = append(children[parent], n)
	}

	var b strings.Builder
	seen := map[eventsource.ID]bool{}
	var walk func(parent eventsource.ID, prefix string)
	walk = func(parent eventsource.ID, prefix string) {
		kids := children[parent]
		for i, n := range kids {
			if seen[n.ID] {
				continue
			}
			seen[n.ID] = true

			branch, next := "├── ", "│   "
			if i == len(kids)-1 {
				branch, next = "└── ", "    "
			}
			label := n.Name
			if n.NodeType == "note" {
				label = styles.Subtle.Render(n.Name)
			} else {
				label = styles.Bold.Render(n.Name)
			}
			fmt.Fprintf(&b, "%s%s%s  %s\n", prefix, branch, label, styles.Subtle.Render(n.ID.Short()))
			walk(n.ID, prefix+next)
		}
	}
	walk("", "")
	return b.String()
}

func runTreeCheck(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		checker, err := app.TreeChecker(treeKind())
		if err != nil {
			return err
		}
		report, err := checker.Diagnose(ctx)
		if err != nil {
			return rperrors.StorageWrap(err, "tree check", "failed to inspect the tree")
		}
		if IsJSONOutput() {
			if err := printJSONOutput(report); err != nil {
				return err
			}
		} else {
			printReport(report)
		}
		if !report.Healthy() {
			return rperrors.New(rperrors.KindIntegrity, "tree integrity problems found; see `notebase tree repair --help`")
		}
		return nil
	})
}

func printReport(r *treecheck.Report) {
	printTitle(fmt.Sprintf("Tree %s: %d node(s), %d at the top level", r.Table, r.Counts.Total, r.Counts.Roots))
	if r.Healthy() {
		printSuccess("No problems found")
		return
	}
	for _, n := range r.SelfReferences {
		printError(fmt.Sprintf("%s %q is its own parent", n.ID, n.Name))
	}
	for _, n := range r.Orphans {
		printError(fmt.Sprintf("%s %q points at missing parent %s", n.ID, n.Name, n.ParentID))
	}
	for _, cycle := range r.Cycles {
		parts := make([]string, 0, len(cycle)+1)
		for _, id := range cycle {
			parts = append(parts, id.String())
		}
		parts = append(parts, cycle[0].String())
		printError("cycle: " + strings.Join(parts, " → "))
	}
}

func runTreeRepair(cmd *cobra.Command, args []string) error {
	promote, err := parseIDs("node", treePromote)
	if err != nil {
		return err
	}
	remove, err := parseIDs("node", treeDelete)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		const op = "tree repair"
		checker, err := app.TreeChecker(treeKind())
		if err != nil {
			return err
		}
		// Cached reads must not outlive the rows they were built from.
		defer func() {
			if err := app.Queries().Invalidate(ctx); err != nil {
				logger.Warn("failed to invalidate query cache", "error", err)
			}
		}()

		switch {
		case len(remove) > 0:
			n, err := checker.DeleteRows(ctx, remove, treeYesDelete)
			if errors.Is(err, treecheck.ErrConfirmationRequired) {
				return rperrors.ValidationWrap(err, op,
					fmt.Sprintf("deleting %d row(s) needs --yes-delete %d", len(remove), len(remove)))
			}
			if err != nil {
				return rperrors.StorageWrap(err, op, "failed to delete rows")
			}
			printSuccess(fmt.Sprintf("Deleted %d row(s)", n))
			return nil

		case len(promote) > 0:
			n, err := checker.PromoteToRoot(ctx, promote...)
			if err != nil {
				return rperrors.StorageWrap(err, op, "failed to promote rows")
			}
			printSuccess(fmt.Sprintf("Promoted %d row(s) to the top level", n))
			return nil

		default:
			ids, err := checker.Repair(ctx)
			if err != nil {
				return rperrors.StorageWrap(err, op, "failed to repair the tree")
			}
			if len(ids) == 0 {
				printSuccess("Nothing to repair")
			} else {
				printSuccess(fmt.Sprintf("Promoted %d row(s) to the top level", len(ids)))
			}
			report, err := checker.Diagnose(ctx)
			if err == nil && len(report.Cycles) > 0 {
				printWarning(fmt.Sprintf("%d cycle(s) remain; break them with --promote", len(report.Cycles)))
			}
			return nil
		}
	})
}
