package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	"github.com/relicta-tech/notebase/internal/container"
)

var (
	categoryParent string
	categoryRoot   bool
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage notebook categories",
	Long: `Create, rename, move and delete notebook categories.

Categories form a tree. Names are unique among siblings, and a category can
never be moved under itself or one of its descendants.

Examples:
  notebase category create Work
  notebase category create Drafts --parent <work-id>
  notebase category move <drafts-id> --root`,
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryCreate,
}

var categoryRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a category",
	Args:  cobra.ExactArgs(2),
	RunE:  runCategoryRename,
}

var categoryMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Move a category under another parent",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryMove,
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category",
	Long: `Delete a category. Its child categories are promoted to the top level
of the tree; new notes can no longer be filed under it.`,
	Args: cobra.ExactArgs(1),
	RunE: runCategoryDelete,
}

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryCreateCmd, categoryRenameCmd, categoryMoveCmd, categoryDeleteCmd)

	categoryCreateCmd.Flags().StringVarP(&categoryParent, "parent", "p", "", "parent category id")
	categoryMoveCmd.Flags().StringVarP(&categoryParent, "parent", "p", "", "new parent category id")
	categoryMoveCmd.Flags().BoolVar(&categoryRoot, "root", false, "move to the top level")
	categoryMoveCmd.MarkFlagsMutuallyExclusive("parent", "root")
	categoryMoveCmd.MarkFlagsOneRequired("parent", "root")
}

func runCategoryCreate(cmd *cobra.Command, args []string) error {
	parent, err := parseOptionalID("parent", categoryParent)
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "category create", func(app *container.Container) func(context.Context, appnotes.CreateCategoryInput) (*appnotes.CategoryOutput, error) {
		return appnotes.NewCreateCategoryUseCase(app.Notes()).Execute
	}, appnotes.CreateCategoryInput{ParentID: parent, Name: args[0]})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Created category %q (%s)", c.Name, c.ID))
}

func runCategoryRename(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "category rename", func(app *container.Container) func(context.Context, appnotes.RenameCategoryInput) (*appnotes.CategoryOutput, error) {
		return appnotes.NewRenameCategoryUseCase(app.Notes()).Execute
	}, appnotes.RenameCategoryInput{ID: id, Name: args[1]})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Renamed category to %q", c.Name))
}

func runCategoryMove(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	parent, err := parseOptionalID("parent", categoryParent)
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "category move", func(app *container.Container) func(context.Context, appnotes.MoveCategoryInput) (*appnotes.CategoryOutput, error) {
		return appnotes.NewMoveCategoryUseCase(app.Notes()).Execute
	}, appnotes.MoveCategoryInput{ID: id, ParentID: parent})
	if err != nil {
		return err
	}
	if c.ParentID.IsZero() {
		return report(c, fmt.Sprintf("Moved %q to the top level", c.Name))
	}
	return report(c, fmt.Sprintf("Moved %q under %s", c.Name, c.ParentID))
}

func runCategoryDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "category delete", func(app *container.Container) func(context.Context, appnotes.DeleteCategoryInput) (*appnotes.CategoryOutput, error) {
		return appnotes.NewDeleteCategoryUseCase(app.Notes()).Execute
	}, appnotes.DeleteCategoryInput{ID: id})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Deleted category %q", c.Name))
}
