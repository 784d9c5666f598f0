package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/container"
)

var (
	todoCategoryParent string
	todoCategoryRoot   bool
)

var todoCategoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"cat"},
	Short:   "Manage todo categories",
	Long: `Create, rename, move and delete todo categories.

Todo categories form their own tree, independent of the notebook. The same
rules apply: names are unique among siblings and no category can be moved
under its own descendants.`,
}

var todoCategoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a todo category",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoCategoryCreate,
}

var todoCategoryRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a todo category",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoCategoryRename,
}

var todoCategoryMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "Move a todo category under another parent",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoCategoryMove,
}

var todoCategoryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a todo category",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoCategoryDelete,
}

func init() {
	todoCmd.AddCommand(todoCategoryCmd)
	todoCategoryCmd.AddCommand(todoCategoryCreateCmd, todoCategoryRenameCmd, todoCategoryMoveCmd, todoCategoryDeleteCmd)

	todoCategoryCreateCmd.Flags().StringVarP(&todoCategoryParent, "parent", "p", "", "parent category id")
	todoCategoryMoveCmd.Flags().StringVarP(&todoCategoryParent, "parent", "p", "", "new parent category id")
	todoCategoryMoveCmd.Flags().BoolVar(&todoCategoryRoot, "root", false, "move to the top level")
	todoCategoryMoveCmd.MarkFlagsMutuallyExclusive("parent", "root")
	todoCategoryMoveCmd.MarkFlagsOneRequired("parent", "root")
}

func runTodoCategoryCreate(cmd *cobra.Command, args []string) error {
	parent, err := parseOptionalID("parent", todoCategoryParent)
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "todo category create", func(app *container.Container) func(context.Context, apptodos.CreateCategoryInput) (*apptodos.CategoryOutput, error) {
		return apptodos.NewCreateCategoryUseCase(app.Todos()).Execute
	}, apptodos.CreateCategoryInput{ParentID: parent, Name: args[0]})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Created todo category %q (%s)", c.Name, c.ID))
}

func runTodoCategoryRename(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "todo category rename", func(app *container.Container) func(context.Context, apptodos.RenameCategoryInput) (*apptodos.CategoryOutput, error) {
		return apptodos.NewRenameCategoryUseCase(app.Todos()).Execute
	}, apptodos.RenameCategoryInput{ID: id, Name: args[1]})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Renamed todo category to %q", c.Name))
}

func runTodoCategoryMove(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	parent, err := parseOptionalID("parent", todoCategoryParent)
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "todo category move", func(app *container.Container) func(context.Context, apptodos.MoveCategoryInput) (*apptodos.CategoryOutput, error) {
		return apptodos.NewMoveCategoryUseCase(app.Todos()).Execute
	}, apptodos.MoveCategoryInput{ID: id, ParentID: parent})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Moved todo category %q", c.Name))
}

func runTodoCategoryDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID("category", args[0])
	if err != nil {
		return err
	}
	c, err := dispatch(cmd, "todo category delete", func(app *container.Container) func(context.Context, apptodos.DeleteCategoryInput) (*apptodos.CategoryOutput, error) {
		return apptodos.NewDeleteCategoryUseCase(app.Todos()).Execute
	}, apptodos.DeleteCategoryInput{ID: id})
	if err != nil {
		return err
	}
	return report(c, fmt.Sprintf("Deleted todo category %q", c.Name))
}
