package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/query"
)

var (
	todoCategory      string
	todoUncategorized bool
	todoPriority      string
	todoDue           string
	todoTags          []string
	todoFavorite      bool
	todoFavoriteOff   bool

	todoListStatus    string
	todoListTag       string
	todoListFavorites bool
	todoListPriority  string
	todoListSearch    string
)

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage todos",
	Long: `Add, edit, complete and organize todos.

Examples:
  notebase todo add "Water plants" --due 2026-05-01 --tag home --priority high
  notebase todo done <id>
  notebase todo list --status active --tag home`,
}

var todoAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a todo",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoAdd,
}

var todoEditCmd = &cobra.Command{
	Use:   "edit <id> <text>",
	Short: "Change a todo's text",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoEdit,
}

var todoDoneCmd = &cobra.Command{
	Use:     "done <id>",
	Aliases: []string{"toggle"},
	Short:   "Toggle completion",
	Args:    cobra.ExactArgs(1),
	RunE:    runTodoDone,
}

var todoFavoriteCmd = &cobra.Command{
	Use:   "favorite <id>",
	Short: "Toggle the favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoFavorite,
}

var todoTagCmd = &cobra.Command{
	Use:   "tag <id> <tag>",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTodoTag(cmd, args, true)
	},
}

var todoUntagCmd = &cobra.Command{
	Use:   "untag <id> <tag>",
	Short: "Remove a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTodoTag(cmd, args, false)
	},
}

var todoDueCmd = &cobra.Command{
	Use:   "due <id> <YYYY-MM-DD|none>",
	Short: "Set or clear the due date",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoDue,
}

var todoPriorityCmd = &cobra.Command{
	Use:   "priority <id> <none|low|medium|high|urgent>",
	Short: "Set the priority",
	Args:  cobra.ExactArgs(2),
	RunE:  runTodoPriority,
}

var todoMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "File a todo under another category",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoMove,
}

var todoDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a todo",
	Args:  cobra.ExactArgs(1),
	RunE:  runTodoDelete,
}

var todoListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List todos",
	Args:    cobra.NoArgs,
	RunE:    runTodoList,
}

func init() {
	rootCmd.AddCommand(todoCmd)
	todoCmd.AddCommand(todoAddCmd, todoEditCmd, todoDoneCmd, todoFavoriteCmd, todoTagCmd, todoUntagCmd,
		todoDueCmd, todoPriorityCmd, todoMoveCmd, todoDeleteCmd, todoListCmd)

	todoAddCmd.Flags().StringVar(&todoCategory, "category", "", "todo category id")
	todoAddCmd.Flags().StringVar(&todoPriority, "priority", "", "priority (low, medium, high, urgent)")
	todoAddCmd.Flags().StringVar(&todoDue, "due", "", "due date (YYYY-MM-DD)")
	todoAddCmd.Flags().StringSliceVarP(&todoTags, "tag", "t", nil, "tag (repeatable)")
	todoAddCmd.Flags().BoolVar(&todoFavorite, "favorite", false, "mark as favorite")

	todoFavoriteCmd.Flags().BoolVar(&todoFavorite, "on", false, "set instead of toggling")
	todoFavoriteCmd.Flags().BoolVar(&todoFavoriteOff, "off", false, "clear instead of toggling")
	todoFavoriteCmd.MarkFlagsMutuallyExclusive("on", "off")

	todoMoveCmd.Flags().StringVar(&todoCategory, "category", "", "target category id")
	todoMoveCmd.Flags().BoolVar(&todoUncategorized, "uncategorized", false, "remove from its category")
	todoMoveCmd.MarkFlagsMutuallyExclusive("category", "uncategorized")
	todoMoveCmd.MarkFlagsOneRequired("category", "uncategorized")

	todoListCmd.Flags().StringVar(&todoCategory, "category", "", "only todos in this category")
	todoListCmd.Flags().BoolVar(&todoUncategorized, "uncategorized", false, "only todos without a category")
	todoListCmd.Flags().StringVar(&todoListStatus, "status", "", "active or completed")
	todoListCmd.Flags().StringVar(&todoListTag, "tag", "", "only todos with this tag")
	todoListCmd.Flags().BoolVar(&todoListFavorites, "favorites", false, "only favorites")
	todoListCmd.Flags().StringVar(&todoListPriority, "priority", "", "only this priority")
	todoListCmd.Flags().StringVarP(&todoListSearch, "search", "s", "", "text contains")
	todoListCmd.MarkFlagsMutuallyExclusive("category", "uncategorized")
}

// parseDue parses a calendar date in local time; "none" and "" clear it.
func parseDue(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, time.Local)
	if err != nil {
		return nil, rperrors.ValidationWrap(err, "cli.parseDue", fmt.Sprintf("invalid due date %q, expected YYYY-MM-DD", raw))
	}
	return &d, nil
}

func runTodoAdd(cmd *cobra.Command, args []string) error {
	category, err := parseOptionalID("category", todoCategory)
	if err != nil {
		return err
	}
	due, err := parseDue(todoDue)
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo add", func(app *container.Container) func(context.Context, apptodos.CreateTodoInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewCreateTodoUseCase(app.Todos()).Execute
	}, apptodos.CreateTodoInput{
		CategoryID: category,
		Text:       args[0],
		Priority:   todoPriority,
		DueDate:    due,
		Tags:       todoTags,
		Favorite:   todoFavorite,
	})
	if err != nil {
		return err
	}
	return report(t, fmt.Sprintf("Added %q (%s)", t.Text, t.ID))
}

func runTodoEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo edit", func(app *container.Container) func(context.Context, apptodos.UpdateTodoTextInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewUpdateTodoTextUseCase(app.Todos()).Execute
	}, apptodos.UpdateTodoTextInput{ID: id, Text: args[1]})
	if err != nil {
		return err
	}
	return report(t, fmt.Sprintf("Updated %q", t.Text))
}

func runTodoDone(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo done", func(app *container.Container) func(context.Context, apptodos.ToggleTodoCompletionInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewToggleTodoCompletionUseCase(app.Todos()).Execute
	}, apptodos.ToggleTodoCompletionInput{ID: id})
	if err != nil {
		return err
	}
	if t.Completed() {
		return report(t, fmt.Sprintf("Completed %q", t.Text))
	}
	return report(t, fmt.Sprintf("Reopened %q", t.Text))
}

func runTodoFavorite(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	in := apptodos.ToggleFavoriteInput{ID: id}
	switch {
	case todoFavorite:
		on := true
		in.Favorite = &on
	case todoFavoriteOff:
		off := false
		in.Favorite = &off
	}
	t, err := dispatch(cmd, "todo favorite", func(app *container.Container) func(context.Context, apptodos.ToggleFavoriteInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewToggleFavoriteUseCase(app.Todos()).Execute
	}, in)
	if err != nil {
		return err
	}
	if t.Favorite {
		return report(t, fmt.Sprintf("%q is a favorite", t.Text))
	}
	return report(t, fmt.Sprintf("%q is no longer a favorite", t.Text))
}

func runTodoTag(cmd *cobra.Command, args []string, add bool) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	in := apptodos.TagInput{ID: id, Tag: args[1]}
	if add {
		t, err := dispatch(cmd, "todo tag", func(app *container.Container) func(context.Context, apptodos.TagInput) (*apptodos.TodoOutput, error) {
			return apptodos.NewAddTagUseCase(app.Todos()).Execute
		}, in)
		if err != nil {
			return err
		}
		return report(t, fmt.Sprintf("Tags: %s", strings.Join(t.Tags, ", ")))
	}
	t, err := dispatch(cmd, "todo untag", func(app *container.Container) func(context.Context, apptodos.TagInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewRemoveTagUseCase(app.Todos()).Execute
	}, in)
	if err != nil {
		return err
	}
	if len(t.Tags) == 0 {
		return report(t, "No tags left")
	}
	return report(t, fmt.Sprintf("Tags: %s", strings.Join(t.Tags, ", ")))
}

func runTodoDue(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	due, err := parseDue(args[1])
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo due", func(app *container.Container) func(context.Context, apptodos.SetDueDateInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewSetDueDateUseCase(app.Todos()).Execute
	}, apptodos.SetDueDateInput{ID: id, DueDate: due})
	if err != nil {
		return err
	}
	if t.DueDate == nil {
		return report(t, fmt.Sprintf("Cleared the due date of %q", t.Text))
	}
	return report(t, fmt.Sprintf("%q is due %s", t.Text, t.DueDate.Local().Format(time.DateOnly)))
}

func runTodoPriority(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo priority", func(app *container.Container) func(context.Context, apptodos.SetPriorityInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewSetPriorityUseCase(app.Todos()).Execute
	}, apptodos.SetPriorityInput{ID: id, Priority: args[1]})
	if err != nil {
		return err
	}
	return report(t, fmt.Sprintf("Priority of %q is %s", t.Text, t.Priority))
}

func runTodoMove(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	category, err := parseOptionalID("category", todoCategory)
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo move", func(app *container.Container) func(context.Context, apptodos.MoveTodoInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewMoveTodoUseCase(app.Todos()).Execute
	}, apptodos.MoveTodoInput{ID: id, CategoryID: category})
	if err != nil {
		return err
	}
	return report(t, fmt.Sprintf("Moved %q", t.Text))
}

func runTodoDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID("todo", args[0])
	if err != nil {
		return err
	}
	t, err := dispatch(cmd, "todo delete", func(app *container.Container) func(context.Context, apptodos.DeleteTodoInput) (*apptodos.TodoOutput, error) {
		return apptodos.NewDeleteTodoUseCase(app.Todos()).Execute
	}, apptodos.DeleteTodoInput{ID: id})
	if err != nil {
		return err
	}
	return report(t, fmt.Sprintf("Deleted %q", t.Text))
}

func runTodoList(cmd *cobra.Command, args []string) error {
	category, err := parseOptionalID("category", todoCategory)
	if err != nil {
		return err
	}
	switch todoListStatus {
	case "", "active", "completed":
	default:
		return rperrors.Validation("cli.todoList", fmt.Sprintf("unknown status %q, expected active or completed", todoListStatus))
	}

	filter := query.Filter{
		CategoryID:    category,
		Uncategorized: todoUncategorized,
		Status:        todoListStatus,
		Tag:           todoListTag,
		FavoritesOnly: todoListFavorites,
		Priority:      todoListPriority,
		Search:        todoListSearch,
	}
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		todos, err := app.Queries().Todos(ctx, filter)
		if err != nil {
			return queryError(err, "todo list")
		}
		if IsJSONOutput() {
			return printJSONOutput(todos)
		}
		if len(todos) == 0 {
			printSubtle("No todos")
			return nil
		}
		for _, t := range todos {
			fmt.Fprintln(out(), formatTodo(t))
		}
		return nil
	})
}

// formatTodo renders one list line.
func formatTodo(t query.TodoView) string {
	check := "[ ]"
	text := t.Text
	if t.Completed() {
		check = "[x]"
		text = styles.Subtle.Render(text)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s  %s", check, styles.Subtle.Render(t.ID.Short()), text)
	if t.Favorite {
		b.WriteString(" ★")
	}
	if t.Priority != "" && t.Priority != "none" {
		b.WriteString(" " + styles.Warning.Render("!"+t.Priority))
	}
	if t.DueDate != nil {
		b.WriteString(" " + styles.Info.Render("due "+t.DueDate.Local().Format(time.DateOnly)))
	}
	for _, tag := range t.Tags {
		b.WriteString(" " + styles.Subtle.Render("#"+tag))
	}
	return b.String()
}
