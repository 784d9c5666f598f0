package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	"github.com/relicta-tech/notebase/internal/container"
	domnotes "github.com/relicta-tech/notebase/internal/domain/notes"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/fileutil"
)

var (
	noteCategory string
	noteRoot     bool
	noteContent  string
	noteFile     string
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage notes",
	Long: `Create, edit, move and delete notes.

Notes are filed under a notebook category, or at the top level when no
category is given. Content can be passed inline or read from a file ("-"
reads standard input).

Examples:
  notebase note create "Roadmap" --category <id>
  notebase note edit <id> --file roadmap.md
  echo "draft" | notebase note edit <id> --file -`,
}

var noteCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a note",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteCreate,
}

var noteRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Change a note's title",
	Args:  cobra.ExactArgs(2),
	RunE:  runNoteRename,
}

var noteMoveCmd = &cobra.Command{
	Use:   "move <id>",
	Short: "File a note under another category",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteMove,
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Replace a note's content",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteEdit,
}

var notePinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotePin(cmd, args[0], true)
	},
}

var noteUnpinCmd = &cobra.Command{
	Use:   "unpin <id>",
	Short: "Unpin a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNotePin(cmd, args[0], false)
	},
}

var noteDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteDelete,
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Args:  cobra.NoArgs,
	RunE:  runNoteList,
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE:  runNoteShow,
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteCreateCmd, noteRenameCmd, noteMoveCmd, noteEditCmd,
		notePinCmd, noteUnpinCmd, noteDeleteCmd, noteListCmd, noteShowCmd)

	noteCreateCmd.Flags().StringVar(&noteCategory, "category", "", "category id")
	noteCreateCmd.Flags().StringVar(&noteContent, "content", "", "initial content")
	noteCreateCmd.Flags().StringVarP(&noteFile, "file", "f", "", "read initial content from a file (- for stdin)")
	noteCreateCmd.MarkFlagsMutuallyExclusive("content", "file")

	noteMoveCmd.Flags().StringVar(&noteCategory, "category", "", "target category id")
	noteMoveCmd.Flags().BoolVar(&noteRoot, "root", false, "move to the top level")
	noteMoveCmd.MarkFlagsMutuallyExclusive("category", "root")
	noteMoveCmd.MarkFlagsOneRequired("category", "root")

	noteEditCmd.Flags().StringVar(&noteContent, "content", "", "new content")
	noteEditCmd.Flags().StringVarP(&noteFile, "file", "f", "", "read content from a file (- for stdin)")
	noteEditCmd.MarkFlagsMutuallyExclusive("content", "file")
	noteEditCmd.MarkFlagsOneRequired("content", "file")

	noteListCmd.Flags().StringVar(&noteCategory, "category", "", "category id (default: top level)")
}

// readContent resolves --content / --file.
func readContent(cmd *cobra.Command) (string, error) {
	if noteFile == "" {
		return noteContent, nil
	}

	var (
		data []byte
		err  error
	)
	if noteFile == "-" {
		data, err = fileutil.ReadLimited(cmd.InOrStdin(), domnotes.MaxContentBytes)
	} else {
		data, err = fileutil.ReadFileLimited(noteFile, domnotes.MaxContentBytes)
	}
	if errors.Is(err, fileutil.ErrTooLarge) {
		return "", rperrors.ValidationWrap(err, "cli.readContent", fmt.Sprintf("Note content cannot exceed %d bytes", domnotes.MaxContentBytes))
	}
	if err != nil {
		return "", rperrors.IOWrap(err, "cli.readContent", fmt.Sprintf("failed to read %s", noteFile))
	}
	return string(data), nil
}

func runNoteCreate(cmd *cobra.Command, args []string) error {
	category, err := parseOptionalID("category", noteCategory)
	if err != nil {
		return err
	}
	content, err := readContent(cmd)
	if err != nil {
		return err
	}
	n, err := dispatch(cmd, "note create", func(app *container.Container) func(context.Context, appnotes.CreateNoteInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewCreateNoteUseCase(app.Notes()).Execute
	}, appnotes.CreateNoteInput{CategoryID: category, Title: args[0], Content: content})
	if err != nil {
		return err
	}
	return report(n, fmt.Sprintf("Created note %q (%s)", n.Title, n.ID))
}

func runNoteRename(cmd *cobra.Command, args []string) error {
	id, err := parseID("note", args[0])
	if err != nil {
		return err
	}
	n, err := dispatch(cmd, "note rename", func(app *container.Container) func(context.Context, appnotes.RenameNoteInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewRenameNoteUseCase(app.Notes()).Execute
	}, appnotes.RenameNoteInput{ID: id, Title: args[1]})
	if err != nil {
		return err
	}
	return report(n, fmt.Sprintf("Renamed note to %q", n.Title))
}

func runNoteMove(cmd *cobra.Command, args []string) error {
	id, err := parseID("note", args[0])
	if err != nil {
		return err
	}
	category, err := parseOptionalID("category", noteCategory)
	if err != nil {
		return err
	}
	n, err := dispatch(cmd, "note move", func(app *container.Container) func(context.Context, appnotes.MoveNoteInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewMoveNoteUseCase(app.Notes()).Execute
	}, appnotes.MoveNoteInput{ID: id, CategoryID: category})
	if err != nil {
		return err
	}
	return report(n, fmt.Sprintf("Moved note %q", n.Title))
}

func runNoteEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID("note", args[0])
	if err != nil {
		return err
	}
	content, err := readContent(cmd)
	if err != nil {
		return err
	}
	n, err := dispatch(cmd, "note edit", func(app *container.Container) func(context.Context, appnotes.UpdateNoteContentInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewUpdateNoteContentUseCase(app.Notes()).Execute
	}, appnotes.UpdateNoteContentInput{ID: id, Content: content})
	if err != nil {
		return err
	}
	return report(n, fmt.Sprintf("Updated note %q", n.Title))
}

func runNotePin(cmd *cobra.Command, raw string, pinned bool) error {
	id, err := parseID("note", raw)
	if err != nil {
		return err
	}
	name := "note unpin"
	if pinned {
		name = "note pin"
	}
	n, err := dispatch(cmd, name, func(app *container.Container) func(context.Context, appnotes.PinNoteInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewPinNoteUseCase(app.Notes()).Execute
	}, appnotes.PinNoteInput{ID: id, Pinned: pinned})
	if err != nil {
		return err
	}
	if pinned {
		return report(n, fmt.Sprintf("Pinned %q", n.Title))
	}
	return report(n, fmt.Sprintf("Unpinned %q", n.Title))
}

func runNoteDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID("note", args[0])
	if err != nil {
		return err
	}
	n, err := dispatch(cmd, "note delete", func(app *container.Container) func(context.Context, appnotes.DeleteNoteInput) (*appnotes.NoteOutput, error) {
		return appnotes.NewDeleteNoteUseCase(app.Notes()).Execute
	}, appnotes.DeleteNoteInput{ID: id})
	if err != nil {
		return err
	}
	return report(n, fmt.Sprintf("Deleted note %q", n.Title))
}

func runNoteList(cmd *cobra.Command, args []string) error {
	category, err := parseOptionalID("category", noteCategory)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		notes, err := app.Queries().Notes(ctx, category)
		if err != nil {
			return queryError(err, "note list")
		}
		if IsJSONOutput() {
			return printJSONOutput(notes)
		}
		if len(notes) == 0 {
			printSubtle("No notes")
			return nil
		}
		for _, n := range notes {
			marker := " "
			if n.Pinned {
				marker = "*"
			}
			fmt.Fprintf(out(), "%s %s  %s\n", marker, styles.Subtle.Render(n.ID.Short()), n.Title)
		}
		return nil
	})
}

func runNoteShow(cmd *cobra.Command, args []string) error {
	id, err := parseID("note", args[0])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		n, err := app.Queries().Note(ctx, id)
		if err != nil {
			return queryError(err, "note show")
		}
		if IsJSONOutput() {
			return printJSONOutput(n)
		}
		printTitle(n.Title)
		printSubtle(fmt.Sprintf("%s · updated %s", n.ID, n.UpdatedAt.Local().Format("2006-01-02 15:04")))
		if n.Content != "" {
			fmt.Fprintln(out())
			fmt.Fprintln(out(), strings.TrimRight(n.Content, "\n"))
		}
		return nil
	})
}
