package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/fileutil"
	"github.com/relicta-tech/notebase/internal/infrastructure/template"
	"github.com/relicta-tech/notebase/internal/query"
)

var (
	exportTodos        bool
	exportTemplate     string
	exportTemplatesDir string
	exportOutput       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the notebook or the todo list as markdown",
	Long: `Render every category with the notes (or todos with --todos) filed
under it.

--template names a built-in template (notes.md, todos.md), a template in
--templates-dir, or a path to a .tmpl file.

Examples:
  notebase export > notes.md
  notebase export --todos --output todos.md
  notebase export --template ./weekly.tmpl`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportTodos, "todos", false, "export todos instead of notes")
	exportCmd.Flags().StringVar(&exportTemplate, "template", "", "template name or file (default notes.md or todos.md)")
	exportCmd.Flags().StringVar(&exportTemplatesDir, "templates-dir", "", "directory of custom *.tmpl templates")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	const op = "export"

	kind := query.NoteTree
	name := "notes.md"
	if exportTodos {
		kind = query.TodoCategoryTree
		name = "todos.md"
	}
	if exportTemplate != "" {
		name = exportTemplate
	}

	svc, err := template.NewService(template.WithCustomDir(exportTemplatesDir))
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		data, err := template.Collect(ctx, app.Queries(), kind, time.Now())
		if err != nil {
			return queryError(err, op)
		}

		var rendered string
		if isTemplateFile(name) {
			rendered, err = svc.RenderFile(ctx, name, data)
		} else {
			rendered, err = svc.Render(ctx, name, data)
		}
		if err != nil {
			return err
		}
		if !strings.HasSuffix(rendered, "\n") {
			rendered += "\n"
		}

		if exportOutput == "" {
			_, err = fmt.Fprint(out(), rendered)
			return err
		}
		if err := fileutil.AtomicWriteFile(exportOutput, []byte(rendered), 0o644); err != nil {
			return rperrors.IOWrap(err, op, fmt.Sprintf("failed to write %s", exportOutput))
		}
		printSuccess(fmt.Sprintf("Exported %d categories to %s", len(data.Sections), exportOutput))
		return nil
	})
}

// isTemplateFile reports whether name is a path rather than the name of a
// loaded template.
func isTemplateFile(name string) bool {
	return strings.HasSuffix(name, ".tmpl") || strings.ContainsRune(name, filepath.Separator)
}
