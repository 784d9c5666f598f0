package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
)

var projectionsCmd = &cobra.Command{
	Use:     "projections",
	Aliases: []string{"proj"},
	Short:   "Inspect and maintain the read database",
	Long: `The read database is derived from the event journal by projections.
Every command brings it up to date before returning; these subcommands
report on it, catch it up explicitly, rebuild it from scratch, or keep it
current while other processes write to the journal.`,
}

var projectionsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show projection positions, lag and rejected records",
	Args:  cobra.NoArgs,
	RunE:  runProjectionsStatus,
}

var projectionsCatchUpCmd = &cobra.Command{
	Use:   "catchup",
	Short: "Fold any records the read database has not seen",
	Args:  cobra.NoArgs,
	RunE:  runProjectionsCatchUp,
}

var projectionsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop all projected rows and replay the journal",
	Args:  cobra.NoArgs,
	RunE:  runProjectionsRebuild,
}

var projectionsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the read database current until interrupted",
	Long: `Watch the journal for changes made by other processes and catch the
read database up after each one. A sweep also runs every
projections.watch_interval in case a change notification is missed.

The journal is opened read-only, so commands in other terminals keep working.`,
	Args: cobra.NoArgs,
	RunE: runProjectionsWatch,
}

func init() {
	rootCmd.AddCommand(projectionsCmd)
	projectionsCmd.AddCommand(projectionsStatusCmd, projectionsCatchUpCmd, projectionsRebuildCmd, projectionsWatchCmd)
}

type projectionsReport struct {
	Breaker     string                 `json:"breaker"`
	Projections []projection.Status    `json:"projections"`
	Rejections  []projection.Rejection `json:"rejections"`
}

func runProjectionsStatus(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		rep, err := statusReport(ctx, app)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSONOutput(rep)
		}
		printStatus(rep)
		return nil
	})
}

func statusReport(ctx context.Context, app *container.Container) (*projectionsReport, error) {
	const op = "projections status"
	statuses, err := app.Orchestrator().Status(ctx)
	if err != nil {
		return nil, rperrors.ProjectionWrap(err, op, "failed to read projection status")
	}
	rejections, err := app.Orchestrator().Rejections(ctx)
	if err != nil {
		return nil, rperrors.ProjectionWrap(err, op, "failed to read rejected records")
	}
	return &projectionsReport{
		Breaker:     app.Sync().State(),
		Projections: statuses,
		Rejections:  rejections,
	}, nil
}

func printStatus(rep *projectionsReport) {
	printTitle("Projections")
	for _, s := range rep.Projections {
		line := fmt.Sprintf("%-22s position %d of %d", s.Name, s.Position, s.Head)
		switch {
		case s.Lag > 0:
			printWarning(fmt.Sprintf("%s (%d behind)", line, s.Lag))
		case s.Rejections > 0:
			printWarning(fmt.Sprintf("%s (%d rejected)", line, s.Rejections))
		default:
			printSuccess(line)
		}
	}
	if rep.Breaker != "closed" {
		printWarning(fmt.Sprintf("Sync breaker is %s; commands skip catch-up until it recovers", rep.Breaker))
	}
	if len(rep.Rejections) == 0 {
		return
	}
	fmt.Fprintln(out())
	printTitle("Rejected records")
	for _, r := range rep.Rejections {
		printSubtle(fmt.Sprintf("#%d %s %s %s: %s", r.Position, r.Projection, r.EventName, r.AggregateID.Short(), r.Reason))
	}
}

func runProjectionsCatchUp(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		err := app.Sync().Sync(ctx)
		switch {
		case errors.Is(err, projection.ErrTreeViolation):
			printWarning("Some records were rejected; see `notebase projections status`")
		case err != nil:
			return rperrors.ProjectionWrap(err, "projections catchup", "failed to catch up projections")
		}
		rep, err := statusReport(ctx, app)
		if err != nil {
			return err
		}
		if IsJSONOutput() {
			return printJSONOutput(rep)
		}
		var head int64
		for _, s := range rep.Projections {
			head = max(head, s.Head)
		}
		printSuccess(fmt.Sprintf("Projections are at position %d", head))
		return nil
	})
}

func runProjectionsRebuild(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		const op = "projections rebuild"
		n, err := app.Orchestrator().Rebuild(ctx)
		if invErr := app.Queries().Invalidate(ctx); invErr != nil {
			logger.Warn("failed to invalidate query cache", "error", invErr)
		}
		switch {
		case errors.Is(err, projection.ErrTreeViolation):
			printWarning("Some records were rejected; see `notebase projections status`")
		case err != nil:
			return rperrors.ProjectionWrap(err, op, "failed to rebuild projections")
		}
		if IsJSONOutput() {
			return printJSONOutput(map[string]int{"records": n})
		}
		printSuccess(fmt.Sprintf("Rebuilt projections from %d record(s)", n))
		return nil
	})
}

func runProjectionsWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openReadOnlyApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	storage := app.Config().Storage
	path := watchedJournal(app)
	interval := app.Config().Projections.WatchInterval

	printInfo(fmt.Sprintf("Watching %s (sweep every %s, Ctrl+C to stop)", describeJournal(storage.Backend, path), interval))
	w := projection.NewWatcher(path, interval, app.Sync().Sync, app.Logger())
	if err := w.Run(ctx); err != nil {
		return rperrors.IOWrap(err, "projections watch", "failed to watch the journal")
	}
	printInfo("Stopped watching")
	return nil
}

// watchedJournal is the file a watcher should follow; empty for the
// in-memory journal.
func watchedJournal(app *container.Container) string {
	storage := app.Config().Storage
	if storage.Backend == eventstore.BackendMemory {
		return ""
	}
	return storage.Path
}

func describeJournal(backend, path string) string {
	if path == "" {
		return "the in-memory journal"
	}
	return fmt.Sprintf("%s journal %s", backend, path)
}
