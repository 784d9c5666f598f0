package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/mcp"
)

var mcpReadOnly bool

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve notes and todos to AI agents over MCP (stdio)",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Agents can browse both trees, read notes, list and filter todos and inspect
event history. Unless --read-only is given they can also create categories,
notes and todos and toggle todos; every write goes through the same
validation as the CLI.

With --read-only the journal is opened without the writer lock and the read
database follows writes made by other processes.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().BoolVar(&mcpReadOnly, "read-only", false, "only expose reading tools and follow the journal")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	open := openApp
	if mcpReadOnly {
		open = openReadOnlyApp
	}
	app, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	server := mcp.NewServer(versionInfo.Version, app,
		mcp.WithLogger(app.Logger()),
		mcp.WithReadOnly(mcpReadOnly),
	)

	if !mcpReadOnly {
		if err := server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && ctx.Err() == nil {
			return rperrors.IOWrap(err, "mcp", "MCP server stopped")
		}
		return nil
	}

	watcher := projection.NewWatcher(watchedJournal(app), app.Config().Projections.WatchInterval, app.Sync().Sync, app.Logger())

	watchCtx, stopWatching := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(watchCtx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	serveErr := server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	stopWatching()
	if err := g.Wait(); err != nil {
		return rperrors.IOWrap(err, "mcp", "failed to watch the journal")
	}
	if serveErr != nil && ctx.Err() == nil {
		return rperrors.IOWrap(serveErr, "mcp", "MCP server stopped")
	}
	return nil
}
