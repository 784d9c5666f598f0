package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/httpserver"
	"github.com/relicta-tech/notebase/internal/httpserver/handlers"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
)

var (
	serveAddr     string
	serveReadOnly bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the JSON API and live event feed",
	Long: `Serve notes, todos and their category trees over HTTP.

Committed events are pushed to WebSocket clients on /api/v1/ws.

With --read-only the journal is opened without the writer lock, so the CLI
keeps working alongside the server. Commands are then rejected with 403 and
the server watches the journal, catching up and notifying clients whenever
another process writes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.address)")
	serveCmd.Flags().BoolVar(&serveReadOnly, "read-only", false, "reject commands and follow the journal")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	const op = "serve"
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	open := openApp
	if serveReadOnly {
		open = openReadOnlyApp
	}
	app, err := open(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	serverCfg := app.Config().Server
	if serveAddr != "" {
		serverCfg.Address = serveAddr
	}

	handlers.Version = versionInfo.Version
	server := httpserver.NewServer(httpserver.ServerDeps{
		Config:   serverCfg,
		App:      app,
		ReadOnly: serveReadOnly,
		Logger:   app.Logger(),
	})

	mode := "read-write"
	if serveReadOnly {
		mode = "read-only"
	}
	printInfo(fmt.Sprintf("Serving on http://%s (%s, Ctrl+C to stop)", serverCfg.Address, mode))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	if serveReadOnly {
		w := followJournal(app, server)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return rperrors.IOWrap(err, op, "server stopped")
	}
	printInfo("Server stopped")
	return nil
}

// followJournal returns a watcher that catches the read side up with writes
// from other processes and tells WebSocket clients about it.
func followJournal(app *container.Container, server *httpserver.Server) *projection.Watcher {
	var last int64 = -1
	step := func(ctx context.Context) error {
		// Rejected records are reported by the sync step and do not stop
		// the catch-up.
		if err := app.Sync().Sync(ctx); err != nil && !errors.Is(err, projection.ErrTreeViolation) {
			return err
		}
		head, err := app.Store().Head(ctx)
		if err != nil {
			return err
		}
		if head != last {
			last = head
			server.EventBroadcaster().Synced(head)
		}
		return nil
	}
	return projection.NewWatcher(watchedJournal(app), app.Config().Projections.WatchInterval, step, app.Logger())
}
