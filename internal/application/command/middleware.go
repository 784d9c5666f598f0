package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

// Handler runs one command.
type Handler[In, Out any] func(ctx context.Context, in In) (Out, error)

// Middleware wraps a Handler with behavior that runs around every call.
type Middleware[In, Out any] func(next Handler[In, Out]) Handler[In, Out]

// Chain wraps h so that mws[0] is the outermost middleware.
func Chain[In, Out any](h Handler[In, Out], mws ...Middleware[In, Out]) Handler[In, Out] {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// WithLogging logs each command with its duration.
func WithLogging[In, Out any](logger *slog.Logger, name string) Middleware[In, Out] {
	return func(next Handler[In, Out]) Handler[In, Out] {
		return func(ctx context.Context, in In) (Out, error) {
			start := time.Now()
			logger.Debug("command started", "command", name)

			out, err := next(ctx, in)
			if err != nil {
				logger.Warn("command failed",
					"command", name,
					"kind", rperrors.GetKind(err).String(),
					"error", err,
					"duration", time.Since(start))
				return out, err
			}
			logger.Debug("command finished", "command", name, "duration", time.Since(start))
			return out, nil
		}
	}
}

// Recorder receives the outcome of every command.
type Recorder interface {
	RecordCommand(name string, err error, d time.Duration)
}

// WithMetrics reports each command's duration and result to rec.
func WithMetrics[In, Out any](rec Recorder, name string) Middleware[In, Out] {
	return func(next Handler[In, Out]) Handler[In, Out] {
		return func(ctx context.Context, in In) (Out, error) {
			start := time.Now()
			out, err := next(ctx, in)
			rec.RecordCommand(name, err, time.Since(start))
			return out, err
		}
	}
}

// Syncer brings read models up to date with the event store.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncFunc adapts a function to Syncer.
type SyncFunc func(ctx context.Context) error

// Sync calls f.
func (f SyncFunc) Sync(ctx context.Context) error {
	return f(ctx)
}

// WithProjectionSync runs syncer after every successful command so the next
// query sees the command's effects. A sync failure or panic is logged and
// swallowed: the events are already durable and the caller always gets
// next's result.
func WithProjectionSync[In, Out any](syncer Syncer, logger *slog.Logger) Middleware[In, Out] {
	return func(next Handler[In, Out]) Handler[In, Out] {
		return func(ctx context.Context, in In) (Out, error) {
			out, err := next(ctx, in)
			if err != nil {
				return out, err
			}
			if syncErr := runSync(ctx, syncer); syncErr != nil {
				logger.Warn("projection sync failed; read models will catch up later",
					"error", syncErr)
			}
			return out, nil
		}
	}
}

func runSync(ctx context.Context, syncer Syncer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("projection sync panicked: %v", r)
		}
	}()
	return syncer.Sync(ctx)
}
