package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relicta-tech/notebase/internal/container"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/query"
)

// dispatch opens the stores, builds the use case from the container, runs
// it through the command middleware and closes the stores again.
func dispatch[In, Out any](cmd *cobra.Command, name string, build func(*container.Container) func(context.Context, In) (Out, error), in In) (Out, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openApp(ctx)
	if err != nil {
		var zero Out
		return zero, err
	}
	defer closeApp(app)

	return container.Handle(app, name, build(app))(ctx, in)
}

// report prints v as JSON or the success line.
func report(v any, msg string) error {
	if IsJSONOutput() {
		return printJSONOutput(v)
	}
	printSuccess(msg)
	return nil
}

// withApp runs fn with an initialized container.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *container.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)
	return fn(ctx, app)
}

// queryError classifies a read-side failure.
func queryError(err error, op string) error {
	switch {
	case errors.Is(err, query.ErrNotFound):
		return rperrors.NotFoundWrap(err, op, capitalize(err.Error()))
	case errors.Is(err, query.ErrCycle):
		return rperrors.Wrap(err, rperrors.KindIntegrity, op, "the tree contains a cycle; run `notebase tree check`")
	default:
		return rperrors.Wrap(err, rperrors.KindProjection, op, "failed to read projections")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
