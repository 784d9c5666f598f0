// Package command implements the generic command handler pipeline: load an
// aggregate, run one domain operation, persist its events, publish them.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

// Repository loads and saves one aggregate type.
type Repository[T eventsource.Aggregate] interface {
	Load(ctx context.Context, id eventsource.ID) (T, error)
	Save(ctx context.Context, agg T) (eventsource.Commit, error)
	AggregateType() string
}

// Publisher fans committed events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, events ...eventsource.Event) error
}

// Runner carries what every command needs after persistence.
type Runner struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewRunner creates a Runner. A nil publisher disables publishing.
func NewRunner(publisher Publisher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{publisher: publisher, logger: logger}
}

// Execute loads aggregate id from repo, applies operation and saves the
// recorded events. On failure nothing is persisted and the error carries a
// Kind: not found, validation (the rule message verbatim), conflict or storage.
func Execute[T eventsource.Aggregate](ctx context.Context, r *Runner, repo Repository[T], op string, id eventsource.ID, operation func(T) error) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, rperrors.Wrap(err, rperrors.KindCanceled, op, "command canceled")
	}

	agg, err := repo.Load(ctx, id)
	if err != nil {
		return zero, classifyLoad(err, op, repo.AggregateType(), id)
	}

	if err := operation(agg); err != nil {
		return zero, classifyRule(err, op)
	}

	if err := save(ctx, r, repo, op, agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// Create builds a new aggregate with factory and saves its creation events.
func Create[T eventsource.Aggregate](ctx context.Context, r *Runner, repo Repository[T], op string, factory func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, rperrors.Wrap(err, rperrors.KindCanceled, op, "command canceled")
	}

	agg, err := factory()
	if err != nil {
		return zero, classifyRule(err, op)
	}

	if err := save(ctx, r, repo, op, agg); err != nil {
		return zero, err
	}
	return agg, nil
}

// save persists pending events and publishes the commit. Publishing happens
// only after the append succeeded and its failures are logged, never returned.
func save[T eventsource.Aggregate](ctx context.Context, r *Runner, repo Repository[T], op string, agg T) error {
	if err := ctx.Err(); err != nil {
		return rperrors.Wrap(err, rperrors.KindCanceled, op, "command canceled")
	}

	commit, err := repo.Save(ctx, agg)
	if err != nil {
		switch {
		case eventsource.IsConflict(err):
			return rperrors.ConflictWrap(err, op,
				fmt.Sprintf("%s was changed by someone else; reload and try again", displayName(repo.AggregateType()))).
				WithDetail("id", agg.ID().String())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return rperrors.Wrap(err, rperrors.KindCanceled, op, "command canceled")
		default:
			return rperrors.StorageWrap(err, op, "failed to save changes")
		}
	}

	if commit.Empty() || r.publisher == nil {
		return nil
	}
	if err := r.publisher.Publish(ctx, commit.Events...); err != nil {
		r.logger.Warn("failed to publish domain events after commit",
			"op", op,
			"error", err,
			"event_count", len(commit.Events))
	}
	return nil
}

func classifyLoad(err error, op, aggregateType string, id eventsource.ID) error {
	switch {
	case eventsource.IsNotFound(err), errors.Is(err, eventsource.ErrEmptyID), errors.Is(err, eventsource.ErrTypeMismatch):
		return rperrors.NotFoundWrap(err, op, fmt.Sprintf("%s '%s' not found", displayName(aggregateType), id)).
			WithDetail("id", id.String())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return rperrors.Wrap(err, rperrors.KindCanceled, op, "command canceled")
	default:
		return rperrors.StorageWrap(err, op, fmt.Sprintf("failed to load %s", displayName(aggregateType)))
	}
}

func classifyRule(err error, op string) error {
	var classified *rperrors.Error
	if errors.As(err, &classified) {
		return err
	}
	if re, ok := eventsource.AsRuleError(err); ok {
		return rperrors.ValidationWrap(err, op, re.Message)
	}
	if errors.Is(err, eventsource.ErrInvalidState) {
		return rperrors.Wrap(err, rperrors.KindState, op, err.Error())
	}
	if errors.Is(err, eventsource.ErrEmptyID) {
		return rperrors.ValidationWrap(err, op, "An id is required")
	}
	return rperrors.Wrap(err, rperrors.KindInternal, op, "command failed")
}

func displayName(aggregateType string) string {
	switch aggregateType {
	case "todo_category":
		return "Todo category"
	case "category":
		return "Category"
	case "note":
		return "Note"
	case "todo":
		return "Todo"
	default:
		return aggregateType
	}
}
