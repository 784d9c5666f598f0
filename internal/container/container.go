// Package container provides dependency injection for notebase services.
package container

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/relicta-tech/notebase/internal/application/command"
	appnotes "github.com/relicta-tech/notebase/internal/application/notes"
	apptodos "github.com/relicta-tech/notebase/internal/application/todos"
	"github.com/relicta-tech/notebase/internal/config"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventbus"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/infrastructure/treecheck"
	"github.com/relicta-tech/notebase/internal/infrastructure/webhook"
	"github.com/relicta-tech/notebase/internal/observability"
	"github.com/relicta-tech/notebase/internal/query"
)

// defaultShutdownTimeout is the default timeout for graceful shutdown of components.
const defaultShutdownTimeout = 10 * time.Second

// Closeable represents a component that can be closed/shutdown.
type Closeable interface {
	Close() error
}

// Container wires the write side, the read side and the use cases.
type Container struct {
	config *config.Config
	logger *slog.Logger
	clock  func() time.Time
	mu     sync.RWMutex
	closed bool

	// Infrastructure layer
	store        eventsource.EventStore
	readDB       *sql.DB
	bus          *eventbus.Bus
	metrics      *observability.Metrics
	cache        query.Cache
	orchestrator *projection.Orchestrator
	syncStep     *projection.SyncStep

	// Read side
	queries *query.Service

	// Application layer dependencies
	runner *command.Runner
	notes  appnotes.Dependencies
	todos  apptodos.Dependencies

	// Cleanup tracking
	closeables []Closeable
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStore replaces the configured event store.
func WithStore(store eventsource.EventStore) Option {
	return func(c *Container) {
		c.store = store
	}
}

// WithMetrics shares a metrics registry, typically one already served over
// HTTP.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Container) {
		c.metrics = m
	}
}

// WithClock sets the time source for commands.
func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		c.clock = now
	}
}

// New creates a container with the given configuration. Nothing is opened
// until Initialize.
func New(cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, rperrors.Config("container.New", "configuration is required")
	}

	c := &Container{
		config:     cfg,
		logger:     slog.Default(),
		clock:      time.Now,
		closeables: make([]Closeable, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics("")
	}
	c.bus = eventbus.New(c.logger)
	c.bus.Subscribe("metrics", func(_ context.Context, e eventsource.Event) error {
		c.metrics.RecordEvent(e.EventName())
		return nil
	})
	return c, nil
}

// registerCloseable registers a component for cleanup during shutdown.
func (c *Container) registerCloseable(closeable Closeable) {
	if closeable != nil {
		c.closeables = append(c.closeables, closeable)
	}
}

// RegisterCloseable allows external components to register for cleanup during shutdown.
// Components are closed in reverse order of registration (LIFO).
func (c *Container) RegisterCloseable(closeable Closeable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerCloseable(closeable)
}

// Initialize opens the stores, wires the use cases and brings the read
// models up to date. A failed initial catch-up is logged, not returned: the
// next command or `projections catchup` reconciles.
func (c *Container) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return rperrors.New(rperrors.KindState, "container is closed")
	}

	if err := c.initInfrastructure(ctx); err != nil {
		return err
	}
	c.initApplicationLayer()

	c.initialSync(ctx)
	if c.config.Projections.CheckOnStartup {
		c.checkTrees(ctx)
	}
	return nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	const op = "container.Initialize"
	cfg := c.config

	if c.store == nil {
		store, err := eventstore.Open(cfg.Storage.Backend, cfg.Storage.Path, cfg.Storage.ReadOnly, c.logger)
		if err != nil {
			return rperrors.StorageWrap(err, op, "failed to open the event store")
		}
		c.store = store
	}
	c.registerCloseable(c.store)

	readDB, err := projection.OpenReadDB(cfg.Projections.ReadDB)
	if err != nil {
		return rperrors.StorageWrap(err, op, "failed to open the read database")
	}
	c.readDB = readDB
	c.registerCloseable(readDB)

	c.cache = c.openCache(ctx)

	c.orchestrator = projection.NewOrchestrator(readDB, c.store, projection.DefaultProjectors(c.logger),
		projection.WithBatchSize(cfg.Projections.BatchSize),
		projection.WithLogger(c.logger))

	c.queries = query.NewService(readDB, c.cache, c.logger)
	c.syncStep = projection.NewSyncStep(c.orchestrator, c.queries, projection.SyncConfig{
		Timeout:          cfg.Projections.SyncTimeout,
		FailureThreshold: cfg.Projections.FailureThreshold,
		Cooldown:         cfg.Projections.Cooldown,
	}, c.logger)

	if len(cfg.Webhooks) > 0 {
		hooks := webhook.NewPublisher(cfg.Webhooks, webhook.WithLogger(c.logger))
		c.bus.Subscribe("webhook", hooks.Handle)
		c.registerCloseable(hooks)
	}

	store := c.store
	c.metrics.Gauge("notebase_journal_head", "Position of the last journal record", func() float64 {
		head, err := store.Head(context.Background())
		if err != nil {
			return -1
		}
		return float64(head)
	})
	return nil
}

// openCache builds the configured cache. An unreachable Redis falls back to
// the in-process cache.
func (c *Container) openCache(ctx context.Context) query.Cache {
	cfg := c.config.Cache
	switch cfg.Backend {
	case "none":
		return nil
	case "redis":
		rc, err := query.NewRedisCache(ctx, query.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		if err == nil {
			c.registerCloseable(rc)
			return rc
		}
		c.logger.Warn("redis cache unavailable, using in-process cache", "addr", cfg.Redis.Addr, "error", err)
	}
	return query.NewMemoryCache(cfg.TTL)
}

func (c *Container) initApplicationLayer() {
	c.runner = command.NewRunner(c.bus, c.logger)

	c.notes = appnotes.Dependencies{
		Runner:     c.runner,
		Categories: eventsource.NewRepository(c.store, notes.AggregateCategory, notes.EmptyCategory, notes.DecodeCategoryEvent),
		Notes:      eventsource.NewRepository(c.store, notes.AggregateNote, notes.EmptyNote, notes.DecodeNoteEvent),
		Tree:       c.queries,
		Clock:      c.clock,
	}
	c.todos = apptodos.Dependencies{
		Runner:     c.runner,
		Todos:      eventsource.NewRepository(c.store, todos.AggregateTodo, todos.Empty, todos.DecodeTodoEvent),
		Categories: eventsource.NewRepository(c.store, todos.AggregateCategory, todos.EmptyCategory, todos.DecodeCategoryEvent),
		Tree:       c.queries,
		Clock:      c.clock,
	}
}

func (c *Container) initialSync(ctx context.Context) {
	err := c.syncStep.Sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, projection.ErrTreeViolation):
		c.logger.Warn("projection rejected events; run `notebase projections status` for details", "error", err)
	default:
		c.logger.Warn("initial projection catch-up failed; read models may be stale", "error", err)
	}
}

// checkTrees runs tree diagnostics and logs what it finds. It never repairs.
func (c *Container) checkTrees(ctx context.Context) {
	for _, table := range []string{projection.NoteTreeTable, projection.TodoCategoryTreeTable} {
		checker, err := treecheck.New(c.readDB, table)
		if err != nil {
			c.logger.Warn("tree check unavailable", "table", table, "error", err)
			continue
		}
		report, err := checker.Diagnose(ctx)
		if err != nil {
			c.logger.Warn("tree check failed", "table", table, "error", err)
			continue
		}
		if !report.Healthy() {
			c.logger.Warn("tree integrity problems found; run `notebase tree check`",
				"table", table,
				"self_references", len(report.SelfReferences),
				"orphans", len(report.Orphans),
				"cycles", len(report.Cycles))
		}
	}
}

// Handle wraps a use case with metrics, command logging and the projection
// sync step, so queries issued after it returns observe its effects.
func Handle[In, Out any](c *Container, name string, h func(context.Context, In) (Out, error)) command.Handler[In, Out] {
	return command.Chain(command.Handler[In, Out](h),
		command.WithMetrics[In, Out](c.Metrics(), name),
		command.WithLogging[In, Out](c.Logger(), name),
		command.WithProjectionSync[In, Out](c.timedSync(), c.Logger()),
	)
}

// timedSync is the sync step with its catch-ups counted.
func (c *Container) timedSync() command.Syncer {
	step, m := c.Sync(), c.Metrics()
	return command.SyncFunc(func(ctx context.Context) error {
		start := time.Now()
		err := step.Sync(ctx)
		m.RecordSync(err, time.Since(start))
		return err
	})
}

// Metrics returns the metrics registry.
func (c *Container) Metrics() *observability.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// Config returns the configuration.
func (c *Container) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// Logger returns the shared logger.
func (c *Container) Logger() *slog.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// Store returns the event store.
func (c *Container) Store() eventsource.EventStore {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store
}

// ReadDB returns the read database.
func (c *Container) ReadDB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readDB
}

// Bus returns the event bus commands publish to.
func (c *Container) Bus() *eventbus.Bus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bus
}

// Queries returns the query service.
func (c *Container) Queries() *query.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queries
}

// Orchestrator returns the projection orchestrator.
func (c *Container) Orchestrator() *projection.Orchestrator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orchestrator
}

// Sync returns the post-command sync step.
func (c *Container) Sync() *projection.SyncStep {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.syncStep
}

// Notes returns the notebook use case dependencies.
func (c *Container) Notes() appnotes.Dependencies {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notes
}

// Todos returns the todo use case dependencies.
func (c *Container) Todos() apptodos.Dependencies {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.todos
}

// TreeChecker returns an integrity checker for kind's table.
func (c *Container) TreeChecker(kind query.TreeKind) (*treecheck.Checker, error) {
	table, err := kind.Table()
	if err != nil {
		return nil, rperrors.ValidationWrap(err, "container.TreeChecker", "unknown tree")
	}
	return treecheck.New(c.ReadDB(), table)
}

// Close shuts the container down with the default timeout.
func (c *Container) Close() error {
	return c.CloseWithTimeout(defaultShutdownTimeout)
}

// CloseWithTimeout closes registered components in reverse order.
func (c *Container) CloseWithTimeout(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for i := len(c.closeables) - 1; i >= 0; i-- {
		closeable := c.closeables[i]
		if err := c.closeWithContext(ctx, closeable); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		c.logger.Warn("some components failed to close cleanly", "error_count", len(errs))
		return errors.Join(errs...)
	}

	c.logger.Debug("container shutdown completed successfully")
	return nil
}

// closeWithContext closes a component with context cancellation support.
func (c *Container) closeWithContext(ctx context.Context, closeable Closeable) error {
	done := make(chan error, 1)
	go func() {
		done <- closeable.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.logger.Warn("component close timed out", "error", ctx.Err())
		return ctx.Err()
	}
}

// NewInitialized creates and initializes a container.
func NewInitialized(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := c.Initialize(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}
