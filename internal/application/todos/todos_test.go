package todos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/application/command"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventbus"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
	"github.com/relicta-tech/notebase/internal/query"
)

var t0 = time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	deps  Dependencies
	store eventsource.EventStore
	query *query.Service
	sync  *projection.SyncStep
	bus   *eventbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := projection.OpenReadDB(filepath.Join(t.TempDir(), "read.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := eventstore.NewMemoryStore()
	svc := query.NewService(db, query.NewMemoryCache(time.Minute), nil)
	orch := projection.NewOrchestrator(db, store, projection.DefaultProjectors(nil))
	bus := eventbus.New(nil)

	return &fixture{
		deps: Dependencies{
			Runner:     command.NewRunner(bus, nil),
			Todos:      eventsource.NewRepository(store, todos.AggregateTodo, todos.Empty, todos.DecodeTodoEvent),
			Categories: eventsource.NewRepository(store, todos.AggregateCategory, todos.EmptyCategory, todos.DecodeCategoryEvent),
			Tree:       svc,
			Clock:      func() time.Time { return t0 },
		},
		store: store,
		query: svc,
		sync:  projection.NewSyncStep(orch, svc, projection.DefaultSyncConfig(), nil),
		bus:   bus,
	}
}

func (f *fixture) catchUp(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sync.Sync(context.Background()))
}

func assertValidation(t *testing.T, err error, message string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, rperrors.IsKind(err, rperrors.KindValidation), "kind = %s", rperrors.GetKind(err))
	assert.Equal(t, message, rperrors.UserMessage(err))
}

func TestCreateTodo_WithInitialAttributes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := t0.Add(48 * time.Hour)

	out, err := NewCreateTodoUseCase(f.deps).Execute(ctx, CreateTodoInput{
		ID:       "T1",
		Text:     "  file taxes ",
		Priority: "High",
		DueDate:  &due,
		Tags:     []string{"#Finance", "home"},
		Favorite: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "file taxes", out.Text)
	assert.Equal(t, "high", out.Priority)
	assert.Equal(t, []string{"finance", "home"}, out.Tags)
	assert.True(t, out.Favorite)
	assert.Equal(t, int64(6), out.Version)

	f.catchUp(t)
	view, err := f.query.Todo(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"finance", "home"}, view.Tags)
	require.NotNil(t, view.DueDate)
	assert.True(t, due.Equal(*view.DueDate))
}

func TestCreateTodo_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := NewCreateTodoUseCase(f.deps).Execute(ctx, CreateTodoInput{ID: "T1", Text: "dup tags", Tags: []string{"a", "A"}})
	assertValidation(t, err, "Tag 'a' already exists")

	_, err = NewCreateTodoUseCase(f.deps).Execute(ctx, CreateTodoInput{ID: "T1", Text: "bad priority", Priority: "someday"})
	assertValidation(t, err, "Priority 'someday' is not valid (use none, low, medium, high or urgent)")

	head, err := f.store.Head(ctx)
	require.NoError(t, err)
	assert.Zero(t, head, "rejected commands store nothing")

	_, err = NewCreateTodoUseCase(f.deps).Execute(ctx, CreateTodoInput{Text: "x", CategoryID: "ghost"})
	assertValidation(t, err, "Category 'ghost' does not exist")
}

func TestTodoCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := NewCreateCategoryUseCase(f.deps).Execute(ctx, CreateCategoryInput{ID: "C1", Name: "Errands"})
	require.NoError(t, err)
	_, err = NewCreateTodoUseCase(f.deps).Execute(ctx, CreateTodoInput{ID: "T1", Text: "buy milk"})
	require.NoError(t, err)

	out, err := NewToggleTodoCompletionUseCase(f.deps).Execute(ctx, ToggleTodoCompletionInput{ID: "T1"})
	require.NoError(t, err)
	assert.True(t, out.Completed())
	require.NotNil(t, out.CompletedAt)

	out, err = NewToggleTodoCompletionUseCase(f.deps).Execute(ctx, ToggleTodoCompletionInput{ID: "T1"})
	require.NoError(t, err)
	assert.False(t, out.Completed())

	out, err = NewToggleFavoriteUseCase(f.deps).Execute(ctx, ToggleFavoriteInput{ID: "T1"})
	require.NoError(t, err)
	assert.True(t, out.Favorite)

	yes := true
	_, err = NewToggleFavoriteUseCase(f.deps).Execute(ctx, ToggleFavoriteInput{ID: "T1", Favorite: &yes})
	assertValidation(t, err, "Todo is already marked as favorite")

	_, err = NewAddTagUseCase(f.deps).Execute(ctx, TagInput{ID: "T1", Tag: "Shop"})
	require.NoError(t, err)
	_, err = NewRemoveTagUseCase(f.deps).Execute(ctx, TagInput{ID: "T1", Tag: "garden"})
	assertValidation(t, err, "Tag 'garden' not found")

	out, err = NewSetPriorityUseCase(f.deps).Execute(ctx, SetPriorityInput{ID: "T1", Priority: "urgent"})
	require.NoError(t, err)
	assert.Equal(t, "urgent", out.Priority)

	due := t0.Add(time.Hour)
	out, err = NewSetDueDateUseCase(f.deps).Execute(ctx, SetDueDateInput{ID: "T1", DueDate: &due})
	require.NoError(t, err)
	require.NotNil(t, out.DueDate)
	out, err = NewSetDueDateUseCase(f.deps).Execute(ctx, SetDueDateInput{ID: "T1"})
	require.NoError(t, err)
	assert.Nil(t, out.DueDate)

	_, err = NewMoveTodoUseCase(f.deps).Execute(ctx, MoveTodoInput{ID: "T1", CategoryID: "ghost"})
	assertValidation(t, err, "Category 'ghost' does not exist")
	out, err = NewMoveTodoUseCase(f.deps).Execute(ctx, MoveTodoInput{ID: "T1", CategoryID: "C1"})
	require.NoError(t, err)
	assert.Equal(t, eventsource.ID("C1"), out.CategoryID)

	_, err = NewUpdateTodoTextUseCase(f.deps).Execute(ctx, UpdateTodoTextInput{ID: "T1", Text: "buy oat milk"})
	require.NoError(t, err)

	f.catchUp(t)
	list, err := f.query.Todos(ctx, query.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "buy oat milk", list[0].Text)
	assert.Equal(t, []string{"shop"}, list[0].Tags)

	_, err = NewDeleteTodoUseCase(f.deps).Execute(ctx, DeleteTodoInput{ID: "T1"})
	require.NoError(t, err)
	_, err = NewUpdateTodoTextUseCase(f.deps).Execute(ctx, UpdateTodoTextInput{ID: "T1", Text: "again"})
	assertValidation(t, err, "Todo has been deleted")

	f.catchUp(t)
	list, err = f.query.Todos(ctx, query.Filter{})
	require.NoError(t, err)
	assert.Empty(t, list, "cache was invalidated by the sync")
}

func TestTodoCategoryTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	create := NewCreateCategoryUseCase(f.deps)

	_, err := create.Execute(ctx, CreateCategoryInput{ID: "A", Name: "Home"})
	require.NoError(t, err)
	f.catchUp(t)
	_, err = create.Execute(ctx, CreateCategoryInput{ID: "B", ParentID: "A", Name: "Garden"})
	require.NoError(t, err)
	f.catchUp(t)

	_, err = create.Execute(ctx, CreateCategoryInput{ParentID: "A", Name: "garden"})
	assertValidation(t, err, "A category named 'garden' already exists here")

	_, err = NewMoveCategoryUseCase(f.deps).Execute(ctx, MoveCategoryInput{ID: "A", ParentID: "B"})
	assertValidation(t, err, "Cannot move a category into its own descendant")

	_, err = NewRenameCategoryUseCase(f.deps).Execute(ctx, RenameCategoryInput{ID: "B", Name: "Yard"})
	require.NoError(t, err)
	f.catchUp(t)

	crumb, err := f.query.Breadcrumb(ctx, query.TodoCategoryTree, "B")
	require.NoError(t, err)
	require.Len(t, crumb, 2)
	assert.Equal(t, "Home / Yard", crumb[1].Path)

	out, err := NewDeleteCategoryUseCase(f.deps).Execute(ctx, DeleteCategoryInput{ID: "A"})
	require.NoError(t, err)
	assert.True(t, out.Deleted)
	f.catchUp(t)

	node, err := f.query.Node(ctx, query.TodoCategoryTree, "B")
	require.NoError(t, err)
	assert.True(t, node.ParentID.IsZero(), "children are promoted when the parent goes")
	assert.Equal(t, "Yard", node.Path)
}

func TestTodoCategory_PromotedChildKeepsRootNamesUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	create := NewCreateCategoryUseCase(f.deps)
	for _, in := range []CreateCategoryInput{
		{ID: "R", Name: "Errands"},
		{ID: "P", Name: "Home"},
		{ID: "C", ParentID: "P", Name: "Garden"},
		{ID: "D", ParentID: "P", Name: "errands"},
	} {
		_, err := create.Execute(ctx, in)
		require.NoError(t, err)
		f.catchUp(t)
	}

	_, err := NewDeleteCategoryUseCase(f.deps).Execute(ctx, DeleteCategoryInput{ID: "P"})
	assertValidation(t, err, "Deleting this category would move 'errands' next to a root category of the same name")

	_, err = NewDeleteCategoryUseCase(f.deps).Execute(ctx, DeleteCategoryInput{ID: "D"})
	require.NoError(t, err)
	f.catchUp(t)
	_, err = NewDeleteCategoryUseCase(f.deps).Execute(ctx, DeleteCategoryInput{ID: "P"})
	require.NoError(t, err)
	f.catchUp(t)

	_, err = NewRenameCategoryUseCase(f.deps).Execute(ctx, RenameCategoryInput{ID: "C", Name: "ERRANDS"})
	assertValidation(t, err, "A category named 'ERRANDS' already exists here")

	out, err := NewRenameCategoryUseCase(f.deps).Execute(ctx, RenameCategoryInput{ID: "C", Name: "Yard"})
	require.NoError(t, err)
	assert.Equal(t, "Yard", out.Name)
}

func TestRunnerPublishesCommittedEvents(t *testing.T) {
	f := newFixture(t)
	var names []string
	f.bus.Subscribe("recorder", func(_ context.Context, e eventsource.Event) error {
		names = append(names, e.EventName())
		return nil
	})

	_, err := NewCreateTodoUseCase(f.deps).Execute(context.Background(), CreateTodoInput{ID: "T1", Text: "call mom", Favorite: true})
	require.NoError(t, err)
	assert.Equal(t, []string{todos.EventTodoCreated, todos.EventTodoFavoriteToggled}, names)
}
