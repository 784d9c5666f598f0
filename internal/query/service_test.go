package query

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
	"github.com/relicta-tech/notebase/internal/infrastructure/projection"
)

var t0 = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

func seeded(t *testing.T, cache Cache) (*Service, *sql.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := projection.OpenReadDB(filepath.Join(t.TempDir(), "read.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := eventstore.NewMemoryStore()
	appendAll := func(aggregateType string, id eventsource.ID, events ...eventsource.Event) {
		_, err := store.Append(ctx, aggregateType, id, 0, events)
		require.NoError(t, err)
	}
	appendAll(notes.AggregateCategory, "A", notes.CategoryCreated{CategoryID: "A", Name: "Work", At: t0})
	appendAll(notes.AggregateCategory, "B", notes.CategoryCreated{CategoryID: "B", ParentID: "A", Name: "Projects", At: t0})
	appendAll(notes.AggregateCategory, "C", notes.CategoryCreated{CategoryID: "C", ParentID: "B", Name: "Drafts", At: t0})
	appendAll(notes.AggregateNote, "N1",
		notes.NoteCreated{NoteID: "N1", CategoryID: "B", Title: "Roadmap", At: t0},
		notes.NotePinned{NoteID: "N1", At: t0})
	appendAll(notes.AggregateNote, "N2", notes.NoteCreated{NoteID: "N2", CategoryID: "B", Title: "Agenda", At: t0})
	appendAll(todos.AggregateTodo, "T1",
		todos.TodoCreated{TodoID: "T1", Text: "buy milk", At: t0},
		todos.TodoTagAdded{TodoID: "T1", Tag: "errand", At: t0})
	appendAll(todos.AggregateTodo, "T2",
		todos.TodoCreated{TodoID: "T2", Text: "file taxes", At: t0.Add(time.Minute)},
		todos.TodoPrioritySet{TodoID: "T2", Priority: todos.PriorityUrgent, At: t0},
		todos.TodoCompleted{TodoID: "T2", At: t0.Add(time.Hour)})
	appendAll(todos.AggregateTodo, "T3",
		todos.TodoCreated{TodoID: "T3", CategoryID: "TC", Text: "water plants", At: t0.Add(2 * time.Minute)},
		todos.TodoFavoriteToggled{TodoID: "T3", IsFavorite: true, At: t0})
	appendAll(todos.AggregateTodo, "T4",
		todos.TodoCreated{TodoID: "T4", Text: "gone", At: t0},
		todos.TodoDeleted{TodoID: "T4", At: t0})

	orch := projection.NewOrchestrator(db, store, projection.DefaultProjectors(nil))
	_, err = orch.CatchUp(ctx)
	require.NoError(t, err)
	return NewService(db, cache, nil), db
}

func ids[T interface{ key() eventsource.ID }](items []T) []eventsource.ID {
	out := make([]eventsource.ID, len(items))
	for i, it := range items {
		out[i] = it.key()
	}
	return out
}

func (n TreeNode) key() eventsource.ID { return n.ID }
func (t TodoView) key() eventsource.ID { return t.ID }

func TestService_TreeQueries(t *testing.T) {
	svc, _ := seeded(t, nil)
	ctx := context.Background()

	tree, err := svc.Tree(ctx, NoteTree)
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"A", "B", "N2", "C", "N1"}, ids(tree))

	roots, err := svc.Children(ctx, NoteTree, "")
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"A"}, ids(roots))

	children, err := svc.Children(ctx, NoteTree, "B")
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"C", "N2", "N1"}, ids(children), "categories before notes, then by name")

	crumb, err := svc.Breadcrumb(ctx, NoteTree, "C")
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"A", "B", "C"}, ids(crumb))
	assert.Equal(t, "Work / Projects / Drafts", crumb[2].Path)

	sub, err := svc.Subtree(ctx, NoteTree, "B")
	require.NoError(t, err)
	assert.ElementsMatch(t, []eventsource.ID{"B", "C", "N1", "N2"}, ids(sub))

	inside, err := svc.IsDescendant(ctx, NoteTree, "A", "C")
	require.NoError(t, err)
	assert.True(t, inside)
	inside, err = svc.IsDescendant(ctx, NoteTree, "C", "A")
	require.NoError(t, err)
	assert.False(t, inside)

	sib, found, err := svc.SiblingNamed(ctx, NoteTree, "B", "  drafts ", "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, eventsource.ID("C"), sib.ID)
	_, found, err = svc.SiblingNamed(ctx, NoteTree, "B", "Roadmap", "")
	require.NoError(t, err)
	assert.False(t, found, "notes do not clash with category names")

	_, err = svc.Node(ctx, NoteTree, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_BreadcrumbTerminatesOnCycle(t *testing.T) {
	svc, db := seeded(t, nil)
	_, err := db.Exec(`UPDATE note_tree SET parent_id = 'C' WHERE id = 'A'`)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Breadcrumb(context.Background(), NoteTree, "C")
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCycle)
	case <-time.After(5 * time.Second):
		t.Fatal("breadcrumb did not terminate")
	}

	_, err = svc.Subtree(context.Background(), NoteTree, "A")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestService_BreadcrumbStopsAtDanglingParent(t *testing.T) {
	svc, db := seeded(t, nil)
	_, err := db.Exec(`DELETE FROM note_tree WHERE id = 'A'`)
	require.NoError(t, err)

	crumb, err := svc.Breadcrumb(context.Background(), NoteTree, "C")
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"B", "C"}, ids(crumb))
}

func TestService_Todos(t *testing.T) {
	svc, _ := seeded(t, nil)
	ctx := context.Background()

	all, err := svc.Todos(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T3", "T2", "T1"}, ids(all), "favorites, then priority, deleted hidden")

	active, err := svc.Todos(ctx, Filter{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T3", "T1"}, ids(active))

	tagged, err := svc.Todos(ctx, Filter{Tag: "#Errand"})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T1"}, ids(tagged))

	uncategorized, err := svc.Todos(ctx, Filter{Uncategorized: true})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T2", "T1"}, ids(uncategorized))

	inCategory, err := svc.Todos(ctx, Filter{CategoryID: "TC", FavoritesOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T3"}, ids(inCategory))

	search, err := svc.Todos(ctx, Filter{Search: "TAX"})
	require.NoError(t, err)
	assert.Equal(t, []eventsource.ID{"T2"}, ids(search))

	todo, err := svc.Todo(ctx, "T2")
	require.NoError(t, err)
	assert.True(t, todo.Completed())
	assert.Equal(t, "urgent", todo.Priority)
	require.NotNil(t, todo.CompletedAt)
	assert.Equal(t, []string{}, todo.Tags)

	_, err = svc.Todo(ctx, "T4")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Notes(t *testing.T) {
	svc, _ := seeded(t, nil)
	list, err := svc.Notes(context.Background(), "B")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, eventsource.ID("N1"), list[0].ID, "pinned first")

	note, err := svc.Note(context.Background(), "N2")
	require.NoError(t, err)
	assert.Equal(t, "Agenda", note.Title)
}

func TestService_ServesFromCacheUntilInvalidated(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	svc, db := seeded(t, cache)
	ctx := context.Background()

	first, err := svc.Todos(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, first, 3)

	_, err = db.Exec(`UPDATE todos SET text = 'changed behind the cache' WHERE id = 'T1'`)
	require.NoError(t, err)

	stale, err := svc.Todos(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, first, stale)

	require.NoError(t, svc.Invalidate(ctx))
	fresh, err := svc.Todos(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "changed behind the cache", fresh[2].Text)
	gen, err := cache.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestService_LoadRacingInvalidationIsNotCached(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	svc, db := seeded(t, cache)
	ctx := context.Background()

	// The load reads the old rows, then a command lands and invalidates
	// before the result would be stored.
	got, err := cached(ctx, svc, "todos:race", func() (string, error) {
		var text string
		if err := db.QueryRow(`SELECT text FROM todos WHERE id = 'T1'`).Scan(&text); err != nil {
			return "", err
		}
		if _, err := db.Exec(`UPDATE todos SET text = 'after the command' WHERE id = 'T1'`); err != nil {
			return "", err
		}
		return text, svc.Invalidate(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", got)
	assert.Zero(t, cache.Len(), "stale result must not be stored")

	fresh, err := cached(ctx, svc, "todos:race", func() (string, error) {
		var text string
		err := db.QueryRow(`SELECT text FROM todos WHERE id = 'T1'`).Scan(&text)
		return text, err
	})
	require.NoError(t, err)
	assert.Equal(t, "after the command", fresh)
}
