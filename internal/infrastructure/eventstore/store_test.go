package eventstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

type storeFactory struct {
	name string
	open func(t *testing.T) eventsource.EventStore
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) eventsource.EventStore { return NewMemoryStore() }},
		{"file", func(t *testing.T) eventsource.EventStore {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "events.jsonl"))
			require.NoError(t, err)
			return s
		}},
		{"sqlite", func(t *testing.T) eventsource.EventStore {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "events.db"))
			require.NoError(t, err)
			return s
		}},
	}
}

func todoRepo(store eventsource.EventStore) *eventsource.Repository[*todos.Todo] {
	return eventsource.NewRepository(store, todos.AggregateTodo, todos.Empty, todos.DecodeTodoEvent)
}

func TestEventStore_Contract(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			t.Run("load missing stream", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				_, _, err := store.Load(context.Background(), "nope")
				assert.ErrorIs(t, err, eventsource.ErrNotFound)
			})

			t.Run("favorite then save then load", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				ctx := context.Background()
				repo := todoRepo(store)

				todo, err := todos.NewTodo("T1", "", "buy milk", t0)
				require.NoError(t, err)
				_, err = repo.Save(ctx, todo)
				require.NoError(t, err)
				assert.Equal(t, int64(1), todo.Version())

				loaded, err := repo.Load(ctx, "T1")
				require.NoError(t, err)
				require.NoError(t, loaded.ToggleFavorite(t0.Add(time.Minute)))
				commit, err := repo.Save(ctx, loaded)
				require.NoError(t, err)
				require.Len(t, commit.Records, 1)
				assert.Equal(t, int64(2), commit.Records[0].Sequence)
				assert.Equal(t, todos.EventTodoFavoriteToggled, commit.Events[0].EventName())
				assert.False(t, loaded.HasPendingEvents())

				reloaded, err := repo.Load(ctx, "T1")
				require.NoError(t, err)
				assert.True(t, reloaded.IsFavorite())
				assert.Equal(t, int64(2), reloaded.Version())
			})

			t.Run("stale save conflicts", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				ctx := context.Background()
				repo := todoRepo(store)

				todo, err := todos.NewTodo("T1", "", "a", t0)
				require.NoError(t, err)
				_, err = repo.Save(ctx, todo)
				require.NoError(t, err)

				first, err := repo.Load(ctx, "T1")
				require.NoError(t, err)
				second, err := repo.Load(ctx, "T1")
				require.NoError(t, err)

				require.NoError(t, first.UpdateText("b", t0))
				_, err = repo.Save(ctx, first)
				require.NoError(t, err)

				require.NoError(t, second.UpdateText("c", t0))
				_, err = repo.Save(ctx, second)
				require.Error(t, err)
				assert.True(t, eventsource.IsConflict(err))
				assert.True(t, second.HasPendingEvents(), "buffer kept after conflict")
				assert.Equal(t, int64(1), second.Version())

				var conflict *eventsource.ConflictError
				if assert.ErrorAs(t, err, &conflict) {
					assert.Equal(t, int64(1), conflict.Expected)
					assert.Equal(t, int64(2), conflict.Actual)
				}
			})

			t.Run("read all in global order", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				ctx := context.Background()

				_, err := store.Append(ctx, todos.AggregateTodo, "A", 0, []eventsource.Event{
					todos.TodoCreated{TodoID: "A", Text: "a", At: t0},
				})
				require.NoError(t, err)
				_, err = store.Append(ctx, todos.AggregateCategory, "C", 0, []eventsource.Event{
					todos.CategoryCreated{CategoryID: "C", Name: "c", At: t0},
				})
				require.NoError(t, err)
				recs, err := store.Append(ctx, todos.AggregateTodo, "A", 1, []eventsource.Event{
					todos.TodoCompleted{TodoID: "A", At: t0},
					todos.TodoReopened{TodoID: "A", At: t0},
				})
				require.NoError(t, err)
				assert.Equal(t, int64(3), recs[0].Position)
				assert.Equal(t, int64(4), recs[1].Position)

				all, err := store.ReadAll(ctx, 0, 0)
				require.NoError(t, err)
				require.Len(t, all, 4)
				for i, rec := range all {
					assert.Equal(t, int64(i+1), rec.Position)
				}
				assert.Equal(t, todos.AggregateCategory, all[1].AggregateType)

				page, err := store.ReadAll(ctx, 1, 2)
				require.NoError(t, err)
				require.Len(t, page, 2)
				assert.Equal(t, int64(2), page[0].Position)

				rest, err := store.ReadAll(ctx, 4, 10)
				require.NoError(t, err)
				assert.Empty(t, rest)

				head, err := store.Head(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(4), head)
			})

			t.Run("append rejects foreign event", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				_, err := store.Append(context.Background(), todos.AggregateTodo, "A", 0, []eventsource.Event{
					todos.TodoCreated{TodoID: "B", Text: "b", At: t0},
				})
				assert.Error(t, err)
			})

			t.Run("load wrong aggregate type", func(t *testing.T) {
				store := f.open(t)
				defer store.Close()
				ctx := context.Background()
				_, err := store.Append(ctx, todos.AggregateCategory, "C", 0, []eventsource.Event{
					todos.CategoryCreated{CategoryID: "C", Name: "c", At: t0},
				})
				require.NoError(t, err)
				_, err = todoRepo(store).Load(ctx, "C")
				assert.ErrorIs(t, err, eventsource.ErrTypeMismatch)
			})
		})
	}
}

func TestEventStore_ConcurrentAppendOneWins(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			store := f.open(t)
			defer store.Close()
			ctx := context.Background()

			_, err := store.Append(ctx, todos.AggregateTodo, "T1", 0, []eventsource.Event{
				todos.TodoCreated{TodoID: "T1", Text: "x", At: t0},
			})
			require.NoError(t, err)

			const writers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Append(ctx, todos.AggregateTodo, "T1", 1, []eventsource.Event{
						todos.TodoCompleted{TodoID: "T1", At: t0},
					})
					if err == nil {
						mu.Lock()
						successes++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			_, version, err := store.Load(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), version)
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal", "events.jsonl")
	ctx := context.Background()

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	todo, err := todos.NewTodo("T1", "", "persist me", t0)
	require.NoError(t, err)
	require.NoError(t, todo.AddTag("durable", t0))
	_, err = todoRepo(store).Save(ctx, todo)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := todoRepo(reopened).Load(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, "persist me", loaded.Text())
	assert.Equal(t, []string{"durable"}, loaded.Tags())
	assert.Equal(t, int64(2), loaded.Version())

	head, err := reopened.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), head)
}

func TestFileStore_DiscardsTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	ctx := context.Background()

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	_, err = store.Append(ctx, todos.AggregateTodo, "T1", 0, []eventsource.Event{
		todos.TodoCreated{TodoID: "T1", Text: "x", At: t0},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"position":2,"aggregate_id":"T1","seq`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, version, err := reopened.Load(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	_, err = reopened.Append(ctx, todos.AggregateTodo, "T1", 1, []eventsource.Event{
		todos.TodoCompleted{TodoID: "T1", At: t0},
	})
	require.NoError(t, err)
	all, err := reopened.ReadAll(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileStore_RejectsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"kind":"notebase-journal","format":"2.0.0","created_at":"2026-01-01T00:00:00Z"}`+"\n"), 0o644))

	_, err := OpenFileStore(path)
	assert.ErrorIs(t, err, ErrJournalFormat)

	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "lock released after failed open")
}

func TestFileStore_WriterLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	writer, err := OpenFileStore(path)
	require.NoError(t, err)

	_, err = OpenFileStore(path)
	assert.ErrorIs(t, err, ErrJournalLocked)

	reader, err := OpenFileStore(path, WithReadOnly())
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()
	_, err = writer.Append(ctx, todos.AggregateTodo, "T1", 0, []eventsource.Event{
		todos.TodoCreated{TodoID: "T1", Text: "x", At: t0},
	})
	require.NoError(t, err)

	head, err := reader.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), head, "reader tails writer appends")

	_, err = reader.Append(ctx, todos.AggregateTodo, "T2", 0, []eventsource.Event{
		todos.TodoCreated{TodoID: "T2", Text: "y", At: t0},
	})
	assert.Error(t, err)

	require.NoError(t, writer.Close())
	again, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("postgres", "", false, nil)
	assert.ErrorContains(t, err, "unknown event store backend")

	store, err := Open(BackendMemory, "", false, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}
