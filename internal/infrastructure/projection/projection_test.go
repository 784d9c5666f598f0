package projection

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/notes"
	"github.com/relicta-tech/notebase/internal/domain/todos"
	"github.com/relicta-tech/notebase/internal/infrastructure/eventstore"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db     *sql.DB
	store  eventsource.EventStore
	orch   *Orchestrator
	logs   *bytes.Buffer
	logger *slog.Logger
}

func newFixture(t *testing.T, store eventsource.EventStore) *fixture {
	t.Helper()
	db, err := OpenReadDB(filepath.Join(t.TempDir(), "read.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if store == nil {
		store = eventstore.NewMemoryStore()
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &fixture{
		db:     db,
		store:  store,
		orch:   NewOrchestrator(db, store, DefaultProjectors(logger), WithLogger(logger), WithBatchSize(3)),
		logs:   &logs,
		logger: logger,
	}
}

func (f *fixture) append(t *testing.T, aggregateType string, id eventsource.ID, events ...eventsource.Event) {
	t.Helper()
	_, version, err := f.store.Load(context.Background(), id)
	if err != nil && !errors.Is(err, eventsource.ErrNotFound) {
		require.NoError(t, err)
	}
	_, err = f.store.Append(context.Background(), aggregateType, id, version, events)
	require.NoError(t, err)
}

func (f *fixture) category(t *testing.T, id, parent eventsource.ID, name string) {
	t.Helper()
	f.append(t, notes.AggregateCategory, id, notes.CategoryCreated{CategoryID: id, ParentID: parent, Name: name, At: t0})
}

type treeRow struct {
	Parent string
	Name   string
	Type   string
	Path   string
}

func treeRows(t *testing.T, db *sql.DB, table string) map[string]treeRow {
	t.Helper()
	rows, err := db.Query(`SELECT id, COALESCE(parent_id, ''), name, node_type, path FROM ` + table)
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]treeRow{}
	for rows.Next() {
		var id string
		var r treeRow
		require.NoError(t, rows.Scan(&id, &r.Parent, &r.Name, &r.Type, &r.Path))
		out[id] = r
	}
	require.NoError(t, rows.Err())
	return out
}

type todoSnapshot struct {
	Category, Text, Status, Tags, Priority string
	Favorite                               bool
	Version                                int64
}

func todoRows(t *testing.T, db *sql.DB) map[string]todoSnapshot {
	t.Helper()
	rows, err := db.Query(`SELECT id, COALESCE(category_id, ''), text, status, tags, priority, favorite, version FROM todos`)
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]todoSnapshot{}
	for rows.Next() {
		var id string
		var s todoSnapshot
		require.NoError(t, rows.Scan(&id, &s.Category, &s.Text, &s.Status, &s.Tags, &s.Priority, &s.Favorite, &s.Version))
		out[id] = s
	}
	require.NoError(t, rows.Err())
	return out
}

func seedNotebook(t *testing.T, f *fixture) {
	t.Helper()
	f.category(t, "A", "", "Work")
	f.category(t, "B", "A", "Projects")
	f.append(t, notes.AggregateNote, "N1",
		notes.NoteCreated{NoteID: "N1", CategoryID: "B", Title: "Roadmap", At: t0},
		notes.NoteContentUpdated{NoteID: "N1", Content: "# Q3", At: t0.Add(time.Minute)},
		notes.NotePinned{NoteID: "N1", At: t0.Add(2 * time.Minute)},
	)
	f.append(t, todos.AggregateCategory, "TC1", todos.CategoryCreated{CategoryID: "TC1", Name: "Home", At: t0})
	f.append(t, todos.AggregateTodo, "T1",
		todos.TodoCreated{TodoID: "T1", CategoryID: "TC1", Text: "buy milk", At: t0},
		todos.TodoTagAdded{TodoID: "T1", Tag: "errand", At: t0},
		todos.TodoFavoriteToggled{TodoID: "T1", IsFavorite: true, At: t0},
		todos.TodoCompleted{TodoID: "T1", At: t0.Add(time.Hour)},
	)
}

func TestCatchUp_FoldsTreesAndPaths(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)

	n, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)
	// 10 records; note events feed both the tree and the notes table.
	assert.Equal(t, 13, n)

	tree := treeRows(t, f.db, NoteTreeTable)
	require.Len(t, tree, 3)
	assert.Equal(t, treeRow{Parent: "", Name: "Work", Type: NodeCategory, Path: "Work"}, tree["A"])
	assert.Equal(t, "A", tree["B"].Parent)
	assert.Equal(t, JoinPath("Work", "Projects", "Roadmap"), tree["N1"].Path)
	assert.Equal(t, NodeNote, tree["N1"].Type)

	todoTree := treeRows(t, f.db, TodoCategoryTreeTable)
	assert.Equal(t, "Home", todoTree["TC1"].Path)

	todo := todoRows(t, f.db)["T1"]
	assert.Equal(t, todoSnapshot{Category: "TC1", Text: "buy milk", Status: "completed", Tags: `["errand"]`, Priority: "none", Favorite: true, Version: 4}, todo)

	var pinned bool
	var content string
	require.NoError(t, f.db.QueryRow(`SELECT pinned, content FROM notes WHERE id = 'N1'`).Scan(&pinned, &content))
	assert.True(t, pinned)
	assert.Equal(t, "# Q3", content)

	again, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again, "nothing left to fold")
}

func TestCatchUp_RenameAndMoveRecomputeSubtreePaths(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	f.category(t, "C", "", "Archive")
	f.append(t, notes.AggregateCategory, "A", notes.CategoryRenamed{CategoryID: "A", Name: "Job", At: t0})
	f.append(t, notes.AggregateCategory, "B", notes.CategoryMoved{CategoryID: "B", ParentID: "C", At: t0})

	_, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)

	tree := treeRows(t, f.db, NoteTreeTable)
	assert.Equal(t, "Job", tree["A"].Path)
	assert.Equal(t, "Archive / Projects", tree["B"].Path)
	assert.Equal(t, "Archive / Projects / Roadmap", tree["N1"].Path)
}

func TestTreeProjector_FoldingIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	f.append(t, notes.AggregateCategory, "A", notes.CategoryRenamed{CategoryID: "A", Name: "Job", At: t0})
	f.append(t, notes.AggregateCategory, "A", notes.CategoryDeleted{CategoryID: "A", At: t0})
	f.append(t, todos.AggregateTodo, "T1",
		todos.TodoTagRemoved{TodoID: "T1", Tag: "errand", At: t0},
		todos.TodoReopened{TodoID: "T1", At: t0},
	)

	once := newFixture(t, f.store)
	_, err := once.orch.CatchUp(context.Background())
	require.NoError(t, err)

	twice := newFixture(t, f.store)
	records, err := f.store.ReadAll(context.Background(), 0, 0)
	require.NoError(t, err)
	ctx := context.Background()
	for _, rec := range records {
		for _, p := range twice.orch.Projectors() {
			if !p.Handles(rec.AggregateType) {
				continue
			}
			for i := 0; i < 2; i++ {
				tx, err := twice.db.BeginTx(ctx, nil)
				require.NoError(t, err)
				require.NoError(t, p.Apply(ctx, tx, rec), "%s %s", p.Name(), rec.EventName)
				require.NoError(t, tx.Commit())
			}
		}
	}

	assert.Equal(t, treeRows(t, once.db, NoteTreeTable), treeRows(t, twice.db, NoteTreeTable))
	assert.Equal(t, todoRows(t, once.db), todoRows(t, twice.db))
	assert.Equal(t, `[]`, todoRows(t, twice.db)["T1"].Tags)
}

func TestRebuild_MatchesIncrementalCatchUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	seedNotebook(t, f)
	_, err := f.orch.CatchUp(ctx)
	require.NoError(t, err)
	f.category(t, "C", "B", "Drafts")
	f.append(t, notes.AggregateNote, "N1", notes.NoteMoved{NoteID: "N1", CategoryID: "C", At: t0})
	_, err = f.orch.CatchUp(ctx)
	require.NoError(t, err)

	incremental := treeRows(t, f.db, NoteTreeTable)
	incrementalTodos := todoRows(t, f.db)

	n, err := f.orch.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	assert.Equal(t, incremental, treeRows(t, f.db, NoteTreeTable))
	assert.Equal(t, incrementalTodos, todoRows(t, f.db))
}

func TestCatchUp_RejectsCycleAndKeepsGoing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.category(t, "A", "", "Work")
	f.category(t, "B", "A", "Projects")
	// Written past the domain checks: A under its own child.
	f.append(t, notes.AggregateCategory, "A", notes.CategoryMoved{CategoryID: "A", ParentID: "B", At: t0})
	f.category(t, "C", "", "Later")

	_, err := f.orch.CatchUp(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTreeViolation)

	tree := treeRows(t, f.db, NoteTreeTable)
	assert.Equal(t, "", tree["A"].Parent, "cyclic move not written")
	assert.Contains(t, tree, "C", "records after the violation still folded")

	rejections, err := f.orch.Rejections(ctx)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, eventsource.ID("A"), rejections[0].AggregateID)
	assert.Equal(t, notes.EventCategoryMoved, rejections[0].EventName)
	assert.Contains(t, rejections[0].Reason, "descendant")

	status, err := f.orch.Status(ctx)
	require.NoError(t, err)
	for _, s := range status {
		assert.Zero(t, s.Lag, s.Name)
	}
	assert.Equal(t, 1, status[0].Rejections)
	assert.Contains(t, f.logs.String(), "projection rejected event")

	_, err = f.orch.CatchUp(ctx)
	assert.NoError(t, err, "quarantined record is not retried")
}

func TestCatchUp_RejectsSelfParent(t *testing.T) {
	f := newFixture(t, nil)
	f.append(t, todos.AggregateCategory, "X",
		todos.CategoryCreated{CategoryID: "X", ParentID: "X", Name: "Loop", At: t0})

	_, err := f.orch.CatchUp(context.Background())
	assert.ErrorIs(t, err, ErrTreeViolation)
	assert.Empty(t, treeRows(t, f.db, TodoCategoryTreeTable))
}

func TestCatchUp_MissingParentStoredAsRoot(t *testing.T) {
	f := newFixture(t, nil)
	f.category(t, "B", "ghost", "Projects")

	_, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, treeRow{Name: "Projects", Type: NodeCategory, Path: "Projects"}, treeRows(t, f.db, NoteTreeTable)["B"])
	assert.Contains(t, f.logs.String(), "parent not projected")
}

func TestCatchUp_DeletePromotesChildren(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	f.append(t, notes.AggregateCategory, "A", notes.CategoryDeleted{CategoryID: "A", At: t0})

	_, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)

	tree := treeRows(t, f.db, NoteTreeTable)
	assert.NotContains(t, tree, "A")
	assert.Equal(t, "", tree["B"].Parent)
	assert.Equal(t, "Projects", tree["B"].Path)
	assert.Equal(t, "Projects / Roadmap", tree["N1"].Path)
}

type flakyStore struct {
	eventsource.EventStore
	fail atomic.Bool
}

func (s *flakyStore) ReadAll(ctx context.Context, after int64, limit int) ([]eventsource.Record, error) {
	if s.fail.Load() {
		return nil, errors.New("disk I/O error")
	}
	return s.EventStore.ReadAll(ctx, after, limit)
}

func TestCatchUp_FailureThenReconcileWithoutDuplicates(t *testing.T) {
	store := &flakyStore{EventStore: eventstore.NewMemoryStore()}
	f := newFixture(t, store)
	ctx := context.Background()

	seedNotebook(t, f)
	_, err := f.orch.CatchUp(ctx)
	require.NoError(t, err)

	f.append(t, todos.AggregateTodo, "T1", todos.TodoTagAdded{TodoID: "T1", Tag: "weekly", At: t0})
	f.append(t, todos.AggregateTodo, "T2", todos.TodoCreated{TodoID: "T2", Text: "call mom", At: t0})
	store.fail.Store(true)
	_, err = f.orch.CatchUp(ctx)
	require.Error(t, err)
	assert.Len(t, todoRows(t, f.db), 1, "projection stale after failure")

	store.fail.Store(false)
	n, err := f.orch.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows := todoRows(t, f.db)
	assert.Len(t, rows, 2)
	assert.Equal(t, `["errand","weekly"]`, rows["T1"].Tags)
}

func TestCatchUp_RebuildsWhenAheadOfStore(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	_, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)

	// Same read database, new empty log.
	fresh := NewOrchestrator(f.db, eventstore.NewMemoryStore(), DefaultProjectors(f.logger), WithLogger(f.logger))
	_, err = fresh.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Empty(t, treeRows(t, f.db, NoteTreeTable))
	assert.Empty(t, todoRows(t, f.db))
	assert.Contains(t, f.logs.String(), "ahead of the event store")
}

func TestTodoProjector_DeleteLeavesTombstone(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)
	f.append(t, todos.AggregateTodo, "T1", todos.TodoDeleted{TodoID: "T1", At: t0})

	_, err := f.orch.CatchUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deleted", todoRows(t, f.db)["T1"].Status)
}

func TestStatus_ReportsLag(t *testing.T) {
	f := newFixture(t, nil)
	seedNotebook(t, f)

	status, err := f.orch.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 4)
	for _, s := range status {
		assert.Equal(t, int64(10), s.Head)
		assert.Equal(t, int64(10), s.Lag)
	}

	_, err = f.orch.CatchUp(context.Background())
	require.NoError(t, err)
	status, err = f.orch.Status(context.Background())
	require.NoError(t, err)
	for _, s := range status {
		assert.Equal(t, int64(10), s.Position, s.Name)
	}
}
