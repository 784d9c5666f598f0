package notes

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

var t0 = time.Date(2026, 2, 14, 8, 30, 0, 0, time.UTC)

func ruleMessage(t *testing.T, err error) string {
	t.Helper()
	re, ok := eventsource.AsRuleError(err)
	require.True(t, ok, "expected RuleError, got %v", err)
	return re.Message
}

func TestCategory_Lifecycle(t *testing.T) {
	c, err := NewCategory("A", "", "Work", t0)
	require.NoError(t, err)
	c.MarkCommitted()

	assert.Equal(t, "Category cannot be its own parent", ruleMessage(t, c.MoveTo("A", t0)))
	assert.ErrorIs(t, c.MoveTo("A", t0), ErrSelfParent)
	assert.False(t, c.HasPendingEvents())

	require.NoError(t, c.MoveTo("B", t0.Add(time.Second)))
	require.NoError(t, c.Rename("Projects", t0.Add(2*time.Second)))
	assert.Equal(t, eventsource.ID("B"), c.ParentID())
	assert.Equal(t, "Projects", c.Name())
	assert.Equal(t, t0.Add(2*time.Second), c.UpdatedAt())

	require.NoError(t, c.Delete(t0))
	assert.Equal(t, "Category has been deleted", ruleMessage(t, c.Rename("x", t0)))
}

func TestNewCategory_Rejects(t *testing.T) {
	_, err := NewCategory("A", "A", "Work", t0)
	assert.Equal(t, "Category cannot be its own parent", ruleMessage(t, err))

	_, err = NewCategory("A", "", "  ", t0)
	assert.Equal(t, "Category name cannot be empty", ruleMessage(t, err))

	_, err = NewCategory("A", "", strings.Repeat("x", 256), t0)
	assert.Equal(t, "Category name cannot exceed 255 characters", ruleMessage(t, err))
}

func TestNote_Operations(t *testing.T) {
	n, err := NewNote("N1", "A", "Groceries", t0)
	require.NoError(t, err)
	n.MarkCommitted()

	require.NoError(t, n.UpdateContent("- milk", t0))
	require.NoError(t, n.UpdateContent("- milk", t0), "identical content is a no-op")
	assert.Len(t, n.PendingEvents(), 1)

	err = n.UpdateContent(strings.Repeat("x", MaxContentBytes+1), t0)
	assert.ErrorIs(t, err, ErrInvalidContent)

	require.NoError(t, n.Pin(t0))
	assert.Equal(t, "Note is already pinned", ruleMessage(t, n.Pin(t0)))
	require.NoError(t, n.Unpin(t0))
	assert.Equal(t, "Note is not pinned", ruleMessage(t, n.Unpin(t0)))

	assert.Equal(t, "Note is already titled 'Groceries'", ruleMessage(t, n.Rename(" Groceries ", t0)))
	require.NoError(t, n.MoveTo("", t0))
	assert.True(t, n.CategoryID().IsZero())

	require.NoError(t, n.Delete(t0))
	assert.Equal(t, "Note has been deleted", ruleMessage(t, n.Pin(t0)))

	n.MarkCommitted()
	assert.Equal(t, int64(6), n.Version())
}

func TestEventNames_AllDecodeAndApply(t *testing.T) {
	categoryEvents := []CategoryEvent{
		CategoryCreated{CategoryID: "A", Name: "Work", At: t0},
		CategoryRenamed{CategoryID: "A", Name: "Jobs", At: t0},
		CategoryMoved{CategoryID: "A", ParentID: "R", At: t0},
		CategoryDeleted{CategoryID: "A", At: t0},
	}
	noteEvents := []NoteEvent{
		NoteCreated{NoteID: "N1", Title: "t", At: t0},
		NoteRenamed{NoteID: "N1", Title: "u", At: t0},
		NoteMoved{NoteID: "N1", CategoryID: "A", At: t0},
		NoteContentUpdated{NoteID: "N1", Content: "body", At: t0},
		NotePinned{NoteID: "N1", At: t0},
		NoteUnpinned{NoteID: "N1", At: t0},
		NoteDeleted{NoteID: "N1", At: t0},
	}
	require.Len(t, categoryEvents, len(CategoryEventNames()))
	require.Len(t, noteEvents, len(NoteEventNames()))

	c := EmptyCategory()
	for i, name := range CategoryEventNames() {
		require.Equal(t, name, categoryEvents[i].EventName())
		payload, err := json.Marshal(categoryEvents[i])
		require.NoError(t, err)
		decoded, err := DecodeCategoryEvent(name, payload)
		require.NoError(t, err, name)
		require.NoError(t, c.Apply(decoded), name)
	}
	assert.True(t, c.IsDeleted())

	n := EmptyNote()
	for i, name := range NoteEventNames() {
		require.Equal(t, name, noteEvents[i].EventName())
		payload, err := json.Marshal(noteEvents[i])
		require.NoError(t, err)
		decoded, err := DecodeNoteEvent(name, payload)
		require.NoError(t, err, name)
		require.NoError(t, n.Apply(decoded), name)
	}
	assert.Equal(t, "body", n.Content())
	assert.True(t, n.IsDeleted())

	_, err := DecodeNoteEvent(EventCategoryCreated, []byte(`{}`))
	assert.ErrorIs(t, err, eventsource.ErrUnknownEvent)
	assert.ErrorIs(t, n.Apply(CategoryDeleted{CategoryID: "A"}), eventsource.ErrUnknownEvent)
}

func TestNote_ReplayMatchesLiveState(t *testing.T) {
	n, err := NewNote("N1", "", "Draft", t0)
	require.NoError(t, err)
	require.NoError(t, n.UpdateContent("hello", t0.Add(time.Minute)))
	require.NoError(t, n.Pin(t0.Add(2*time.Minute)))
	require.NoError(t, n.Rename("Final", t0.Add(3*time.Minute)))

	records, err := eventsource.EncodeRecords(AggregateNote, n.ID(), 0, n.PendingEvents(), t0)
	require.NoError(t, err)

	replayed, err := eventsource.Replay(EmptyNote(), records, DecodeNoteEvent)
	require.NoError(t, err)
	assert.Equal(t, n.Title(), replayed.Title())
	assert.Equal(t, n.Content(), replayed.Content())
	assert.Equal(t, n.IsPinned(), replayed.IsPinned())
	assert.Equal(t, n.UpdatedAt(), replayed.UpdatedAt())
	assert.Equal(t, int64(4), replayed.Version())
}
