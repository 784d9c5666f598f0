package todos

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// sampleTodoEvents returns one event per TodoEvent variant, in a valid order.
func sampleTodoEvents() []TodoEvent {
	due := t0.Add(24 * time.Hour)
	return []TodoEvent{
		TodoCreated{TodoID: "T1", Text: "a", At: t0},
		TodoTextUpdated{TodoID: "T1", Text: "b", At: t0},
		TodoCompleted{TodoID: "T1", At: t0},
		TodoReopened{TodoID: "T1", At: t0},
		TodoFavoriteToggled{TodoID: "T1", IsFavorite: true, At: t0},
		TodoTagAdded{TodoID: "T1", Tag: "x", At: t0},
		TodoTagRemoved{TodoID: "T1", Tag: "x", At: t0},
		TodoDueDateSet{TodoID: "T1", DueDate: &due, At: t0},
		TodoPrioritySet{TodoID: "T1", Priority: PriorityLow, At: t0},
		TodoMoved{TodoID: "T1", CategoryID: "C1", At: t0},
		TodoDeleted{TodoID: "T1", At: t0},
	}
}

func sampleCategoryEvents() []CategoryEvent {
	return []CategoryEvent{
		CategoryCreated{CategoryID: "C1", Name: "Home", At: t0},
		CategoryRenamed{CategoryID: "C1", Name: "House", At: t0},
		CategoryMoved{CategoryID: "C1", ParentID: "C0", At: t0},
		CategoryDeleted{CategoryID: "C1", At: t0},
	}
}

func TestTodoEventNames_AllDecodeAndApply(t *testing.T) {
	samples := sampleTodoEvents()
	names := TodoEventNames()
	if len(samples) != len(names) {
		t.Fatalf("%d sample events for %d event names", len(samples), len(names))
	}

	todo := Empty()
	for i, name := range names {
		if samples[i].EventName() != name {
			t.Fatalf("sample %d is %s, want %s", i, samples[i].EventName(), name)
		}
		payload, err := json.Marshal(samples[i])
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := DecodeTodoEvent(name, payload)
		if err != nil {
			t.Fatalf("DecodeTodoEvent(%s) error = %v", name, err)
		}
		if decoded.AggregateID() != "T1" {
			t.Errorf("%s decoded with aggregate id %q", name, decoded.AggregateID())
		}
		if err := todo.Apply(decoded); err != nil {
			t.Errorf("Apply(%s) error = %v", name, err)
		}
	}
	if !todo.IsDeleted() {
		t.Errorf("final status = %v, want deleted", todo.Status())
	}
}

func TestCategoryEventNames_AllDecodeAndApply(t *testing.T) {
	samples := sampleCategoryEvents()
	names := CategoryEventNames()
	if len(samples) != len(names) {
		t.Fatalf("%d sample events for %d event names", len(samples), len(names))
	}

	c := EmptyCategory()
	for i, name := range names {
		payload, err := json.Marshal(samples[i])
		if err != nil {
			t.Fatal(err)
		}
		decoded, err := DecodeCategoryEvent(name, payload)
		if err != nil {
			t.Fatalf("DecodeCategoryEvent(%s) error = %v", name, err)
		}
		if err := c.Apply(decoded); err != nil {
			t.Errorf("Apply(%s) error = %v", name, err)
		}
	}
	if c.ParentID() != "C0" || c.Name() != "House" || !c.IsDeleted() {
		t.Errorf("final category = parent %q name %q deleted %v", c.ParentID(), c.Name(), c.IsDeleted())
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := DecodeTodoEvent("todo.archived", []byte(`{}`))
	if !errors.Is(err, eventsource.ErrUnknownEvent) {
		t.Errorf("DecodeTodoEvent(unknown) error = %v", err)
	}
	_, err = DecodeCategoryEvent(EventTodoCreated, []byte(`{}`))
	if !errors.Is(err, eventsource.ErrUnknownEvent) {
		t.Errorf("DecodeCategoryEvent(todo event) error = %v", err)
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	if _, err := DecodeTodoEvent(EventTodoCreated, []byte(`{"todo_id":`)); err == nil {
		t.Errorf("expected error for truncated payload")
	}
}
