package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/domain/todos"
)

var at = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := New(nil)
	var (
		mu  sync.Mutex
		got []string
	)
	record := func(prefix string) Handler {
		return func(_ context.Context, e eventsource.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, prefix+":"+e.EventName())
			return nil
		}
	}
	bus.Subscribe("a", record("a"))
	bus.Subscribe("b", record("b"))

	err := bus.Publish(context.Background(),
		todos.TodoCreated{TodoID: "T1", Text: "x", At: at},
		todos.TodoCompleted{TodoID: "T1", At: at},
	)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	want := []string{"a:todo.created", "b:todo.created", "a:todo.completed", "b:todo.completed"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBus_IsolatesFailingSubscribers(t *testing.T) {
	bus := New(nil)
	delivered := 0
	bus.Subscribe("broken", func(context.Context, eventsource.Event) error {
		return errors.New("cache down")
	})
	bus.Subscribe("panics", func(context.Context, eventsource.Event) error {
		panic("boom")
	})
	bus.Subscribe("healthy", func(context.Context, eventsource.Event) error {
		delivered++
		return nil
	})

	err := bus.Publish(context.Background(), todos.TodoDeleted{TodoID: "T1", At: at})
	if err == nil {
		t.Fatal("Publish() error = nil, want joined subscriber errors")
	}
	if delivered != 1 {
		t.Errorf("healthy subscriber called %d times, want 1", delivered)
	}
	if got := bus.Subscribers(); len(got) != 3 || got[2] != "healthy" {
		t.Errorf("Subscribers() = %v", got)
	}
}

func TestBus_SubscribeFromHandler(t *testing.T) {
	bus := New(nil)
	bus.Subscribe("registrar", func(context.Context, eventsource.Event) error {
		bus.Subscribe("late", func(context.Context, eventsource.Event) error { return nil })
		return nil
	})
	if err := bus.Publish(context.Background(), todos.TodoDeleted{TodoID: "T1", At: at}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if n := len(bus.Subscribers()); n != 2 {
		t.Errorf("Subscribers() = %d, want 2", n)
	}
}

func TestDiscard(t *testing.T) {
	if err := (Discard{}).Publish(context.Background(), todos.TodoDeleted{TodoID: "T1"}); err != nil {
		t.Errorf("Discard.Publish() error = %v", err)
	}
}
