package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
)

type testEvent struct {
	ID    eventsource.ID `json:"id"`
	Title string         `json:"title"`
	At    time.Time      `json:"at"`
}

func (e testEvent) EventName() string { return "note.created" }
func (e testEvent) OccurredAt() time.Time { return e.At }
func (e testEvent) AggregateID() eventsource.ID { return e.ID }

func TestEventBroadcaster_PublishWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	broadcaster := NewEventBroadcaster(hub)

	err := broadcaster.Publish(context.Background(), testEvent{ID: "n1", Title: "a", At: time.Now()})
	if err != nil {
		t.Errorf("Publish returned error: %v", err)
	}
}

func TestEventToMessage(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := eventToMessage(testEvent{ID: "n1", Title: "Groceries", At: at})

	if msg.Type != "note.created" {
		t.Errorf("Type = %q", msg.Type)
	}
	payload, ok := msg.Payload.(dto.WebSocketEventDTO)
	if !ok {
		t.Fatalf("payload is %T", msg.Payload)
	}
	if payload.AggregateID != "n1" {
		t.Errorf("AggregateID = %q", payload.AggregateID)
	}
	if payload.OccurredAt.Location() != time.UTC {
		t.Errorf("OccurredAt should be UTC, got %v", payload.OccurredAt)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Payload struct {
			Data struct {
				Title string `json:"title"`
			} `json:"data"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Payload.Data.Title != "Groceries" {
		t.Errorf("event body not carried: %s", data)
	}
}

func TestEventBroadcaster_Synced(t *testing.T) {
	hub := NewHub(nil, nil)
	broadcaster := NewEventBroadcaster(hub)
	broadcaster.now = func() time.Time { return time.Unix(0, 0) }

	broadcaster.Synced(42)

	select {
	case data := <-hub.broadcast:
		var msg struct {
			Type    string               `json:"type"`
			Payload dto.WebSocketSyncDTO `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != MessageSynced || msg.Payload.Head != 42 {
			t.Errorf("unexpected message %+v", msg)
		}
	default:
		t.Fatal("nothing was queued")
	}
}

func TestHub_BroadcastAfterCloseIsDropped(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Close()
	hub.Close()

	hub.Broadcast(Message{Type: "x"})
	if len(hub.broadcast) != 0 {
		t.Error("broadcast after Close should be dropped")
	}

	rec := httptest.NewRecorder()
	hub.HandleConnection(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after Close, got %d", rec.Code)
	}
}

func TestHub_RunStopsOnContext(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if !hub.closed() {
		t.Error("hub should be closed after Run returns")
	}
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin", "", nil, true},
		{"same host", "http://example.com", nil, true},
		{"listed", "http://app.test", []string{"http://app.test"}, true},
		{"wildcard", "http://evil.test", []string{"*"}, true},
		{"foreign", "http://evil.test", []string{"http://app.test"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originAllowed(req, tt.allowed); got != tt.want {
				t.Errorf("originAllowed() = %v, want %v", got, tt.want)
			}
		})
	}
}
