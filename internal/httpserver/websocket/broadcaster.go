package websocket

import (
	"context"
	"time"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	"github.com/relicta-tech/notebase/internal/httpserver/dto"
)

// MessageSynced is sent after the read database caught up with the journal.
const MessageSynced = "projections.synced"

// EventBroadcaster forwards committed domain events to connected WebSocket
// clients. Its Handle method is an event bus subscriber.
type EventBroadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, now: time.Now}
}

// Handle broadcasts one event. The message type is the event name.
func (b *EventBroadcaster) Handle(_ context.Context, event eventsource.Event) error {
	b.hub.Broadcast(eventToMessage(event))
	return nil
}

// Publish broadcasts events in order.
func (b *EventBroadcaster) Publish(ctx context.Context, events ...eventsource.Event) error {
	for _, event := range events {
		if err := b.Handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Synced tells clients the read side now reflects the journal up to head.
func (b *EventBroadcaster) Synced(head int64) {
	b.hub.Broadcast(Message{
		Type: MessageSynced,
		Payload: dto.WebSocketSyncDTO{
			Head:      head,
			Timestamp: b.now().UTC(),
		},
	})
}

func eventToMessage(event eventsource.Event) Message {
	return Message{
		Type: event.EventName(),
		Payload: dto.WebSocketEventDTO{
			EventName:   event.EventName(),
			AggregateID: event.AggregateID().String(),
			OccurredAt:  event.OccurredAt().UTC(),
			Data:        event,
		},
	}
}
