// Package eventbus provides an in-process publisher that fans committed
// domain events out to named subscribers.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

// Handler reacts to one committed event.
type Handler func(ctx context.Context, event eventsource.Event) error

type subscription struct {
	name    string
	handler Handler
}

// Bus delivers events synchronously to every subscriber, in subscription
// order. A failing or panicking subscriber never prevents delivery to the
// others.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// New creates a bus that logs subscriber failures to logger.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make([]subscription, 0, 2),
		logger: logger,
	}
}

// Subscribe registers handler under name.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: handler})
}

// Subscribers returns the registered subscriber names.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.name
	}
	return names
}

// Publish delivers events to all subscribers. Failures are logged and joined
// into the returned error for reporting only; callers must not treat it as a
// failure of the command that produced the events.
func (b *Bus) Publish(ctx context.Context, events ...eventsource.Event) error {
	// Copy subscribers so handlers run without holding the lock and may
	// subscribe or publish themselves.
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	for _, event := range events {
		for _, sub := range subs {
			if err := deliver(ctx, sub, event); err != nil {
				b.logger.Warn("event subscriber failed",
					"subscriber", sub.name,
					"event", event.EventName(),
					"aggregate_id", event.AggregateID(),
					"error", err)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func deliver(ctx context.Context, sub subscription, event eventsource.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", sub.name, r)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		return fmt.Errorf("subscriber %s: %w", sub.name, err)
	}
	return nil
}

// Discard is a publisher that drops every event.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish(context.Context, ...eventsource.Event) error {
	return nil
}
