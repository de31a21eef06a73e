package domain

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"changeflow.io/changeflow/internal/pkg/logger"
)

// EventHandler reacts to a committed change. Returning an error is reported
// but the change stays committed.
type EventHandler func(ctx context.Context, event *DomainEvent) error

// EventDispatcher fans committed changes out to in-process subscribers,
// keyed by event type. It is safe for concurrent Register and Dispatch.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]EventHandler
}

// NewEventDispatcher returns a dispatcher with no subscribers.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{subscribers: make(map[EventType][]EventHandler)}
}

// Register subscribes handler to eventType. Handlers run in the order they
// were registered.
func (d *EventDispatcher) Register(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[eventType] = append(d.subscribers[eventType], handler)
}

func (d *EventDispatcher) subscribersOf(eventType EventType) []EventHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.subscribers[eventType])
}

// Dispatch delivers event to every subscriber of its type, even after one
// fails. The first failure is returned wrapped with the event type.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *DomainEvent) error {
	subs := d.subscribersOf(event.EventType)
	if len(subs) == 0 {
		logger.Debug("Event has no subscribers",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var first error
	for i, handle := range subs {
		err := handle(ctx, event)
		if err == nil {
			continue
		}
		logger.Error("Event subscriber failed",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
			zap.String("entity_type", string(event.EntityType)),
			zap.String("entity_id", event.EntityID),
			zap.Int("subscriber", i),
			zap.Error(err),
		)
		if first == nil {
			first = fmt.Errorf("%s subscriber %d: %w", event.EventType, i, err)
		}
	}
	return first
}
