package domain

import "time"

// EventType defines the type of domain event.
type EventType string

const (
	EventEntityCreated EventType = "ENTITY_CREATED"
	EventStatusChanged EventType = "STATUS_CHANGED"
	EventFieldsUpdated EventType = "FIELDS_UPDATED"
)

// DomainEvent records a change that has already been applied to the store.
type DomainEvent struct {
	EventID    string     `json:"event_id"`
	EventType  EventType  `json:"event_type"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	From       Status     `json:"from,omitempty"`
	To         Status     `json:"to,omitempty"`
	Fields     []string   `json:"fields,omitempty"`
	ActorID    string     `json:"actor_id"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"created_at"`
}
