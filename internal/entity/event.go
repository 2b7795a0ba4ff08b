// Structure of the events pushed to realtime clients.

package entity

import (
	"time"

	"github.com/goccy/go-json"
)

// EventName is the type tag of a realtime event.
type EventName string

// Outbound events.
const (
	EventError EventName = "error"

	EventUserOnline  EventName = "user:online"
	EventUserOffline EventName = "user:offline"

	EventItemCreated      EventName = "item:created"
	EventItemUpdated      EventName = "item:updated"
	EventItemDeleted      EventName = "item:deleted"
	EventQuantityChanged  EventName = "quantity:changed"
	EventLowStockAlert    EventName = "lowstock:alert"
	EventOutOfStockAlert  EventName = "outofstock:alert"
	EventMovementCreated  EventName = "movement:created"
	EventCountCompleted   EventName = "count:completed"
	EventBulkComplete     EventName = "bulk:complete"
	EventInventoryReady   EventName = "inventory:subscribed"
	EventSearchResults    EventName = "inventory:search-results"
	EventFilterUpdated    EventName = "filter:updated"
	EventItemEditing      EventName = "item:editing"
	EventItemEditingDone  EventName = "item:editing-done"
	EventBulkInProgress   EventName = "bulk:in-progress"
	EventLowStockAcked    EventName = "lowstock:acknowledged"
	EventUserCreated      EventName = "user:created"
	EventUserUpdated      EventName = "user:updated"
	EventUserDeactivated  EventName = "user:deactivated"
	EventUserRoleChanged  EventName = "user:role-changed"
	EventPasswordChanged  EventName = "user:password-changed"
	EventActivity         EventName = "activity:new"
	EventPresenceUpdated  EventName = "presence:updated"
	EventTypingStarted    EventName = "typing:start"
	EventTypingStopped    EventName = "typing:stop"
	EventLocationUpdated  EventName = "location:updated"
	EventNotificationNew  EventName = "notification:new"
	EventNotificationRead EventName = "notification:read"
	EventAllRead          EventName = "notification:read-all"
	EventSubscribed       EventName = "notifications:subscribed"
	EventNotificationAct  EventName = "notification:action"
	EventSystemAlert      EventName = "system:alert"
)

// Event is one push to clients. It is transient and never persisted.
type Event struct {
	Name      EventName       `json:"event"`
	Payload   json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent serializes payload into an Event stamped with at.
func NewEvent(name EventName, payload interface{}, at time.Time) (Event, error) {
	evt := Event{Name: name, Timestamp: at.UTC()}
	if payload == nil {
		return evt, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return evt, err
	}
	evt.Payload = raw
	return evt, nil
}

// Frame returns the bytes written to the client socket.
func (e Event) Frame() ([]byte, error) {
	return json.Marshal(e)
}

// ErrorPayload is the data of an EventError frame.
type ErrorPayload struct {
	Reason string    `json:"reason"`
	Event  EventName `json:"event,omitempty"`
}

// PresencePayload is the data of presence events.
type PresencePayload struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}
