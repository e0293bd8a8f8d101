package core

import (
	"sync"
	"time"
)

// Event represents a state change published by the coordinators
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time time.Time   `json:"time"`
}

// Event type constants
const (
	EventServerStatus     = "server_status"
	EventServerLog        = "server_log"
	EventOptionsChanged   = "options_changed"
	EventSelectionChanged = "selection_changed"
	EventNotification     = "notification"
	EventChatEntry        = "chat_entry"
	EventChatState        = "chat_state"
	EventModelsRefreshed  = "models_refreshed"
	EventConfigUpdated    = "config_updated"
	EventError            = "error"

	// EventAll subscribes to every event type.
	EventAll = "*"
)

// EventBus manages event subscriptions and emissions
type EventBus struct {
	subscribers map[string][]chan Event
	mutex       sync.RWMutex
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe subscribes to events of a specific type, or to all of them with EventAll
func (eb *EventBus) Subscribe(eventType string) <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, 64)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// Emit emits an event to all subscribers. Subscribers that are not keeping
// up miss the event rather than block the publisher.
func (eb *EventBus) Emit(event Event) {
	if eb == nil {
		return
	}
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	if eb.closed {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	deliver := func(subscribers []chan Event) {
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
			}
		}
	}
	deliver(eb.subscribers[event.Type])
	if event.Type != EventAll {
		deliver(eb.subscribers[EventAll])
	}
}

// Publish is shorthand for emitting an event stamped with the current time.
func (eb *EventBus) Publish(eventType string, data interface{}) {
	eb.Emit(Event{Type: eventType, Data: data, Time: time.Now()})
}

// Close closes the event bus and all subscriber channels
func (eb *EventBus) Close() {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, subscribers := range eb.subscribers {
		for _, ch := range subscribers {
			close(ch)
		}
	}

	eb.subscribers = make(map[string][]chan Event)
}

// GetSubscriberCount returns the number of subscribers for a given event type
func (eb *EventBus) GetSubscriberCount(eventType string) int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	return len(eb.subscribers[eventType])
}
