// Package events provides the event log for the custody server.
// Every booking and release transition is recorded here as an immutable entry.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a custody event.
type EventType string

const (
	EventTypeTimeTick         EventType = "TIME_TICK"
	EventTypeBookingStarted   EventType = "BOOKING_STARTED"
	EventTypeBookingStep      EventType = "BOOKING_STEP"
	EventTypeBookingComplete  EventType = "BOOKING_COMPLETE"
	EventTypeBookingFinished  EventType = "BOOKING_FINISHED"
	EventTypeBookingCancelled EventType = "BOOKING_CANCELLED"
	EventTypeEscortRequested  EventType = "ESCORT_REQUESTED"
	EventTypeEscortFallback   EventType = "ESCORT_FALLBACK"
	EventTypeCellAssigned     EventType = "CELL_ASSIGNED"
	EventTypeCellReleased     EventType = "CELL_RELEASED"
	EventTypeCustodyStarted   EventType = "CUSTODY_STARTED"
	EventTypeOffenseRecorded  EventType = "OFFENSE_RECORDED"
	EventTypeReleaseRequested EventType = "RELEASE_REQUESTED"
	EventTypeReleaseQueued    EventType = "RELEASE_QUEUED"
	EventTypeReleaseStatus    EventType = "RELEASE_STATUS"
	EventTypeReleaseCompleted EventType = "RELEASE_COMPLETED"
	EventTypeReleaseFailed    EventType = "RELEASE_FAILED"
	EventTypeReleaseCancelled EventType = "RELEASE_CANCELLED"
	EventTypeEmergencyRelease EventType = "EMERGENCY_RELEASE"
	EventTypeSupervisionStart EventType = "SUPERVISION_STARTED"
	EventTypeNotification     EventType = "NOTIFICATION"
)

// DetentionEvent represents an immutable record of a custody action.
type DetentionEvent struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       EventType   `json:"type"`
	ActorID    string      `json:"actor_id"`  // Who the event concerns
	TargetID   string      `json:"target_id"` // Secondary subject (optional)
	Payload    interface{} `json:"payload"`   // Event-specific data
	CustodyDay int         `json:"custody_day"`
}

// Handler reacts to an appended event. Handlers run synchronously on the
// appending goroutine and may append further events.
type Handler func(event DetentionEvent)

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event DetentionEvent) error
}

// EventLog is the in-memory append-only log of custody events.
type EventLog struct {
	mu        sync.RWMutex
	events    []DetentionEvent
	persister EventPersister
	handlers  map[EventType][]Handler
}

// NewEventLog creates a new event log with an optional persister.
func NewEventLog(persister EventPersister) *EventLog {
	return &EventLog{
		events:    make([]DetentionEvent, 0),
		persister: persister,
		handlers:  make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for an event type. Not safe to call once
// Append traffic has started; wiring happens at composition time.
func (el *EventLog) Subscribe(t EventType, h Handler) {
	el.handlers[t] = append(el.handlers[t], h)
}

// Append adds a new event to the log. Events are immutable once appended.
func (el *EventLog) Append(event DetentionEvent) {
	el.mu.Lock()
	el.events = append(el.events, event)
	handlers := el.handlers[event.Type]
	el.mu.Unlock()

	if el.persister != nil {
		// Write through to persistent storage
		go func(e DetentionEvent) {
			_ = el.persister.Append(e)
		}(event)
	}

	// Dispatch outside the lock so handlers can append follow-up events.
	for _, h := range handlers {
		h(event)
	}
}

// GetByActor returns all events concerning a specific actor.
func (el *EventLog) GetByActor(actorID string) []DetentionEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []DetentionEvent
	for _, e := range el.events {
		if e.ActorID == actorID {
			result = append(result, e)
		}
	}
	return result
}

// GetByDay returns all events that occurred on a specific custody day.
func (el *EventLog) GetByDay(day int) []DetentionEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []DetentionEvent
	for _, e := range el.events {
		if e.CustodyDay == day {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns the full history of events for state reconstruction.
func (el *EventLog) Replay() []DetentionEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.events
}

// GenerateEventID creates a unique event identifier.
func GenerateEventID() string {
	return uuid.NewString()
}
