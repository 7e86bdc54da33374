// Package events defines the event types flowing out of the UTM core and
// the in-process bus that distributes them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a system event.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New builds an event with a fresh ID and the current wall clock.
func New(eventType EventType, source string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// EventType categorises system events.
type EventType string

const (
	EventTypeMissionCreated   EventType = "mission_created"
	EventTypeMissionAssigned  EventType = "mission_assigned"
	EventTypeMissionAborted   EventType = "mission_aborted"
	EventTypeConflictDetected EventType = "conflict_detected"
	EventTypeConflictResolved EventType = "conflict_resolved"
	EventTypeTelemetry        EventType = "telemetry"
	EventTypeDroneRegistered  EventType = "drone_registered"
	EventTypeBatteryWarning   EventType = "battery_warning"
	EventTypeBatteryEmergency EventType = "battery_emergency"
)
