package core

import (
	"time"

	"github.com/google/uuid"
)

// Event represents the common event schema for all ingested telemetry.
// An Event is immutable once constructed; equality is by EventID.
type Event struct {
	EventID   string                 `json:"event_id"`
	Timestamp time.Time              `json:"timestamp"`
	Category  Category               `json:"category"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// NewEvent creates a new Event with a generated UUID
func NewEvent() *Event {
	return &Event{
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Context:   make(map[string]interface{}),
	}
}

// ContextString returns the string value for key in the event context,
// or "" when the key is absent or not a string.
func (e *Event) ContextString(key string) string {
	if e.Context == nil {
		return ""
	}
	if v, ok := e.Context[key].(string); ok {
		return v
	}
	return ""
}

// Equal reports whether two events refer to the same record
func (e *Event) Equal(other *Event) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.EventID == other.EventID
}
