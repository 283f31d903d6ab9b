package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewEvent tests the generated defaults
func TestNewEvent(t *testing.T) {
	a := NewEvent()
	b := NewEvent()

	require.NotEmpty(t, a.EventID)
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.NotNil(t, a.Context)
	assert.WithinDuration(t, time.Now().UTC(), a.Timestamp, 5*time.Second)
}

// TestEvent_ContextString tests the typed context accessor
func TestEvent_ContextString(t *testing.T) {
	event := &Event{Context: map[string]interface{}{
		"path": "/usr/bin/true",
		"pid":  float64(42),
	}}

	assert.Equal(t, "/usr/bin/true", event.ContextString("path"))
	assert.Equal(t, "", event.ContextString("pid"), "non-string values read as empty")
	assert.Equal(t, "", event.ContextString("missing"))
	assert.Equal(t, "", (&Event{}).ContextString("path"))
}

// TestEvent_Equal tests identity semantics
func TestEvent_Equal(t *testing.T) {
	a := &Event{EventID: "same", Message: "first sighting"}
	b := &Event{EventID: "same", Message: "redelivered"}
	c := &Event{EventID: "other"}

	assert.True(t, a.Equal(b), "identity is the event ID, not the payload")
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilEvent *Event
	assert.True(t, nilEvent.Equal(nil))
}
