package ingest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"guardian/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRecord = `{
	"id": "evt-001",
	"timestamp": "2026-03-01T10:30:00Z",
	"category": "network",
	"severity": "high",
	"message": "Outbound connection to known-bad host",
	"source": "netmon",
	"context": {"remote_address": "203.0.113.9", "remote_port": 443, "process_name": "curl"}
}`

// TestParseRecord_Valid tests the happy path end to end
func TestParseRecord_Valid(t *testing.T) {
	event, err := ParseRecord([]byte(validRecord))
	require.NoError(t, err)

	assert.Equal(t, "evt-001", event.EventID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), event.Timestamp)
	assert.Equal(t, core.CategoryNetwork, event.Category)
	assert.Equal(t, core.SeverityHigh, event.Severity)
	assert.Equal(t, "netmon", event.Source)
	assert.Equal(t, "203.0.113.9", event.ContextString("remote_address"))
}

// TestParseRecord_RequiredFields tests that each missing required field
// yields a ParseError naming the field.
func TestParseRecord_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		record string
		field  string
	}{
		{
			name:   "missing id",
			record: `{"timestamp":"2026-03-01T10:30:00Z","category":"process","severity":"low","message":"x"}`,
			field:  "id",
		},
		{
			name:   "missing timestamp",
			record: `{"id":"e1","category":"process","severity":"low","message":"x"}`,
			field:  "timestamp",
		},
		{
			name:   "missing message",
			record: `{"id":"e1","timestamp":"2026-03-01T10:30:00Z","category":"process","severity":"low"}`,
			field:  "message",
		},
		{
			name:   "bad category",
			record: `{"id":"e1","timestamp":"2026-03-01T10:30:00Z","category":"gui","severity":"low","message":"x"}`,
			field:  "category",
		},
		{
			name:   "bad severity",
			record: `{"id":"e1","timestamp":"2026-03-01T10:30:00Z","category":"process","severity":"urgent","message":"x"}`,
			field:  "severity",
		},
		{
			name:   "bad timestamp",
			record: `{"id":"e1","timestamp":"yesterday","category":"process","severity":"low","message":"x"}`,
			field:  "timestamp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord([]byte(tt.record))
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.field, parseErr.Field)
		})
	}
}

// TestParseRecord_InvalidJSON tests non-JSON input
func TestParseRecord_InvalidJSON(t *testing.T) {
	_, err := ParseRecord([]byte("not json at all"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)

	_, err = ParseRecord(nil)
	require.ErrorAs(t, err, &parseErr)
}

// TestParseRecord_UnknownContextPreserved tests forward compatibility:
// context keys this core has never heard of survive parsing untouched.
func TestParseRecord_UnknownContextPreserved(t *testing.T) {
	record := `{
		"id": "e2",
		"timestamp": "2026-03-01T10:30:00Z",
		"category": "process",
		"severity": "low",
		"message": "x",
		"context": {"future_field": "kept", "sandbox_profile": ["a", "b"], "score": 0.93}
	}`

	event, err := ParseRecord([]byte(record))
	require.NoError(t, err)

	assert.Equal(t, "kept", event.Context["future_field"])
	assert.Equal(t, []interface{}{"a", "b"}, event.Context["sandbox_profile"])
	assert.Equal(t, 0.93, event.Context["score"])
}

// TestParseRecord_TimestampLayouts tests tolerated timestamp spellings;
// naive timestamps are taken as UTC.
func TestParseRecord_TimestampLayouts(t *testing.T) {
	layouts := map[string]time.Time{
		"2026-03-01T10:30:00.123456789Z": time.Date(2026, 3, 1, 10, 30, 0, 123456789, time.UTC),
		"2026-03-01T10:30:00+02:00":      time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		"2026-03-01T10:30:00":            time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
		"2026-03-01 10:30:00":            time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC),
	}

	for value, want := range layouts {
		record := fmt.Sprintf(`{"id":"e3","timestamp":%q,"category":"system","severity":"low","message":"x"}`, value)
		event, err := ParseRecord([]byte(record))
		require.NoError(t, err, value)
		assert.True(t, event.Timestamp.Equal(want), "layout %s: got %s", value, event.Timestamp)
	}
}

// TestParseRecord_DefaultSource tests the source fallback
func TestParseRecord_DefaultSource(t *testing.T) {
	record := `{"id":"e4","timestamp":"2026-03-01T10:30:00Z","category":"system","severity":"low","message":"x"}`
	event, err := ParseRecord([]byte(record))
	require.NoError(t, err)
	assert.Equal(t, "unknown", event.Source)
	assert.NotNil(t, event.Context)
}

// TestParseRecord_OversizedRecord tests the record size cap
func TestParseRecord_OversizedRecord(t *testing.T) {
	huge := `{"id":"e5","message":"` + strings.Repeat("a", maxRecordSize) + `"}`
	_, err := ParseRecord([]byte(huge))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}
