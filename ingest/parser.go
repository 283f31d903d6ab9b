// Package ingest pulls telemetry records out of the agent's event spool,
// normalizes them into core events and paces its own scanning through an
// adaptive rate controller.
package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"guardian/core"
)

// maxRecordSize caps a single raw record to keep a hostile producer from
// ballooning the working set.
const maxRecordSize = 256 * 1024

// timestampLayouts are the accepted record timestamp formats. Producers in
// the wild emit RFC3339 with and without fractional seconds, and some omit
// the zone entirely; naive timestamps are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseError describes a single malformed record. It is never fatal to an
// ingestion cycle; the record is skipped and counted.
type ParseError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record: %s", e.Reason)
	}
	return fmt.Sprintf("malformed record: field %q %s", e.Field, e.Reason)
}

// rawRecord mirrors the producer contract for one spool record
type rawRecord struct {
	ID        string                 `json:"id"`
	Timestamp string                 `json:"timestamp"`
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Context   map[string]interface{} `json:"context"`
}

// ParseRecord normalizes one raw spool record into an Event.
//
// The required fields are id, timestamp, category, severity and message; a
// missing or malformed required field yields a *ParseError. Unknown keys
// inside context are preserved as-is so future producers can add fields
// without breaking older cores.
func ParseRecord(raw []byte) (*core.Event, error) {
	if len(raw) == 0 {
		return nil, &ParseError{Reason: "empty record"}
	}
	if len(raw) > maxRecordSize {
		return nil, &ParseError{Reason: fmt.Sprintf("record exceeds %d bytes", maxRecordSize)}
	}

	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if rec.ID == "" {
		return nil, &ParseError{Field: "id", Reason: "is required"}
	}
	if rec.Message == "" {
		return nil, &ParseError{Field: "message", Reason: "is required"}
	}

	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return nil, err
	}

	category := core.Category(rec.Category)
	if !category.IsValid() {
		return nil, &ParseError{Field: "category", Reason: fmt.Sprintf("unknown value %q", rec.Category)}
	}

	severity := core.Severity(rec.Severity)
	if !severity.IsValid() {
		return nil, &ParseError{Field: "severity", Reason: fmt.Sprintf("unknown value %q", rec.Severity)}
	}

	source := rec.Source
	if source == "" {
		source = "unknown"
	}

	context := rec.Context
	if context == nil {
		context = make(map[string]interface{})
	}

	return &core.Event{
		EventID:   rec.ID,
		Timestamp: ts,
		Category:  category,
		Severity:  severity,
		Message:   rec.Message,
		Source:    source,
		Context:   context,
	}, nil
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &ParseError{Field: "timestamp", Reason: "is required"}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, &ParseError{Field: "timestamp", Reason: fmt.Sprintf("unparseable value %q", value)}
}
