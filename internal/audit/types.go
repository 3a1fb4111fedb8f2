package audit

import (
	"database/sql"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventCommandSucceeded EventType = "COMMAND_SUCCEEDED"
	EventCommandFailed    EventType = "COMMAND_FAILED"
	EventNotification     EventType = "NOTIFICATION"
	EventSystemStartup    EventType = "SYSTEM_STARTUP"
	EventSystemShutdown   EventType = "SYSTEM_SHUTDOWN"
)

// EventLevel represents the severity level of an audit event.
type EventLevel string

const (
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// AuditEvent represents a single audit event.
type AuditEvent struct {
	EventID   string         `json:"event_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Level     EventLevel     `json:"level"`
	RequestID *string        `json:"request_id,omitempty"`
	DeviceID  *string        `json:"device_id,omitempty"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload"`
}

// WriteEventInput contains the fields for creating a new audit event.
type WriteEventInput struct {
	Type      string
	Level     *EventLevel
	RequestID *string
	DeviceID  *string
	Message   string
	Payload   map[string]any
}

// EventQueryFilters contains optional filters for querying events.
type EventQueryFilters struct {
	Type      *string
	Level     *EventLevel
	StartDate *time.Time
	EndDate   *time.Time
	DeviceID  *string
	Limit     int
	Offset    int
}

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
