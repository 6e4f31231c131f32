// internal/model/event.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind represents the type of session event
type EventKind string

const (
	EventSessionOpened     EventKind = "SESSION_OPENED"
	EventSessionConfigured EventKind = "SESSION_CONFIGURED"
	EventSessionClosed     EventKind = "SESSION_CLOSED"
)

// SessionEvent records a change in a session's lifetime or configuration
type SessionEvent struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Kind         EventKind  `json:"kind" db:"kind"`
	SessionID    int        `json:"session" db:"session_id"`
	Path         string     `json:"path" db:"path"`
	ConnectionID string     `json:"connection_id,omitempty" db:"connection_id"`
	Data         JSONObject `json:"data,omitempty" db:"data"`
	Timestamp    time.Time  `json:"timestamp" db:"created_at"`
}

// NewSessionEvent creates an event stamped with a fresh id and the current time
func NewSessionEvent(kind EventKind, sessionID int, path, connectionID string, data JSONObject) SessionEvent {
	return SessionEvent{
		ID:           uuid.New(),
		Kind:         kind,
		SessionID:    sessionID,
		Path:         path,
		ConnectionID: connectionID,
		Data:         data,
		Timestamp:    time.Now().UTC(),
	}
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
