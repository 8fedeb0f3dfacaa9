// Package events fans dashboard events out to browser SSE streams.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeToast      Type = "toast"       // user-facing notification
	TypeConnection Type = "connection"  // live-status socket opened or closed
	TypeLiveStatus Type = "live.status" // relayed status_update message
	TypeRefreshed  Type = "dashboard.refreshed"
	TypeTask       Type = "task.update" // wizard run progress
)

// Level is the toast severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Level     Level     `json:"level,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(t Type, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewToast creates a notification event.
func NewToast(level Level, message string) Event {
	e := New(TypeToast, nil)
	e.Level = level
	e.Message = message
	return e
}

func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}
