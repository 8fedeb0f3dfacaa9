package livestatus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/browsertest/dashboard/internal/agentapi"
)

// Message types the backend sends.
const (
	TypeConnection   = "connection"
	TypeStatusUpdate = "status_update"
)

// Message is one inbound frame: {type, data, timestamp}.
type Message struct {
	Type      string          `json:"type"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp agentapi.Time   `json:"timestamp"`
}

// QueueStatus is the backend's queue snapshot embedded in a status update.
type QueueStatus struct {
	ActiveTasks    int `json:"active_tasks"`
	PendingTasks   int `json:"pending_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	TotalTasks     int `json:"total_tasks"`
}

// StatusUpdate is the data payload of a status_update message.
type StatusUpdate struct {
	QueueStatus    *QueueStatus `json:"queue_status,omitempty"`
	ActiveTasks    int          `json:"active_tasks"`
	PendingTasks   int          `json:"pending_tasks"`
	CompletedTasks int          `json:"completed_tasks"`
}

var errNoType = errors.New("message has no type")

func decodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, errNoType
	}
	return m, nil
}

// StatusUpdate decodes the payload of a status_update message.
func (m Message) StatusUpdate() (*StatusUpdate, error) {
	if m.Type != TypeStatusUpdate {
		return nil, fmt.Errorf("message type %q is not %s", m.Type, TypeStatusUpdate)
	}
	var su StatusUpdate
	if len(m.Data) == 0 {
		return &su, nil
	}
	if err := json.Unmarshal(m.Data, &su); err != nil {
		return nil, fmt.Errorf("decode status update: %w", err)
	}
	return &su, nil
}
