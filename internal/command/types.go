package command

import (
	"encoding/json"
	"time"
)

// Status is the delivery state of a command.
type Status string

// Command statuses.
const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// AllStatuses returns every status value.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusCompleted}
}

// Command is a unit of work queued for one device.
// This matches the commands table in migrations/20261018_120000_initial_schema.up.sql.
type Command struct {
	ID         int64           `json:"id"`
	DeviceID   string          `json:"device_id"`
	DeviceCode string          `json:"device_code"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty"`

	// Corrupt is set when the stored payload could not be decoded and
	// Payload holds the corrupt-record marker instead.
	Corrupt bool `json:"-"`
}
