package mailbox

import (
	"encoding/json"
	"time"
)

// Response is a unit of status data posted by a device.
// This matches the responses table in migrations/20261018_120000_initial_schema.up.sql.
type Response struct {
	ID         int64           `json:"id"`
	DeviceID   string          `json:"device_id"`
	DeviceCode string          `json:"device_code"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`

	// Corrupt is set when Payload holds the corrupt-record marker.
	Corrupt bool `json:"-"`
}
