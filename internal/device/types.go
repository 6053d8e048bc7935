package device

import "time"

// Status is the liveness state of a device.
type Status string

// Device statuses.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// AllStatuses returns every status value, in display order.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline}
}

// Device is a registered polling agent.
// This matches the devices table in migrations/20261018_120000_initial_schema.up.sql.
type Device struct {
	ID   string `json:"device_id"`
	Code string `json:"code"`
	// Kind is a free-form tag supplied at registration (e.g. "chrome-extension").
	Kind         string    `json:"kind"`
	Status       Status    `json:"status"`
	LastSeen     time.Time `json:"last_seen"`
	RegisteredAt time.Time `json:"registered_at"`
}

// IsLive reports whether the device is online and was seen at or after since.
func (d *Device) IsLive(since time.Time) bool {
	return d.Status == StatusOnline && !d.LastSeen.Before(since)
}
