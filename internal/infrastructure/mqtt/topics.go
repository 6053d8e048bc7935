package mqtt

import "fmt"

// Topic prefixes for relay events.
const (
	// TopicPrefix is the base for all relay topics.
	TopicPrefix = "relay"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "relay/system"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "relay/device"
)

// Topics provides builders for relay MQTT topics.
//
//	topics := mqtt.Topics{}
//	topic := topics.DevicePresence("ABC123")
//	// Returns: "relay/device/ABC123/presence"
type Topics struct{}

// SystemStatus returns the retained topic for the relay's own status.
// Carries the LWT.
//
// Example: relay/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SweepReport returns the topic for sweeper run summaries.
//
// Example: relay/system/sweep
func (Topics) SweepReport() string {
	return TopicPrefixSystem + "/sweep"
}

// DevicePresence returns the retained presence topic for a device code.
//
// Example: relay/device/ABC123/presence
func (Topics) DevicePresence(code string) string {
	return fmt.Sprintf("%s/%s/presence", TopicPrefixDevice, code)
}
