package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the relay.
const (
	// MeasurementSweep holds one point per sweeper run.
	MeasurementSweep = "relay_sweep"

	// MeasurementOperation holds one point per relay operation.
	MeasurementOperation = "relay_ops"
)

// RecordSweep writes the outcome of one sweeper run.
//
//	relay_sweep commands_purged=12i,responses_purged=3i,devices_expired=1i,failed_steps=0i,duration_ms=4.2
func (c *Client) RecordSweep(commandsPurged, responsesPurged, devicesExpired int64, failedSteps int, duration time.Duration) {
	c.WritePoint(MeasurementSweep, nil, map[string]interface{}{
		"commands_purged":  commandsPurged,
		"responses_purged": responsesPurged,
		"devices_expired":  devicesExpired,
		"failed_steps":     int64(failedSteps),
		"duration_ms":      durationMillis(duration),
	})
}

// RecordOperation writes the latency and outcome of one relay operation.
//
//	relay_ops,op=poll_commands,outcome=ok count=1i,duration_ms=0.8
func (c *Client) RecordOperation(op, outcome string, duration time.Duration) {
	c.WritePoint(MeasurementOperation,
		map[string]string{
			"op":      op,
			"outcome": outcome,
		},
		map[string]interface{}{
			"count":       int64(1),
			"duration_ms": durationMillis(duration),
		},
	)
}

// WritePoint writes a custom point stamped with the current time.
// Dropped when the client is not connected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
