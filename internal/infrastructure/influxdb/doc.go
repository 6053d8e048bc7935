// Package influxdb records relay operational metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements are
// written:
//
//	relay_sweep  one point per sweeper run (purge counts, duration)
//	relay_ops    one point per API operation (tags op and outcome)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.RecordOperation("send_command", "ok", elapsed)
//
// # Error Handling
//
// Writes are non-blocking and batched. Asynchronous write failures are
// delivered to the SetOnError callback; they never reach the caller.
package influxdb
