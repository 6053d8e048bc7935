// Package mqtt publishes relay events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Last Will and Testament (LWT) on relay/system/status
//   - Retained device presence on relay/device/{code}/presence
//   - Sweep summaries on relay/system/sweep
//
// MQTT is an optional side channel for dashboards and monitoring. It never
// carries commands: devices always pull their queue over HTTP.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	events := mqtt.NewEventPublisher(client)
//	events.PublishPresence(ctx, mqtt.Presence{DeviceID: id, Code: "ABC123", Status: "online"})
package mqtt
