// Package sweeper enforces retention and liveness on a timer.
//
// Each run performs three independent steps:
//
//	purge_commands   delete completed commands executed before now-CommandTTL
//	purge_responses  delete unread responses created before now-ResponseTTL
//	expire_devices   mark devices silent for OfflineAfter as offline
//
// A failing step is logged and recorded in the Report; the remaining steps
// still run. After each run the sweeper publishes an offline presence event
// for every expired device and a run summary (MQTT), and writes a
// relay_sweep point (InfluxDB). Both collaborators are optional.
//
// Runs never overlap. The loop is a single goroutine and each run is
// bounded by a timeout equal to the interval.
package sweeper
