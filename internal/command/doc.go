// Package command implements the per-device Command Queue.
//
// A controller enqueues commands against a device it has located by code.
// The device drains them by polling. Each command moves through a single
// one-way state machine:
//
//	pending ──DrainPending──▶ completed ──PurgeCompleted──▶ (removed)
//
// There is no redelivery. A drain selects the oldest pending commands and
// marks them completed inside one write transaction, so concurrent drains
// for the same device receive disjoint sets. Pending commands are never
// touched by the purge and survive the device going offline.
package command
