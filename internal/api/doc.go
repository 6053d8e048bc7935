// Package api implements the relay's HTTP API.
//
// All routes live under /api/v1:
//
//	GET  /health                   liveness and store health
//	GET  /metrics                  runtime, integration and pool metrics
//	GET  /stats                    device, command and response counts
//	POST /devices/register         {device_id, kind} -> {device_id, code}
//	GET  /devices                  online devices
//	GET  /devices/code/{code}      {found, device?}
//	GET  /devices/{id}/commands    drain pending commands (also a heartbeat)
//	POST /devices/{id}/responses   raw JSON body -> {response_id}
//	POST /commands                 {code, command} -> {command_id}
//	GET  /responses/{code}         read and consume responses
//
// Errors use a single body shape, {status, code, message}, with code one of
// bad_request, invalid_code, not_found, conflict, store_unavailable,
// payload_too_large, method_not_allowed or internal_error.
//
// A registering device_id must end in 6 ASCII letters or digits, which
// become its code (ext-install-ABC123 gets ABC123). Polling and posting
// accept any non-empty id; an unregistered one has no commands.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// There is no authentication. Devices are identified by the id in the path
// and controllers by knowledge of the code.
package api
