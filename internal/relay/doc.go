// Package relay exposes the relay's boundary operations independent of any
// transport.
//
// Devices call Register, PollCommands and PostResponse. Controllers call
// FindByCode, SendCommand and ReadResponses.
//
//	controller                relay                        device
//	    |  SendCommand(code) --> queue (pending)               |
//	    |                         queue --> completed <-- PollCommands(id)
//	    |                         mailbox <------------- PostResponse(id)
//	    |  ReadResponses(code) <- mailbox (consumed)           |
//
// Errors returned by Service match one of ErrInvalidInput, ErrInvalidCode,
// ErrNotFound, ErrConflict or ErrStoreFailure. A corrupt stored payload is
// not an error: that record carries {"error":"corrupt_payload","record_id":N}
// and the rest of the batch is served.
//
// Heartbeats, presence events and metrics are best effort. Their failures
// are logged and never fail the request.
package relay
