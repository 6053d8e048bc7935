package mailbox

import "errors"

// Domain errors for the mailbox package.
var (
	// ErrInvalidPayload is returned when a response body is missing or is not
	// well-formed JSON.
	ErrInvalidPayload = errors.New("mailbox: invalid payload")

	// ErrInvalidDevice is returned when a response has no device id or code.
	ErrInvalidDevice = errors.New("mailbox: device id and code are required")
)
