package command

import "errors"

// Domain errors for the command package.
var (
	// ErrInvalidPayload is returned when a command body is missing or is not
	// well-formed JSON.
	ErrInvalidPayload = errors.New("command: invalid payload")

	// ErrInvalidDevice is returned when a command is addressed without a
	// device id or code.
	ErrInvalidDevice = errors.New("command: device id and code are required")

	// ErrClaimConflict is returned when a drain could not transition every
	// selected command. The transaction is rolled back and nothing is
	// delivered.
	ErrClaimConflict = errors.New("command: pending set changed during claim")
)
