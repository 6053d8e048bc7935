package relay

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-relay/internal/command"
	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
)

// Error kinds surfaced by the Service. Every error returned by a Service
// operation matches exactly one of these with errors.Is, and also still
// matches the component error it was derived from.
var (
	// ErrInvalidInput means a required field is missing or malformed.
	ErrInvalidInput = errors.New("relay: invalid input")

	// ErrInvalidCode means a code is not six characters from [A-Z0-9].
	ErrInvalidCode = errors.New("relay: invalid code")

	// ErrNotFound means no live device holds the code.
	ErrNotFound = errors.New("relay: device not found")

	// ErrConflict means another live device already holds the derived code.
	ErrConflict = errors.New("relay: code conflict")

	// ErrStoreFailure means the store could not complete the operation.
	ErrStoreFailure = errors.New("relay: store failure")
)

// classify wraps a component error in its relay error kind.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var kind error
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidCode), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict), errors.Is(err, ErrStoreFailure):
		return err
	case errors.Is(err, device.ErrInvalidCode):
		kind = ErrInvalidCode
	case errors.Is(err, device.ErrDeviceNotFound):
		kind = ErrNotFound
	case errors.Is(err, device.ErrCodeConflict):
		kind = ErrConflict
	case errors.Is(err, device.ErrInvalidID),
		errors.Is(err, device.ErrInvalidKind),
		errors.Is(err, command.ErrInvalidPayload),
		errors.Is(err, command.ErrInvalidDevice),
		errors.Is(err, mailbox.ErrInvalidPayload),
		errors.Is(err, mailbox.ErrInvalidDevice):
		kind = ErrInvalidInput
	default:
		kind = ErrStoreFailure
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "store_failure"
	}
}
