package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no matching (live) device exists.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidID is returned when a device id is empty, too long, or
	// cannot yield a valid code.
	ErrInvalidID = errors.New("device: invalid id")

	// ErrInvalidKind is returned when the kind tag is too long.
	ErrInvalidKind = errors.New("device: invalid kind")

	// ErrInvalidCode is returned when a code fails shape validation.
	ErrInvalidCode = errors.New("device: invalid code")

	// ErrCodeConflict is returned when a different live device already
	// holds the code derived from the registering id.
	ErrCodeConflict = errors.New("device: code held by another live device")
)
