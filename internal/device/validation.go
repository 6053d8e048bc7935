package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxIDLength   = 256
	maxKindLength = 64
)

// RequireID checks only that an id is present. Polling and posting accept
// any non-empty id; the stricter shape applies to registration.
func RequireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	return nil
}

// ValidateID checks that a device id can be registered: non-empty, without
// surrounding whitespace, bounded in length, and ending in CodeLength ASCII
// letters or digits so that its code can be looked up.
func ValidateID(id string) error {
	if err := RequireID(id); err != nil {
		return err
	}
	if id != strings.TrimSpace(id) {
		return fmt.Errorf("%w: id must not have surrounding whitespace", ErrInvalidID)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id exceeds %d bytes", ErrInvalidID, maxIDLength)
	}
	if _, err := ValidateCode(DeriveCode(id)); err != nil {
		return fmt.Errorf("%w: id must end in %d ASCII letters or digits (e.g. ext-install-ABC123)", ErrInvalidID, CodeLength)
	}
	return nil
}

// ValidateKind checks the optional kind tag.
func ValidateKind(kind string) error {
	if len(kind) > maxKindLength {
		return fmt.Errorf("%w: kind exceeds %d bytes", ErrInvalidKind, maxKindLength)
	}
	return nil
}
