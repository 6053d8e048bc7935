package database

import (
	"fmt"
	"time"
)

// TimeLayout is the storage format for timestamps. Fixed-width UTC with
// nanoseconds, so that string comparison in SQL matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime converts t to its stored representation.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime. RFC3339 values are
// accepted too, so rows written by hand or by older tooling still load.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
