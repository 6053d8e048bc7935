// Package payload validates and restores the opaque JSON bodies carried by
// commands and responses.
//
// Bodies are stored as compact JSON text. A stored value that no longer parses
// is replaced on read by a marker object so one bad row never fails a batch.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned for a missing body or a JSON null.
	ErrEmpty = errors.New("payload: empty")

	// ErrInvalid is returned when the body is not well-formed JSON.
	ErrInvalid = errors.New("payload: invalid JSON")

	// ErrCorrupt is returned by Decode when a stored value cannot be parsed.
	ErrCorrupt = errors.New("payload: corrupt stored value")
)

// CorruptCode is the "error" value of the marker returned for corrupt rows.
const CorruptCode = "corrupt_payload"

// Marker is the object substituted for a payload that failed to decode.
type Marker struct {
	Error    string `json:"error"`
	RecordID int64  `json:"record_id"`
}

// Normalize checks that raw is a non-null JSON value and returns it in
// compact form, ready to be stored.
func Normalize(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmpty
	}
	if !json.Valid(trimmed) {
		return nil, ErrInvalid
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Decode turns a stored value back into a payload. If the value is not valid
// JSON it returns the marker for recordID together with ErrCorrupt; callers
// are expected to serve the marker and carry on.
func Decode(recordID int64, stored string) (json.RawMessage, error) {
	if stored != "" && json.Valid([]byte(stored)) {
		return json.RawMessage(stored), nil
	}
	return CorruptMarker(recordID), fmt.Errorf("%w: record %d", ErrCorrupt, recordID)
}

// CorruptMarker returns the marker object for recordID.
func CorruptMarker(recordID int64) json.RawMessage {
	b, _ := json.Marshal(Marker{Error: CorruptCode, RecordID: recordID}) //nolint:errcheck // fixed shape
	return b
}
