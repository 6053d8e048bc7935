package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/payload"
)

// Read limits.
const (
	DefaultReadLimit = 50
	MaxReadLimit     = 200
)

// Logger defines the logging interface used by the Mailbox.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Mailbox buffers device responses until a controller reads them.
type Mailbox struct {
	repo   Repository
	now    func() time.Time
	logger Logger
}

// New creates a mailbox backed by repo.
func New(repo Repository) *Mailbox {
	return &Mailbox{
		repo:   repo,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the mailbox.
func (m *Mailbox) SetLogger(logger Logger) {
	m.logger = logger
}

// SetClock replaces the time source. Intended for tests.
func (m *Mailbox) SetClock(now func() time.Time) {
	m.now = now
}

// Post stores a response from a device and returns its id.
func (m *Mailbox) Post(ctx context.Context, deviceID, deviceCode string, body []byte) (int64, error) {
	if deviceID == "" || deviceCode == "" {
		return 0, ErrInvalidDevice
	}
	normalized, err := payload.Normalize(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	id, err := m.repo.Insert(ctx, &Response{
		DeviceID:   deviceID,
		DeviceCode: deviceCode,
		Payload:    normalized,
		CreatedAt:  m.now().UTC(),
	})
	if err != nil {
		return 0, err
	}

	m.logger.Debug("response posted", "response_id", id, "device_id", deviceID)
	return id, nil
}

// ReadRecent returns up to limit responses for code created within window of
// now, newest first, and removes them. An empty result is normal.
//
// A response whose stored payload cannot be decoded is returned with the
// corrupt-record marker in place of its payload.
func (m *Mailbox) ReadRecent(ctx context.Context, code string, window time.Duration, limit int) ([]Response, error) {
	switch {
	case limit <= 0:
		limit = DefaultReadLimit
	case limit > MaxReadLimit:
		limit = MaxReadLimit
	}

	taken, err := m.repo.TakeRecent(ctx, code, m.now().UTC().Add(-window), limit)
	if err != nil {
		if len(taken) == 0 {
			return nil, err
		}
		// Taken responses are already deleted from the store.
		m.logger.Error("read interrupted, returning taken responses",
			"code", code, "count", len(taken), "error", err)
	}

	for i := range taken {
		decoded, err := payload.Decode(taken[i].ID, string(taken[i].Payload))
		if err != nil {
			taken[i].Corrupt = true
			m.logger.Error("corrupt response payload", "response_id", taken[i].ID, "code", code)
		}
		taken[i].Payload = decoded
	}

	if taken == nil {
		taken = []Response{}
	}
	return taken, nil
}

// PurgeOlderThan deletes responses created more than olderThan ago and
// returns how many were removed.
func (m *Mailbox) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := m.repo.DeleteBefore(ctx, m.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purging responses: %w", err)
	}
	return n, nil
}

// Count returns the number of unread responses.
func (m *Mailbox) Count(ctx context.Context) (int, error) {
	n, err := m.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return n, nil
}
