package command

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/payload"
)

// Drain limits.
const (
	DefaultDrainLimit = 50
	MaxDrainLimit     = 200
)

// Logger defines the logging interface used by the Queue.
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

// Queue is the per-device FIFO of commands.
type Queue struct {
	repo   Repository
	now    func() time.Time
	logger Logger
}

// NewQueue creates a queue backed by repo.
func NewQueue(repo Repository) *Queue {
	return &Queue{
		repo:   repo,
		now:    time.Now,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the queue.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// SetClock replaces the time source. Intended for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.now = now
}

// Enqueue appends a pending command for the device and returns its id.
// body must be well-formed JSON; it is stored in compact form.
func (q *Queue) Enqueue(ctx context.Context, deviceID, deviceCode string, body []byte) (int64, error) {
	if deviceID == "" || deviceCode == "" {
		return 0, ErrInvalidDevice
	}
	normalized, err := payload.Normalize(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	c := &Command{
		DeviceID:   deviceID,
		DeviceCode: deviceCode,
		Payload:    normalized,
		Status:     StatusPending,
		CreatedAt:  q.now().UTC(),
	}
	id, err := q.repo.Insert(ctx, c)
	if err != nil {
		return 0, err
	}

	q.logger.Debug("command enqueued", "command_id", id, "device_id", deviceID)
	return id, nil
}

// DrainPending delivers up to limit of the device's oldest pending commands
// and marks them completed. A non-positive limit uses DefaultDrainLimit;
// limits above MaxDrainLimit are capped. An empty result means nothing is
// pending.
//
// A command whose stored payload cannot be decoded is still delivered,
// carrying the corrupt-record marker, so it does not block the queue.
func (q *Queue) DrainPending(ctx context.Context, deviceID string, limit int) ([]Command, error) {
	if deviceID == "" {
		return nil, ErrInvalidDevice
	}
	switch {
	case limit <= 0:
		limit = DefaultDrainLimit
	case limit > MaxDrainLimit:
		limit = MaxDrainLimit
	}

	claimed, err := q.repo.ClaimPending(ctx, deviceID, limit, q.now())
	if err != nil {
		if len(claimed) == 0 {
			return nil, err
		}
		// Claimed commands are already completed in the store.
		q.logger.Error("drain interrupted, delivering claimed commands",
			"device_id", deviceID, "count", len(claimed), "error", err)
	}

	for i := range claimed {
		decoded, err := payload.Decode(claimed[i].ID, string(claimed[i].Payload))
		if err != nil {
			claimed[i].Corrupt = true
			q.logger.Error("corrupt command payload", "command_id", claimed[i].ID, "device_id", deviceID)
		}
		claimed[i].Payload = decoded
	}

	if claimed == nil {
		claimed = []Command{}
	}
	if len(claimed) > 0 {
		q.logger.Debug("commands delivered", "device_id", deviceID, "count", len(claimed))
	}
	return claimed, nil
}

// PurgeCompleted deletes completed commands executed more than olderThan
// ago and returns how many were removed.
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := q.repo.DeleteCompletedBefore(ctx, q.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purging commands: %w", err)
	}
	return n, nil
}

// Counts returns the number of commands in each status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	counts, err := q.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting commands: %w", err)
	}
	return counts, nil
}
