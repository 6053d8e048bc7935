package device

import (
	"context"
	"fmt"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks known devices and their liveness.
// It wraps a Repository and applies identity validation and the offline
// threshold. Device state changes on every poll, so the registry keeps no
// in-memory copy; the repository is the single source of truth.
//
// All public methods are safe for concurrent use.
type Registry struct {
	repo         Repository
	offlineAfter time.Duration
	now          func() time.Time
	logger       Logger
}

// NewRegistry creates a new device registry. A device not seen for
// offlineAfter is no longer addressable by code.
func NewRegistry(repo Repository, offlineAfter time.Duration) *Registry {
	return &Registry{
		repo:         repo,
		offlineAfter: offlineAfter,
		now:          time.Now,
		logger:       noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetClock replaces the time source. Intended for tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// OfflineAfter returns the liveness threshold.
func (r *Registry) OfflineAfter() time.Duration {
	return r.offlineAfter
}

func (r *Registry) liveSince() time.Time {
	return r.now().UTC().Add(-r.offlineAfter)
}

// Register records a device as online, creating it on first contact.
// Re-registering the same id is idempotent and never changes its code.
func (r *Registry) Register(ctx context.Context, id, kind string) (*Device, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	if err := ValidateKind(kind); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	d := &Device{
		ID:           id,
		Code:         DeriveCode(id),
		Kind:         kind,
		Status:       StatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
	}
	if err := r.repo.Register(ctx, d, now.Add(-r.offlineAfter)); err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}

	r.logger.Info("device registered", "device_id", d.ID, "code", d.Code, "kind", d.Kind)
	return d, nil
}

// Heartbeat marks a device as seen now. An unknown id is not an error;
// found reports whether the device exists.
func (r *Registry) Heartbeat(ctx context.Context, id string) (found bool, err error) {
	if id == "" {
		return false, ErrInvalidID
	}
	found, err = r.repo.Touch(ctx, id, r.now().UTC())
	if err != nil {
		return false, fmt.Errorf("heartbeat: %w", err)
	}
	if !found {
		r.logger.Debug("heartbeat from unknown device", "device_id", id)
	}
	return found, nil
}

// LocateByCode returns the live device addressed by code. The code is
// validated before any store access. Offline or silent devices are not
// returned; ErrDeviceNotFound signals that no live device holds the code.
func (r *Registry) LocateByCode(ctx context.Context, code string) (*Device, error) {
	normalized, err := ValidateCode(code)
	if err != nil {
		return nil, err
	}
	return r.repo.FindLiveByCode(ctx, normalized, r.liveSince())
}

// SweepExpired flips devices not seen within staleAfter to offline and
// returns them. A non-positive staleAfter uses the registry's threshold.
func (r *Registry) SweepExpired(ctx context.Context, staleAfter time.Duration) ([]Device, error) {
	if staleAfter <= 0 {
		staleAfter = r.offlineAfter
	}
	flipped, err := r.repo.MarkStale(ctx, r.now().UTC().Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("expiring devices: %w", err)
	}
	if len(flipped) > 0 {
		r.logger.Info("devices marked offline", "count", len(flipped))
	}
	return flipped, nil
}

// ListOnline returns the live devices, most recently seen first.
func (r *Registry) ListOnline(ctx context.Context) ([]Device, error) {
	devices, err := r.repo.ListLive(ctx, r.liveSince())
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Counts returns the number of devices in each status.
func (r *Registry) Counts(ctx context.Context) (map[Status]int, error) {
	counts, err := r.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}
	return counts, nil
}
