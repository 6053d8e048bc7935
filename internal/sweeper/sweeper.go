package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
)

// Defaults applied when Config fields are zero.
const (
	DefaultInterval     = 5 * time.Minute
	DefaultCommandTTL   = time.Hour
	DefaultResponseTTL  = 30 * time.Minute
	DefaultOfflineAfter = 10 * time.Minute
)

// Step names used in reports and logs.
const (
	StepCommands  = "purge_commands"
	StepResponses = "purge_responses"
	StepDevices   = "expire_devices"
)

// CommandPurger removes completed commands. Implemented by *command.Queue.
type CommandPurger interface {
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ResponsePurger removes aged responses. Implemented by *mailbox.Mailbox.
type ResponsePurger interface {
	PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// DeviceExpirer marks stale devices offline. Implemented by *device.Registry.
type DeviceExpirer interface {
	SweepExpired(ctx context.Context, staleAfter time.Duration) ([]device.Device, error)
}

// EventPublisher announces presence changes and sweep summaries.
// Implemented by *mqtt.EventPublisher.
type EventPublisher interface {
	PublishPresence(ctx context.Context, p mqtt.Presence) error
	PublishSweep(ctx context.Context, summary any) error
}

// Metrics records one point per run. Implemented by *influxdb.Client.
type Metrics interface {
	RecordSweep(commandsPurged, responsesPurged, devicesExpired int64, failedSteps int, duration time.Duration)
}

// Logger defines the logging interface used by the Sweeper.
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

// Config holds the sweeper's schedule, retention policy and collaborators.
type Config struct {
	// Interval between runs. Each run is also bounded by this duration.
	Interval time.Duration

	// CommandTTL is how long completed commands are kept after execution.
	CommandTTL time.Duration

	// ResponseTTL is how long unread responses are kept.
	ResponseTTL time.Duration

	// OfflineAfter is the silence after which a device is marked offline.
	OfflineAfter time.Duration

	Commands  CommandPurger
	Responses ResponsePurger
	Devices   DeviceExpirer

	// Events and Metrics are optional.
	Events  EventPublisher
	Metrics Metrics
}

// Sweeper periodically enforces retention and liveness.
type Sweeper struct {
	cfg    Config
	now    func() time.Time
	logger Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a sweeper. Zero durations fall back to the package defaults.
// Commands, Responses and Devices are required.
func New(cfg Config) (*Sweeper, error) {
	if cfg.Commands == nil || cfg.Responses == nil || cfg.Devices == nil {
		return nil, errors.New("sweeper: commands, responses and devices are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.CommandTTL <= 0 {
		cfg.CommandTTL = DefaultCommandTTL
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = DefaultResponseTTL
	}
	if cfg.OfflineAfter <= 0 {
		cfg.OfflineAfter = DefaultOfflineAfter
	}

	return &Sweeper{
		cfg:    cfg,
		now:    time.Now,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the time source used for report timestamps.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce performs one sweep. Every step runs even when an earlier one
// fails; failures are collected in the report.
func (s *Sweeper) RunOnce(ctx context.Context) Report {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}

	n, err := s.cfg.Commands.PurgeCompleted(ctx, s.cfg.CommandTTL)
	report.CommandsPurged = n
	report.record(StepCommands, err)

	n, err = s.cfg.Responses.PurgeOlderThan(ctx, s.cfg.ResponseTTL)
	report.ResponsesPurged = n
	report.record(StepResponses, err)

	expired, err := s.cfg.Devices.SweepExpired(ctx, s.cfg.OfflineAfter)
	report.DevicesExpired = int64(len(expired))
	report.record(StepDevices, err)

	report.Duration = s.now().Sub(report.StartedAt)

	for _, f := range report.Failures {
		s.logger.Error("sweep step failed", "run_id", report.RunID, "step", f.Step, "error", f.Err)
	}
	if report.changed() || len(report.Failures) > 0 {
		s.logger.Info("sweep completed",
			"run_id", report.RunID,
			"commands_purged", report.CommandsPurged,
			"responses_purged", report.ResponsesPurged,
			"devices_expired", report.DevicesExpired,
			"failed_steps", len(report.Failures),
			"duration", report.Duration,
		)
	} else {
		s.logger.Debug("sweep completed", "run_id", report.RunID, "duration", report.Duration)
	}

	s.announce(ctx, expired, report)
	return report
}

// announce publishes presence and the summary, and records metrics.
// Failures are logged only.
func (s *Sweeper) announce(ctx context.Context, expired []device.Device, report Report) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSweep(report.CommandsPurged, report.ResponsesPurged, report.DevicesExpired,
			len(report.Failures), report.Duration)
	}

	if s.cfg.Events == nil {
		return
	}
	for _, d := range expired {
		p := mqtt.Presence{
			DeviceID: d.ID,
			Code:     d.Code,
			Kind:     d.Kind,
			Status:   string(d.Status),
			LastSeen: d.LastSeen,
		}
		if err := s.cfg.Events.PublishPresence(ctx, p); err != nil {
			s.logger.Warn("publishing offline presence failed", "device_id", d.ID, "error", err)
		}
	}
	if err := s.cfg.Events.PublishSweep(ctx, report.summary()); err != nil {
		s.logger.Warn("publishing sweep summary failed", "run_id", report.RunID, "error", err)
	}
}

// Run sweeps immediately and then on every tick until ctx is cancelled or
// Stop is called. Runs never overlap: a tick that arrives during a run is
// absorbed by the ticker and each run is bounded by the interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.runBounded(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.runBounded(ctx)
		}
	}
}

func (s *Sweeper) runBounded(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Interval)
	defer cancel()
	s.RunOnce(runCtx)
}

// Start runs the sweep loop in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("sweeper started",
		"interval", s.cfg.Interval,
		"command_ttl", s.cfg.CommandTTL,
		"response_ttl", s.cfg.ResponseTTL,
		"offline_after", s.cfg.OfflineAfter,
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight run to finish.
// Safe to call multiple times.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.logger.Info("sweeper stopped")
	})
}

// Interval returns the effective interval.
func (s *Sweeper) Interval() time.Duration {
	return s.cfg.Interval
}
