package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/command"
	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
	"github.com/nerrad567/gray-logic-relay/internal/payload"
)

// Operation names, used as the op tag on metrics.
const (
	OpRegister      = "register"
	OpFindByCode    = "find_by_code"
	OpSendCommand   = "send_command"
	OpPollCommands  = "poll_commands"
	OpPostResponse  = "post_response"
	OpReadResponses = "read_responses"
	OpStats         = "stats"
	OpListDevices   = "list_devices"
)

// Logger defines the logging interface used by the Service.
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

// PresencePublisher announces that a device came online.
// Implemented by *mqtt.EventPublisher.
type PresencePublisher interface {
	PublishPresence(ctx context.Context, p mqtt.Presence) error
}

// OperationMetrics records one point per operation.
// Implemented by *influxdb.Client.
type OperationMetrics interface {
	RecordOperation(op, outcome string, duration time.Duration)
}

// Config holds per-request limits and the response window.
type Config struct {
	// PollLimit caps commands returned per poll.
	PollLimit int

	// ReadLimit caps responses returned per read.
	ReadLimit int

	// ResponseTTL is how far back a read looks for unread responses.
	ResponseTTL time.Duration
}

// Service is the transport-agnostic face of the relay. It validates input,
// composes the registry, queue and mailbox, and maps their errors onto the
// relay error kinds.
//
// All methods are safe for concurrent use.
type Service struct {
	devices   *device.Registry
	commands  *command.Queue
	responses *mailbox.Mailbox
	cfg       Config

	presence PresencePublisher
	metrics  OperationMetrics
	logger   Logger
}

// NewService creates a relay service. Zero limits fall back to the queue
// and mailbox defaults; a zero ResponseTTL uses 30 minutes.
func NewService(devices *device.Registry, commands *command.Queue, responses *mailbox.Mailbox, cfg Config) *Service {
	if cfg.PollLimit <= 0 {
		cfg.PollLimit = command.DefaultDrainLimit
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = mailbox.DefaultReadLimit
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = 30 * time.Minute
	}
	return &Service{
		devices:   devices,
		commands:  commands,
		responses: responses,
		cfg:       cfg,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// SetPresencePublisher enables online presence events on registration.
func (s *Service) SetPresencePublisher(p PresencePublisher) {
	s.presence = p
}

// SetMetrics enables per-operation metrics.
func (s *Service) SetMetrics(m OperationMetrics) {
	s.metrics = m
}

func (s *Service) observe(op string, start time.Time, errp *error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperation(op, outcome(*errp), time.Since(start))
}

// Register records a device and returns it with its code.
func (s *Service) Register(ctx context.Context, id, kind string) (_ *device.Device, err error) {
	defer s.observe(OpRegister, time.Now(), &err)

	d, err := s.devices.Register(ctx, id, kind)
	if err != nil {
		return nil, classify(err)
	}

	if s.presence != nil {
		p := mqtt.Presence{
			DeviceID: d.ID,
			Code:     d.Code,
			Kind:     d.Kind,
			Status:   string(d.Status),
			LastSeen: d.LastSeen,
		}
		if err := s.presence.PublishPresence(ctx, p); err != nil {
			s.logger.Warn("publishing online presence failed", "device_id", d.ID, "error", err)
		}
	}
	return d, nil
}

// FindByCode looks up the live device holding code. A missing device is a
// result (found=false), not an error.
func (s *Service) FindByCode(ctx context.Context, code string) (_ *device.Device, found bool, err error) {
	defer s.observe(OpFindByCode, time.Now(), &err)

	d, err := s.devices.LocateByCode(ctx, code)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return d, true, nil
}

// SendCommand queues body for the live device holding code and returns the
// command id.
func (s *Service) SendCommand(ctx context.Context, code string, body []byte) (_ int64, err error) {
	defer s.observe(OpSendCommand, time.Now(), &err)

	if _, err := device.ValidateCode(code); err != nil {
		return 0, classify(err)
	}
	if _, err := payload.Normalize(body); err != nil {
		return 0, fmt.Errorf("%w: command: %w", ErrInvalidInput, err)
	}

	d, err := s.devices.LocateByCode(ctx, code)
	if err != nil {
		return 0, classify(err)
	}

	id, err := s.commands.Enqueue(ctx, d.ID, d.Code, body)
	if err != nil {
		return 0, classify(err)
	}

	s.logger.Info("command queued", "command_id", id, "device_id", d.ID, "code", d.Code)
	return id, nil
}

// PollCommands records a heartbeat for the device, then delivers its
// pending commands oldest first. An empty slice means nothing is pending.
// Any non-empty id is accepted; an unregistered one simply has no commands.
// A failed heartbeat is logged and does not stop delivery.
func (s *Service) PollCommands(ctx context.Context, id string) (_ []json.RawMessage, err error) {
	defer s.observe(OpPollCommands, time.Now(), &err)

	if err := device.RequireID(id); err != nil {
		return nil, classify(err)
	}

	s.heartbeat(ctx, id)

	cmds, err := s.commands.DrainPending(ctx, id, s.cfg.PollLimit)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]json.RawMessage, len(cmds))
	for i, c := range cmds {
		out[i] = c.Payload
	}
	return out, nil
}

// PostResponse stores a response from the device. The code is derived from
// the id, so a device need not be registered to post. Any non-empty id is
// accepted; if its derived code is not a valid code the response can never
// be read and is purged by the sweeper.
func (s *Service) PostResponse(ctx context.Context, id string, body []byte) (_ int64, err error) {
	defer s.observe(OpPostResponse, time.Now(), &err)

	if err := device.RequireID(id); err != nil {
		return 0, classify(err)
	}
	if _, err := payload.Normalize(body); err != nil {
		return 0, fmt.Errorf("%w: response: %w", ErrInvalidInput, err)
	}

	s.heartbeat(ctx, id)

	respID, err := s.responses.Post(ctx, id, device.DeriveCode(id), body)
	if err != nil {
		return 0, classify(err)
	}
	return respID, nil
}

// ResponseItem is one response as returned to a controller.
type ResponseItem struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReadResponses returns and consumes the unread responses for code, newest
// first.
func (s *Service) ReadResponses(ctx context.Context, code string) (_ []ResponseItem, err error) {
	defer s.observe(OpReadResponses, time.Now(), &err)

	normalized, err := device.ValidateCode(code)
	if err != nil {
		return nil, classify(err)
	}

	responses, err := s.responses.ReadRecent(ctx, normalized, s.cfg.ResponseTTL, s.cfg.ReadLimit)
	if err != nil {
		return nil, classify(err)
	}

	items := make([]ResponseItem, len(responses))
	for i, r := range responses {
		items[i] = ResponseItem{Payload: r.Payload, Timestamp: r.CreatedAt}
	}
	return items, nil
}

// Stats summarises the store.
type Stats struct {
	Devices   map[device.Status]int  `json:"devices"`
	Commands  map[command.Status]int `json:"commands"`
	Responses int                    `json:"responses"`
}

// Stats returns device, command and response counts.
func (s *Service) Stats(ctx context.Context) (_ *Stats, err error) {
	defer s.observe(OpStats, time.Now(), &err)

	devices, err := s.devices.Counts(ctx)
	if err != nil {
		return nil, classify(err)
	}
	commands, err := s.commands.Counts(ctx)
	if err != nil {
		return nil, classify(err)
	}
	responses, err := s.responses.Count(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &Stats{Devices: devices, Commands: commands, Responses: responses}, nil
}

// ListDevices returns the live devices, most recently seen first.
func (s *Service) ListDevices(ctx context.Context) (_ []device.Device, err error) {
	defer s.observe(OpListDevices, time.Now(), &err)

	devices, err := s.devices.ListOnline(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return devices, nil
}

// heartbeat is best effort.
func (s *Service) heartbeat(ctx context.Context, id string) {
	if _, err := s.devices.Heartbeat(ctx, id); err != nil {
		s.logger.Warn("heartbeat failed", "device_id", id, "error", err)
	}
}
