package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Presence describes a device's liveness transition.
type Presence struct {
	DeviceID string    `json:"device_id"`
	Code     string    `json:"code"`
	Kind     string    `json:"kind,omitempty"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// publisher is the subset of Client used by EventPublisher.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventPublisher announces relay events on the broker: device presence
// transitions (retained, per code) and sweep summaries.
type EventPublisher struct {
	pub publisher
	qos byte
	now func() time.Time
}

// NewEventPublisher creates an event publisher on c using the configured QoS.
func NewEventPublisher(c *Client) *EventPublisher {
	return newEventPublisher(c, byte(c.cfg.QoS))
}

func newEventPublisher(pub publisher, qos byte) *EventPublisher {
	return &EventPublisher{pub: pub, qos: qos, now: time.Now}
}

type presenceMessage struct {
	Presence
	Timestamp time.Time `json:"timestamp"`
}

// PublishPresence publishes p as the retained presence of its code.
func (e *EventPublisher) PublishPresence(ctx context.Context, p Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(presenceMessage{Presence: p, Timestamp: e.now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding presence: %w", err)
	}
	return e.pub.Publish(Topics{}.DevicePresence(p.Code), payload, e.qos, true)
}

// PublishSweep publishes a sweep summary. It is not retained.
func (e *EventPublisher) PublishSweep(ctx context.Context, summary any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encoding sweep summary: %w", err)
	}
	return e.pub.Publish(Topics{}.SweepReport(), payload, e.qos, false)
}
