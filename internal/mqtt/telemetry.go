package mqtt

import (
	"context"
	"time"

	"GasMonitorAPI/internal/ingest"
)

// Submitter accepts inbound messages for ingestion.
type Submitter interface {
	Submit(ctx context.Context, msg ingest.Message) error
}

// SubscribeTelemetry routes every message on the telemetry topic into gw.
// The device id in the topic's wildcard segment is passed along as a hint
// for payloads that do not carry one.
func (c *Client) SubscribeTelemetry(gw Submitter) error {
	pattern := c.cfg.TelemetryTopic
	timeout := c.cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	return c.Subscribe(pattern, func(topic string, payload []byte) error {
		msg := ingest.Message{
			Topic:      topic,
			DeviceHint: WildcardSegment(pattern, topic),
			Payload:    append([]byte(nil), payload...),
			ReceivedAt: time.Now(),
		}

		ctx, cancel := context.WithTimeout(c.ctx, timeout)
		defer cancel()
		return gw.Submit(ctx, msg)
	})
}

// UnsubscribeTelemetry stops delivery from the telemetry topic so no new
// messages reach the gateway while it drains.
func (c *Client) UnsubscribeTelemetry() error {
	return c.Unsubscribe(c.cfg.TelemetryTopic)
}
