// internal/mqtt/health.go

package mqtt

import (
	"context"
	"time"
)

type HealthStatus struct {
	Connected      bool      `json:"connected"`
	LastConnected  time.Time `json:"last_connected,omitempty"`
	LastDisconnect time.Time `json:"last_disconnect,omitempty"`
	Subscriptions  int       `json:"subscriptions"`
}

// Health reports the connection state and number of active subscriptions.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Connected:      c.connected && c.client.IsConnected(),
		LastConnected:  c.lastConnected,
		LastDisconnect: c.lastDisconnect,
		Subscriptions:  len(c.handlers),
	}

	return status, nil
}
