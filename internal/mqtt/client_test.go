package mqtt

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"GasMonitorAPI/internal/config"
	"GasMonitorAPI/internal/ingest"
	"GasMonitorAPI/internal/logger"
	"GasMonitorAPI/internal/retry"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern, topic string
		want           bool
	}{
		{"safety/devices/+/telemetry", "safety/devices/sensor_01/telemetry", true},
		{"safety/devices/+/telemetry", "safety/devices/sensor_01/status", false},
		{"safety/devices/+/telemetry", "safety/devices/telemetry", false},
		{"safety/#", "safety/devices/sensor_01/telemetry", true},
		{"safety/devices", "safety/devices", true},
		{"safety/devices", "safety/devices/extra", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchTopic(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}

func TestWildcardSegment(t *testing.T) {
	assert.Equal(t, "sensor_07", WildcardSegment("safety/devices/+/telemetry", "safety/devices/sensor_07/telemetry"))
	assert.Empty(t, WildcardSegment("safety/devices/+/telemetry", "other/devices/sensor_07/telemetry"))
	assert.Empty(t, WildcardSegment("safety/devices/telemetry", "safety/devices/telemetry"))
	assert.Equal(t, "safety/devices/sensor_07/telemetry", DeviceTopic("safety/devices/+/telemetry", "sensor_07"))
}

type captureSubmitter struct {
	mu   sync.Mutex
	msgs []ingest.Message
}

func (c *captureSubmitter) Submit(ctx context.Context, msg ingest.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	return nil
}

func (c *captureSubmitter) received() []ingest.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ingest.Message(nil), c.msgs...)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startBroker(t *testing.T) int {
	t.Helper()
	port := freePort(t)

	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "t1",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { server.Close() })
	return port
}

func newTestClient(t *testing.T, port int, id string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		MQTT: &config.MQTTConfig{
			Broker:         "127.0.0.1",
			Port:           port,
			ClientID:       id,
			TelemetryTopic: "safety/devices/+/telemetry",
			QoS:            1,
			KeepAlive:      30 * time.Second,
			ConnectTimeout: 5 * time.Second,
			SubmitTimeout:  time.Second,
		},
		Logger: logger.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestTelemetryRoundTripThroughBroker(t *testing.T) {
	port := startBroker(t)

	sub := newTestClient(t, port, "gas-monitor-test")
	require.NoError(t, sub.ConnectWithRetry(context.Background(), retry.Config{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: 200 * time.Millisecond}))
	defer sub.Disconnect()

	sink := &captureSubmitter{}
	require.NoError(t, sub.SubscribeTelemetry(sink))

	pub := newTestClient(t, port, "gas-monitor-sim")
	require.NoError(t, pub.Connect())
	defer pub.Disconnect()

	require.NoError(t, pub.PublishJSON(DeviceTopic("safety/devices/+/telemetry", "sensor_04"), map[string]interface{}{
		"ts": 1772366400,
		"co": 12.5,
	}))
	require.NoError(t, pub.Publish("safety/devices/sensor_04/status", []byte(`{"battery":90}`)))

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, 5*time.Second, 10*time.Millisecond)
	got := sink.received()[0]
	assert.Equal(t, "safety/devices/sensor_04/telemetry", got.Topic)
	assert.Equal(t, "sensor_04", got.DeviceHint)
	assert.JSONEq(t, `{"ts":1772366400,"co":12.5}`, string(got.Payload))

	health, err := sub.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Connected)
	assert.Equal(t, 1, health.Subscriptions)
	assert.False(t, health.LastConnected.IsZero())

	require.NoError(t, sub.UnsubscribeTelemetry())
	health, err = sub.Health(context.Background())
	require.NoError(t, err)
	assert.Zero(t, health.Subscriptions)

	require.NoError(t, pub.PublishJSON(DeviceTopic("safety/devices/+/telemetry", "sensor_05"), map[string]interface{}{
		"ts": 1772366460,
		"co": 3,
	}))
	assert.Never(t, func() bool { return len(sink.received()) > 1 }, 300*time.Millisecond, 20*time.Millisecond)
}

func TestClientRequiresConnection(t *testing.T) {
	c := newTestClient(t, freePort(t), "offline")
	assert.False(t, c.IsConnected())
	assert.Error(t, c.Publish("safety/devices/x/telemetry", []byte("{}")))
	assert.Error(t, c.SubscribeTelemetry(&captureSubmitter{}))
	assert.Error(t, c.UnsubscribeTelemetry())

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.False(t, health.Connected)
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	c := newTestClient(t, freePort(t), "unreachable")
	c.cfg.ConnectTimeout = 200 * time.Millisecond

	err := c.ConnectWithRetry(context.Background(), retry.Config{MaxAttempts: 2, InitialDelay: 10 * time.Millisecond, MaxDelay: 20 * time.Millisecond})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}
