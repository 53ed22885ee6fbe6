package ingest

import (
	"testing"
	"time"

	"GasMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(payload string) Message {
	return Message{Topic: "safety/devices/x/telemetry", Payload: []byte(payload)}
}

func TestParseFlatPayload(t *testing.T) {
	p, err := Parse(msg(`{"id":"sensor_01","ts":1772366400,"co":5,"NO2":0.4,"battery":87}`))
	require.NoError(t, err)

	assert.Equal(t, "sensor_01", p.RawID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), p.ObservedAt)
	assert.Equal(t, []Measurement{
		{Quantity: models.QuantityCO, Value: 5},
		{Quantity: models.QuantityNO2, Value: 0.4},
	}, p.Measurements)
}

func TestParseIdentifierKeys(t *testing.T) {
	for _, key := range []string{"id", "device", "device_id", "pid"} {
		p, err := Parse(msg(`{"` + key + `":"unit-07","timestamp":1772366400,"temp":21.5}`))
		require.NoError(t, err, key)
		assert.Equal(t, "unit-07", p.RawID, key)
	}
}

func TestParseTimestampForms(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"seconds":        `1772366400`,
		"milliseconds":   `1772366400000`,
		"rfc3339":        `"2026-03-01T12:00:00Z"`,
		"rfc3339 offset": `"2026-03-01T14:00:00+02:00"`,
		"numeric string": `"1772366400"`,
	}
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			p, err := Parse(msg(`{"id":"sensor_01","epoch":` + ts + `,"co":1}`))
			require.NoError(t, err)
			assert.True(t, want.Equal(p.ObservedAt), "got %s", p.ObservedAt)
		})
	}

	p, err := Parse(msg(`{"id":"sensor_01","ts":1772366400.5,"co":1}`))
	require.NoError(t, err)
	assert.Equal(t, want.Add(500*time.Millisecond), p.ObservedAt)
}

func TestParseNestedMap(t *testing.T) {
	p, err := Parse(msg(`{"device":"sensor_03","timestamp":"2026-03-01T12:00:00Z","readings":{"humidity":40,"co":12}}`))
	require.NoError(t, err)
	assert.Equal(t, []Measurement{
		{Quantity: models.QuantityCO, Value: 12},
		{Quantity: models.QuantityHumidity, Value: 40},
	}, p.Measurements)
}

func TestParseNestedArray(t *testing.T) {
	p, err := Parse(msg(`{"device":"sensor_03","ts":1772366400,"readings":[{"type":"h2s","value":0.5},{"type":"rssi","value":-70},{"type":"O2","value":20.9}]}`))
	require.NoError(t, err)
	assert.Equal(t, []Measurement{
		{Quantity: models.QuantityH2S, Value: 0.5},
		{Quantity: models.QuantityO2, Value: 20.9},
	}, p.Measurements)
}

func TestParseFallsBackToTopicHint(t *testing.T) {
	m := msg(`{"ts":1772366400,"co":3}`)
	m.DeviceHint = "sensor_09"
	p, err := Parse(m)
	require.NoError(t, err)
	assert.Equal(t, "sensor_09", p.RawID)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `not json`,
		"array":            `[1,2,3]`,
		"no identifier":    `{"ts":1772366400,"co":1}`,
		"numeric id":       `{"id":7,"ts":1772366400,"co":1}`,
		"no timestamp":     `{"id":"sensor_01","co":1}`,
		"bad timestamp":    `{"id":"sensor_01","ts":"yesterday","co":1}`,
		"negative epoch":   `{"id":"sensor_01","ts":-5,"co":1}`,
		"no quantities":    `{"id":"sensor_01","ts":1772366400,"battery":90}`,
		"string value":     `{"id":"sensor_01","ts":1772366400,"co":"high"}`,
		"bad readings":     `{"id":"sensor_01","ts":1772366400,"readings":"co=5"}`,
		"bad nested value": `{"id":"sensor_01","ts":1772366400,"readings":[{"type":"co","value":null}]}`,
		"empty readings":   `{"id":"sensor_01","ts":1772366400,"readings":{}}`,
		"blank identifier": `{"id":"  ","ts":1772366400,"co":1}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(msg(payload))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestShardForIsStable(t *testing.T) {
	a := shardFor("sensor_01", 8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, shardFor("sensor_01", 8))
	}
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 8)
}
