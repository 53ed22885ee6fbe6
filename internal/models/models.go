// internal/models/models.go

package models

import (
	"fmt"
	"strings"
	"time"
)

// Quantity is a measured gas or environmental channel.
type Quantity string

const (
	QuantityCO          Quantity = "CO"
	QuantityNO2         Quantity = "NO2"
	QuantityH2S         Quantity = "H2S"
	QuantityO2          Quantity = "O2"
	QuantityTemperature Quantity = "temperature"
	QuantityHumidity    Quantity = "humidity"
)

// Quantities lists every supported quantity in a stable order.
var Quantities = []Quantity{
	QuantityCO,
	QuantityNO2,
	QuantityH2S,
	QuantityO2,
	QuantityTemperature,
	QuantityHumidity,
}

var quantityAliases = map[string]Quantity{
	"co":          QuantityCO,
	"no2":         QuantityNO2,
	"h2s":         QuantityH2S,
	"o2":          QuantityO2,
	"temperature": QuantityTemperature,
	"temp":        QuantityTemperature,
	"humidity":    QuantityHumidity,
	"hum":         QuantityHumidity,
	"rh":          QuantityHumidity,
}

// ParseQuantity maps a wire-level key to a Quantity. Matching is case-insensitive.
func ParseQuantity(s string) (Quantity, bool) {
	q, ok := quantityAliases[strings.ToLower(strings.TrimSpace(s))]
	return q, ok
}

// Unit returns the display unit for a quantity.
func (q Quantity) Unit() string {
	switch q {
	case QuantityTemperature:
		return "°C"
	case QuantityHumidity, QuantityO2:
		return "%"
	default:
		return "ppm"
	}
}

// Severity classifies an aggregate against its threshold table.
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Window is a named TWA lookback duration.
type Window struct {
	Label    string
	Duration time.Duration
}

// Windows is the fixed process-wide window set, shortest first.
var Windows = []Window{
	{Label: "10min", Duration: 10 * time.Minute},
	{Label: "30min", Duration: 30 * time.Minute},
	{Label: "1hr", Duration: time.Hour},
	{Label: "4hr", Duration: 4 * time.Hour},
	{Label: "8hr", Duration: 8 * time.Hour},
}

// LongestWindow is the retention horizon of the reading store.
func LongestWindow() time.Duration {
	return Windows[len(Windows)-1].Duration
}

// WindowByLabel looks up a window definition.
func WindowByLabel(label string) (Window, bool) {
	for _, w := range Windows {
		if w.Label == label {
			return w, true
		}
	}
	return Window{}, false
}

type Device struct {
	ID                 int    `json:"device_id" db:"device_id" mapstructure:"id"`
	Ordinal            int    `json:"ordinal" db:"ordinal" mapstructure:"ordinal"`
	ExternalIdentifier string `json:"external_identifier" db:"external_identifier" mapstructure:"external_identifier"`
	Name               string `json:"name" db:"name" mapstructure:"name"`
	Location           string `json:"location" db:"location" mapstructure:"location"`
	Worker             string `json:"worker" db:"worker" mapstructure:"worker"`
}

// Reading is a single stored sample.
type Reading struct {
	DeviceID   int       `json:"device_id" db:"device_id"`
	Quantity   Quantity  `json:"quantity" db:"quantity"`
	Value      float64   `json:"value" db:"value"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
}

func (r Reading) String() string {
	return fmt.Sprintf("device=%d %s=%g @%s", r.DeviceID, r.Quantity, r.Value, r.ObservedAt.Format(time.RFC3339))
}

// Aggregate is a freshly computed TWA for one (device, quantity, window).
type Aggregate struct {
	DeviceID    int       `json:"device_id" db:"device_id"`
	Quantity    Quantity  `json:"quantity" db:"quantity"`
	Window      string    `json:"window_label" db:"window_label"`
	Mean        float64   `json:"mean_value" db:"mean_value"`
	ComputedAt  time.Time `json:"computed_at" db:"computed_at"`
	SampleCount int       `json:"sample_count" db:"sample_count"`
}

type Alert struct {
	DeviceID    int       `json:"device_id" db:"device_id"`
	Quantity    Quantity  `json:"quantity" db:"quantity"`
	Window      string    `json:"window_label" db:"window_label"`
	Severity    Severity  `json:"severity" db:"severity"`
	Mean        float64   `json:"mean_value" db:"mean_value"`
	Threshold   float64   `json:"threshold_value" db:"threshold_value"`
	TriggeredAt time.Time `json:"triggered_at" db:"triggered_at"`
}

// EventType tags what an Event carries.
type EventType string

const (
	EventReading   EventType = "reading"
	EventAggregate EventType = "aggregate"
	EventAlert     EventType = "alert"
)

// Event is the normalized unit fanned out to viewers.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func NewReadingEvent(r Reading) Event {
	return Event{Type: EventReading, Timestamp: r.ObservedAt, Payload: r}
}

func NewAggregateEvent(a Aggregate) Event {
	return Event{Type: EventAggregate, Timestamp: a.ComputedAt, Payload: a}
}

func NewAlertEvent(a Alert) Event {
	return Event{Type: EventAlert, Timestamp: a.TriggeredAt, Payload: a}
}

// HistoryQuery filters persisted records.
type HistoryQuery struct {
	DeviceID  *int
	Quantity  Quantity
	Window    string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  struct {
		Database bool `json:"database"`
		MQTT     bool `json:"mqtt"`
	} `json:"services"`
	Sessions  int           `json:"sessions"`
	Broker    *BrokerStatus `json:"broker,omitempty"`
	Pool      *PoolStatus   `json:"database_pool,omitempty"`
	LastCycle *CycleStatus  `json:"last_cycle,omitempty"`
}

type BrokerStatus struct {
	Subscriptions int       `json:"subscriptions"`
	LastConnected time.Time `json:"last_connected"`
}

type PoolStatus struct {
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"wait_count"`
}

// CycleStatus summarises the last completed aggregation pass.
type CycleStatus struct {
	ComputedAt time.Time `json:"computed_at"`
	Aggregates int       `json:"aggregates"`
	Alerts     int       `json:"alerts"`
	Failed     int       `json:"failed"`
	Evicted    int       `json:"evicted"`
}

// ExposureResponse is the live view of a device's current aggregates.
type ExposureResponse struct {
	Device     Device      `json:"device"`
	Aggregates []Aggregate `json:"aggregates"`
	Alerts     []Alert     `json:"alerts"`
}
