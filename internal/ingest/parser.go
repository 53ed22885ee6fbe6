package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"GasMonitorAPI/internal/models"
)

// ErrMalformedMessage marks a payload that cannot be normalized.
var ErrMalformedMessage = errors.New("malformed message")

// unixMillisCutoff separates second and millisecond epochs.
const unixMillisCutoff = 1e12

var (
	idKeys        = []string{"id", "device", "device_id", "pid"}
	timestampKeys = []string{"ts", "timestamp", "epoch"}
)

// Message is one inbound transport message.
type Message struct {
	Topic string
	// DeviceHint is the identifier extracted from the topic, used when the
	// payload carries none.
	DeviceHint string
	Payload    []byte
	ReceivedAt time.Time
}

// Measurement is one quantity/value pair from a payload.
type Measurement struct {
	Quantity models.Quantity
	Value    float64
}

// Parsed is a normalized payload.
type Parsed struct {
	RawID        string
	ObservedAt   time.Time
	Measurements []Measurement
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

// Parse normalizes the flat and nested payload shapes into a Parsed value.
func Parse(msg Message) (Parsed, error) {
	var body map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(msg.Payload))
	if err := dec.Decode(&body); err != nil {
		return Parsed{}, malformed("invalid JSON object: %v", err)
	}

	var p Parsed
	for _, k := range idKeys {
		raw, ok := body[k]
		if !ok {
			continue
		}
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return Parsed{}, malformed("%s must be a string", k)
		}
		p.RawID = strings.TrimSpace(id)
		break
	}
	if p.RawID == "" {
		p.RawID = strings.TrimSpace(msg.DeviceHint)
	}
	if p.RawID == "" {
		return Parsed{}, malformed("no device identifier")
	}

	found := false
	for _, k := range timestampKeys {
		raw, ok := body[k]
		if !ok {
			continue
		}
		ts, err := parseTimestamp(raw)
		if err != nil {
			return Parsed{}, malformed("%s: %v", k, err)
		}
		p.ObservedAt = ts
		found = true
		break
	}
	if !found {
		return Parsed{}, malformed("no timestamp")
	}

	if nested, ok := body["readings"]; ok {
		ms, err := parseNested(nested)
		if err != nil {
			return Parsed{}, err
		}
		p.Measurements = ms
	} else {
		for key, raw := range body {
			q, ok := models.ParseQuantity(key)
			if !ok {
				continue
			}
			v, err := parseValue(raw)
			if err != nil {
				return Parsed{}, malformed("%s: %v", key, err)
			}
			p.Measurements = append(p.Measurements, Measurement{Quantity: q, Value: v})
		}
		sortMeasurements(p.Measurements)
	}

	if len(p.Measurements) == 0 {
		return Parsed{}, malformed("no quantities present")
	}
	return p, nil
}

func parseNested(raw json.RawMessage) ([]Measurement, error) {
	var ms []Measurement

	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for key, rv := range asMap {
			q, ok := models.ParseQuantity(key)
			if !ok {
				continue
			}
			v, err := parseValue(rv)
			if err != nil {
				return nil, malformed("readings.%s: %v", key, err)
			}
			ms = append(ms, Measurement{Quantity: q, Value: v})
		}
		sortMeasurements(ms)
		return ms, nil
	}

	var asList []struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, malformed("readings must be an object or an array")
	}
	for i, item := range asList {
		q, ok := models.ParseQuantity(item.Type)
		if !ok {
			continue
		}
		v, err := parseValue(item.Value)
		if err != nil {
			return nil, malformed("readings[%d]: %v", i, err)
		}
		ms = append(ms, Measurement{Quantity: q, Value: v})
	}
	return ms, nil
}

func parseValue(raw json.RawMessage) (float64, error) {
	var v float64
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("value is missing")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, errors.New("value must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("value must be finite")
	}
	return v, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fromEpoch(n)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, errors.New("timestamp must be a number or a string")
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
	}
	return t.UTC(), nil
}

func fromEpoch(n float64) (time.Time, error) {
	if n <= 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return time.Time{}, errors.New("epoch must be positive")
	}
	if n > unixMillisCutoff {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// sortMeasurements orders measurements by the canonical quantity order so
// that map-shaped payloads are processed deterministically.
func sortMeasurements(ms []Measurement) {
	rank := make(map[models.Quantity]int, len(models.Quantities))
	for i, q := range models.Quantities {
		rank[q] = i
	}
	sort.SliceStable(ms, func(i, j int) bool {
		return rank[ms[i].Quantity] < rank[ms[j].Quantity]
	})
}
