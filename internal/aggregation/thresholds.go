package aggregation

import (
	"fmt"

	"GasMonitorAPI/internal/models"
)

// Limit is a warning/danger pair for one quantity and window.
type Limit struct {
	Warning float64 `mapstructure:"warning" json:"warning"`
	Danger  float64 `mapstructure:"danger" json:"danger"`
}

// Thresholds maps quantity -> window label -> limit.
type Thresholds map[models.Quantity]map[string]Limit

// DefaultThresholds reflects short-term versus shift-long exposure limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		models.QuantityCO: {
			"10min": {Warning: 100, Danger: 200},
			"30min": {Warning: 75, Danger: 150},
			"1hr":   {Warning: 50, Danger: 100},
			"4hr":   {Warning: 35, Danger: 70},
			"8hr":   {Warning: 25, Danger: 50},
		},
		models.QuantityNO2: {
			"10min": {Warning: 1, Danger: 5},
			"30min": {Warning: 1, Danger: 3},
			"1hr":   {Warning: 0.5, Danger: 2},
			"4hr":   {Warning: 0.5, Danger: 1},
			"8hr":   {Warning: 0.2, Danger: 0.5},
		},
		models.QuantityH2S: {
			"10min": {Warning: 5, Danger: 10},
			"30min": {Warning: 5, Danger: 10},
			"1hr":   {Warning: 2, Danger: 5},
			"4hr":   {Warning: 1, Danger: 2},
			"8hr":   {Warning: 1, Danger: 2},
		},
		models.QuantityTemperature: {
			"10min": {Warning: 30, Danger: 35},
			"30min": {Warning: 30, Danger: 35},
			"1hr":   {Warning: 28, Danger: 32},
			"4hr":   {Warning: 28, Danger: 32},
			"8hr":   {Warning: 27, Danger: 30},
		},
	}
}

// Merge overlays other onto a copy of t.
func (t Thresholds) Merge(other Thresholds) Thresholds {
	out := make(Thresholds, len(t))
	for q, windows := range t {
		out[q] = make(map[string]Limit, len(windows))
		for w, l := range windows {
			out[q][w] = l
		}
	}
	for q, windows := range other {
		if out[q] == nil {
			out[q] = make(map[string]Limit, len(windows))
		}
		for w, l := range windows {
			out[q][w] = l
		}
	}
	return out
}

// Validate checks every limit is ordered and names a known window.
func (t Thresholds) Validate() error {
	for q, windows := range t {
		for label, l := range windows {
			if _, ok := models.WindowByLabel(label); !ok {
				return fmt.Errorf("thresholds %s: unknown window %q", q, label)
			}
			if l.Warning > l.Danger {
				return fmt.Errorf("thresholds %s/%s: warning %.3f above danger %.3f", q, label, l.Warning, l.Danger)
			}
		}
	}
	return nil
}

// Classify derives severity. Each bound belongs to the higher severity:
// mean < warning is normal, warning <= mean < danger is warning, mean >= danger is danger.
// The returned threshold is the bound that was crossed, or zero for normal.
func (t Thresholds) Classify(q models.Quantity, window string, mean float64) (models.Severity, float64) {
	l, ok := t[q][window]
	if !ok {
		return models.SeverityNormal, 0
	}
	switch {
	case mean >= l.Danger:
		return models.SeverityDanger, l.Danger
	case mean >= l.Warning:
		return models.SeverityWarning, l.Warning
	default:
		return models.SeverityNormal, 0
	}
}
