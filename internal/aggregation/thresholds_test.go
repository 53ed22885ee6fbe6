package aggregation

import (
	"testing"

	"GasMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBoundaries(t *testing.T) {
	th := DefaultThresholds()
	limit := th[models.QuantityCO]["10min"]

	cases := []struct {
		name      string
		mean      float64
		severity  models.Severity
		threshold float64
	}{
		{"at danger bound", limit.Danger, models.SeverityDanger, limit.Danger},
		{"one below danger", limit.Danger - 1, models.SeverityWarning, limit.Warning},
		{"at warning bound", limit.Warning, models.SeverityWarning, limit.Warning},
		{"just below warning", limit.Warning - 0.001, models.SeverityNormal, 0},
		{"far above", limit.Danger * 10, models.SeverityDanger, limit.Danger},
		{"zero", 0, models.SeverityNormal, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sev, bound := th.Classify(models.QuantityCO, "10min", tc.mean)
			assert.Equal(t, tc.severity, sev)
			assert.Equal(t, tc.threshold, bound)
		})
	}
}

func TestClassifyUsesPerWindowLimits(t *testing.T) {
	th := DefaultThresholds()

	// 60 ppm is fine for ten minutes but dangerous over a shift.
	sev, _ := th.Classify(models.QuantityCO, "10min", 60)
	assert.Equal(t, models.SeverityNormal, sev)
	sev, _ = th.Classify(models.QuantityCO, "8hr", 60)
	assert.Equal(t, models.SeverityDanger, sev)
}

func TestClassifyWithoutTableIsNormal(t *testing.T) {
	sev, bound := DefaultThresholds().Classify(models.QuantityHumidity, "1hr", 99)
	assert.Equal(t, models.SeverityNormal, sev)
	assert.Zero(t, bound)
}

func TestThresholdsMergeAndValidate(t *testing.T) {
	base := DefaultThresholds()
	merged := base.Merge(Thresholds{
		models.QuantityCO:       {"10min": {Warning: 10, Danger: 20}},
		models.QuantityHumidity: {"1hr": {Warning: 80, Danger: 90}},
	})

	assert.Equal(t, Limit{Warning: 10, Danger: 20}, merged[models.QuantityCO]["10min"])
	assert.Equal(t, base[models.QuantityCO]["8hr"], merged[models.QuantityCO]["8hr"])
	assert.Equal(t, Limit{Warning: 100, Danger: 200}, base[models.QuantityCO]["10min"], "base must not be mutated")
	assert.NoError(t, merged.Validate())

	assert.Error(t, Thresholds{models.QuantityCO: {"2min": {Warning: 1, Danger: 2}}}.Validate())
	assert.Error(t, Thresholds{models.QuantityCO: {"1hr": {Warning: 3, Danger: 2}}}.Validate())
}
