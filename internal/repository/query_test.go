package repository

import (
	"testing"
	"time"

	"GasMonitorAPI/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestHistoryFilterEmpty(t *testing.T) {
	w := historyFilter(models.HistoryQuery{}, "observed_at", false)
	assert.Empty(t, w.clause())
	assert.Empty(t, w.args)
	assert.Equal(t, 1, w.next())
}

func TestHistoryFilterAllFields(t *testing.T) {
	id := 7
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	w := historyFilter(models.HistoryQuery{
		DeviceID:  &id,
		Quantity:  models.QuantityCO,
		Window:    "8hr",
		StartTime: &start,
		EndTime:   &end,
	}, "computed_at", true)

	assert.Equal(t,
		"WHERE device_id = $1 AND quantity = $2 AND window_label = $3 AND computed_at >= $4 AND computed_at <= $5",
		w.clause())
	assert.Equal(t, []interface{}{7, "CO", "8hr", start, end}, w.args)
	assert.Equal(t, 6, w.next())
}

func TestHistoryFilterIgnoresWindowWithoutColumn(t *testing.T) {
	w := historyFilter(models.HistoryQuery{Window: "10min", Quantity: models.QuantityNO2}, "observed_at", false)
	assert.Equal(t, "WHERE quantity = $1", w.clause())
}

func TestPagination(t *testing.T) {
	limit, offset := pagination(models.HistoryQuery{})
	assert.Equal(t, defaultLimit, limit)
	assert.Zero(t, offset)

	limit, offset = pagination(models.HistoryQuery{Limit: 1 << 20, Offset: -3})
	assert.Equal(t, maxLimit, limit)
	assert.Zero(t, offset)

	limit, offset = pagination(models.HistoryQuery{Limit: 25, Offset: 50})
	assert.Equal(t, 25, limit)
	assert.Equal(t, 50, offset)
}
