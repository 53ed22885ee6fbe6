package repository

import (
	"fmt"
	"strings"

	"GasMonitorAPI/internal/models"
)

const (
	defaultLimit = 100
	maxLimit     = 5000
)

// whereBuilder accumulates numbered PostgreSQL placeholders.
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(format string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

// next returns the placeholder index for the next argument.
func (w *whereBuilder) next() int {
	return len(w.args) + 1
}

// historyFilter translates q into a WHERE clause over timeColumn. The
// window filter is only applied when the table has a window_label column.
func historyFilter(q models.HistoryQuery, timeColumn string, hasWindow bool) *whereBuilder {
	w := &whereBuilder{}
	if q.DeviceID != nil {
		w.add("device_id = $%d", *q.DeviceID)
	}
	if q.Quantity != "" {
		w.add("quantity = $%d", string(q.Quantity))
	}
	if hasWindow && q.Window != "" {
		w.add("window_label = $%d", q.Window)
	}
	if q.StartTime != nil {
		w.add(timeColumn+" >= $%d", *q.StartTime)
	}
	if q.EndTime != nil {
		w.add(timeColumn+" <= $%d", *q.EndTime)
	}
	return w
}

func pagination(q models.HistoryQuery) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset = q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
