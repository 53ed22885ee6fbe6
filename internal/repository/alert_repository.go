package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GasMonitorAPI/internal/models"
)

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) InsertBatch(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO alerts (device_id, quantity, window_label, severity, mean_value, threshold_value, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, quantity, window_label, triggered_at) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		_, err := stmt.ExecContext(ctx,
			a.DeviceID, string(a.Quantity), a.Window, string(a.Severity), a.Mean, a.Threshold, a.TriggeredAt)
		if err != nil {
			return fmt.Errorf("failed to insert alert batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns alerts matching q, newest first. Severity narrows the result
// when non-empty.
func (r *AlertRepository) Query(ctx context.Context, q models.HistoryQuery, severity models.Severity) ([]models.Alert, int, error) {
	w := historyFilter(q, "triggered_at", true)
	if severity != "" {
		w.add("severity = $%d", string(severity))
	}
	where := w.clause()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	limit, offset := pagination(q)
	query := fmt.Sprintf(`
		SELECT device_id, quantity, window_label, severity, mean_value, threshold_value, triggered_at
		FROM alerts
		%s
		ORDER BY triggered_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, w.next(), w.next()+1)

	rows, err := r.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		var quantity, sev string
		if err := rows.Scan(&a.DeviceID, &quantity, &a.Window, &sev, &a.Mean, &a.Threshold, &a.TriggeredAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Quantity = models.Quantity(quantity)
		a.Severity = models.Severity(sev)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, total, nil
}

// DeleteOld removes alerts triggered before cutoff.
func (r *AlertRepository) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE triggered_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	return result.RowsAffected()
}
