package repository

import (
	"context"
	"database/sql"
	"fmt"

	"GasMonitorAPI/internal/models"
)

type AggregateRepository struct {
	db *sql.DB
}

func NewAggregateRepository(db *sql.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

func (r *AggregateRepository) InsertBatch(ctx context.Context, aggregates []models.Aggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggregates (device_id, quantity, window_label, computed_at, mean_value, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id, quantity, window_label, computed_at) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range aggregates {
		if _, err := stmt.ExecContext(ctx, a.DeviceID, string(a.Quantity), a.Window, a.ComputedAt, a.Mean, a.SampleCount); err != nil {
			return fmt.Errorf("failed to insert aggregate batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *AggregateRepository) Query(ctx context.Context, q models.HistoryQuery) ([]models.Aggregate, int, error) {
	w := historyFilter(q, "computed_at", true)
	where := w.clause()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM aggregates "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count aggregates: %w", err)
	}

	limit, offset := pagination(q)
	query := fmt.Sprintf(`
		SELECT device_id, quantity, window_label, computed_at, mean_value, sample_count
		FROM aggregates
		%s
		ORDER BY computed_at DESC, device_id, quantity, window_label
		LIMIT $%d OFFSET $%d
	`, where, w.next(), w.next()+1)

	rows, err := r.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	aggregates := []models.Aggregate{}
	for rows.Next() {
		var a models.Aggregate
		var quantity string
		if err := rows.Scan(&a.DeviceID, &quantity, &a.Window, &a.ComputedAt, &a.Mean, &a.SampleCount); err != nil {
			return nil, 0, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		a.Quantity = models.Quantity(quantity)
		aggregates = append(aggregates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate aggregates: %w", err)
	}
	return aggregates, total, nil
}

// PeakByWindow returns the highest mean seen per quantity and window for a
// device within the query's time range.
func (r *AggregateRepository) PeakByWindow(ctx context.Context, q models.HistoryQuery) ([]models.Aggregate, error) {
	w := historyFilter(q, "computed_at", true)
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (quantity, window_label)
		       device_id, quantity, window_label, computed_at, mean_value, sample_count
		FROM aggregates
		%s
		ORDER BY quantity, window_label, mean_value DESC
	`, w.clause())

	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query peak aggregates: %w", err)
	}
	defer rows.Close()

	peaks := []models.Aggregate{}
	for rows.Next() {
		var a models.Aggregate
		var quantity string
		if err := rows.Scan(&a.DeviceID, &quantity, &a.Window, &a.ComputedAt, &a.Mean, &a.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan peak aggregate: %w", err)
		}
		a.Quantity = models.Quantity(quantity)
		peaks = append(peaks, a)
	}
	return peaks, rows.Err()
}
