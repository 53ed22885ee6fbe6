package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"GasMonitorAPI/internal/models"
)

type ReadingRepository struct {
	db *sql.DB
}

func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// InsertBatch writes readings in one transaction. Rows already present for
// the same (device, quantity, observed_at) are left untouched, so a retried
// batch does not duplicate data.
func (r *ReadingRepository) InsertBatch(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (device_id, quantity, observed_at, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id, quantity, observed_at) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rd := range readings {
		if _, err := stmt.ExecContext(ctx, rd.DeviceID, string(rd.Quantity), rd.ObservedAt, rd.Value); err != nil {
			return fmt.Errorf("failed to insert reading batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns one page of readings, newest first, and the total match count.
func (r *ReadingRepository) Query(ctx context.Context, q models.HistoryQuery) ([]models.Reading, int, error) {
	w := historyFilter(q, "observed_at", false)
	where := w.clause()

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings "+where, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count readings: %w", err)
	}

	limit, offset := pagination(q)
	query := fmt.Sprintf(`
		SELECT device_id, quantity, observed_at, value
		FROM readings
		%s
		ORDER BY observed_at DESC
		LIMIT $%d OFFSET $%d
	`, where, w.next(), w.next()+1)

	rows, err := r.db.QueryContext(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		var rd models.Reading
		var quantity string
		if err := rows.Scan(&rd.DeviceID, &quantity, &rd.ObservedAt, &rd.Value); err != nil {
			return nil, 0, fmt.Errorf("failed to scan reading: %w", err)
		}
		rd.Quantity = models.Quantity(quantity)
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, total, nil
}

// QuantityStats summarises one quantity over a period.
type QuantityStats struct {
	Quantity    models.Quantity `json:"quantity"`
	SampleCount int             `json:"sample_count"`
	Avg         float64         `json:"avg"`
	Min         float64         `json:"min"`
	Max         float64         `json:"max"`
	First       time.Time       `json:"first"`
	Last        time.Time       `json:"last"`
}

// GetStats summarises each quantity reported by a device between start and end.
func (r *ReadingRepository) GetStats(ctx context.Context, deviceID int, start, end time.Time) ([]QuantityStats, error) {
	query := `
		SELECT quantity, COUNT(*), AVG(value), MIN(value), MAX(value), MIN(observed_at), MAX(observed_at)
		FROM readings
		WHERE device_id = $1 AND observed_at >= $2 AND observed_at <= $3
		GROUP BY quantity
		ORDER BY quantity
	`
	rows, err := r.db.QueryContext(ctx, query, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get reading stats: %w", err)
	}
	defer rows.Close()

	stats := []QuantityStats{}
	for rows.Next() {
		var s QuantityStats
		var quantity string
		if err := rows.Scan(&quantity, &s.SampleCount, &s.Avg, &s.Min, &s.Max, &s.First, &s.Last); err != nil {
			return nil, fmt.Errorf("failed to scan reading stats: %w", err)
		}
		s.Quantity = models.Quantity(quantity)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
