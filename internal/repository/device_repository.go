package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"GasMonitorAPI/internal/models"

	"github.com/lib/pq"
)

type DeviceRepository struct {
	db *sql.DB
}

func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Upsert stores the registry so that persisted rows can be joined to device
// metadata. An ordinal already owned by another device id is rejected.
func (r *DeviceRepository) Upsert(ctx context.Context, devices []models.Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (device_id, ordinal, external_identifier, name, location, worker)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (device_id) DO UPDATE SET
			ordinal = EXCLUDED.ordinal,
			external_identifier = EXCLUDED.external_identifier,
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			worker = EXCLUDED.worker,
			updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range devices {
		_, err := stmt.ExecContext(ctx, d.ID, d.Ordinal, d.ExternalIdentifier, d.Name, d.Location, d.Worker)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return fmt.Errorf("device %d: ordinal %d already registered to another device", d.ID, d.Ordinal)
			}
			return fmt.Errorf("failed to upsert device %d: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *DeviceRepository) GetAll(ctx context.Context) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, ordinal, external_identifier, name, location, worker
		FROM devices
		ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Ordinal, &d.ExternalIdentifier, &d.Name, &d.Location, &d.Worker); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}
