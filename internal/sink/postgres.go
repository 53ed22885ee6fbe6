package sink

import (
	"context"

	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/repository"
)

// PostgresWriter writes batches through the repositories.
type PostgresWriter struct {
	Readings   *repository.ReadingRepository
	Aggregates *repository.AggregateRepository
	Alerts     *repository.AlertRepository
}

func (p *PostgresWriter) WriteReadings(ctx context.Context, readings []models.Reading) error {
	return p.Readings.InsertBatch(ctx, readings)
}

func (p *PostgresWriter) WriteAggregates(ctx context.Context, aggregates []models.Aggregate) error {
	return p.Aggregates.InsertBatch(ctx, aggregates)
}

func (p *PostgresWriter) WriteAlerts(ctx context.Context, alerts []models.Alert) error {
	return p.Alerts.InsertBatch(ctx, alerts)
}
