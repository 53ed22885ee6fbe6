package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id           INTEGER PRIMARY KEY,
		ordinal             INTEGER NOT NULL UNIQUE,
		external_identifier TEXT NOT NULL DEFAULT '',
		name                TEXT NOT NULL DEFAULT '',
		location            TEXT NOT NULL DEFAULT '',
		worker              TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS readings (
		device_id   INTEGER NOT NULL,
		quantity    TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		value       DOUBLE PRECISION NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (device_id, quantity, observed_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_readings_observed_at ON readings (observed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS aggregates (
		device_id    INTEGER NOT NULL,
		quantity     TEXT NOT NULL,
		window_label TEXT NOT NULL,
		computed_at  TIMESTAMPTZ NOT NULL,
		mean_value   DOUBLE PRECISION NOT NULL,
		sample_count INTEGER NOT NULL,
		PRIMARY KEY (device_id, quantity, window_label, computed_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aggregates_computed_at ON aggregates (computed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id              BIGSERIAL PRIMARY KEY,
		device_id       INTEGER NOT NULL,
		quantity        TEXT NOT NULL,
		window_label    TEXT NOT NULL,
		severity        TEXT NOT NULL,
		mean_value      DOUBLE PRECISION NOT NULL,
		threshold_value DOUBLE PRECISION NOT NULL,
		triggered_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (device_id, quantity, window_label, triggered_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_triggered_at ON alerts (triggered_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts (severity, triggered_at DESC)`,
}
