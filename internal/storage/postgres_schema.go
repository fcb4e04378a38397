package storage

import (
	"context"
	"fmt"
)

const vehiclesSchema = `
CREATE TABLE IF NOT EXISTS vehicles (
    id         TEXT PRIMARY KEY DEFAULT md5(random()::text || clock_timestamp()::text),
    plate      TEXT,
    vin        TEXT,
    make       TEXT,
    model      TEXT,
    year       INTEGER,
    hp         INTEGER,
    mileage    INTEGER,
    notes      TEXT,
    photos     TEXT[],
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT vehicles_identifier_present CHECK (plate IS NOT NULL OR vin IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS vehicles_plate_idx ON vehicles (plate);
CREATE INDEX IF NOT EXISTS vehicles_vin_idx ON vehicles (vin);
`

// EnsureSchema creates the vehicles table and its lookup indexes when they do
// not already exist.
func (r *postgresRepository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	if _, err := r.pool.Exec(ctx, vehiclesSchema); err != nil {
		return fmt.Errorf("apply vehicles schema: %w", err)
	}
	return nil
}
