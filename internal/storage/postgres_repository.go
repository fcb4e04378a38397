package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cardex/internal/models"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository. The caller must
// ensure the vehicles table exists prior to invoking this constructor.
func NewPostgresRepository(dsn string, opts ...PostgresOption) (Repository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &postgresRepository{pool: pool, cfg: cfg}, nil
}

// Close releases the connection pool, honouring the provided context.
func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *postgresRepository) FindVehicleByIdentifier(ctx context.Context, ident string) (models.Vehicle, bool, error) {
	if ident == "" {
		return models.Vehicle{}, false, nil
	}
	row := r.pool.QueryRow(ctx, `
SELECT id, plate, vin, make, model, year, hp, mileage, notes, photos, created_at
FROM vehicles
WHERE plate = $1 OR vin = $1
LIMIT 1
`, ident)
	vehicle, err := scanVehicle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Vehicle{}, false, nil
		}
		return models.Vehicle{}, false, fmt.Errorf("query vehicle %q: %w", ident, err)
	}
	return vehicle, true, nil
}

func (r *postgresRepository) CreateVehicle(ctx context.Context, params CreateVehicleParams) (models.Vehicle, error) {
	if !hasIdentifier(params) {
		return models.Vehicle{}, ErrMissingIdentifier
	}
	photos := params.Photos
	if len(photos) == 0 {
		photos = nil
	}
	row := r.pool.QueryRow(ctx, `
INSERT INTO vehicles (plate, vin, make, model, year, hp, mileage, notes, photos, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
RETURNING id, plate, vin, make, model, year, hp, mileage, notes, photos, created_at
`, params.Plate, params.VIN, params.Make, params.Model, params.Year, params.HP, params.Mileage, params.Notes, photos)
	vehicle, err := scanVehicle(row)
	if err != nil {
		return models.Vehicle{}, fmt.Errorf("insert vehicle: %w", err)
	}
	return vehicle, nil
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

func scanVehicle(row pgx.Row) (models.Vehicle, error) {
	var vehicle models.Vehicle
	if err := row.Scan(
		&vehicle.ID,
		&vehicle.Plate,
		&vehicle.VIN,
		&vehicle.Make,
		&vehicle.Model,
		&vehicle.Year,
		&vehicle.HP,
		&vehicle.Mileage,
		&vehicle.Notes,
		&vehicle.Photos,
		&vehicle.CreatedAt,
	); err != nil {
		return models.Vehicle{}, err
	}
	return vehicle, nil
}

func hasIdentifier(params CreateVehicleParams) bool {
	if params.Plate != nil && *params.Plate != "" {
		return true
	}
	return params.VIN != nil && *params.VIN != ""
}
