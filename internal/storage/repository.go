package storage

import (
	"context"
	"errors"

	"cardex/internal/models"
)

// ErrMissingIdentifier is returned when a vehicle insert carries neither a
// plate nor a VIN.
var ErrMissingIdentifier = errors.New("vehicle requires a plate or vin")

// CreateVehicleParams carries the already-normalized fields for a new vehicle
// record. Callers are responsible for trimming and upper-casing identifiers
// before handing them to the repository.
type CreateVehicleParams struct {
	Plate   *string
	VIN     *string
	Make    *string
	Model   *string
	Year    *int
	HP      *int
	Mileage *int
	Notes   *string
	Photos  []string
}

// Repository exposes the datastore operations required by the resolver and
// submitter workflows.
type Repository interface {
	// FindVehicleByIdentifier returns the record whose plate or VIN equals
	// the normalized identifier. At most one match is expected.
	FindVehicleByIdentifier(ctx context.Context, ident string) (models.Vehicle, bool, error)
	// CreateVehicle inserts a new record and returns it with its assigned id
	// and creation timestamp.
	CreateVehicle(ctx context.Context, params CreateVehicleParams) (models.Vehicle, error)
	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error
}
