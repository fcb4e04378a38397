// Package registry implements the two core workflows of the service: resolving
// a vehicle identifier against the local store with an external decode
// fallback, and submitting new vehicle records with photo attachments.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cardex/internal/decode"
	"cardex/internal/models"
	"cardex/internal/observability/metrics"
	"cardex/internal/storage"
)

// Source tags which lookup path produced the resolution data.
type Source string

const (
	SourceLocal    Source = "local"
	SourceExternal Source = "external"
)

// DefaultDecodeTimeout bounds the external fallback call.
const DefaultDecodeTimeout = 10 * time.Second

// VehicleData is the uniform record shape returned by both lookup paths.
// BodyClass and FuelType only appear on external results; the local store
// does not track them.
type VehicleData struct {
	Plate     *string  `json:"plate"`
	VIN       *string  `json:"vin"`
	Make      *string  `json:"make"`
	Model     *string  `json:"model"`
	Year      *int     `json:"year"`
	HP        *int     `json:"hp"`
	Mileage   *int     `json:"mileage"`
	Notes     *string  `json:"notes"`
	BodyClass *string  `json:"bodyClass,omitempty"`
	FuelType  *string  `json:"fuelType,omitempty"`
	Photos    []string `json:"photos"`
}

// Resolution is the successful outcome of a lookup.
type Resolution struct {
	Source Source      `json:"source"`
	Data   VehicleData `json:"data"`
}

// VINDecoder is the external decode boundary consumed by the resolver.
type VINDecoder interface {
	DecodeVIN(ctx context.Context, vin string) (decode.Result, bool, error)
}

// Resolver answers identifier lookups. It holds no state between calls.
type Resolver struct {
	Store         storage.Repository
	Decoder       VINDecoder
	Logger        *slog.Logger
	DecodeTimeout time.Duration
}

// Resolve normalizes the query, consults the local store, and falls back to
// the external decode service for VIN-shaped identifiers. Misses on both
// paths return a NotFoundError; transport failures of the decode call wrap
// decode.ErrUnavailable.
func (r *Resolver) Resolve(ctx context.Context, query string) (Resolution, error) {
	ident := NormalizeIdentifier(query)
	if ident == "" {
		return Resolution{}, ErrInvalidQuery
	}

	vehicle, found, err := r.Store.FindVehicleByIdentifier(ctx, ident)
	if err != nil {
		return Resolution{}, fmt.Errorf("local lookup %q: %w", ident, err)
	}
	if found {
		metrics.ObserveLookup("local")
		return Resolution{Source: SourceLocal, Data: localData(vehicle)}, nil
	}

	if r.Decoder != nil && IsVINLength(ident) {
		result, usable, err := r.decodeVIN(ctx, ident)
		if err != nil {
			metrics.ObserveDecodeFailure()
			return Resolution{}, err
		}
		if usable {
			metrics.ObserveLookup("external")
			return Resolution{Source: SourceExternal, Data: externalData(result)}, nil
		}
		r.logger().Debug("decode returned no usable data", "vin", ident)
	}

	metrics.ObserveLookup("miss")
	return Resolution{}, &NotFoundError{Query: ident}
}

func (r *Resolver) decodeVIN(ctx context.Context, vin string) (decode.Result, bool, error) {
	timeout := r.DecodeTimeout
	if timeout <= 0 {
		timeout = DefaultDecodeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	metrics.ObserveDecodeAttempt()
	return r.Decoder.DecodeVIN(ctx, vin)
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func localData(vehicle models.Vehicle) VehicleData {
	photos := vehicle.Photos
	if photos == nil {
		photos = []string{}
	}
	return VehicleData{
		Plate:   vehicle.Plate,
		VIN:     vehicle.VIN,
		Make:    vehicle.Make,
		Model:   vehicle.Model,
		Year:    vehicle.Year,
		HP:      vehicle.HP,
		Mileage: vehicle.Mileage,
		Notes:   vehicle.Notes,
		Photos:  photos,
	}
}

func externalData(result decode.Result) VehicleData {
	vin := result.VIN
	return VehicleData{
		VIN:       &vin,
		Make:      result.Make,
		Model:     result.Model,
		Year:      result.Year,
		HP:        result.HP,
		BodyClass: result.BodyClass,
		FuelType:  result.FuelType,
		Photos:    []string{},
	}
}
