// Package storage provides the vehicle record datastore behind the API. Two
// drivers exist: a JSON file store for development and a Postgres store for
// production deployments.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cardex/internal/models"
)

type dataset struct {
	Vehicles map[string]models.Vehicle `json:"vehicles"`
}

func newDataset() dataset {
	return dataset{Vehicles: make(map[string]models.Vehicle)}
}

// Storage is the JSON-file-backed repository. All mutations are guarded by a
// mutex and persisted atomically before they are acknowledged.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	clock           func() time.Time
}

// NewJSONRepository opens the JSON-backed datastore and returns it as a
// Repository.
func NewJSONRepository(path string) (Repository, error) {
	return NewStorage(path)
}

// NewStorage opens or creates the JSON datastore at the provided path.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path required")
	}
	s := &Storage{
		filePath: path,
		data:     newDataset(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read datastore %s: %w", s.filePath, err)
	}
	if len(raw) == 0 {
		return nil
	}
	var data dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode datastore %s: %w", s.filePath, err)
	}
	if data.Vehicles == nil {
		data.Vehicles = make(map[string]models.Vehicle)
	}
	s.data = data
	return nil
}

func (s *Storage) persistLocked() error {
	if s.persistOverride != nil {
		return s.persistOverride(s.data)
	}
	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datastore dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cardex-store-*")
	if err != nil {
		return fmt.Errorf("create datastore temp file: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close datastore temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

// FindVehicleByIdentifier scans for a record whose plate or VIN matches the
// normalized identifier exactly.
func (s *Storage) FindVehicleByIdentifier(ctx context.Context, ident string) (models.Vehicle, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Vehicle{}, false, err
	}
	if ident == "" {
		return models.Vehicle{}, false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vehicle := range s.data.Vehicles {
		if vehicle.MatchesIdentifier(ident) {
			return cloneVehicle(vehicle), true, nil
		}
	}
	return models.Vehicle{}, false, nil
}

// CreateVehicle inserts a record, persisting the dataset before returning.
func (s *Storage) CreateVehicle(ctx context.Context, params CreateVehicleParams) (models.Vehicle, error) {
	if err := ctx.Err(); err != nil {
		return models.Vehicle{}, err
	}
	id, err := generateID()
	if err != nil {
		return models.Vehicle{}, err
	}
	vehicle := models.Vehicle{
		ID:        id,
		Plate:     params.Plate,
		VIN:       params.VIN,
		Make:      params.Make,
		Model:     params.Model,
		Year:      params.Year,
		HP:        params.HP,
		Mileage:   params.Mileage,
		Notes:     params.Notes,
		Photos:    append([]string(nil), params.Photos...),
		CreatedAt: s.clock(),
	}
	if !vehicle.HasIdentifier() {
		return models.Vehicle{}, ErrMissingIdentifier
	}
	if len(vehicle.Photos) == 0 {
		vehicle.Photos = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Vehicles[id] = vehicle
	if err := s.persistLocked(); err != nil {
		delete(s.data.Vehicles, id)
		return models.Vehicle{}, err
	}
	return cloneVehicle(vehicle), nil
}

// Ping reports whether the datastore directory is still writable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("datastore dir unavailable: %w", err)
	}
	return nil
}

func cloneVehicle(v models.Vehicle) models.Vehicle {
	clone := v
	if v.Photos != nil {
		clone.Photos = append([]string(nil), v.Photos...)
	}
	return clone
}
