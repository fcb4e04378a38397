// Package models defines the persisted entities shared by the storage
// drivers and API handlers.
package models

import "time"

// Vehicle is the canonical record kept for every known car. At least one of
// Plate or VIN is always present on a persisted record; both are stored
// trimmed and upper-cased so lookups are exact matches on the normalized
// form. Numeric attributes are pointers because submissions may omit them.
type Vehicle struct {
	ID        string    `json:"id"`
	Plate     *string   `json:"plate"`
	VIN       *string   `json:"vin"`
	Make      *string   `json:"make"`
	Model     *string   `json:"model"`
	Year      *int      `json:"year"`
	HP        *int      `json:"hp"`
	Mileage   *int      `json:"mileage"`
	Notes     *string   `json:"notes"`
	Photos    []string  `json:"photos"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasIdentifier reports whether the record carries a non-empty plate or VIN.
func (v Vehicle) HasIdentifier() bool {
	if v.Plate != nil && *v.Plate != "" {
		return true
	}
	return v.VIN != nil && *v.VIN != ""
}

// MatchesIdentifier reports whether the normalized identifier equals the
// record's plate or VIN.
func (v Vehicle) MatchesIdentifier(ident string) bool {
	if ident == "" {
		return false
	}
	if v.Plate != nil && *v.Plate == ident {
		return true
	}
	return v.VIN != nil && *v.VIN == ident
}
