// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Seen types reported by the upstream spawn feed.
const (
	SeenWild       = "wild"
	SeenNearbyStop = "nearby_stop"
	SeenNearbyCell = "nearby_cell"
)

// SupportedSeenType reports whether the classifier handles the seen type.
// Lure variants and other exotic types are discarded.
func SupportedSeenType(t string) bool {
	switch t {
	case SeenWild, SeenNearbyStop, SeenNearbyCell:
		return true
	}
	return false
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SpawnEvent is a parsed spawn webhook. Consumed during classification
// or resolution, never retained.
type SpawnEvent struct {
	EncounterID  string
	SpeciesID    int
	Form         *int
	Lat          float64
	Lon          float64
	SpawnpointID string
	SeenType     string
	DespawnAt    time.Time

	// IV triple; nil attack means the spawn has not been scanned yet.
	Attack  *int
	Defense *int
	Stamina *int

	ReceivedAt time.Time
}

// HasIV reports whether the event carries a complete stat triple.
// IV-bearing events take the resolution path instead of classification.
func (e *SpawnEvent) HasIV() bool {
	return e.Attack != nil && e.Defense != nil && e.Stamina != nil
}

// SpeciesKey returns the exact matcher key, "id:form" when a form is set.
func (e *SpawnEvent) SpeciesKey() string {
	return SpeciesKey(e.SpeciesID, e.Form)
}

// Display returns a human-readable species identifier for logs.
func (e *SpawnEvent) Display() string {
	return SpeciesKey(e.SpeciesID, e.Form)
}

// SpeciesKey builds a matcher key from a species id and optional form.
func SpeciesKey(species int, form *int) string {
	if form != nil {
		return fmt.Sprintf("%d:%d", species, *form)
	}
	return strconv.Itoa(species)
}
