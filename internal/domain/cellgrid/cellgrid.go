// Package cellgrid provides pure spatial-cell helpers for nearby_cell
// scouting: cell tokens and the coordinate pattern that covers a cell.
// It isolates the geometry constants from queueing logic.
package cellgrid

import (
	"math"

	"github.com/golang/geo/s2"

	"scoutq/internal/domain/model"
)

// Level is the S2 cell level used for nearby_cell grouping (~280 m cells).
const Level = 15

const earthRadiusMeters = 6371000.0

// Token returns the level-15 S2 cell token for a coordinate.
func Token(lat, lon float64) string {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(Level).ToToken()
}

// Center returns the center coordinate of a cell token. The second return
// is false for a malformed token.
func Center(token string) (model.Point, bool) {
	id := s2.CellIDFromToken(token)
	if !id.IsValid() {
		return model.Point{}, false
	}
	ll := id.LatLng()
	return model.Point{Lat: ll.Lat.Degrees(), Lon: ll.Lng.Degrees()}, true
}

// EdgeMeters returns the approximate edge length of a cell at Level.
func EdgeMeters() float64 {
	return s2.AvgEdgeMetric.Value(Level) * earthRadiusMeters
}

// Pattern expands a cell token into the 9-coordinate scout pattern: the
// cell center first, then a 3x3 grid spaced to cover the cell. Returns nil
// for a malformed token.
func Pattern(token string) []model.Point {
	center, ok := Center(token)
	if !ok {
		return nil
	}

	spacing := EdgeMeters() / 3
	points := make([]model.Point, 0, 9)
	points = append(points, center)
	for _, dy := range []float64{spacing, 0, -spacing} {
		for _, dx := range []float64{-spacing, 0, spacing} {
			if dx == 0 && dy == 0 {
				continue // center already first
			}
			points = append(points, offset(center, dx, dy))
		}
	}
	return points
}

// offset shifts a point dx meters east and dy meters north.
func offset(p model.Point, dx, dy float64) model.Point {
	latRad := p.Lat * math.Pi / 180
	return model.Point{
		Lat: p.Lat + (dy/earthRadiusMeters)*(180/math.Pi),
		Lon: p.Lon + (dx/(earthRadiusMeters*math.Cos(latRad)))*(180/math.Pi),
	}
}

// DistanceMeters returns the great-circle distance between two points.
func DistanceMeters(a, b model.Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dPhi := (b.Lat - a.Lat) * math.Pi / 180
	dLambda := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
