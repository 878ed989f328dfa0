// Package geo computes great-circle distances between users and candidates
// and applies the tolerant radius filter to ranked results.
package geo

import (
	"math"

	"recommend-workers/internal/models"
)

const (
	earthRadiusMiles = 3958.8
	metersPerMile    = 1609.344
)

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

// MetersToMiles converts a request radius to miles.
func MetersToMiles(meters float64) float64 {
	return meters / metersPerMile
}

// ResolveCoordinates extracts a point from a candidate location. An explicit
// lat/lng pair wins over the generic [lng, lat] coordinate tuple.
func ResolveCoordinates(loc *models.Location) (models.Coordinates, bool) {
	if loc == nil {
		return models.Coordinates{}, false
	}
	if loc.Lat != nil && loc.Lng != nil {
		return models.Coordinates{Lat: *loc.Lat, Lng: *loc.Lng}, true
	}
	if len(loc.Coordinates) >= 2 {
		return models.Coordinates{Lat: loc.Coordinates[1], Lng: loc.Coordinates[0]}, true
	}
	return models.Coordinates{}, false
}

// DistanceMiles returns the distance from the user to the candidate, or false
// when either side has no usable coordinates.
func DistanceMiles(user *models.Coordinates, candidate *models.Candidate) (float64, bool) {
	if user == nil || candidate == nil {
		return 0, false
	}
	point, ok := ResolveCoordinates(candidate.Location)
	if !ok {
		return 0, false
	}
	return Haversine(user.Lat, user.Lng, point.Lat, point.Lng), true
}
