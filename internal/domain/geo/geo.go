// internal/domain/geo/geo.go

package geo

import (
	"math"
)

// earthRadiusKm is the mean Earth radius used by the haversine formula.
const earthRadiusKm = 6371.0

// Location represents a geographic point
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Bounds represents a visible map rectangle as reported by the camera.
// The two corners may arrive in either order; containment checks normalize.
type Bounds struct {
	NorthEast Location `json:"ne"`
	SouthWest Location `json:"sw"`
}

// DistanceKm calculates the great-circle distance between two points in
// kilometers using the haversine formula. NaN inputs propagate NaN.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert latitude and longitude from degrees to radians
	rLat1 := lat1 * math.Pi / 180.0
	rLon1 := lon1 * math.Pi / 180.0
	rLat2 := lat2 * math.Pi / 180.0
	rLon2 := lon2 * math.Pi / 180.0

	dLat := rLat2 - rLat1
	dLon := rLon2 - rLon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(rLat1)*math.Cos(rLat2)*vSin

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Distance calculates the distance between two locations in kilometers
func Distance(a, b Location) float64 {
	return DistanceKm(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// Contains reports whether a point falls inside the bounds rectangle.
// Corners are min/max-normalized first, so a bounds pair given in the
// opposite order still describes the same rectangle.
func (b Bounds) Contains(lat, lon float64) bool {
	minLat := math.Min(b.NorthEast.Latitude, b.SouthWest.Latitude)
	maxLat := math.Max(b.NorthEast.Latitude, b.SouthWest.Latitude)
	minLon := math.Min(b.NorthEast.Longitude, b.SouthWest.Longitude)
	maxLon := math.Max(b.NorthEast.Longitude, b.SouthWest.Longitude)

	return lat >= minLat && lat <= maxLat && lon >= minLon && lon <= maxLon
}

// DiffersFrom reports whether any edge of the bounds differs from the other
// bounds by at least epsilon degrees. Used to ignore camera jitter.
func (b Bounds) DiffersFrom(other Bounds, epsilon float64) bool {
	return math.Abs(b.NorthEast.Latitude-other.NorthEast.Latitude) >= epsilon ||
		math.Abs(b.NorthEast.Longitude-other.NorthEast.Longitude) >= epsilon ||
		math.Abs(b.SouthWest.Latitude-other.SouthWest.Latitude) >= epsilon ||
		math.Abs(b.SouthWest.Longitude-other.SouthWest.Longitude) >= epsilon
}
