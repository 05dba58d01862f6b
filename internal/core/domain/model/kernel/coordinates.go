package kernel

import (
	"errors"
	"fmt"
	"math"

	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

const (
	// EarthRadiusKm is the mean Earth radius used for great-circle distances.
	EarthRadiusKm = 6371.0

	minLatitude  = -90.0
	maxLatitude  = 90.0
	minLongitude = -180.0
	maxLongitude = 180.0
)

// ErrCoordinatesAreNotConstructed is returned when an empty Coordinates value is used.
var ErrCoordinatesAreNotConstructed = errs.NewValueIsRequiredError(
	"coordinates must be created via NewCoordinates")

// Coordinates is an immutable latitude/longitude pair in decimal degrees.
// The zero value is "no coordinates": IsSet reports false and Validate fails.
//
// Example:
//
//	merchant, err := kernel.NewCoordinates(27.4775, 89.6387)
//	if err != nil {
//	    // lat/lng were non-finite or out of range
//	}
//	km, _ := merchant.DistanceKm(drop)
type Coordinates struct { //nolint:recvcheck //using for validation
	lat   float64
	lng   float64
	guard guard.ConstructorGuard
}

// NewCoordinates validates that lat and lng are finite and within range.
func NewCoordinates(lat, lng float64) (Coordinates, error) {
	c := Coordinates{guard: guard.NewConstructorGuard()}
	if err := errors.Join(c.setLat(lat), c.setLng(lng)); err != nil {
		return Coordinates{}, err
	}
	return c, nil
}

// MustCoordinates is NewCoordinates for literals known to be valid.
func MustCoordinates(lat, lng float64) Coordinates {
	c, err := NewCoordinates(lat, lng)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate fails for the zero value.
func (c Coordinates) Validate() error {
	return c.guard.Validate(ErrCoordinatesAreNotConstructed)
}

// IsSet reports whether c holds a real position.
func (c Coordinates) IsSet() bool {
	return c.Validate() == nil
}

// Lat returns the latitude in degrees.
func (c Coordinates) Lat() float64 {
	return c.lat
}

// Lng returns the longitude in degrees.
func (c Coordinates) Lng() float64 {
	return c.lng
}

// Pair returns [lat, lng], the wire shape used by the dispatch backend.
func (c Coordinates) Pair() [2]float64 {
	return [2]float64{c.lat, c.lng}
}

// String implements fmt.Stringer.
func (c Coordinates) String() string {
	if !c.IsSet() {
		return "Coordinates(-)"
	}
	return fmt.Sprintf("Coordinates(%.6f,%.6f)", c.lat, c.lng)
}

// DistanceKm returns the great-circle distance to other.
func (c Coordinates) DistanceKm(other Coordinates) (float64, error) {
	if err := errors.Join(c.Validate(), other.Validate()); err != nil {
		return 0, err
	}
	d, _ := HaversineKm(c.lat, c.lng, other.lat, other.lng)
	return d, nil
}

// IncrementalMean folds point into a centroid that already averaged n-1 points:
// (centroid*(n-1)+point)/n. For n <= 1 the point itself is returned.
func IncrementalMean(centroid, point Coordinates, n int) Coordinates {
	if n <= 1 || !centroid.IsSet() {
		return point
	}
	k := float64(n)
	return Coordinates{
		lat:   (centroid.lat*(k-1) + point.lat) / k,
		lng:   (centroid.lng*(k-1) + point.lng) / k,
		guard: guard.NewConstructorGuard(),
	}
}

// HaversineKm returns the great-circle distance in kilometres between two points.
// ok is false when any input is NaN or infinite; it never panics.
func HaversineKm(lat1, lng1, lat2, lng2 float64) (km float64, ok bool) {
	for _, v := range [...]float64{lat1, lng1, lat2, lng2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
	}
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c, true
}

func (c *Coordinates) setLat(lat float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < minLatitude || lat > maxLatitude {
		return errs.NewValueIsOutOfRangeError("lat", lat, minLatitude, maxLatitude)
	}
	c.lat = lat
	return nil
}

func (c *Coordinates) setLng(lng float64) error {
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < minLongitude || lng > maxLongitude {
		return errs.NewValueIsOutOfRangeError("lng", lng, minLongitude, maxLongitude)
	}
	c.lng = lng
	return nil
}
