package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/errs"
)

const (
	// DefaultSpeedKmh is the assumed average courier speed for ETA estimates.
	DefaultSpeedKmh = 20.0
	// DefaultRouteMinInterval is the minimum time between two routing lookups.
	DefaultRouteMinInterval = 6 * time.Second
	// DefaultRouteMinMoveMeters is the minimum movement between two routing lookups.
	DefaultRouteMinMoveMeters = 25.0
)

// Route is a polyline returned by an external routing service.
type Route struct {
	Polyline        []kernel.Coordinates
	DistanceKm      float64
	DurationMinutes float64
}

// RouteFetcher looks up a road route between two points.
type RouteFetcher interface {
	Route(ctx context.Context, from, to kernel.Coordinates) (Route, error)
}

// PolylineGate throttles routing lookups. It opens when at least minInterval has
// passed AND the origin moved at least minMoveMeters since the last open. The first
// call always opens. Safe for concurrent use.
type PolylineGate struct {
	minInterval   time.Duration
	minMoveMeters float64

	mu       sync.Mutex
	lastAt   time.Time
	lastFrom kernel.Coordinates
}

// NewPolylineGate creates a gate with the given thresholds.
func NewPolylineGate(minInterval time.Duration, minMoveMeters float64) *PolylineGate {
	return &PolylineGate{minInterval: minInterval, minMoveMeters: minMoveMeters}
}

// Allow reports whether a lookup from origin at now may proceed, and records it if so.
func (g *PolylineGate) Allow(origin kernel.Coordinates, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !origin.IsSet() {
		return false
	}
	if g.lastAt.IsZero() {
		g.lastAt, g.lastFrom = now, origin
		return true
	}
	if now.Sub(g.lastAt) < g.minInterval {
		return false
	}
	km, err := g.lastFrom.DistanceKm(origin)
	if err != nil || km*1000 < g.minMoveMeters {
		return false
	}
	g.lastAt, g.lastFrom = now, origin
	return true
}

// Reset forgets the last lookup so the next call opens.
func (g *PolylineGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastAt = time.Time{}
	g.lastFrom = kernel.Coordinates{}
}

// RouteEstimator estimates distance and ETA with haversine and an assumed speed,
// and optionally augments the estimate with a road polyline.
//
// The ETA is a placeholder heuristic, not a routing engine:
//
//	minutes = distance_km / speed_kmh * 60
type RouteEstimator struct {
	speedKmh float64
	gate     *PolylineGate
	fetcher  RouteFetcher
	now      func() time.Time

	mu   sync.Mutex
	last Route
}

// NewRouteEstimator creates an estimator. fetcher may be nil, in which case
// Augment never calls out.
func NewRouteEstimator(speedKmh float64, gate *PolylineGate, fetcher RouteFetcher) (*RouteEstimator, error) {
	if math.IsNaN(speedKmh) || math.IsInf(speedKmh, 0) || speedKmh <= 0 {
		return nil, errs.NewValueIsInvalidErrorWithCause("speed",
			fmt.Errorf("%v is not a positive speed", speedKmh))
	}
	if gate == nil {
		gate = NewPolylineGate(DefaultRouteMinInterval, DefaultRouteMinMoveMeters)
	}
	return &RouteEstimator{speedKmh: speedKmh, gate: gate, fetcher: fetcher, now: time.Now}, nil
}

// ETAMinutes converts a distance into minutes at the assumed speed.
func (r *RouteEstimator) ETAMinutes(km float64) float64 {
	return km / r.speedKmh * 60
}

// Estimate returns distance and ETA between two points; ok is false when either
// point is unset.
func (r *RouteEstimator) Estimate(from, to kernel.Coordinates) (km, minutes float64, ok bool) {
	d, err := from.DistanceKm(to)
	if err != nil {
		return 0, 0, false
	}
	return d, r.ETAMinutes(d), true
}

// Augment fetches a road route when the gate opens. Otherwise it returns the last
// fetched route with fetched=false. Routing failures leave the cached route intact.
func (r *RouteEstimator) Augment(ctx context.Context, from, to kernel.Coordinates) (route Route, fetched bool, err error) {
	if r.fetcher == nil || !to.IsSet() || !r.gate.Allow(from, r.now()) {
		return r.lastRoute(), false, nil
	}

	route, err = r.fetcher.Route(ctx, from, to)
	if err != nil {
		return r.lastRoute(), false, err
	}

	r.mu.Lock()
	r.last = route
	r.mu.Unlock()
	return route, true, nil
}

func (r *RouteEstimator) lastRoute() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
