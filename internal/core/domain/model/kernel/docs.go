// Package kernel provides the domain primitives shared by orders, batches and dispatch.
//
// The package includes:
//   - Coordinates: a validated latitude/longitude value object
//   - HaversineKm: great-circle distance that never panics on bad input
//   - UUID: identifiers for dispatch requests, local batch keys and sessions
//
// Coordinates and UUID have invalid zero values; build them through their
// constructors and call Validate before trusting values from outside the domain.
package kernel
