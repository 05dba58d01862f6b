// Package services holds the stateless domain logic the coordinator composes:
// geographic clustering of orders into batches, distance and ETA estimation with a
// throttled routing lookup, dispatch payload construction and the field extractor
// chains used to read inconsistent backend and driver payloads.
//
// The package includes:
//   - GeoClusterer: greedy single-pass clustering around running centroids
//   - RouteEstimator and PolylineGate: haversine ETA and routing call throttling
//   - PayloadBuilder: dispatch-broadcast payloads with their preconditions
//   - Field chains: DropCoordinateChain, PassengerIDChain and friends
package services
