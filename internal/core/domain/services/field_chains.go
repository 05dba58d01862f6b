package services

import (
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/fieldchain"
)

// coordinatesAt reads a lat/lng pair from two paths. A (0,0) pair is treated as a
// missing placeholder.
func coordinatesAt(latPath, lngPath []string) fieldchain.Extractor[kernel.Coordinates] {
	lat, lng := fieldchain.Float(latPath...), fieldchain.Float(lngPath...)
	return func(m map[string]any) (kernel.Coordinates, bool) {
		la, ok := lat(m)
		if !ok {
			return kernel.Coordinates{}, false
		}
		ln, ok := lng(m)
		if !ok || (la == 0 && ln == 0) {
			return kernel.Coordinates{}, false
		}
		c, err := kernel.NewCoordinates(la, ln)
		return c, err == nil
	}
}

// geoJSONPoint reads a GeoJSON [lng, lat] coordinates array at path.
func geoJSONPoint(path ...string) fieldchain.Extractor[kernel.Coordinates] {
	return func(m map[string]any) (kernel.Coordinates, bool) {
		v, ok := fieldchain.Lookup(m, path...)
		if !ok {
			return kernel.Coordinates{}, false
		}
		arr, ok := v.([]any)
		if !ok || len(arr) < 2 {
			return kernel.Coordinates{}, false
		}
		ln, okLng := fieldchain.AsFloat(arr[0])
		la, okLat := fieldchain.AsFloat(arr[1])
		if !okLng || !okLat || (la == 0 && ln == 0) {
			return kernel.Coordinates{}, false
		}
		c, err := kernel.NewCoordinates(la, ln)
		return c, err == nil
	}
}

func keys(path ...string) []string { return path }

// DropCoordinateChain resolves an order's delivery location from the shapes the
// orders-grouped endpoint has been seen to return.
var DropCoordinateChain = fieldchain.New("drop coordinates",
	coordinatesAt(keys("delivery_address", "lat"), keys("delivery_address", "lng")),
	coordinatesAt(keys("delivery_address", "latitude"), keys("delivery_address", "longitude")),
	coordinatesAt(keys("address", "lat"), keys("address", "lng")),
	coordinatesAt(keys("address", "latitude"), keys("address", "longitude")),
	coordinatesAt(keys("delivery_lat"), keys("delivery_lng")),
	coordinatesAt(keys("lat"), keys("lng")),
	coordinatesAt(keys("latitude"), keys("longitude")),
	geoJSONPoint("location", "coordinates"),
)

// LocationChain resolves a driver position from a live-location event.
var LocationChain = fieldchain.New("driver location",
	coordinatesAt(keys("lat"), keys("lng")),
	coordinatesAt(keys("latitude"), keys("longitude")),
	coordinatesAt(keys("lat"), keys("lon")),
	coordinatesAt(keys("location", "lat"), keys("location", "lng")),
	coordinatesAt(keys("location", "latitude"), keys("location", "longitude")),
	coordinatesAt(keys("coords", "latitude"), keys("coords", "longitude")),
	geoJSONPoint("location", "coordinates"),
)

// BusinessLocationChain resolves the merchant pickup point from business details.
var BusinessLocationChain = fieldchain.New("business location",
	coordinatesAt(keys("latitude"), keys("longitude")),
	coordinatesAt(keys("lat"), keys("lng")),
	coordinatesAt(keys("location", "latitude"), keys("location", "longitude")),
	coordinatesAt(keys("address", "latitude"), keys("address", "longitude")),
)

// PassengerIDChain resolves the customer identifier sent as passenger_id from the
// session's user context.
var PassengerIDChain = fieldchain.New("passenger id",
	fieldchain.String("user", "user_id"),
	fieldchain.String("user", "id"),
	fieldchain.String("user", "userId"),
	fieldchain.String("profile", "user_id"),
	fieldchain.String("merchant", "user_id"),
	fieldchain.String("user_id"),
)

// OrderCorrelationChain reads the order an event refers to.
var OrderCorrelationChain = fieldchain.New("order correlation",
	fieldchain.String("order_id"),
	fieldchain.String("orderId"),
	fieldchain.String("order", "id"),
	fieldchain.String("order", "order_id"),
	fieldchain.String("order_code"),
	fieldchain.String("orderCode"),
)

// BatchCorrelationChain reads the batch or ride an event refers to.
var BatchCorrelationChain = fieldchain.New("batch correlation",
	fieldchain.String("batch_id"),
	fieldchain.String("batchId"),
	fieldchain.String("batch", "id"),
	fieldchain.String("ride_id"),
	fieldchain.String("rideId"),
)

// DriverIDChain reads the driver an event refers to.
var DriverIDChain = fieldchain.New("driver id",
	fieldchain.String("driver_id"),
	fieldchain.String("driverId"),
	fieldchain.String("driver", "id"),
	fieldchain.String("driver", "user_id"),
)

// EventStatusChain reads an inline status carried by driver events.
var EventStatusChain = fieldchain.New("event status",
	fieldchain.String("status"),
	fieldchain.String("order_status"),
	fieldchain.String("orderStatus"),
	fieldchain.String("order", "status"),
)
