package ports

import (
	"context"

	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
)

// StatusChange is the body of PUT orders/{order_code}/status.
type StatusChange struct {
	Status       order.Status
	StatusReason string
	Reason       string
	// DeliveryOption is sent only when set (BOTH businesses choosing per order).
	DeliveryOption order.DeliveryOption
	// Confirmation is set for the CONFIRMED transition only.
	Confirmation *order.ConfirmResult
}

// OrderGroup is one {user, orders[]} entry of orders-grouped. User is the raw user
// context; the passenger id is resolved from it with a field chain.
type OrderGroup struct {
	User   map[string]any
	Orders []*order.Order
}

// OrderAPI is the order side of the merchant backend.
type OrderAPI interface {
	// UpdateStatus sends a status change for one order.
	UpdateStatus(ctx context.Context, orderCode string, change StatusChange) error
	// ListGrouped returns the business's orders grouped by customer. It is used for
	// the initial hydrate and for confirmation polling.
	ListGrouped(ctx context.Context, businessID string) ([]OrderGroup, error)
}

// BusinessDetails is the subset of business-details the coordinator needs.
type BusinessDetails struct {
	ID             string
	Name           string
	CityID         string
	Currency       string
	DeliveryOption order.DeliveryOption
	Location       kernel.Coordinates
}

// BusinessAPI reads business configuration.
type BusinessAPI interface {
	Details(ctx context.Context, businessID string) (BusinessDetails, error)
}

// BroadcastResult carries the identifiers the dispatch backend assigned, if any.
type BroadcastResult struct {
	BatchID string
	RideID  string
}

// DispatchAPI posts dispatch broadcasts to the courier-matching backend.
type DispatchAPI interface {
	Broadcast(ctx context.Context, payload dispatch.Payload) (BroadcastResult, error)
}

// DriverDetails is the driver profile shown after acceptance.
type DriverDetails struct {
	ID           string
	Name         string
	Phone        string
	VehiclePlate string
}

// DriverAPI reads driver profiles and ratings.
type DriverAPI interface {
	Driver(ctx context.Context, driverID string) (DriverDetails, error)
	Rating(ctx context.Context, driverID string) (float64, error)
}

// HealthProbe is the lightweight existence probe on the backend base URL.
type HealthProbe interface {
	Probe(ctx context.Context) error
}
