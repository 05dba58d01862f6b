package ports

import (
	"context"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/services"
)

// RoutingService returns road polylines between two points.
type RoutingService interface {
	Route(ctx context.Context, from, to kernel.Coordinates) (services.Route, error)
}
