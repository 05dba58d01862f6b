package queries

import (
	"errors"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/guard"
)

var ErrGetDriverAssignmentsQueryIsNotConstructed = errors.New(
	"GetDriverAssignmentsQuery must be created via NewGetDriverAssignmentsQuery constructor",
)

// GetDriverAssignmentsQuery lists the drivers that accepted batches, most recent
// first. OnlyEnRoute keeps the drivers that have not arrived yet.
type GetDriverAssignmentsQuery struct {
	onlyEnRoute bool
	guard       guard.ConstructorGuard
}

// NewGetDriverAssignmentsQuery creates the query.
func NewGetDriverAssignmentsQuery(onlyEnRoute bool) GetDriverAssignmentsQuery {
	return GetDriverAssignmentsQuery{onlyEnRoute: onlyEnRoute, guard: guard.NewConstructorGuard()}
}

func (q GetDriverAssignmentsQuery) OnlyEnRoute() bool { return q.onlyEnRoute }

// Validate ensures the query was created through the constructor.
func (q GetDriverAssignmentsQuery) Validate() error {
	return q.guard.Validate(ErrGetDriverAssignmentsQueryIsNotConstructed)
}

// AssignedDriver is the read model of a driver assignment. Live is unset until the
// first location event was recorded.
type AssignedDriver struct {
	BatchKey     kernel.UUID
	DriverID     string
	Name         string
	Phone        string
	VehiclePlate string
	Rating       float64
	AcceptedAt   time.Time
	ArrivedAt    *time.Time
	Live         kernel.Coordinates
}
