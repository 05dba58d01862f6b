package dispatch

import (
	"errors"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"
)

var (
	// ErrAssignmentIsNotConstructed is returned when an Assignment was not created through NewAssignment.
	ErrAssignmentIsNotConstructed = errors.New("Assignment must be created via NewAssignment constructor")
	// ErrDriverIDIsRequired is returned for an accept event without a driver.
	ErrDriverIDIsRequired = errs.NewValueIsRequiredError("driver_id")
)

// DriverProfile is the best-effort driver detail shown to the merchant.
type DriverProfile struct {
	Name         string
	Phone        string
	VehiclePlate string
	Rating       float64
}

// Assignment is the courier that accepted a batch. It is created on deliveryAccepted,
// updated by arrival and location events and dropped when the batch finishes.
type Assignment struct {
	driverID   string
	batchKey   kernel.UUID
	acceptedAt time.Time
	arrivedAt  time.Time
	live       kernel.Coordinates
	locatedAt  time.Time
	profile    DriverProfile
	guard      guard.ConstructorGuard
}

// NewAssignment records an accepted delivery.
func NewAssignment(driverID string, batchKey kernel.UUID, acceptedAt time.Time) (*Assignment, error) {
	var errList []error
	if driverID == "" {
		errList = append(errList, ErrDriverIDIsRequired)
	}
	if err := batchKey.Validate(); err != nil {
		errList = append(errList, err)
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}
	return &Assignment{
		driverID:   driverID,
		batchKey:   batchKey,
		acceptedAt: acceptedAt,
		guard:      guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the Assignment was built by NewAssignment.
func (a *Assignment) Validate() error {
	if a == nil {
		return ErrAssignmentIsNotConstructed
	}
	return a.guard.Validate(ErrAssignmentIsNotConstructed)
}

// DriverID returns the accepted driver.
func (a *Assignment) DriverID() string { return a.driverID }
func (a *Assignment) BatchKey() kernel.UUID { return a.batchKey }
func (a *Assignment) AcceptedAt() time.Time { return a.acceptedAt }
func (a *Assignment) ArrivedAt() time.Time { return a.arrivedAt }
// HasArrived reports whether delivery:driver_arrived was seen.
func (a *Assignment) HasArrived() bool { return !a.arrivedAt.IsZero() }
// Live returns the last known driver position.
func (a *Assignment) Live() kernel.Coordinates { return a.live }
func (a *Assignment) LocatedAt() time.Time { return a.locatedAt }
func (a *Assignment) Profile() DriverProfile { return a.profile }

// MarkArrived records the first arrival; later arrivals keep the original time.
func (a *Assignment) MarkArrived(at time.Time) {
	if a.arrivedAt.IsZero() {
		a.arrivedAt = at
	}
}

// UpdateLocation stores the latest live position. Unset coordinates are ignored.
func (a *Assignment) UpdateLocation(c kernel.Coordinates, at time.Time) bool {
	if !c.IsSet() {
		return false
	}
	a.live = c
	a.locatedAt = at
	return true
}

// SetProfile attaches driver details fetched after acceptance.
func (a *Assignment) SetProfile(p DriverProfile) {
	a.profile = p
}

// Clone returns an independent copy.
func (a *Assignment) Clone() *Assignment {
	c := *a
	return &c
}
