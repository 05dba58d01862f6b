package batch

import (
	"errors"
	"slices"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/guard"

	"github.com/samber/lo"
)

var (
	// ErrBatchIsNotConstructed is returned when a Batch was not created through NewBatch.
	ErrBatchIsNotConstructed = errors.New("Batch must be created via NewBatch constructor")
	// ErrOrderIDsAreRequired is returned when a batch would have no members.
	ErrOrderIDsAreRequired = errs.NewValueIsRequiredError("order ids")
)

// Phase is the batch-level status. It only takes READY, OUT_FOR_DELIVERY or COMPLETED.
type Phase = order.Status

// Batch is a set of orders dispatched together.
//
// Business rules:
//   - Membership is decided once by NewBatch and never changes
//   - batchID and rideID are assigned by the dispatch backend and may change
//   - The phase follows the least advanced member
//
// Example usage:
//
//	b, err := batch.NewBatch(kernel.NewUUID(), []string{"812", "813"}, centroid)
//	if err != nil {
//	    // no members or invalid key
//	}
//	b.SetBatchID("B-77")
type Batch struct {
	key      kernel.UUID
	orderIDs []string
	center   kernel.Coordinates
	batchID  string
	rideID   string
	guard    guard.ConstructorGuard
}

// NewBatch freezes the given membership. Duplicate and empty ids are dropped.
// center may be unset for the fallback cluster.
func NewBatch(key kernel.UUID, orderIDs []string, center kernel.Coordinates) (*Batch, error) {
	ids := lo.Uniq(lo.Compact(orderIDs))

	var errList []error
	if err := key.Validate(); err != nil {
		errList = append(errList, err)
	}
	if len(ids) == 0 {
		errList = append(errList, ErrOrderIDsAreRequired)
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}

	return &Batch{
		key:      key,
		orderIDs: ids,
		center:   center,
		guard:    guard.NewConstructorGuard(),
	}, nil
}

// Validate ensures the Batch was built by NewBatch.
func (b *Batch) Validate() error {
	if b == nil {
		return ErrBatchIsNotConstructed
	}
	return b.guard.Validate(ErrBatchIsNotConstructed)
}

// Key is the locally generated identity, stable before the backend assigns a batch id.
func (b *Batch) Key() kernel.UUID { return b.key }

// OrderIDs returns a copy of the member ids in cluster order.
func (b *Batch) OrderIDs() []string { return slices.Clone(b.orderIDs) }

// Len returns the number of members.
func (b *Batch) Len() int { return len(b.orderIDs) }

// Contains reports whether orderID is a member.
func (b *Batch) Contains(orderID string) bool {
	return slices.Contains(b.orderIDs, orderID)
}

// Center returns the cluster centroid; IsSet is false for the fallback cluster.
func (b *Batch) Center() kernel.Coordinates { return b.center }

// BatchID returns the backend batch id, or "".
func (b *Batch) BatchID() string { return b.batchID }

// RideID returns the backend ride id, or "".
func (b *Batch) RideID() string { return b.rideID }

// SetBatchID records the backend batch id. Empty values are ignored.
func (b *Batch) SetBatchID(id string) {
	if id != "" {
		b.batchID = id
	}
}

// SetRideID records the backend ride id. Empty values are ignored.
func (b *Batch) SetRideID(id string) {
	if id != "" {
		b.rideID = id
	}
}

// CorrelationIDs returns every identifier a push event may use to refer to this batch.
func (b *Batch) CorrelationIDs() []string {
	return lo.Compact([]string{b.key.String(), b.batchID, b.rideID})
}

// DerivePhase returns the phase for the given member statuses: the lowest ranked
// success status, raised to READY. Declined and unranked statuses are skipped.
// ok is false when no member has a ranked status.
func DerivePhase(statuses []order.Status) (Phase, bool) {
	lowest := -1
	var phase Phase
	for _, s := range statuses {
		r, ok := s.Rank()
		if !ok {
			continue
		}
		if lowest == -1 || r < lowest {
			lowest = r
			phase = s
		}
	}
	if lowest == -1 {
		return "", false
	}
	if readyRank, _ := order.Ready.Rank(); lowest < readyRank {
		return order.Ready, true
	}
	return phase, true
}
