package coordinator

import (
	"context"

	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"
	"merchantdispatch/internal/pkg/fieldchain"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

const defaultArrivalMessage = "Driver has arrived"

// HandleEvent routes one push event. Unparseable bodies are treated as empty.
// It reports whether the event was applied to this session.
func (c *Coordinator) HandleEvent(name string, raw []byte) bool {
	if !c.mounted.Load() {
		return false
	}
	m := decodeEvent(raw)

	var applied bool
	switch name {
	case ports.EventDeliveryAccepted:
		applied = c.handleAccepted(m)
	case ports.EventDriverArrived:
		applied = c.handleArrived(m)
	case ports.EventDeliveryDriverLocation:
		applied = c.handleLocation(m)
	default:
		return false
	}
	if !applied {
		c.logger.Debug("Push event dropped", "event", name)
		return false
	}
	c.pruneFinished()
	return true
}

func decodeEvent(raw []byte) map[string]any {
	var m map[string]any
	if len(raw) == 0 || json.Unmarshal(raw, &m) != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// correlation is what an event says about the order or batch it belongs to.
type correlation struct {
	batchKey string
	orderID  string
	explicit bool
	owned    bool
}

func (c *Coordinator) correlate(m map[string]any) correlation {
	orderID, hasOrder := services.OrderCorrelationChain.Extract(m)
	batchRef, hasBatch := services.BatchCorrelationChain.Extract(m)
	corr := correlation{orderID: orderID, explicit: hasOrder || hasBatch}

	// Events may carry the display code instead of the id.
	if hasOrder {
		if key, ok := c.deps.Engine.Resolve(orderID); ok {
			orderID = key
			corr.orderID = key
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hasOrder {
		if key, ok := c.orderToBatch[orderID]; ok {
			corr.batchKey, corr.owned = key, true
			return corr
		}
		if _, ok := c.deps.Engine.Order(orderID); ok {
			corr.owned = true
			return corr
		}
	}
	if hasBatch {
		for key, st := range c.batches {
			if lo.Contains(st.batch.CorrelationIDs(), batchRef) {
				corr.batchKey, corr.owned = key, true
				return corr
			}
		}
	}
	return corr
}

// soleBatchLocked picks the only batch matching pred, or "" when none or several match.
func (c *Coordinator) soleBatchLocked(pred func(st *batchState) bool) string {
	var found string
	for key, st := range c.batches {
		if !pred(st) {
			continue
		}
		if found != "" {
			return ""
		}
		found = key
	}
	return found
}

// batchForDriverLocked finds the batch assigned to driverID, or the only batch with
// an active assignment when driverID is empty.
func (c *Coordinator) batchForDriverLocked(driverID string) string {
	if driverID != "" {
		for key, st := range c.batches {
			if st.assignment != nil && st.assignment.DriverID() == driverID {
				return key
			}
		}
		return ""
	}
	return c.soleBatchLocked(func(st *batchState) bool { return st.assignment != nil })
}

func (c *Coordinator) handleAccepted(m map[string]any) bool {
	driverID, ok := services.DriverIDChain.Extract(m)
	if !ok {
		return false
	}
	corr := c.correlate(m)
	if corr.explicit && !corr.owned {
		return false
	}

	c.mu.Lock()
	if !corr.explicit {
		corr.batchKey = c.soleBatchLocked(func(st *batchState) bool {
			inFlight := st.sending || (st.request != nil && st.request.IsActive())
			return inFlight && st.assignment == nil
		})
		if corr.batchKey == "" {
			c.mu.Unlock()
			return false
		}
	}

	if corr.batchKey == "" {
		c.mu.Unlock()
		c.applyToOrders(m, []string{corr.orderID}, &driverID)
		c.notifyDriver(ports.NotifyDriverAccepted, "", corr.orderID, driverID, "")
		return true
	}

	st := c.batches[corr.batchKey]
	if st.assignment != nil && st.assignment.DriverID() == driverID {
		c.mu.Unlock()
		return true
	}
	a, err := dispatch.NewAssignment(driverID, st.batch.Key(), c.now())
	if err != nil {
		c.mu.Unlock()
		return false
	}
	c.stopTimerLocked(st)
	st.awaitingResend = false
	if st.request != nil {
		st.request.Acknowledge()
	}
	st.assignment = a
	req := st.request
	members := st.batch.OrderIDs()
	c.mu.Unlock()

	c.applyToOrders(m, members, &driverID)
	c.notifyDriver(ports.NotifyDriverAccepted, corr.batchKey, "", driverID, "")

	go c.completeAcceptance(corr.batchKey, driverID, req, a)
	return true
}

// completeAcceptance fetches the driver profile and rating and records the
// acceptance. Every step is best effort.
func (c *Coordinator) completeAcceptance(key, driverID string, req *dispatch.Request, a *dispatch.Assignment) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()

	profile := dispatch.DriverProfile{}
	details, err := c.deps.Drivers.Driver(ctx, driverID)
	if err != nil {
		c.logger.WarnContext(ctx, "Driver details fetch failed", "driver_id", driverID, "error", err)
	} else {
		profile.Name, profile.Phone, profile.VehiclePlate = details.Name, details.Phone, details.VehiclePlate
	}
	rating, err := c.deps.Drivers.Rating(ctx, driverID)
	if err != nil {
		c.logger.WarnContext(ctx, "Driver rating fetch failed", "driver_id", driverID, "error", err)
	} else {
		profile.Rating = rating
	}

	if !c.mounted.Load() {
		return
	}
	c.mu.Lock()
	if st, ok := c.batches[key]; ok && st.assignment == a {
		a.SetProfile(profile)
	}
	assigned := a.Clone()
	var accepted *dispatch.Request
	if req != nil {
		accepted = req.Clone()
	}
	c.mu.Unlock()

	if accepted != nil {
		c.record(ctx, func(ctx context.Context, log ports.DispatchLog) error {
			return log.RecordAcceptance(ctx, accepted, assigned)
		})
	}
}

func (c *Coordinator) handleArrived(m map[string]any) bool {
	corr := c.correlate(m)
	if corr.explicit && !corr.owned {
		return false
	}
	driverID, _ := services.DriverIDChain.Extract(m)

	c.mu.Lock()
	if !corr.explicit {
		corr.batchKey = c.batchForDriverLocked(driverID)
		if corr.batchKey == "" {
			c.mu.Unlock()
			return false
		}
	}
	targets := []string{corr.orderID}
	var arrived *dispatch.Assignment
	if st, ok := c.batches[corr.batchKey]; ok {
		if corr.orderID == "" {
			targets = st.batch.OrderIDs()
		}
		if st.assignment != nil {
			st.assignment.MarkArrived(c.now())
			arrived = st.assignment.Clone()
			if driverID == "" {
				driverID = st.assignment.DriverID()
			}
		}
	}
	c.mu.Unlock()

	message, ok := fieldchain.String("message")(m)
	if !ok {
		message = defaultArrivalMessage
	}
	c.notifyDriver(ports.NotifyDriverArrived, corr.batchKey, corr.orderID, driverID, message)
	c.applyToOrders(m, lo.Compact(targets), nil)

	if arrived != nil {
		c.record(context.Background(), func(ctx context.Context, log ports.DispatchLog) error {
			return log.RecordArrival(ctx, arrived)
		})
	}
	return true
}

func (c *Coordinator) handleLocation(m map[string]any) bool {
	coords, hasCoords := services.LocationChain.Extract(m)
	corr := c.correlate(m)
	if corr.explicit && !corr.owned {
		return false
	}

	c.mu.Lock()
	if !corr.explicit {
		if !hasCoords {
			c.mu.Unlock()
			return false
		}
		driverID, _ := services.DriverIDChain.Extract(m)
		corr.batchKey = c.batchForDriverLocked(driverID)
		if corr.batchKey == "" {
			c.mu.Unlock()
			return false
		}
	}

	targets := []string{corr.orderID}
	var (
		driverID string
		center   kernel.Coordinates
	)
	if st, ok := c.batches[corr.batchKey]; ok {
		if corr.orderID == "" {
			targets = st.batch.OrderIDs()
		}
		center = st.batch.Center()
		if st.assignment != nil && hasCoords {
			st.assignment.UpdateLocation(coords, c.now())
			driverID = st.assignment.DriverID()
		}
	}
	c.mu.Unlock()

	c.applyToOrders(m, lo.Compact(targets), nil)
	if hasCoords {
		c.notifyDriver(ports.NotifyDriverLocation, corr.batchKey, corr.orderID, driverID, coords.String())
		if corr.batchKey != "" {
			c.augmentRoute(corr.batchKey, coords, center)
		}
	}
	return true
}

// applyToOrders pushes the event's inline status and the accepted driver through
// the reconciliation engine.
func (c *Coordinator) applyToOrders(m map[string]any, orderIDs []string, driverID *string) {
	status, _ := services.EventStatusChain.Extract(m)
	if status == "" && driverID == nil {
		return
	}
	for _, id := range orderIDs {
		c.deps.Engine.Apply(reconcile.Update{
			OrderID: id,
			Status:  status,
			Patch:   order.Patch{DriverID: driverID},
			Source:  reconcile.SourcePush,
		})
	}
}

func (c *Coordinator) notifyDriver(kind ports.NotificationKind, key, orderID, driverID, message string) {
	c.deps.Sink.Notify(ports.Notification{
		Kind:     kind,
		BatchKey: key,
		OrderID:  orderID,
		DriverID: driverID,
		Message:  message,
		At:       c.now(),
	})
}

func (c *Coordinator) augmentRoute(key string, from, to kernel.Coordinates) {
	if c.deps.Estimator == nil || !to.IsSet() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
		defer cancel()
		route, fetched, err := c.deps.Estimator.Augment(ctx, from, to)
		if err != nil {
			c.logger.WarnContext(ctx, "Route lookup failed", "batch_key", key, "error", err)
			return
		}
		if !fetched || !c.mounted.Load() {
			return
		}
		c.mu.Lock()
		if st, ok := c.batches[key]; ok {
			st.route = route
		}
		c.mu.Unlock()
	}()
}

// Route returns the last road route fetched for a batch.
func (c *Coordinator) Route(key string) (services.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.batches[key]
	if !ok {
		return services.Route{}, errs.NewObjectNotFoundError("batch", key)
	}
	return st.route, nil
}
