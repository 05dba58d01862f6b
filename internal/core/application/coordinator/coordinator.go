package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/domain/model/batch"
	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"

	"github.com/samber/lo"
	"go.uber.org/atomic"
)

const (
	// DefaultRetryPrompt is how long to wait for a driver before prompting a resend.
	DefaultRetryPrompt = 60 * time.Second
	// DefaultRequestTimeout bounds every REST call made by the coordinator.
	DefaultRequestTimeout = 15 * time.Second
)

var (
	// ErrCoordinatorClosed is returned by operations after Close.
	ErrCoordinatorClosed = errors.New("dispatch coordinator is closed")
	// ErrAlreadyBroadcast is returned when a request exists or one is in flight; use Resend.
	ErrAlreadyBroadcast = errors.New("batch already broadcast")
	// ErrNothingToResend is returned by Resend when no unaccepted request exists.
	ErrNothingToResend = errors.New("no unaccepted broadcast to resend")
)

// Config holds the per-session settings.
type Config struct {
	// Business is the merchant whose orders this session shows.
	Business ports.BusinessDetails
	// UserContext is the raw session user object; passenger_id is resolved from it.
	UserContext    map[string]any
	RetryPrompt    time.Duration
	RequestTimeout time.Duration
}

// Deps are the collaborators of a Coordinator. Log and Estimator are optional.
type Deps struct {
	Engine    *reconcile.Engine
	Clusterer services.GeoClusterer
	Builder   services.PayloadBuilder
	Estimator *services.RouteEstimator
	Dispatch  ports.DispatchAPI
	Drivers   ports.DriverAPI
	Push      ports.PushChannel
	Sink      ports.StateSink
	Log       ports.DispatchLog
	Logger    *slog.Logger
}

type batchState struct {
	batch          *batch.Batch
	request        *dispatch.Request
	assignment     *dispatch.Assignment
	retryTimer     *time.Timer
	awaitingResend bool
	// sending is set while a broadcast POST for the batch is in flight.
	sending bool
	route   services.Route
}

// Coordinator owns the batches, dispatch requests and driver assignments of one
// screen session. It is safe for concurrent use; network calls are made without
// holding the lock and their results are dropped after Close.
type Coordinator struct {
	cfg  Config
	deps Deps

	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	batches      map[string]*batchState
	batchOrder   []string
	orderToBatch map[string]string
	rooms        map[string]room
	unsubscribe  []func()

	mounted atomic.Bool
}

// New creates a mounted coordinator and subscribes to the push events.
func New(cfg Config, deps Deps) (*Coordinator, error) {
	var errList []error
	if deps.Engine == nil {
		errList = append(errList, errs.NewValueIsRequiredError("engine"))
	}
	if deps.Dispatch == nil {
		errList = append(errList, errs.NewValueIsRequiredError("dispatch api"))
	}
	if deps.Drivers == nil {
		errList = append(errList, errs.NewValueIsRequiredError("driver api"))
	}
	if deps.Push == nil {
		errList = append(errList, errs.NewValueIsRequiredError("push channel"))
	}
	if deps.Sink == nil {
		errList = append(errList, errs.NewValueIsRequiredError("sink"))
	}
	if deps.Logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	if cfg.Business.ID == "" {
		errList = append(errList, errs.NewValueIsRequiredError("business id"))
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}

	if cfg.RetryPrompt <= 0 {
		cfg.RetryPrompt = DefaultRetryPrompt
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if deps.Clusterer.ThresholdKm() == 0 {
		deps.Clusterer = services.NewGeoClusterer()
	}

	c := &Coordinator{
		cfg:          cfg,
		deps:         deps,
		logger:       deps.Logger.With("component", "dispatch_coordinator", "business_id", cfg.Business.ID),
		now:          time.Now,
		batches:      make(map[string]*batchState),
		orderToBatch: make(map[string]string),
		rooms:        make(map[string]room),
	}
	c.mounted.Store(true)

	c.unsubscribe = append(c.unsubscribe,
		deps.Push.Subscribe(ports.EventDeliveryAccepted, func(raw []byte) {
			c.HandleEvent(ports.EventDeliveryAccepted, raw)
		}),
		deps.Push.Subscribe(ports.EventDriverArrived, func(raw []byte) {
			c.HandleEvent(ports.EventDriverArrived, raw)
		}),
		deps.Push.Subscribe(ports.EventDeliveryDriverLocation, func(raw []byte) {
			c.HandleEvent(ports.EventDeliveryDriverLocation, raw)
		}),
		deps.Push.OnReconnect(c.rejoinInBackground),
	)
	return c, nil
}

// Mounted reports whether Close has not been called yet.
func (c *Coordinator) Mounted() bool { return c.mounted.Load() }

// IsDispatchable reports whether an order may be put into a new batch: a
// non-terminal delivery that involves an external courier, has no driver yet and
// is confirmed or ready.
func IsDispatchable(o *order.Order) bool {
	if o == nil || o.IsTerminal() || o.Fulfillment() == order.Pickup || o.HasDriver() {
		return false
	}
	if !o.ResolvesToGrab() {
		return false
	}
	return o.Status() == order.Confirmed || o.Status() == order.Ready
}

// PlanBatches clusters dispatchable orders that are not in a batch yet and freezes
// each cluster into a new batch. Existing batches keep their membership. Orders
// without coordinates are returned as unclustered unless none has coordinates.
func (c *Coordinator) PlanBatches() ([]*batch.Batch, []*order.Order, error) {
	if !c.mounted.Load() {
		return nil, nil, ErrCoordinatorClosed
	}
	c.pruneFinished()

	c.mu.Lock()
	candidates := lo.Filter(c.deps.Engine.Orders(), func(o *order.Order, _ int) bool {
		_, batched := c.orderToBatch[o.Key()]
		return !batched && IsDispatchable(o)
	})
	c.mu.Unlock()

	res := c.deps.Clusterer.Cluster(candidates)

	c.mu.Lock()
	defer c.mu.Unlock()
	created := make([]*batch.Batch, 0, len(res.Clusters))
	for _, cl := range res.Clusters {
		b, err := batch.NewBatch(kernel.NewUUID(), cl.OrderIDs(), cl.Center)
		if err != nil {
			return nil, nil, fmt.Errorf("freeze cluster: %w", err)
		}
		key := b.Key().String()
		c.batches[key] = &batchState{batch: b}
		c.batchOrder = append(c.batchOrder, key)
		for _, id := range b.OrderIDs() {
			c.orderToBatch[id] = key
		}
		created = append(created, b)
	}
	c.logger.Info("Batches planned", "created", len(created), "unclustered", len(res.Unclustered))
	return created, res.Unclustered, nil
}

// BatchView is a read-only snapshot of a batch and its dispatch state.
type BatchView struct {
	Key            string
	BatchID        string
	RideID         string
	OrderIDs       []string
	Center         kernel.Coordinates
	Phase          batch.Phase
	Broadcast      bool
	RetryCount     int
	AwaitingResend bool
	DriverID       string
	DriverProfile  dispatch.DriverProfile
	DriverArrived  bool
	DriverLocation kernel.Coordinates
	ETAMinutes     float64
	HasETA         bool
}

// Batches returns snapshots of the owned batches in creation order.
func (c *Coordinator) Batches() []BatchView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BatchView, 0, len(c.batchOrder))
	for _, key := range c.batchOrder {
		if st, ok := c.batches[key]; ok {
			out = append(out, c.viewLocked(st))
		}
	}
	return out
}

// Batch returns the snapshot of one batch.
func (c *Coordinator) Batch(key string) (BatchView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.batches[key]
	if !ok {
		return BatchView{}, errs.NewObjectNotFoundError("batch", key)
	}
	return c.viewLocked(st), nil
}

func (c *Coordinator) viewLocked(st *batchState) BatchView {
	b := st.batch
	v := BatchView{
		Key:            b.Key().String(),
		BatchID:        b.BatchID(),
		RideID:         b.RideID(),
		OrderIDs:       b.OrderIDs(),
		Center:         b.Center(),
		Broadcast:      st.request != nil || st.sending,
		AwaitingResend: st.awaitingResend,
	}
	v.Phase, _ = batch.DerivePhase(c.memberStatuses(b))
	if st.request != nil {
		v.RetryCount = st.request.RetryCount()
	}

	from := c.cfg.Business.Location
	if a := st.assignment; a != nil {
		v.DriverID = a.DriverID()
		v.DriverProfile = a.Profile()
		v.DriverArrived = a.HasArrived()
		v.DriverLocation = a.Live()
		if a.Live().IsSet() {
			from = a.Live()
		}
	}
	if c.deps.Estimator != nil {
		_, v.ETAMinutes, v.HasETA = c.deps.Estimator.Estimate(from, b.Center())
	}
	return v
}

func (c *Coordinator) memberStatuses(b *batch.Batch) []order.Status {
	statuses := make([]order.Status, 0, b.Len())
	for _, id := range b.OrderIDs() {
		if o, ok := c.deps.Engine.Order(id); ok {
			statuses = append(statuses, o.Status())
		}
	}
	return statuses
}

func (c *Coordinator) memberOrders(b *batch.Batch) []*order.Order {
	orders := make([]*order.Order, 0, b.Len())
	for _, id := range b.OrderIDs() {
		if o, ok := c.deps.Engine.Order(id); ok {
			orders = append(orders, o)
		}
	}
	return orders
}

// BuildDispatchPayload builds the broadcast payload for a batch. It fails with a
// validation error, without any network call, when no member has a drop
// coordinate or the passenger id cannot be resolved.
func (c *Coordinator) BuildDispatchPayload(key string) (dispatch.Payload, error) {
	c.mu.Lock()
	st, ok := c.batches[key]
	c.mu.Unlock()
	if !ok {
		return dispatch.Payload{}, errs.NewObjectNotFoundError("batch", key)
	}

	passengerID, _ := services.PassengerIDChain.Extract(c.cfg.UserContext)
	return c.deps.Builder.Build(services.PayloadInput{
		MerchantID:  c.cfg.Business.ID,
		CityID:      c.cfg.Business.CityID,
		PassengerID: passengerID,
		Pickup:      c.cfg.Business.Location,
		BatchID:     st.batch.BatchID(),
		Currency:    c.cfg.Business.Currency,
		Orders:      c.memberOrders(st.batch),
	})
}

// pruneFinished discards batches whose members all reached a terminal state,
// together with their timers and assignments.
func (c *Coordinator) pruneFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, st := range c.batches {
		orders := c.memberOrders(st.batch)
		if len(orders) > 0 && !lo.EveryBy(orders, (*order.Order).IsTerminal) {
			continue
		}
		if st.retryTimer != nil {
			st.retryTimer.Stop()
		}
		for _, id := range st.batch.OrderIDs() {
			delete(c.orderToBatch, id)
		}
		delete(c.batches, key)
		c.batchOrder = lo.Without(c.batchOrder, key)
	}
}

// Close stops retry timers, detaches push listeners and marks the coordinator
// unmounted. It is safe to call more than once.
func (c *Coordinator) Close() {
	if !c.mounted.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	for _, st := range c.batches {
		if st.retryTimer != nil {
			st.retryTimer.Stop()
		}
	}
	unsubs := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, u := range unsubs {
		if u != nil {
			u()
		}
	}
	c.logger.Info("Dispatch coordinator closed")
}
