package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/bus"
	"merchantdispatch/internal/pkg/errs"

	"go.uber.org/atomic"
)

const (
	// DefaultDebounce is the coalescing window for confirmation fetches.
	DefaultDebounce = 350 * time.Millisecond
	// DefaultFetchTimeout bounds one confirmation fetch.
	DefaultFetchTimeout = 15 * time.Second
)

// Poller is the authoritative polling source.
type Poller interface {
	Poll(ctx context.Context) ([]*order.Order, error)
}

// PollerFunc adapts a function to Poller.
type PollerFunc func(ctx context.Context) ([]*order.Order, error)

// Poll implements Poller.
func (f PollerFunc) Poll(ctx context.Context) ([]*order.Order, error) { return f(ctx) }

// Config tunes the engine timers.
type Config struct {
	Debounce     time.Duration
	FetchTimeout time.Duration
}

type entry struct {
	order    *order.Order
	disposer bus.Disposer
}

// Engine owns the canonical order state of one screen session.
//
// Apply is the single serialization point for every update source and is safe for
// concurrent use. Notifications, bus publishes and timer scheduling happen after
// the lock is released.
//
// Example usage:
//
//	engine, err := reconcile.NewEngine(reconcile.Config{}, orderBus, poller, sink, logger)
//	engine.Track(orders...)
//	outcome := engine.Apply(reconcile.Update{OrderID: "812", Status: "on road", Source: reconcile.SourcePush})
//	defer engine.Close()
type Engine struct {
	id     string
	cfg    Config
	bus    *bus.Bus[OrderUpdated]
	poller Poller
	sink   ports.StateSink
	logger *slog.Logger

	mu     sync.Mutex
	orders map[string]*entry

	timerMu      sync.Mutex
	confirmTimer *time.Timer

	mounted atomic.Bool
	fetches atomic.Int64
}

// NewEngine creates a mounted engine. Zero Config fields take the defaults.
func NewEngine(
	cfg Config,
	orderBus *bus.Bus[OrderUpdated],
	poller Poller,
	sink ports.StateSink,
	logger *slog.Logger,
) (*Engine, error) {
	var errList []error
	if orderBus == nil {
		errList = append(errList, errs.NewValueIsRequiredError("bus"))
	}
	if poller == nil {
		errList = append(errList, errs.NewValueIsRequiredError("poller"))
	}
	if sink == nil {
		errList = append(errList, errs.NewValueIsRequiredError("sink"))
	}
	if logger == nil {
		errList = append(errList, errs.NewValueIsRequiredError("logger"))
	}
	if err := errors.Join(errList...); err != nil {
		return nil, err
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	id := kernel.NewUUID().String()
	e := &Engine{
		id:     id,
		cfg:    cfg,
		bus:    orderBus,
		poller: poller,
		sink:   sink,
		logger: logger.With("component", "reconcile_engine", "engine_id", id),
		orders: make(map[string]*entry),
	}
	e.mounted.Store(true)
	return e, nil
}

// ID identifies the engine on the bus.
func (e *Engine) ID() string { return e.id }

// Mounted reports whether Close has not been called yet.
func (e *Engine) Mounted() bool { return e.mounted.Load() }

// ConfirmationFetches counts debounced confirmation fetches that ran.
func (e *Engine) ConfirmationFetches() int64 { return e.fetches.Load() }

// Track starts owning orders. Already tracked orders are replaced only if the new
// copy is not older; otherwise the call acts like a poll update.
func (e *Engine) Track(orders ...*order.Order) {
	for _, o := range orders {
		if o == nil || o.Key() == "" {
			continue
		}
		id := o.Key()

		e.mu.Lock()
		_, exists := e.orders[id]
		if !exists && e.mounted.Load() {
			e.orders[id] = &entry{order: o.Clone()}
		}
		e.mu.Unlock()

		if exists {
			e.Apply(Update{OrderID: id, Status: string(o.Status()), Patch: PatchFrom(o), Source: SourcePoll})
			continue
		}

		disposer := e.bus.Subscribe(id, e.onBusMessage)
		e.mu.Lock()
		// Close may have collected the disposers between the insert and here.
		if ent, ok := e.orders[id]; ok && ent.disposer == nil && e.mounted.Load() {
			ent.disposer = disposer
			disposer = nil
		}
		e.mu.Unlock()
		if disposer != nil {
			disposer()
		}
	}
}

// Resolve maps an order id or order code to the key the order is tracked under.
func (e *Engine) Resolve(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.orders[ref]; ok {
		return ref, true
	}
	for key, ent := range e.orders {
		if ent.order.Code() == ref {
			return key, true
		}
	}
	return "", false
}

// Order returns a clone of the tracked order.
func (e *Engine) Order(orderID string) (*order.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.orders[orderID]
	if !ok {
		return nil, false
	}
	return ent.order.Clone(), true
}

// Orders returns clones of all tracked orders sorted by key.
func (e *Engine) Orders() []*order.Order {
	e.mu.Lock()
	out := make([]*order.Order, 0, len(e.orders))
	for _, ent := range e.orders {
		out = append(out, ent.order.Clone())
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// AllTerminal reports whether every tracked order finished. An empty engine is
// not terminal, so polling keeps looking for new orders.
func (e *Engine) AllTerminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.orders) == 0 {
		return false
	}
	for _, ent := range e.orders {
		if !ent.order.IsTerminal() {
			return false
		}
	}
	return true
}

// Mutate runs fn on the tracked order under the engine lock, for local actions
// that need aggregate methods (Confirm, Decline, Advance). A status change made by
// fn is treated as a local advance.
func (e *Engine) Mutate(orderID string, fn func(o *order.Order) error) (*order.Order, error) {
	if !e.mounted.Load() {
		return nil, ErrEngineClosed
	}

	e.mu.Lock()
	ent, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return nil, errs.NewObjectNotFoundError("order", orderID)
	}
	before := ent.order.Status()
	work := ent.order.Clone()
	if err := fn(work); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	ent.order = work
	after := work.Status()
	snapshot := work.Clone()
	e.mu.Unlock()

	if after != before {
		e.afterAdvance(snapshot, localPatch(snapshot), SourceLocal)
	}
	return snapshot, nil
}

// ErrEngineClosed is returned by Mutate after Close.
var ErrEngineClosed = errors.New("reconciliation engine is closed")

// Apply merges u into the held state. See Outcome for the possible results.
func (e *Engine) Apply(u Update) Outcome {
	if !e.mounted.Load() {
		return OutcomeIgnored
	}

	outcome, snapshot := e.merge(u)

	e.logger.Debug("update applied",
		"order_id", u.OrderID, "status", u.Status, "source", u.Source.String(), "outcome", outcome.String())

	if outcome == OutcomeAdvanced {
		e.afterAdvance(snapshot, u.Patch, u.Source)
	}
	return outcome
}

func (e *Engine) merge(u Update) (Outcome, *order.Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.orders[u.OrderID]
	if !ok {
		return OutcomeIgnored, nil
	}
	o := ent.order
	current := o.Status()

	if u.Status == "" {
		if current == order.Declined || o.IsTerminal() {
			return OutcomeStale, nil
		}
		o.Merge(u.Patch)
		return OutcomeMerged, nil
	}

	incoming := order.Normalize(u.Status)

	if incoming == order.Declined {
		switch current {
		case order.Pending:
			o.Merge(u.Patch)
			o.AdoptStatus(order.Declined)
			return OutcomeAdvanced, o.Clone()
		case order.Declined:
			o.Merge(u.Patch)
			return OutcomeMerged, nil
		default:
			return OutcomeStale, nil
		}
	}
	if current == order.Declined || o.IsTerminal() {
		return OutcomeStale, nil
	}

	inRank, known := incoming.Rank()
	if !known {
		o.Merge(u.Patch)
		return OutcomeIgnored, nil
	}

	curRank, curKnown := current.Rank()
	switch {
	case curKnown && inRank < curRank:
		return OutcomeStale, nil
	case curKnown && inRank == curRank:
		o.Merge(u.Patch)
		return OutcomeMerged, nil
	default:
		o.Merge(u.Patch)
		o.AdoptStatus(incoming)
		return OutcomeAdvanced, o.Clone()
	}
}

func (e *Engine) afterAdvance(o *order.Order, patch order.Patch, src Source) {
	if src != SourceBus {
		e.bus.Publish(o.Key(), OrderUpdated{Origin: e.id, OrderID: o.Key(), Status: o.Status(), Patch: patch})
	}
	e.sink.Notify(ports.Notification{
		Kind:    ports.NotifyOrderChanged,
		OrderID: o.Key(),
		Status:  o.Status(),
		Message: o.StatusReason(),
		At:      time.Now(),
	})
	if src != SourcePoll {
		e.scheduleConfirmation()
	}
}

func (e *Engine) onBusMessage(msg bus.Message[OrderUpdated]) {
	if msg.Payload.Origin == e.id {
		return
	}
	e.Apply(Update{
		OrderID: msg.Payload.OrderID,
		Status:  string(msg.Payload.Status),
		Patch:   msg.Payload.Patch,
		Source:  SourceBus,
	})
}

func (e *Engine) scheduleConfirmation() {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if !e.mounted.Load() {
		return
	}
	if e.confirmTimer == nil {
		e.confirmTimer = time.AfterFunc(e.cfg.Debounce, e.confirm)
		return
	}
	e.confirmTimer.Reset(e.cfg.Debounce)
}

func (e *Engine) confirm() {
	if !e.mounted.Load() {
		return
	}
	e.fetches.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FetchTimeout)
	defer cancel()
	if err := e.Refresh(ctx); err != nil {
		e.logger.WarnContext(ctx, "Confirmation fetch failed", "error", err)
	}
}

// Refresh polls the authoritative source and applies every order as a poll
// update. New orders are tracked. Results arriving after Close are dropped.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.mounted.Load() {
		return nil
	}
	orders, err := e.poller.Poll(ctx)
	if err != nil {
		return err
	}
	if !e.mounted.Load() {
		return nil
	}
	e.Track(orders...)
	return nil
}

// Close stops the debounce timer, detaches bus subscriptions and marks the engine
// unmounted. It is safe to call more than once.
func (e *Engine) Close() {
	if !e.mounted.CompareAndSwap(true, false) {
		return
	}

	e.timerMu.Lock()
	if e.confirmTimer != nil {
		e.confirmTimer.Stop()
	}
	e.timerMu.Unlock()

	e.mu.Lock()
	disposers := make([]bus.Disposer, 0, len(e.orders))
	for _, ent := range e.orders {
		if ent.disposer != nil {
			disposers = append(disposers, ent.disposer)
		}
	}
	e.mu.Unlock()

	for _, d := range disposers {
		d()
	}
	e.logger.Info("Reconciliation engine closed")
}
