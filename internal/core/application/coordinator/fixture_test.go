package coordinator_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/domain/services"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/bus"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testRetryPrompt = 40 * time.Millisecond

type dispatchAPIMock struct{ mock.Mock }

func (m *dispatchAPIMock) Broadcast(ctx context.Context, p dispatch.Payload) (ports.BroadcastResult, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(ports.BroadcastResult), args.Error(1)
}

type driverAPIMock struct{ mock.Mock }

func (m *driverAPIMock) Driver(ctx context.Context, id string) (ports.DriverDetails, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ports.DriverDetails), args.Error(1)
}

func (m *driverAPIMock) Rating(ctx context.Context, id string) (float64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(float64), args.Error(1)
}

type emitted struct {
	event string
	data  any
}

type fakePush struct {
	mu        sync.Mutex
	handlers  map[string]func([]byte)
	reconnect func()
	emits     []emitted
	emitErr   error
}

func newFakePush() *fakePush {
	return &fakePush{handlers: map[string]func([]byte){}}
}

func (p *fakePush) Emit(_ context.Context, event string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emitErr != nil {
		return p.emitErr
	}
	p.emits = append(p.emits, emitted{event: event, data: data})
	return nil
}

func (p *fakePush) Subscribe(event string, h func([]byte)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[event] = h
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.handlers, event)
	}
}

func (p *fakePush) OnReconnect(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconnect = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.reconnect = nil
	}
}

func (p *fakePush) deliver(event, raw string) bool {
	p.mu.Lock()
	h, ok := p.handlers[event]
	p.mu.Unlock()
	if ok {
		h([]byte(raw))
	}
	return ok
}

func (p *fakePush) triggerReconnect() {
	p.mu.Lock()
	fn := p.reconnect
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (p *fakePush) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.emits {
		if e.event == event {
			n++
		}
	}
	return n
}

func (p *fakePush) setEmitErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitErr = err
}

type recordingSink struct {
	mu    sync.Mutex
	items []ports.Notification
}

func (s *recordingSink) Notify(n ports.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
}

func (s *recordingSink) byKind(kind ports.NotificationKind) []ports.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Notification
	for _, it := range s.items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

type recordingLog struct {
	mu          sync.Mutex
	broadcasts  int
	acceptances int
	arrivals    int
}

func (l *recordingLog) RecordBroadcast(context.Context, *dispatch.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.broadcasts++
	return nil
}

func (l *recordingLog) RecordAcceptance(context.Context, *dispatch.Request, *dispatch.Assignment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acceptances++
	return nil
}

func (l *recordingLog) RecordArrival(context.Context, *dispatch.Assignment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.arrivals++
	return nil
}

func (l *recordingLog) counts() (int, int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.broadcasts, l.acceptances, l.arrivals
}

type fixture struct {
	engine   *reconcile.Engine
	coord    *coordinator.Coordinator
	push     *fakePush
	dispatch *dispatchAPIMock
	drivers  *driverAPIMock
	sink     *recordingSink
	log      *recordingLog
}

func newFixture(t *testing.T, orders ...*order.Order) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &recordingSink{}

	engine, err := reconcile.NewEngine(
		reconcile.Config{Debounce: time.Hour},
		bus.New[reconcile.OrderUpdated](),
		reconcile.PollerFunc(func(context.Context) ([]*order.Order, error) { return nil, nil }),
		sink,
		logger,
	)
	require.NoError(t, err)
	engine.Track(orders...)

	estimator, err := services.NewRouteEstimator(services.DefaultSpeedKmh, nil, nil)
	require.NoError(t, err)

	f := &fixture{
		engine:   engine,
		push:     newFakePush(),
		dispatch: &dispatchAPIMock{},
		drivers:  &driverAPIMock{},
		sink:     sink,
		log:      &recordingLog{},
	}
	f.coord, err = coordinator.New(coordinator.Config{
		Business: ports.BusinessDetails{
			ID:       "biz-1",
			CityID:   "thimphu",
			Currency: "BTN",
			Location: kernel.MustCoordinates(27.4728, 89.6390),
		},
		UserContext: map[string]any{"user": map[string]any{"id": "u-1"}},
		RetryPrompt: testRetryPrompt,
	}, coordinator.Deps{
		Engine:    engine,
		Builder:   services.NewPayloadBuilder(),
		Estimator: estimator,
		Dispatch:  f.dispatch,
		Drivers:   f.drivers,
		Push:      f.push,
		Sink:      sink,
		Log:       f.log,
		Logger:    logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		f.coord.Close()
		engine.Close()
	})
	return f
}

func (f *fixture) expectDriver(id, name string) {
	f.drivers.On("Driver", mock.Anything, id).
		Return(ports.DriverDetails{ID: id, Name: name, Phone: "17000000", VehiclePlate: "BP-1-A1234"}, nil).Maybe()
	f.drivers.On("Rating", mock.Anything, id).Return(4.8, nil).Maybe()
}

func grabOrder(t *testing.T, id string, drop kernel.Coordinates) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Params{
		ID:             id,
		Code:           "ORD-" + id,
		UserID:         "cust-" + id,
		Status:         "READY",
		Fulfillment:    order.Delivery,
		DeliveryOption: order.Grab,
		Drop:           drop,
		PaymentMethod:  "COD",
		Totals: order.Totals{
			Subtotal:    decimal.NewFromInt(200),
			DeliveryFee: decimal.NewFromInt(50),
			Total:       decimal.NewFromInt(250),
		},
	})
	require.NoError(t, err)
	return o
}

func singleBatch(t *testing.T, f *fixture) string {
	t.Helper()
	batches, _, err := f.coord.PlanBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	return batches[0].Key().String()
}
