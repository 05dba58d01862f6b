package commands_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"merchantdispatch/internal/core/application/reconcile"
	"merchantdispatch/internal/core/application/usecases/commands"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/bus"
	"merchantdispatch/internal/pkg/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type orderAPIMock struct {
	mock.Mock
}

func (m *orderAPIMock) UpdateStatus(ctx context.Context, orderCode string, change ports.StatusChange) error {
	args := m.Called(ctx, orderCode, change)
	return args.Error(0)
}

func (m *orderAPIMock) ListGrouped(ctx context.Context, businessID string) ([]ports.OrderGroup, error) {
	args := m.Called(ctx, businessID)
	groups, _ := args.Get(0).([]ports.OrderGroup)
	return groups, args.Error(1)
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
	for _, n := range s.items {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	engine *reconcile.Engine
	api    *orderAPIMock
	sink   *recordingSink
	deps   commands.Deps
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
	t.Cleanup(engine.Close)

	api := &orderAPIMock{}
	return &fixture{
		engine: engine,
		api:    api,
		sink:   sink,
		deps:   commands.Deps{Orders: engine, API: api, Sink: sink, Logger: logger},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newOrder(t *testing.T, status string, opt order.DeliveryOption) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Params{
		ID:              "812",
		Code:            "ORD-812",
		BusinessID:      "biz-1",
		Status:          status,
		Fulfillment:     order.Delivery,
		DeliveryOption:  opt,
		UnavailableMode: order.ModeRemove,
		Items: []order.Item{
			{BusinessID: "biz-1", MenuID: "m1", Name: "Momo", Quantity: 2, UnitPrice: dec("100"), Available: true},
			{BusinessID: "biz-1", MenuID: "m2", Name: "Thukpa", Quantity: 1, UnitPrice: dec("200"), Available: true},
		},
		Totals: order.Totals{DeliveryFee: dec("50")},
	})
	require.NoError(t, err)
	return o
}

func currentStatus(t *testing.T, f *fixture) order.Status {
	t.Helper()
	o, ok := f.engine.Order("812")
	require.True(t, ok)
	return o.Status()
}

func TestConfirmOrderCommandHandler(t *testing.T) {
	t.Run("sends recomputed totals and changelist", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "pending", order.Grab))
		f.api.On("UpdateStatus", mock.Anything, "ORD-812", mock.MatchedBy(func(c ports.StatusChange) bool {
			return c.Status == order.Confirmed &&
				c.Reason == "accepted" &&
				c.Confirmation != nil &&
				c.Confirmation.EstimatedMinutes == 20 &&
				c.Confirmation.Totals.Subtotal.Equal(dec("200")) &&
				len(c.Confirmation.Changes.Removed) == 1
		})).Return(nil).Once()

		cmd, err := commands.NewConfirmOrderCommand("812", 20, "accepted",
			[]commands.UnavailableItem{{MenuID: "m2"}})
		require.NoError(t, err)

		res, err := commands.NewConfirmOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.NoError(t, err)
		assert.Equal(t, "m2", res.Changes.Removed[0].MenuID)
		assert.Equal(t, order.Confirmed, currentStatus(t, f))
		assert.Len(t, f.sink.byKind(ports.NotifyOrderChanged), 1)
		f.api.AssertExpectations(t)
	})

	t.Run("non positive minutes are blocked before the network", func(t *testing.T) {
		_, err := commands.NewConfirmOrderCommand("812", 0, "", nil)
		require.ErrorIs(t, err, errs.ErrValueIsRequired)
	})

	t.Run("unknown menu item leaves the order pending", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "pending", order.Grab))
		cmd, err := commands.NewConfirmOrderCommand("812", 20, "", []commands.UnavailableItem{{MenuID: "nope"}})
		require.NoError(t, err)

		_, err = commands.NewConfirmOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.Error(t, err)
		assert.Equal(t, order.Pending, currentStatus(t, f))
		f.api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("network failure alerts and keeps the optimistic state", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "pending", order.Grab))
		f.api.On("UpdateStatus", mock.Anything, "ORD-812", mock.Anything).
			Return(errs.NewNetworkError("http://api", errors.New("timeout"))).Once()
		cmd, err := commands.NewConfirmOrderCommand("812", 15, "", nil)
		require.NoError(t, err)

		_, err = commands.NewConfirmOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, errs.ErrNetwork)
		assert.Equal(t, order.Confirmed, currentStatus(t, f))
		alerts := f.sink.byKind(ports.NotifyAlert)
		require.Len(t, alerts, 1)
		assert.Equal(t, "812", alerts[0].OrderID)
		assert.Contains(t, alerts[0].Message, "ORD-812")
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		cmd, err := commands.NewConfirmOrderCommand("404", 15, "", nil)
		require.NoError(t, err)

		_, err = commands.NewConfirmOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, errs.ErrObjectNotFound)
	})

	t.Run("zero value command", func(t *testing.T) {
		f := newFixture(t)
		_, err := commands.NewConfirmOrderCommandHandler(f.deps).Handle(context.Background(), commands.ConfirmOrderCommand{})
		require.ErrorIs(t, err, commands.ErrConfirmOrderCommandIsNotConstructed)
	})
}

func TestDeclineOrderCommandHandler(t *testing.T) {
	t.Run("short reason is rejected locally", func(t *testing.T) {
		_, err := commands.NewDeclineOrderCommand("812", " no ", "merchant")
		require.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})

	t.Run("declines a pending order", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "pending", order.Grab))
		f.api.On("UpdateStatus", mock.Anything, "ORD-812", ports.StatusChange{
			Status:       order.Declined,
			StatusReason: "Out of stock",
			Reason:       "Out of stock",
		}).Return(nil).Once()
		cmd, err := commands.NewDeclineOrderCommand("812", "  Out of stock ", "merchant")
		require.NoError(t, err)

		err = commands.NewDeclineOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.NoError(t, err)
		assert.Equal(t, order.Declined, currentStatus(t, f))
		f.api.AssertExpectations(t)
	})

	t.Run("only pending orders can be declined", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "confirmed", order.Grab))
		cmd, err := commands.NewDeclineOrderCommand("812", "Closing early", "merchant")
		require.NoError(t, err)

		err = commands.NewDeclineOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, order.ErrTransitionNotAllowed)
		f.api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdvanceOrderCommandHandler(t *testing.T) {
	t.Run("moves to the next status", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "confirmed", order.Self))
		f.api.On("UpdateStatus", mock.Anything, "ORD-812", mock.MatchedBy(func(c ports.StatusChange) bool {
			return c.Status == order.Ready && c.StatusReason == "packed"
		})).Return(nil).Once()
		cmd, err := commands.NewAdvanceOrderCommand("812", "packed")
		require.NoError(t, err)

		next, err := commands.NewAdvanceOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.NoError(t, err)
		assert.Equal(t, order.Ready, next)
		assert.Equal(t, order.Ready, currentStatus(t, f))
		f.api.AssertExpectations(t)
	})

	t.Run("ready grab order waits for a driver", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "ready", order.Grab))
		cmd, err := commands.NewAdvanceOrderCommand("812", "")
		require.NoError(t, err)

		_, err = commands.NewAdvanceOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, order.ErrTransitionNotAllowed)
		assert.Equal(t, order.Ready, currentStatus(t, f))
		f.api.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pending orders go through confirm", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "pending", order.Self))
		cmd, err := commands.NewAdvanceOrderCommand("812", "")
		require.NoError(t, err)

		_, err = commands.NewAdvanceOrderCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, order.ErrTransitionNotAllowed)
	})
}

func TestChooseDeliveryCommandHandler(t *testing.T) {
	t.Run("invalid option", func(t *testing.T) {
		_, err := commands.NewChooseDeliveryCommand("812", order.Both)
		require.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})

	t.Run("records the choice and resends the status", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "confirmed", order.Both))
		f.api.On("UpdateStatus", mock.Anything, "ORD-812", ports.StatusChange{
			Status:         order.Confirmed,
			DeliveryOption: order.Grab,
		}).Return(nil).Once()
		cmd, err := commands.NewChooseDeliveryCommand("812", order.Grab)
		require.NoError(t, err)

		err = commands.NewChooseDeliveryCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.NoError(t, err)
		o, _ := f.engine.Order("812")
		assert.Equal(t, order.Grab, o.ChosenOption())
		f.api.AssertExpectations(t)
	})

	t.Run("business without a choice", func(t *testing.T) {
		f := newFixture(t, newOrder(t, "confirmed", order.Self))
		cmd, err := commands.NewChooseDeliveryCommand("812", order.Grab)
		require.NoError(t, err)

		err = commands.NewChooseDeliveryCommandHandler(f.deps).Handle(context.Background(), cmd)

		require.ErrorIs(t, err, errs.ErrValueIsInvalid)
	})
}
