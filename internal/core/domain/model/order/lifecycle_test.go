package order_test

import (
	"testing"

	"merchantdispatch/internal/core/domain/model/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(t *testing.T, status string, ft order.FulfillmentType, opt order.DeliveryOption) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.Params{
		ID:             "1",
		Code:           "ORD-1",
		Status:         status,
		Fulfillment:    ft,
		DeliveryOption: opt,
	})
	require.NoError(t, err)
	return o
}

func TestNextTransition_DeliverySequence(t *testing.T) {
	steps := []struct {
		from order.Status
		to   order.Status
	}{
		{order.Pending, order.Confirmed},
		{order.Confirmed, order.Ready},
		{order.Ready, order.OutForDelivery},
		{order.OutForDelivery, order.Completed},
	}
	for _, s := range steps {
		o := newTestOrder(t, string(s.from), order.Delivery, order.Self)
		next, ok := order.NextTransition(o)
		require.True(t, ok, "from %s", s.from)
		assert.Equal(t, s.to, next)
	}

	for _, terminal := range []string{"COMPLETED", "DECLINED"} {
		_, ok := order.NextTransition(newTestOrder(t, terminal, order.Delivery, order.Self))
		assert.False(t, ok, terminal)
	}
}

func TestNextTransition_PickupStopsAtReady(t *testing.T) {
	for _, opt := range []order.DeliveryOption{order.Self, order.Grab, order.Both, order.UnknownDeliveryOption} {
		o := newTestOrder(t, "READY", order.Pickup, opt)
		_, ok := order.NextTransition(o)
		assert.False(t, ok, "pickup with option %s", opt)
	}
}

func TestNextTransition_UnknownStatusHasNoTransition(t *testing.T) {
	_, ok := order.NextTransition(newTestOrder(t, "picked up", order.Delivery, order.Self))
	assert.False(t, ok)
}

func TestNextTransition_UnknownFulfillmentFollowsDelivery(t *testing.T) {
	next, ok := order.NextTransition(newTestOrder(t, "READY", order.UnknownFulfillment, order.Self))
	require.True(t, ok)
	assert.Equal(t, order.OutForDelivery, next)
}

func TestIsGated(t *testing.T) {
	t.Run("grab at ready without driver is gated", func(t *testing.T) {
		o := newTestOrder(t, "READY", order.Delivery, order.Grab)

		assert.True(t, order.IsGated(o))
		_, ok := order.NextTransition(o)
		assert.False(t, ok)
		require.ErrorIs(t, o.Advance(order.OutForDelivery, ""), order.ErrTransitionNotAllowed)
	})

	t.Run("both with grab chosen is gated, self chosen is not", func(t *testing.T) {
		o := newTestOrder(t, "READY", order.Delivery, order.Both)
		assert.False(t, order.IsGated(o))

		require.NoError(t, o.ChooseDelivery(order.Grab))
		assert.True(t, order.IsGated(o))

		require.NoError(t, o.ChooseDelivery(order.Self))
		assert.False(t, order.IsGated(o))
	})

	t.Run("driver acceptance lifts the gate", func(t *testing.T) {
		o := newTestOrder(t, "READY", order.Delivery, order.Grab)
		driver := "drv-7"
		o.Merge(order.Patch{DriverID: &driver})

		assert.False(t, order.IsGated(o))
		next, ok := order.NextTransition(o)
		require.True(t, ok)
		assert.Equal(t, order.OutForDelivery, next)
	})

	t.Run("only ready is gated", func(t *testing.T) {
		assert.False(t, order.IsGated(newTestOrder(t, "CONFIRMED", order.Delivery, order.Grab)))
	})
}

func TestInheritDeliveryOption(t *testing.T) {
	o := newTestOrder(t, "READY", order.Delivery, order.UnknownDeliveryOption)
	o.InheritDeliveryOption(order.UnknownDeliveryOption)
	assert.Equal(t, order.UnknownDeliveryOption, o.DeliveryOption())

	o.InheritDeliveryOption(order.Grab)
	assert.Equal(t, order.Grab, o.DeliveryOption())
	assert.True(t, order.IsGated(o))

	own := newTestOrder(t, "READY", order.Delivery, order.Self)
	own.InheritDeliveryOption(order.Grab)
	assert.Equal(t, order.Self, own.DeliveryOption(), "an explicit option wins")
}
