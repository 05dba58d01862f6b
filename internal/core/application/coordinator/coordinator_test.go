package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"merchantdispatch/internal/core/application/coordinator"
	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/domain/model/kernel"
	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	nearCore  = kernel.MustCoordinates(27.4730, 89.6400)
	nearCore2 = kernel.MustCoordinates(27.4750, 89.6420)
	farAway   = kernel.MustCoordinates(27.0000, 89.0000)
)

func Test_IsDispatchable(t *testing.T) {
	ready := grabOrder(t, "1", nearCore)
	assert.True(t, coordinator.IsDispatchable(ready))

	pending, err := order.NewOrder(order.Params{ID: "2", Status: "PENDING", Fulfillment: order.Delivery, DeliveryOption: order.Grab})
	require.NoError(t, err)
	assert.False(t, coordinator.IsDispatchable(pending))

	self, err := order.NewOrder(order.Params{ID: "3", Status: "READY", Fulfillment: order.Delivery, DeliveryOption: order.Self})
	require.NoError(t, err)
	assert.False(t, coordinator.IsDispatchable(self))

	pickup, err := order.NewOrder(order.Params{ID: "4", Status: "CONFIRMED", Fulfillment: order.Pickup, DeliveryOption: order.Grab})
	require.NoError(t, err)
	assert.False(t, coordinator.IsDispatchable(pickup))

	driven, err := order.NewOrder(order.Params{
		ID: "5", Status: "READY", Fulfillment: order.Delivery, DeliveryOption: order.Grab, DriverID: "drv-9",
	})
	require.NoError(t, err)
	assert.False(t, coordinator.IsDispatchable(driven))

	assert.False(t, coordinator.IsDispatchable(nil))
}

func Test_New_RequiresCollaborators(t *testing.T) {
	_, err := coordinator.New(coordinator.Config{}, coordinator.Deps{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrValueIsRequired)
}

func Test_PlanBatches_GroupsByDistanceAndKeepsMembership(t *testing.T) {
	// Given
	f := newFixture(t,
		grabOrder(t, "1", nearCore),
		grabOrder(t, "2", nearCore2),
		grabOrder(t, "3", farAway),
	)

	// When
	batches, unclustered, err := f.coord.PlanBatches()

	// Then
	require.NoError(t, err)
	assert.Empty(t, unclustered)
	require.Len(t, batches, 2)
	assert.ElementsMatch(t, []string{"1", "2"}, batches[0].OrderIDs())
	assert.Equal(t, []string{"3"}, batches[1].OrderIDs())

	// Re-planning does not move batched orders.
	again, _, err := f.coord.PlanBatches()
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, f.coord.Batches(), 2)
}

func Test_SendBroadcast_WithoutCoordinatesNeverCallsNetwork(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", kernel.Coordinates{}), grabOrder(t, "2", kernel.Coordinates{}))
	key := singleBatch(t, f)

	// When
	err := f.coord.SendBroadcast(context.Background(), key)

	// Then
	require.Error(t, err)
	assert.ErrorIs(t, err, dispatch.ErrNoDropCoordinates)
	f.dispatch.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything)
	assert.Empty(t, f.push.emits)
}

func Test_SendBroadcast_ArmsResendPrompt(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.MatchedBy(func(p dispatch.Payload) bool {
		return p.PassengerID == "u-1" && p.MerchantID == "biz-1" && len(p.Drops) == 1
	})).Return(ports.BroadcastResult{BatchID: "B-1", RideID: "R-1"}, nil).Once()

	// When
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))

	// Then
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.Equal(t, "B-1", view.BatchID)
	assert.Equal(t, "R-1", view.RideID)
	assert.True(t, view.Broadcast)
	assert.Equal(t, 1, f.push.count(ports.EventJoinBatchRoom))
	assert.Contains(t, f.coord.Rooms(), "batch:B-1")

	require.Eventually(t, func() bool {
		return len(f.sink.byKind(ports.NotifyResendPrompt)) == 1
	}, time.Second, 5*time.Millisecond)
	view, err = f.coord.Batch(key)
	require.NoError(t, err)
	assert.True(t, view.AwaitingResend)

	require.Eventually(t, func() bool {
		b, _, _ := f.log.counts()
		return b == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, f.coord.SendBroadcast(context.Background(), key), coordinator.ErrAlreadyBroadcast)
	f.dispatch.AssertExpectations(t)
}

func Test_Resend_IncrementsRetryAndRearms(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Twice()
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))
	require.Eventually(t, func() bool {
		return len(f.sink.byKind(ports.NotifyResendPrompt)) == 1
	}, time.Second, 5*time.Millisecond)

	// When
	require.NoError(t, f.coord.Resend(context.Background(), key))

	// Then
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.Equal(t, 1, view.RetryCount)
	assert.False(t, view.AwaitingResend)
	// The batch room is joined once however many times the request is resent.
	assert.Equal(t, 1, f.push.count(ports.EventJoinBatchRoom))
	require.Eventually(t, func() bool {
		return len(f.sink.byKind(ports.NotifyResendPrompt)) == 2
	}, time.Second, 5*time.Millisecond)
	f.dispatch.AssertExpectations(t)
}

func Test_DeclineResend_DoesNotRearm(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))
	require.Eventually(t, func() bool {
		return len(f.sink.byKind(ports.NotifyResendPrompt)) == 1
	}, time.Second, 5*time.Millisecond)

	// When
	require.NoError(t, f.coord.DeclineResend(key))

	// Then
	time.Sleep(3 * testRetryPrompt)
	assert.Len(t, f.sink.byKind(ports.NotifyResendPrompt), 1)
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.False(t, view.AwaitingResend)

	assert.Error(t, f.coord.DeclineResend("missing"))
}

func Test_SendBroadcast_FailureAlertsWithoutTimer(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{}, errs.NewNetworkError("dispatch", errors.New("connection reset"))).Once()

	// When
	err := f.coord.SendBroadcast(context.Background(), key)

	// Then
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNetwork)
	alerts := f.sink.byKind(ports.NotifyAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, key, alerts[0].BatchKey)

	time.Sleep(3 * testRetryPrompt)
	assert.Empty(t, f.sink.byKind(ports.NotifyResendPrompt))
	assert.Zero(t, f.push.count(ports.EventJoinBatchRoom))

	// A failed broadcast may be sent again.
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-2"}, nil).Once()
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))
	f.dispatch.AssertExpectations(t)
}

func Test_DriverAcceptance_LiftsGateAndStopsPrompt(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore), grabOrder(t, "2", nearCore2))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1", RideID: "R-1"}, nil).Once()
	f.expectDriver("drv-1", "Karma")
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))

	gated, ok := f.engine.Order("1")
	require.True(t, ok)
	_, canAdvance := order.NextTransition(gated)
	require.False(t, canAdvance)

	// When
	require.True(t, f.push.deliver(ports.EventDeliveryAccepted, `{"driver_id":"drv-1","batch_id":"B-1"}`))

	// Then
	for _, id := range []string{"1", "2"} {
		o, ok := f.engine.Order(id)
		require.True(t, ok)
		assert.Equal(t, "drv-1", o.DriverID())
		next, ok := order.NextTransition(o)
		require.True(t, ok)
		assert.Equal(t, order.OutForDelivery, next)
	}
	assert.Len(t, f.sink.byKind(ports.NotifyDriverAccepted), 1)

	require.Eventually(t, func() bool {
		view, err := f.coord.Batch(key)
		return err == nil && view.DriverProfile.Name == "Karma" && view.DriverProfile.Rating == 4.8
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, a, _ := f.log.counts()
		return a == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(3 * testRetryPrompt)
	assert.Empty(t, f.sink.byKind(ports.NotifyResendPrompt))
	assert.ErrorIs(t, f.coord.Resend(context.Background(), key), coordinator.ErrNothingToResend)

	// A location event with an inline status moves the batch forward.
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation,
		[]byte(`{"rideId":"R-1","lat":27.4700,"lng":89.6350,"status":"on road"}`)))
	o, _ := f.engine.Order("2")
	assert.Equal(t, order.OutForDelivery, o.Status())
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.Equal(t, order.OutForDelivery, view.Phase)
	assert.Equal(t, kernel.MustCoordinates(27.4700, 89.6350), view.DriverLocation)
	assert.True(t, view.HasETA)
}

func Test_AcceptedWithoutID_UsesSoleActiveBatch(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	f.expectDriver("drv-1", "Karma")

	// No request is active yet, so there is nothing to attach to.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1"}`)))

	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))

	// When
	applied := f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1"}`))

	// Then
	assert.True(t, applied)
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.Equal(t, "drv-1", view.DriverID)

	// Accepted events without a driver are ignored.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"batch_id":"B-1"}`)))
}

func Test_LocationEvents_AreScopedToTheSession(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	f.expectDriver("drv-1", "Karma")
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))

	// Foreign ids are dropped.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"order_id":"999","lat":27.47,"lng":89.64}`)))
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"batch_id":"B-other","lat":27.47,"lng":89.64}`)))
	// No id and no assignment yet.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"lat":27.47,"lng":89.64}`)))
	// Garbage.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`not json`)))

	require.True(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1","order_id":"1"}`)))

	// When
	applied := f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"lat":27.4710,"lng":89.6380}`))

	// Then
	assert.True(t, applied)
	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.Equal(t, kernel.MustCoordinates(27.4710, 89.6380), view.DriverLocation)
	require.Len(t, f.sink.byKind(ports.NotifyDriverLocation), 1)

	// Without coordinates an id-less event cannot be attributed and its status is ignored.
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"status":"delivered"}`)))
	o, _ := f.engine.Order("1")
	assert.Equal(t, order.Ready, o.Status())
}

func Test_LocationWithoutID_IsDroppedWhenAmbiguous(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore), grabOrder(t, "2", farAway))
	batches, _, err := f.coord.PlanBatches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	first, second := batches[0].Key().String(), batches[1].Key().String()

	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-2"}, nil).Once()
	f.expectDriver("drv-1", "Karma")
	f.expectDriver("drv-2", "Pema")
	require.NoError(t, f.coord.SendBroadcast(context.Background(), first))
	require.NoError(t, f.coord.SendBroadcast(context.Background(), second))
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1","batch_id":"B-1"}`)))
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-2","batch_id":"B-2"}`)))

	// When / Then
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"lat":27.1,"lng":89.1}`)))
	assert.True(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation, []byte(`{"driver_id":"drv-2","lat":27.1,"lng":89.1}`)))

	view, err := f.coord.Batch(second)
	require.NoError(t, err)
	assert.Equal(t, kernel.MustCoordinates(27.1, 89.1), view.DriverLocation)
	view, err = f.coord.Batch(first)
	require.NoError(t, err)
	assert.False(t, view.DriverLocation.IsSet())
}

func Test_DriverArrived_NotifiesWithMessage(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	f.expectDriver("drv-1", "Karma")
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1","batch_id":"B-1"}`)))

	// When
	applied := f.coord.HandleEvent(ports.EventDriverArrived, []byte(`{"driver_id":"drv-1","message":"At the gate"}`))

	// Then
	assert.True(t, applied)
	arrivals := f.sink.byKind(ports.NotifyDriverArrived)
	require.Len(t, arrivals, 1)
	assert.Equal(t, "At the gate", arrivals[0].Message)
	assert.Equal(t, "drv-1", arrivals[0].DriverID)

	view, err := f.coord.Batch(key)
	require.NoError(t, err)
	assert.True(t, view.DriverArrived)
	require.Eventually(t, func() bool {
		_, _, arrived := f.log.counts()
		return arrived == 1
	}, time.Second, 5*time.Millisecond)

	// Unknown drivers are not attributed to this session.
	assert.False(t, f.coord.HandleEvent(ports.EventDriverArrived, []byte(`{"driver_id":"drv-7"}`)))
}

func Test_FinishedBatchesArePruned(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	f.expectDriver("drv-1", "Karma")
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1","batch_id":"B-1"}`)))

	// When
	require.True(t, f.coord.HandleEvent(ports.EventDeliveryDriverLocation,
		[]byte(`{"batch_id":"B-1","lat":27.4730,"lng":89.6400,"status":"delivered"}`)))

	// Then
	_, err := f.coord.Batch(key)
	assert.ErrorIs(t, err, errs.ErrObjectNotFound)
	assert.Empty(t, f.coord.Batches())
}

func Test_Rooms_JoinIsIdempotentAndRejoinedOnReconnect(t *testing.T) {
	// Given
	f := newFixture(t)
	ctx := context.Background()

	// When
	require.NoError(t, f.coord.JoinOrder(ctx, "1"))
	require.NoError(t, f.coord.JoinOrder(ctx, "1"))
	require.NoError(t, f.coord.JoinBusinessRoom(ctx, "biz-1"))
	require.NoError(t, f.coord.JoinOrder(ctx, ""))

	// Then
	assert.Equal(t, 1, f.push.count(ports.EventJoinOrder))
	assert.Equal(t, []string{"business:biz-1", "order:1"}, f.coord.Rooms())

	f.push.setEmitErr(errors.New("socket down"))
	require.Error(t, f.coord.JoinBatchRoom(ctx, "B-9"))
	assert.NotContains(t, f.coord.Rooms(), "batch:B-9")
	f.push.setEmitErr(nil)

	f.push.triggerReconnect()
	require.Eventually(t, func() bool {
		return f.push.count(ports.EventJoinOrder) == 2 && f.push.count(ports.EventJoinBusinessRoom) == 2
	}, time.Second, 5*time.Millisecond)
}

func Test_Close_DetachesAndStopsTimers(t *testing.T) {
	// Given
	f := newFixture(t, grabOrder(t, "1", nearCore))
	key := singleBatch(t, f)
	f.dispatch.On("Broadcast", mock.Anything, mock.Anything).
		Return(ports.BroadcastResult{BatchID: "B-1"}, nil).Once()
	require.NoError(t, f.coord.SendBroadcast(context.Background(), key))

	// When
	f.coord.Close()
	f.coord.Close()

	// Then
	assert.False(t, f.coord.Mounted())
	assert.False(t, f.push.deliver(ports.EventDeliveryAccepted, `{"driver_id":"drv-1"}`))
	assert.False(t, f.coord.HandleEvent(ports.EventDeliveryAccepted, []byte(`{"driver_id":"drv-1","batch_id":"B-1"}`)))
	assert.ErrorIs(t, f.coord.SendBroadcast(context.Background(), key), coordinator.ErrCoordinatorClosed)
	assert.ErrorIs(t, f.coord.JoinOrder(context.Background(), "1"), coordinator.ErrCoordinatorClosed)
	_, _, err := f.coord.PlanBatches()
	assert.ErrorIs(t, err, coordinator.ErrCoordinatorClosed)

	time.Sleep(3 * testRetryPrompt)
	assert.Empty(t, f.sink.byKind(ports.NotifyResendPrompt))
}
