package ports

import "context"

// Push channel event names.
const (
	EventDeliveryAccepted       = "deliveryAccepted"
	EventDriverArrived          = "delivery:driver_arrived"
	EventDeliveryDriverLocation = "deliveryDriverLocation"

	EventJoinOrder        = "joinOrder"
	EventJoinBatchRoom    = "joinBatchRoom"
	EventJoinBusinessRoom = "joinBusinessRoom"
)

// PushChannel is the socket connection to the backend. Reconnection is handled by
// the transport; subscribers re-join their rooms from OnReconnect.
type PushChannel interface {
	// Emit sends {"event": event, "data": data}.
	Emit(ctx context.Context, event string, data any) error
	// Subscribe registers a handler for the raw data of event.
	Subscribe(event string, handler func(data []byte)) (unsubscribe func())
	// OnReconnect registers fn to run after every successful connect, including
	// the first, so joins attempted while the socket was down catch up.
	OnReconnect(fn func()) (unsubscribe func())
}
