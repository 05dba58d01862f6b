package merchantapi

import (
	"context"
	"net/http"

	"merchantdispatch/internal/core/domain/model/dispatch"
	"merchantdispatch/internal/core/ports"
	"merchantdispatch/internal/pkg/fieldchain"
)

var (
	batchIDChain = fieldchain.New("batch id",
		fieldchain.String("batch_id"),
		fieldchain.String("batchId"),
		fieldchain.String("batch", "id"),
	)
	rideIDChain = fieldchain.New("ride id",
		fieldchain.String("ride_id"),
		fieldchain.String("rideId"),
		fieldchain.String("ride", "id"),
	)
)

// Broadcast sends POST dispatch-broadcast. Identifiers in the response are optional.
func (c *Client) Broadcast(ctx context.Context, payload dispatch.Payload) (ports.BroadcastResult, error) {
	const p = "dispatch-broadcast"
	data, err := c.do(ctx, http.MethodPost, p, payload)
	if err != nil {
		return ports.BroadcastResult{}, err
	}
	m := c.decodeObject(p, data)
	batchID, _ := batchIDChain.Extract(m)
	rideID, _ := rideIDChain.Extract(m)
	return ports.BroadcastResult{BatchID: batchID, RideID: rideID}, nil
}
