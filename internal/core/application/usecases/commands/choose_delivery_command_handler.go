package commands

import (
	"context"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

// ChooseDeliveryCommandHandler records the choice locally and resends the current
// status with delivery_option so the backend learns it.
type ChooseDeliveryCommandHandler struct {
	deps Deps
}

func NewChooseDeliveryCommandHandler(deps Deps) ChooseDeliveryCommandHandler {
	return ChooseDeliveryCommandHandler{deps: deps}
}

func (h ChooseDeliveryCommandHandler) Handle(ctx context.Context, cmd ChooseDeliveryCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	updated, err := h.deps.Orders.Mutate(cmd.OrderID(), func(o *order.Order) error {
		return o.ChooseDelivery(cmd.Option())
	})
	if err != nil {
		return err
	}

	return h.deps.sendStatus(ctx, updated, ports.StatusChange{
		Status:         updated.Status(),
		DeliveryOption: cmd.Option(),
	})
}
