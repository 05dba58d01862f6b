package commands

import (
	"context"

	"merchantdispatch/internal/core/domain/model/order"
	"merchantdispatch/internal/core/ports"
)

// AdvanceOrderCommandHandler applies order.NextTransition. Gated orders (READY,
// GRAB, no driver yet) are refused with order.ErrTransitionNotAllowed.
type AdvanceOrderCommandHandler struct {
	deps Deps
}

func NewAdvanceOrderCommandHandler(deps Deps) AdvanceOrderCommandHandler {
	return AdvanceOrderCommandHandler{deps: deps}
}

// Handle returns the status the order moved to.
func (h AdvanceOrderCommandHandler) Handle(ctx context.Context, cmd AdvanceOrderCommand) (order.Status, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}

	var next order.Status
	updated, err := h.deps.Orders.Mutate(cmd.OrderID(), func(o *order.Order) error {
		next, _ = order.NextTransition(o)
		return o.Advance(next, cmd.Reason())
	})
	if err != nil {
		return "", err
	}

	return next, h.deps.sendStatus(ctx, updated, ports.StatusChange{
		Status:         next,
		StatusReason:   cmd.Reason(),
		Reason:         cmd.Reason(),
		DeliveryOption: chosenOption(updated),
	})
}
